package builder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/hutchd/hutch/pkg/log"
	"github.com/hutchd/hutch/pkg/types"
)

// RunSpec describes one run step's execution environment
type RunSpec struct {
	RootDir string // staging root the step works against
	Workdir string // working directory inside the root ("" means the root)
	Command string // shell command, already rendered
	Env     []types.EnvVar
}

// Executor runs build commands. Implementations return the command's exit
// code; err is reserved for failures to execute at all. A cancelled ctx must
// terminate an in-flight command through the executor's kill path rather
// than abandoning it.
type Executor interface {
	Run(ctx context.Context, spec RunSpec) (int, error)
}

// ShellExecutor runs commands with sh -c inside the staging tree. Commands
// see the staging root as their working tree, not a chroot, so they must
// use relative paths.
type ShellExecutor struct{}

// buildPath is the PATH run steps execute with
const buildPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

func (ShellExecutor) Run(ctx context.Context, spec RunSpec) (int, error) {
	dir := spec.RootDir
	if spec.Workdir != "" {
		dir = filepath.Join(spec.RootDir, strings.TrimPrefix(spec.Workdir, "/"))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create working directory: %w", err)
	}

	env := []string{"PATH=" + buildPath}
	for _, e := range spec.Env {
		env = append(env, e.Name+"="+e.Value)
	}

	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, "sh", "-c", spec.Command)
	cmd.Dir = dir
	cmd.Env = env
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	// A ctx kill also reports as an ExitError, so check cancellation first.
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		logger := log.WithComponent("builder.exec")
		logger.Debug().
			Int("exit_code", exitErr.ExitCode()).
			Str("output", tail(output.String(), 2048)).
			Msg("Run step exited nonzero")
		return exitErr.ExitCode(), nil
	}
	return 0, fmt.Errorf("failed to execute command: %w", err)
}

// tail keeps the last max bytes of command output
func tail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
