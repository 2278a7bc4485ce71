package builder

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hutchd/hutch/pkg/types"
)

// render substitutes $NAME and ${NAME} references from the bindings.
// Unbound names render empty; $$ renders a literal dollar.
func render(s string, args types.ArgBindings) string {
	return os.Expand(s, func(key string) string {
		if key == "$" {
			return "$"
		}
		return args[key]
	})
}

// renderPlan substitutes bindings into every operand and splices conditional
// steps into the branch their argument selects. The returned plan is what
// gets fingerprinted: two bindings that choose different branches or render
// different operands yield different cache keys, identical rendered plans
// share layers.
func renderPlan(plan []types.BuildStep, args types.ArgBindings) ([]types.BuildStep, error) {
	var out []types.BuildStep
	for _, step := range plan {
		if step.Kind == types.StepIf {
			if step.Cond == nil {
				return nil, fmt.Errorf("if step has no condition")
			}
			branch := step.Cond.Else
			if args[step.Cond.Arg] == step.Cond.Equals {
				branch = step.Cond.Then
			}
			expanded, err := renderPlan(branch, args)
			if err != nil {
				return nil, err
			}
			out = append(out, expanded...)
			continue
		}
		out = append(out, renderStep(step, args))
	}
	return out, nil
}

func renderStep(step types.BuildStep, args types.ArgBindings) types.BuildStep {
	s := step
	s.From = render(step.From, args)
	s.Workdir = render(step.Workdir, args)
	s.Src = render(step.Src, args)
	s.Dst = render(step.Dst, args)
	s.Command = render(step.Command, args)
	if len(step.Env) > 0 {
		s.Env = make([]types.EnvVar, len(step.Env))
		for i, e := range step.Env {
			s.Env[i] = types.EnvVar{Name: e.Name, Value: render(e.Value, args)}
		}
	}
	if len(step.Cmd) > 0 {
		s.Cmd = make([]string, len(step.Cmd))
		for i, c := range step.Cmd {
			s.Cmd[i] = render(c, args)
		}
	}
	return s
}

// stepKey derives the cache fingerprint for a rendered step on top of
// parent. The parent chains every prior step into the key, so equal keys
// mean equal build history.
func stepKey(parent types.Fingerprint, kind types.StepKind, operands ...string) (types.Fingerprint, error) {
	h := sha256.New()
	io.WriteString(h, parent.String())
	io.WriteString(h, "\x00")
	io.WriteString(h, string(kind))
	for _, op := range operands {
		io.WriteString(h, "\x00")
		io.WriteString(h, op)
	}
	return types.NewFingerprint("sha256", h.Sum(nil))
}

// stepOperands lists the identity-bearing operands of a rendered step
func stepOperands(step types.BuildStep, contextDigest string) []string {
	switch step.Kind {
	case types.StepSetWorkdir:
		return []string{step.Workdir}
	case types.StepCopy:
		return []string{step.Src, step.Dst, contextDigest}
	case types.StepRun:
		return []string{step.Command}
	case types.StepSetEnv:
		ops := make([]string, len(step.Env))
		for i, e := range step.Env {
			ops[i] = e.Name + "=" + e.Value
		}
		return ops
	case types.StepExpose:
		return []string{strconv.Itoa(int(step.Port))}
	case types.StepSetCommand:
		return append([]string(nil), step.Cmd...)
	}
	return nil
}

// digestPath content-addresses a file or directory tree. The digest covers
// relative paths, permission bits and file contents in sorted walk order.
// Modification times deliberately do not contribute, so checking out the
// same tree twice digests identically.
func digestPath(p string) (string, error) {
	info, err := os.Stat(p)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	if !info.IsDir() {
		if err := hashFileInto(h, ".", p, info.Mode().Perm()); err != nil {
			return "", err
		}
		return hex.EncodeToString(h.Sum(nil)), nil
	}

	err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(p, path)
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return nil
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(h, "%s\x00link\x00%s\x00", filepath.ToSlash(rel), target)
			return nil
		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				return err
			}
			return hashFileInto(h, filepath.ToSlash(rel), path, info.Mode().Perm())
		default:
			return nil
		}
	})
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashFileInto(h io.Writer, rel, p string, perm fs.FileMode) error {
	digest, err := digestFile(p)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(h, "%s\x00%04o\x00%s\x00", rel, perm, digest.String())
	return err
}
