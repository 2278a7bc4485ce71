package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hutchd/hutch/pkg/builder"
	"github.com/hutchd/hutch/pkg/types"
)

var buildCmd = &cobra.Command{
	Use:   "build [SERVICE...]",
	Short: "Build stack images without starting anything",
	Long: `Build the images of a stack's services. Without arguments every
service that has a build section is built; naming services restricts the
set.

Steps whose inputs did not change are served from the layer cache, so
repeat builds only run what a change invalidated:

  hutch build -f hutch.yaml
  hutch build -f hutch.yaml web --build-arg ENV=production`,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringSliceP("file", "f", nil, "Stack file (repeatable; later files override earlier ones)")
	buildCmd.Flags().StringP("project", "p", "", "Project name (default: stack file name field or directory)")
	buildCmd.Flags().StringArray("build-arg", nil, "Build argument override as KEY=VALUE (repeatable)")
	buildCmd.Flags().Duration("timeout", 10*time.Minute, "Timeout for the whole build")
	_ = buildCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	argFlags, _ := cmd.Flags().GetStringArray("build-arg")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	overrides := make(types.ArgBindings)
	for _, kv := range argFlags {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid build arg %q (want KEY=VALUE)", kv)
		}
		overrides[key] = value
	}

	stack, project, err := loadStack(cmd)
	if err != nil {
		return err
	}
	descs, err := stack.Descriptors()
	if err != nil {
		return err
	}

	selected := make(map[string]bool, len(args))
	for _, name := range args {
		if _, ok := stack.Services[name]; !ok {
			return fmt.Errorf("no such service: %s", name)
		}
		selected[name] = true
	}

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	built := 0
	for _, desc := range descs {
		if desc.Build == nil {
			continue
		}
		if len(selected) > 0 && !selected[desc.Name] {
			continue
		}

		bindings := make(types.ArgBindings, len(desc.Build.Args)+len(overrides))
		for k, v := range desc.Build.Args {
			bindings[k] = v
		}
		for k, v := range overrides {
			bindings[k] = v
		}

		fmt.Printf("Building %s_%s...\n", project, desc.Name)
		image, err := rt.builder.Build(ctx, builder.Request{
			Name:       project + "_" + desc.Name,
			Plan:       desc.Build.Plan,
			Args:       bindings,
			ContextDir: desc.Build.ContextDir,
		})
		if err != nil {
			return fmt.Errorf("failed to build service %s: %w", desc.Name, err)
		}
		fmt.Printf("✓ Image built: %s (%d layers)\n", image.Ref(), len(image.Layers))
		built++
	}

	if built == 0 {
		fmt.Println("Nothing to build: no service with a build section matched.")
	}
	return nil
}
