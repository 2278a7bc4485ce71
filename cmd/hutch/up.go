package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hutchd/hutch/pkg/orchestrator"
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Build and start a stack",
	Long: `Build the images a stack needs and start its services.

Later stack files override earlier ones, so a base file plus an
environment override compose into one stack:

  hutch up -f hutch.yaml
  hutch up -f hutch.yaml -f hutch.prod.yaml --build

Services that already have a running instance are replaced. Images built
on a previous up are reused unless their build inputs changed or --build
forces a rebuild.`,
	RunE: runUp,
}

func init() {
	upCmd.Flags().StringSliceP("file", "f", nil, "Stack file (repeatable; later files override earlier ones)")
	upCmd.Flags().StringP("project", "p", "", "Project name (default: stack file name field or directory)")
	upCmd.Flags().Bool("build", false, "Rebuild images even when they already exist")
	upCmd.Flags().Int("parallel", 0, "Max services brought up at once (default 4)")
	upCmd.Flags().Duration("timeout", 0, "Timeout for the whole up (default 10m)")
	_ = upCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(upCmd)
}

func runUp(cmd *cobra.Command, args []string) error {
	forceBuild, _ := cmd.Flags().GetBool("build")
	parallel, _ := cmd.Flags().GetInt("parallel")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	stack, project, err := loadStack(cmd)
	if err != nil {
		return err
	}
	descs, err := stack.Descriptors()
	if err != nil {
		return err
	}

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	fmt.Printf("Bringing up stack '%s' (%d services)...\n", project, len(descs))
	fmt.Println()

	started := time.Now()
	instances, err := rt.orch.Up(context.Background(), project, descs, orchestrator.UpOptions{
		ForceRebuild: forceBuild,
		Parallelism:  parallel,
		Timeout:      timeout,
	})

	for _, inst := range instances {
		fmt.Printf("✓ Service started: %s (instance %s, %s)\n",
			inst.ServiceName, shortID(inst.ID), inst.Address)
	}
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("✓ Stack is up: %s (%d services, %s)\n",
		project, len(instances), time.Since(started).Round(time.Millisecond))
	return nil
}
