package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hutchd/hutch/pkg/orchestrator"
)

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop and remove a stack",
	Long: `Stop a stack's services, remove their instances, release their
addresses and host ports, and remove the project network.

Named volume data is kept so the next up finds it again. Anonymous
volumes are left behind too; pass --volumes to delete both, or reclaim
them later with 'hutch volume gc':

  hutch down -f hutch.yaml
  hutch down --project shop --volumes`,
	RunE: runDown,
}

func init() {
	downCmd.Flags().StringSliceP("file", "f", nil, "Stack file the project name is read from")
	downCmd.Flags().StringP("project", "p", "", "Project name")
	downCmd.Flags().Bool("volumes", false, "Also delete named and anonymous volume data")

	rootCmd.AddCommand(downCmd)
}

func runDown(cmd *cobra.Command, args []string) error {
	removeVolumes, _ := cmd.Flags().GetBool("volumes")

	project, err := resolveProject(cmd)
	if err != nil {
		return err
	}

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	fmt.Printf("Taking down stack '%s'...\n", project)

	released, err := rt.orch.Down(context.Background(), project, orchestrator.DownOptions{
		RemoveVolumes: removeVolumes,
	})
	if err != nil {
		return err
	}

	fmt.Printf("✓ Stack removed: %s\n", project)
	fmt.Printf("  Instances: %d\n", released.Instances)
	fmt.Printf("  Volumes: %d\n", released.Volumes)
	fmt.Printf("  Networks: %d\n", released.Networks)
	if !removeVolumes {
		fmt.Println()
		fmt.Println("Named volume data was kept. Run 'hutch volume gc' to reclaim unreferenced volumes.")
	}
	return nil
}
