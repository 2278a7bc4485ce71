package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var volumeCmd = &cobra.Command{
	Use:   "volume",
	Short: "Manage volumes",
}

var volumeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List volumes",
	Long: `List volumes, including anonymous ones left behind by down and by
replaced instances. Anonymous volumes show '<anonymous>' as their name
and are reclaimed by 'hutch volume gc'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		volumes, err := rt.volumes.List()
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 1, 1, 2, ' ', 0)
		fmt.Fprintln(tw, "VOLUME\tNAME\tPATH\tCREATED")
		for _, vol := range volumes {
			name := vol.Name
			if vol.Anonymous {
				name = "<anonymous>"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
				shortID(vol.ID), name, vol.MountPath, formatAge(vol.CreatedAt))
		}
		return tw.Flush()
	},
}

var volumeGcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Remove volumes no instance references",
	Long: `Delete every volume no live instance references, named and anonymous
alike. This is the reclamation path for anonymous volumes that down
leaves behind.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		removed, err := rt.orch.GCUnreferencedVolumes(context.Background())
		if err != nil {
			return fmt.Errorf("failed to collect volumes: %v", err)
		}
		fmt.Printf("✓ Volumes removed: %d\n", removed)
		return nil
	},
}

func init() {
	volumeCmd.AddCommand(volumeListCmd)
	volumeCmd.AddCommand(volumeGcCmd)

	rootCmd.AddCommand(volumeCmd)
}
