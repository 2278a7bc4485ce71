package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List instances",
	RunE: func(cmd *cobra.Command, args []string) error {
		project, _ := cmd.Flags().GetString("project")

		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		instances, err := rt.orch.ListInstances()
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 1, 1, 2, ' ', 0)
		fmt.Fprintln(tw, "INSTANCE\tPROJECT\tSERVICE\tIMAGE\tSTATE\tADDRESS\tAGE")
		for _, inst := range instances {
			if project != "" && inst.Project != project {
				continue
			}
			addr := "-"
			if inst.Address != nil {
				addr = inst.Address.String()
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				shortID(inst.ID), inst.Project, inst.ServiceName, inst.ImageRef,
				inst.State, addr, formatAge(inst.CreatedAt))
		}
		return tw.Flush()
	},
}

func init() {
	psCmd.Flags().StringP("project", "p", "", "Only show instances of this project")

	rootCmd.AddCommand(psCmd)
}
