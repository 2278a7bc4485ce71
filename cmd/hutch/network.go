package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var networkCmd = &cobra.Command{
	Use:   "network",
	Short: "Manage networks",
}

var networkListCmd = &cobra.Command{
	Use:   "list",
	Short: "List networks",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		networks, err := rt.store.ListNetworks()
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 1, 1, 2, ' ', 0)
		fmt.Fprintln(tw, "NETWORK\tNAME\tSUBNET\tGATEWAY\tRESOLVABLE\tCREATED")
		for _, nw := range networks {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n",
				shortID(nw.ID), nw.Name, nw.Subnet, nw.Gateway, nw.Resolvable, formatAge(nw.CreatedAt))
		}
		return tw.Flush()
	},
}

func init() {
	networkCmd.AddCommand(networkListCmd)

	rootCmd.AddCommand(networkCmd)
}
