package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hutchd/hutch/pkg/types"
)

var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "Manage images",
}

var imageListCmd = &cobra.Command{
	Use:   "list",
	Short: "List images",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		images, err := rt.store.ListImages()
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 1, 1, 2, ' ', 0)
		fmt.Fprintln(tw, "IMAGE\tLAYERS\tSIZE\tCREATED")
		for _, image := range images {
			var size int64
			for _, fp := range image.Layers {
				layer, err := rt.layers.Get(fp)
				if err != nil {
					continue
				}
				size += layer.Size
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n",
				image.Ref(), len(image.Layers), formatBytes(size), formatAge(image.CreatedAt))
		}
		return tw.Flush()
	},
}

var imageRmCmd = &cobra.Command{
	Use:   "rm REF",
	Short: "Remove an image",
	Long: `Remove an image record. Layers the image pinned stay in the layer
store until 'hutch image gc' sweeps them, so removal is cheap and a
rebuild of the same inputs is instant.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref := args[0]

		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := rt.store.DeleteImage(ref); err != nil {
			return fmt.Errorf("failed to remove image: %v", err)
		}
		fmt.Printf("✓ Image removed: %s\n", ref)
		return nil
	},
}

var imageGcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Remove layers no image references",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		images, err := rt.store.ListImages()
		if err != nil {
			return err
		}
		live := make([]types.Fingerprint, 0, len(images))
		for _, image := range images {
			if len(image.Layers) > 0 {
				live = append(live, image.Layers[len(image.Layers)-1])
			}
		}

		_, before := rt.layers.Stats()
		removed, err := rt.layers.GC(live)
		if err != nil {
			return fmt.Errorf("failed to collect layers: %v", err)
		}
		_, after := rt.layers.Stats()

		fmt.Printf("✓ Layers removed: %d (freed %s)\n", removed, formatBytes(before-after))
		return nil
	},
}

func init() {
	imageCmd.AddCommand(imageListCmd)
	imageCmd.AddCommand(imageRmCmd)
	imageCmd.AddCommand(imageGcCmd)

	rootCmd.AddCommand(imageCmd)
}
