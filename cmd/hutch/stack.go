package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/hutchd/hutch/pkg/manifest"
)

// loadStack reads the stack files in order, merges later files over earlier
// ones, validates the result, and resolves the project name: --project beats
// the merged file's name field, which beats the base file's directory name.
func loadStack(cmd *cobra.Command) (*manifest.File, string, error) {
	files, _ := cmd.Flags().GetStringSlice("file")
	project, _ := cmd.Flags().GetString("project")

	if len(files) == 0 {
		return nil, "", fmt.Errorf("at least one stack file is required (-f)")
	}

	merged, err := manifest.Load(files[0])
	if err != nil {
		return nil, "", err
	}
	for _, path := range files[1:] {
		override, err := manifest.Load(path)
		if err != nil {
			return nil, "", err
		}
		merged = manifest.Merge(merged, override)
	}

	if err := merged.Validate(); err != nil {
		return nil, "", err
	}

	if project == "" {
		project = merged.Name
	}
	if project == "" {
		project = filepath.Base(merged.Dir)
	}
	return merged, project, nil
}

// resolveProject returns --project when given, otherwise derives the project
// from the stack files
func resolveProject(cmd *cobra.Command) (string, error) {
	project, _ := cmd.Flags().GetString("project")
	if project != "" {
		return project, nil
	}
	files, _ := cmd.Flags().GetStringSlice("file")
	if len(files) == 0 {
		return "", fmt.Errorf("either --project or a stack file (-f) is required")
	}
	_, project, err := loadStack(cmd)
	return project, err
}

// shortID trims an instance or volume ID for table output
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatAge renders the time since t in the largest round unit
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

// formatBytes renders a byte count with a binary unit suffix
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
