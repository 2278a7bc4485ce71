package mount

import (
	"fmt"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/hutchd/hutch/pkg/types"
)

// SourceFunc maps a mount declaration to the host path backing it.
// Bind mounts pass through; volume and anonymous mounts resolve through
// the volume manager.
type SourceFunc func(spec types.MountSpec) (string, error)

// ToOCI converts the table to runtime-spec mounts in application order.
// All entries become bind mounts on the host side; read-only mounts get
// the ro option, everything else rw.
func (t Table) ToOCI(source SourceFunc) ([]specs.Mount, error) {
	if t.Len() == 0 {
		return nil, nil
	}

	mounts := make([]specs.Mount, 0, t.Len())
	for _, e := range t.entries {
		hostPath, err := source(e.Spec)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve source for %s: %w", e.Spec.Target, err)
		}

		mountSpec := specs.Mount{
			Source:      hostPath,
			Destination: e.Spec.Target,
			Type:        "bind",
			Options:     []string{"rbind"},
		}

		// Add read-only option if specified
		if e.Spec.ReadOnly {
			mountSpec.Options = append(mountSpec.Options, "ro")
		} else {
			mountSpec.Options = append(mountSpec.Options, "rw")
		}

		mounts = append(mounts, mountSpec)
	}

	return mounts, nil
}
