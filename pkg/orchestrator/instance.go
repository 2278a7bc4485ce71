package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/hutchd/hutch/pkg/builder"
	"github.com/hutchd/hutch/pkg/mount"
	"github.com/hutchd/hutch/pkg/types"
)

// runtimeSpecFile is the handoff artifact written into every instance's
// scratch dir for an external runtime to consume.
const runtimeSpecFile = "config.json"

// derivedImageRef names the image a service's build produces
func derivedImageRef(project, service string) string {
	return project + "_" + service + ":latest"
}

// upService brings one service up: image, mounts, scratch dir, ports,
// network. An existing live instance of the service is torn down first
// so name resolution follows the replacement.
func (o *Orchestrator) upService(ctx context.Context, project string, nw *types.Network, desc types.ServiceDescriptor, opts UpOptions) (*types.Instance, error) {
	if prev, err := o.liveInstance(project, desc.Name); err != nil {
		return nil, err
	} else if prev != nil {
		o.logger.Info().
			Str("service", desc.Name).
			Str("instance", prev.ID).
			Msg("Replacing running instance")
		if err := o.teardownInstance(prev); err != nil {
			o.logger.Error().Err(err).Str("instance", prev.ID).Msg("Teardown of replaced instance incomplete")
		}
	}

	inst := &types.Instance{
		ID:          uuid.New().String(),
		Project:     project,
		ServiceName: desc.Name,
		State:       types.InstanceStatePlanned,
		CreatedAt:   time.Now(),
	}

	imageRef, imgCfg, err := o.resolveImage(ctx, project, inst, desc, opts.ForceRebuild)
	if err != nil {
		o.fail(inst, err)
		return nil, err
	}
	inst.ImageRef = imageRef

	if err := o.createInstance(nw, inst, desc, imgCfg); err != nil {
		o.fail(inst, err)
		return nil, err
	}

	if err := o.setState(inst, types.InstanceStateRunning); err != nil {
		return nil, err
	}
	if err := o.store.UpdateInstance(inst); err != nil {
		return inst, fmt.Errorf("failed to persist instance state: %w", err)
	}

	// Record the applied descriptor so listings show what is running.
	desc.UpdatedAt = time.Now()
	if err := o.store.CreateService(&desc); err != nil {
		o.logger.Warn().Err(err).Str("service", desc.Name).Msg("Failed to record service descriptor")
	}

	o.logger.Info().
		Str("service", desc.Name).
		Str("instance", inst.ID).
		Str("image", inst.ImageRef).
		Str("address", inst.Address.String()).
		Msg("Service up")
	return inst, nil
}

// resolveImage returns the image reference and config the instance
// runs. Services with a build spec build their derived image unless it
// already exists and ForceRebuild is off; reusing a stale image
// silently is the documented default, rebuilds are opt-in.
func (o *Orchestrator) resolveImage(ctx context.Context, project string, inst *types.Instance, desc types.ServiceDescriptor, force bool) (string, types.ImageConfig, error) {
	var cfg types.ImageConfig

	if desc.Build == nil {
		// A pinned image need not be stored locally; its config is
		// used when it is.
		if img, err := o.store.GetImage(desc.Image); err == nil {
			cfg = img.Config
		}
		return desc.Image, cfg, nil
	}

	ref := derivedImageRef(project, desc.Name)
	if !force {
		if img, err := o.store.GetImage(ref); err == nil {
			o.logger.Debug().Str("image", ref).Msg("Image exists, skipping build")
			return ref, img.Config, nil
		}
	}

	if err := o.setState(inst, types.InstanceStateBuilding); err != nil {
		return "", cfg, err
	}
	img, err := o.builder.Build(ctx, builder.Request{
		Name:       project + "_" + desc.Name,
		Plan:       desc.Build.Plan,
		Args:       desc.Build.Args,
		ContextDir: desc.Build.ContextDir,
	})
	if err != nil {
		return "", cfg, err
	}
	return img.Ref(), img.Config, nil
}

// createInstance provisions everything an instance owns: resolved
// mounts backed by volumes, the scratch dir with its runtime spec,
// host ports, and a network address. Any failure rolls the partial
// pieces back so an aborted creation leaves no artifacts.
func (o *Orchestrator) createInstance(nw *types.Network, inst *types.Instance, desc types.ServiceDescriptor, imgCfg types.ImageConfig) error {
	table, warnings, err := mount.Resolve(desc.Mounts)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		o.logger.Warn().Str("service", desc.Name).Msg(w.String())
	}

	var undo []func()
	rollback := func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}

	resolved := make([]types.MountSpec, 0, table.Len())
	ociMounts, err := table.ToOCI(func(spec types.MountSpec) (string, error) {
		hostPath, err := o.mountSource(spec, inst, &undo)
		if err != nil {
			return "", err
		}
		resolved = append(resolved, types.MountSpec{
			Type:     spec.Type,
			Source:   hostPath,
			Target:   spec.Target,
			ReadOnly: spec.ReadOnly,
		})
		return hostPath, nil
	})
	if err != nil {
		rollback()
		return err
	}
	inst.Mounts = resolved

	scratch := filepath.Join(o.dataDir, "instances", inst.ID)
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		rollback()
		return fmt.Errorf("failed to create scratch dir: %w", err)
	}
	undo = append(undo, func() { _ = os.RemoveAll(scratch) })
	inst.ScratchDir = scratch

	if err := o.writeRuntimeSpec(inst, desc, imgCfg, ociMounts); err != nil {
		rollback()
		return err
	}

	if len(desc.Ports) > 0 {
		bindings := make([]types.PortMapping, 0, len(desc.Ports))
		for _, p := range desc.Ports {
			if p != nil {
				bindings = append(bindings, *p)
			}
		}
		if err := o.hostPorts.Publish(inst.ID, bindings); err != nil {
			rollback()
			return err
		}
		undo = append(undo, func() { _ = o.hostPorts.Unpublish(inst.ID) })
	}

	addr, err := o.registry.Join(nw.ID, inst.ID, desc.Name)
	if err != nil {
		rollback()
		return err
	}
	undo = append(undo, func() { _ = o.registry.Leave(nw.ID, inst.ID) })
	inst.Address = addr
	inst.NetworkID = nw.ID

	if err := o.setState(inst, types.InstanceStateCreated); err != nil {
		rollback()
		return err
	}
	if err := o.store.CreateInstance(inst); err != nil {
		rollback()
		return fmt.Errorf("failed to persist instance: %w", err)
	}
	return nil
}

// mountSource resolves one mount declaration to the host path backing
// it, creating volumes on first use. Fresh anonymous volumes register
// an undo: they hold no data yet, so an aborted creation removes them.
func (o *Orchestrator) mountSource(spec types.MountSpec, inst *types.Instance, undo *[]func()) (string, error) {
	switch spec.Type {
	case types.MountTypeBind:
		return spec.Source, nil
	case types.MountTypeVolume:
		vol, err := o.volumes.EnsureNamed(spec.Source)
		if err != nil {
			return "", err
		}
		inst.VolumeIDs = append(inst.VolumeIDs, vol.ID)
		return o.volumes.HostPath(vol), nil
	case types.MountTypeAnonymous:
		vol, err := o.volumes.CreateAnonymous()
		if err != nil {
			return "", err
		}
		id := vol.ID
		*undo = append(*undo, func() { _ = o.volumes.Remove(id) })
		inst.VolumeIDs = append(inst.VolumeIDs, vol.ID)
		return o.volumes.HostPath(vol), nil
	default:
		return "", fmt.Errorf("unknown mount type %q", spec.Type)
	}
}

// writeRuntimeSpec renders the OCI runtime spec an external runtime
// would launch the instance from. Descriptor settings override the
// image config.
func (o *Orchestrator) writeRuntimeSpec(inst *types.Instance, desc types.ServiceDescriptor, imgCfg types.ImageConfig, mounts []specs.Mount) error {
	args := desc.Command
	if len(args) == 0 {
		args = imgCfg.Cmd
	}
	if len(args) == 0 {
		args = []string{"sh"}
	}
	cwd := imgCfg.Workdir
	if cwd == "" {
		cwd = "/"
	}

	spec := specs.Spec{
		Version:  specs.Version,
		Hostname: desc.Name,
		Root:     &specs.Root{Path: "rootfs"},
		Process: &specs.Process{
			Cwd:  cwd,
			Args: args,
			Env:  mergedEnv(imgCfg.Env, desc.Env),
		},
		Mounts: mounts,
	}

	data, err := json.MarshalIndent(&spec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode runtime spec: %w", err)
	}
	path := filepath.Join(inst.ScratchDir, runtimeSpecFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write runtime spec: %w", err)
	}
	return nil
}

// mergedEnv flattens image env defaults overridden by descriptor env,
// in declaration order with overrides in place.
func mergedEnv(image, override []types.EnvVar) []string {
	idx := make(map[string]int, len(image))
	merged := make([]types.EnvVar, 0, len(image)+len(override))
	for _, e := range image {
		idx[e.Name] = len(merged)
		merged = append(merged, e)
	}
	for _, e := range override {
		if i, ok := idx[e.Name]; ok {
			merged[i] = e
			continue
		}
		merged = append(merged, e)
	}
	out := make([]string, len(merged))
	for i, e := range merged {
		out[i] = e.Name + "=" + e.Value
	}
	return out
}

// teardownInstance releases everything one instance holds. Teardown is
// best effort: failures are collected and the rest proceeds, so a
// half-torn-down instance never blocks the stack.
func (o *Orchestrator) teardownInstance(inst *types.Instance) error {
	var errs []error

	if inst.State == types.InstanceStateRunning {
		if err := o.setState(inst, types.InstanceStateStopped); err != nil {
			errs = append(errs, err)
		} else if err := o.store.UpdateInstance(inst); err != nil {
			errs = append(errs, err)
		}
	}

	if inst.NetworkID != "" {
		if err := o.registry.Leave(inst.NetworkID, inst.ID); err != nil && !errors.Is(err, types.ErrNotFound) {
			errs = append(errs, fmt.Errorf("failed to leave network: %w", err))
		}
	}
	if err := o.hostPorts.Unpublish(inst.ID); err != nil {
		errs = append(errs, fmt.Errorf("failed to release host ports: %w", err))
	}
	if inst.ScratchDir != "" {
		if err := os.RemoveAll(inst.ScratchDir); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove scratch dir: %w", err))
		}
	}

	if err := o.setState(inst, types.InstanceStateRemoved); err != nil {
		errs = append(errs, err)
	}
	if err := o.store.DeleteInstance(inst.ID); err != nil {
		errs = append(errs, fmt.Errorf("failed to delete instance record: %w", err))
	}
	return errors.Join(errs...)
}

// liveInstance finds the stored instance currently realizing a service
// in a project, if any.
func (o *Orchestrator) liveInstance(project, service string) (*types.Instance, error) {
	instances, err := o.store.ListInstancesByService(service)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	for _, inst := range instances {
		if inst.Project != project {
			continue
		}
		switch inst.State {
		case types.InstanceStateCreated, types.InstanceStateRunning, types.InstanceStateStopped:
			return inst, nil
		}
	}
	return nil, nil
}
