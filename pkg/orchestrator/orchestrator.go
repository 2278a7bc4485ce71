package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/hutchd/hutch/pkg/builder"
	"github.com/hutchd/hutch/pkg/events"
	"github.com/hutchd/hutch/pkg/layer"
	"github.com/hutchd/hutch/pkg/log"
	"github.com/hutchd/hutch/pkg/metrics"
	"github.com/hutchd/hutch/pkg/network"
	"github.com/hutchd/hutch/pkg/storage"
	"github.com/hutchd/hutch/pkg/types"
	"github.com/hutchd/hutch/pkg/volume"
)

const (
	// DefaultParallelism bounds how many services are brought up at once.
	DefaultParallelism = 4

	// DefaultUpTimeout bounds a whole Up call when the caller does not
	// pass its own. Every wait below (base fetch, layer locks) is
	// context-bounded through it.
	DefaultUpTimeout = 10 * time.Minute
)

// Config carries the orchestrator's collaborators. Store, Layers,
// Builder, Volumes, Registry, HostPorts and DataDir are required;
// Broker may be nil to disable events.
type Config struct {
	Store     storage.Store
	Layers    layer.Store
	Builder   *builder.Builder
	Volumes   *volume.Manager
	Registry  *network.Registry
	HostPorts *network.HostPorts
	Broker    *events.Broker
	DataDir   string
}

// Orchestrator drives stacks of services: building images, attaching
// mounts and volumes, joining networks, publishing ports, and walking
// each instance through its lifecycle. All shared state lives in the
// explicit collaborators, so tests run against fresh disposable ones.
type Orchestrator struct {
	store     storage.Store
	layers    layer.Store
	builder   *builder.Builder
	volumes   *volume.Manager
	registry  *network.Registry
	hostPorts *network.HostPorts
	broker    *events.Broker
	dataDir   string
	logger    zerolog.Logger
}

// New creates an orchestrator from its collaborators
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Store == nil:
		return nil, fmt.Errorf("store is required")
	case cfg.Layers == nil:
		return nil, fmt.Errorf("layer store is required")
	case cfg.Builder == nil:
		return nil, fmt.Errorf("builder is required")
	case cfg.Volumes == nil:
		return nil, fmt.Errorf("volume manager is required")
	case cfg.Registry == nil:
		return nil, fmt.Errorf("network registry is required")
	case cfg.HostPorts == nil:
		return nil, fmt.Errorf("host port table is required")
	case cfg.DataDir == "":
		return nil, fmt.Errorf("data dir is required")
	}
	return &Orchestrator{
		store:     cfg.Store,
		layers:    cfg.Layers,
		builder:   cfg.Builder,
		volumes:   cfg.Volumes,
		registry:  cfg.Registry,
		hostPorts: cfg.HostPorts,
		broker:    cfg.Broker,
		dataDir:   cfg.DataDir,
		logger:    log.WithComponent("orchestrator"),
	}, nil
}

// UpOptions tune one Up call
type UpOptions struct {
	// ForceRebuild rebuilds services that have a build spec even when
	// their derived image already exists. Without it a stale image is
	// reused silently, which is the documented default.
	ForceRebuild bool

	// Parallelism bounds concurrent service bring-up. Zero means
	// DefaultParallelism.
	Parallelism int

	// Timeout bounds the whole call. Zero means DefaultUpTimeout.
	Timeout time.Duration
}

// DownOptions tune one Down call
type DownOptions struct {
	// RemoveVolumes deletes the data of named volumes and of anonymous
	// volumes attached to the removed instances. Without it named
	// volume data is kept and anonymous volumes are leaked until an
	// explicit GCUnreferencedVolumes sweep.
	RemoveVolumes bool
}

// Released counts what a Down call freed
type Released struct {
	Instances int
	Volumes   int
	Networks  int
}

// Up brings a project's services up. Services are processed with
// bounded parallelism and their failures are isolated: one service's
// build or creation error never stops its siblings, and the returned
// error joins the individual failures. Instances that were already
// running for a service are replaced, so resolution follows the
// newest instance.
func (o *Orchestrator) Up(ctx context.Context, project string, descs []types.ServiceDescriptor, opts UpOptions) ([]*types.Instance, error) {
	if err := validateProject(project); err != nil {
		return nil, err
	}
	if len(descs) == 0 {
		return nil, fmt.Errorf("project %q: no services to bring up", project)
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultUpTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	timer := metrics.NewTimer()
	defer func() { timer.ObserveDuration(metrics.UpDuration) }()

	nw, err := o.registry.Ensure(project, network.CreateOptions{Resolvable: true})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure project network: %w", err)
	}

	o.logger.Info().
		Str("project", project).
		Int("services", len(descs)).
		Int("parallelism", opts.Parallelism).
		Msg("Bringing stack up")

	// One slot per service; failures land in errs, never cancel
	// siblings. The semaphore bounds how many run at once.
	sem := semaphore.NewWeighted(int64(opts.Parallelism))
	var wg sync.WaitGroup
	results := make([]*types.Instance, len(descs))
	errs := make([]error, len(descs))

	for i := range descs {
		if err := sem.Acquire(ctx, 1); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = types.ErrTimeout
			}
			errs[i] = fmt.Errorf("service %s: %w", descs[i].Name, err)
			continue
		}
		wg.Add(1)
		go func(i int, desc types.ServiceDescriptor) {
			defer wg.Done()
			defer sem.Release(1)

			inst, err := o.upService(ctx, project, nw, desc, opts)
			if err != nil {
				errs[i] = fmt.Errorf("service %s: %w", desc.Name, err)
				return
			}
			results[i] = inst
		}(i, descs[i])
	}
	wg.Wait()

	instances := make([]*types.Instance, 0, len(descs))
	for _, inst := range results {
		if inst != nil {
			instances = append(instances, inst)
		}
	}

	if o.broker != nil {
		o.broker.Publish(events.New(events.EventStackUp, "stack up", map[string]string{
			"project":  project,
			"services": fmt.Sprintf("%d", len(instances)),
		}))
	}
	o.logger.Info().
		Str("project", project).
		Int("started", len(instances)).
		Int("failed", len(descs)-len(instances)).
		Msg("Stack up finished")

	return instances, errors.Join(errs...)
}

// Down stops and removes a project's instances, releases their
// addresses and host ports, and removes the project network. Named
// volume data is kept unless RemoveVolumes; anonymous volumes are
// deleted with RemoveVolumes and deliberately leaked without it.
func (o *Orchestrator) Down(ctx context.Context, project string, opts DownOptions) (Released, error) {
	var released Released
	if err := validateProject(project); err != nil {
		return released, err
	}
	if err := ctx.Err(); err != nil {
		return released, err
	}

	instances, err := o.projectInstances(project)
	if err != nil {
		return released, err
	}

	nw, err := o.registry.GetByName(project)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return released, err
	}

	// Teardown runs to completion once started; individual failures
	// are logged and the rest proceeds.
	attached := make(map[string]struct{})
	for _, inst := range instances {
		for _, id := range inst.VolumeIDs {
			attached[id] = struct{}{}
		}
		if err := o.teardownInstance(inst); err != nil {
			o.logger.Error().Err(err).Str("instance", inst.ID).Msg("Instance teardown incomplete")
		}
		released.Instances++
	}

	released.Volumes = o.releaseVolumes(project, attached, opts.RemoveVolumes)

	if nw != nil {
		if err := o.registry.Remove(nw.ID); err != nil {
			o.logger.Error().Err(err).Str("network", nw.Name).Msg("Failed to remove project network")
		} else {
			released.Networks++
			if o.broker != nil {
				o.broker.Publish(events.New(events.EventNetworkRemoved, "network removed", map[string]string{
					"network": nw.Name,
				}))
			}
		}
	}

	if o.broker != nil {
		o.broker.Publish(events.New(events.EventStackDown, "stack down", map[string]string{
			"project": project,
		}))
	}
	o.logger.Info().
		Str("project", project).
		Int("instances", released.Instances).
		Int("volumes", released.Volumes).
		Msg("Stack down finished")

	return released, nil
}

// releaseVolumes applies the retention policy to the volumes that were
// attached to the removed instances. Returns how many were deleted.
func (o *Orchestrator) releaseVolumes(project string, attached map[string]struct{}, removeVolumes bool) int {
	if len(attached) == 0 {
		return 0
	}

	// Volumes still referenced by other projects' instances survive
	// even RemoveVolumes.
	stillUsed := make(map[string]struct{})
	if all, err := o.store.ListInstances(); err == nil {
		for _, inst := range all {
			for _, id := range inst.VolumeIDs {
				stillUsed[id] = struct{}{}
			}
		}
	}

	removed := 0
	for id := range attached {
		vol, err := o.volumes.Get(id)
		if err != nil {
			continue
		}
		if _, used := stillUsed[id]; used {
			o.logger.Debug().Str("volume", id).Msg("Volume still referenced, keeping")
			continue
		}
		if !removeVolumes {
			if vol.Anonymous {
				o.logger.Info().Str("volume", id).Msg("Anonymous volume left behind; run volume gc to reclaim")
			}
			continue
		}
		if err := o.volumes.Remove(id); err != nil {
			o.logger.Error().Err(err).Str("volume", id).Msg("Failed to remove volume")
			continue
		}
		removed++
		if o.broker != nil {
			o.broker.Publish(events.New(events.EventVolumeRemoved, "volume removed", map[string]string{
				"volume":  id,
				"project": project,
			}))
		}
	}
	return removed
}

// GCUnreferencedVolumes removes every volume no live instance
// references. This is the explicit sweep for anonymous volumes leaked
// by Down without RemoveVolumes.
func (o *Orchestrator) GCUnreferencedVolumes(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	instances, err := o.store.ListInstances()
	if err != nil {
		return 0, fmt.Errorf("failed to list instances: %w", err)
	}
	referenced := make(map[string]struct{})
	for _, inst := range instances {
		for _, id := range inst.VolumeIDs {
			referenced[id] = struct{}{}
		}
	}
	return o.volumes.GCUnreferenced(referenced)
}

// projectInstances lists the stored instances belonging to a project
func (o *Orchestrator) projectInstances(project string) ([]*types.Instance, error) {
	all, err := o.store.ListInstances()
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	var out []*types.Instance
	for _, inst := range all {
		if inst.Project == project {
			out = append(out, inst)
		}
	}
	return out, nil
}

// ListImages reports all stored images
func (o *Orchestrator) ListImages() ([]*types.Image, error) {
	return o.store.ListImages()
}

// ListInstances reports all stored instances
func (o *Orchestrator) ListInstances() ([]*types.Instance, error) {
	return o.store.ListInstances()
}

// ListVolumes reports all volumes
func (o *Orchestrator) ListVolumes() ([]*types.Volume, error) {
	return o.volumes.List()
}

// ListNetworks reports all networks
func (o *Orchestrator) ListNetworks() ([]*types.Network, error) {
	return o.registry.List()
}

// validateProject keeps project names safe for use as network names
// and image name prefixes.
func validateProject(name string) error {
	if name == "" {
		return fmt.Errorf("project name is required")
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case (r == '-' || r == '_') && i > 0:
		default:
			return fmt.Errorf("project name %q: must be lowercase letters, digits, hyphens and underscores", name)
		}
	}
	return nil
}
