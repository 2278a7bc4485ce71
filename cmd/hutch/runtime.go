package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hutchd/hutch/pkg/builder"
	"github.com/hutchd/hutch/pkg/events"
	"github.com/hutchd/hutch/pkg/layer"
	"github.com/hutchd/hutch/pkg/network"
	"github.com/hutchd/hutch/pkg/orchestrator"
	"github.com/hutchd/hutch/pkg/storage"
	"github.com/hutchd/hutch/pkg/volume"
)

// runtime bundles the collaborators commands work with. Everything is
// rooted at the data dir:
//
//	<data-dir>/hutch.db     runtime state
//	<data-dir>/layers/      layer metadata and blobs
//	<data-dir>/bases/       realized base image roots
//	<data-dir>/volumes/     volume data
//	<data-dir>/instances/   per-instance scratch dirs
type runtime struct {
	store    *storage.BoltStore
	layers   *layer.BoltStore
	builder  *builder.Builder
	volumes  *volume.Manager
	registry *network.Registry
	broker   *events.Broker
	orch     *orchestrator.Orchestrator
}

// openRuntime assembles the component graph under --data-dir
func openRuntime(cmd *cobra.Command) (*runtime, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %v", err)
	}

	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %v", err)
	}

	layers, err := layer.NewBoltStore(filepath.Join(dataDir, "layers"))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open layer store: %v", err)
	}

	fetcher, err := builder.NewFetcher(layers, filepath.Join(dataDir, "bases"))
	if err != nil {
		layers.Close()
		store.Close()
		return nil, fmt.Errorf("failed to create base fetcher: %v", err)
	}

	volumes, err := volume.NewManager(store, filepath.Join(dataDir, "volumes"))
	if err != nil {
		layers.Close()
		store.Close()
		return nil, fmt.Errorf("failed to create volume manager: %v", err)
	}

	registry, err := network.NewRegistry(store, network.DefaultPool)
	if err != nil {
		layers.Close()
		store.Close()
		return nil, fmt.Errorf("failed to create network registry: %v", err)
	}

	broker := events.NewBroker()
	broker.Start()

	bld := builder.New(layers, store, fetcher, builder.ShellExecutor{}, broker)

	orch, err := orchestrator.New(orchestrator.Config{
		Store:     store,
		Layers:    layers,
		Builder:   bld,
		Volumes:   volumes,
		Registry:  registry,
		HostPorts: network.NewHostPorts(),
		Broker:    broker,
		DataDir:   dataDir,
	})
	if err != nil {
		broker.Stop()
		layers.Close()
		store.Close()
		return nil, fmt.Errorf("failed to create orchestrator: %v", err)
	}

	return &runtime{
		store:    store,
		layers:   layers,
		builder:  bld,
		volumes:  volumes,
		registry: registry,
		broker:   broker,
		orch:     orch,
	}, nil
}

// Close releases the underlying databases
func (rt *runtime) Close() {
	rt.broker.Stop()
	if err := rt.layers.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close layer store: %v\n", err)
	}
	if err := rt.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close state store: %v\n", err)
	}
}
