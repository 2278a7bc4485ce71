package storage

import (
	"github.com/hutchd/hutch/pkg/types"
)

// Store defines the interface for runtime state storage
// This will be implemented by BoltDB-backed storage
type Store interface {
	// Images (keyed by "name:tag" reference)
	CreateImage(image *types.Image) error
	GetImage(ref string) (*types.Image, error)
	ListImages() ([]*types.Image, error)
	DeleteImage(ref string) error

	// Services (keyed by name; stack service names are unique)
	CreateService(service *types.ServiceDescriptor) error
	GetService(name string) (*types.ServiceDescriptor, error)
	ListServices() ([]*types.ServiceDescriptor, error)
	UpdateService(service *types.ServiceDescriptor) error
	DeleteService(name string) error

	// Instances
	CreateInstance(instance *types.Instance) error
	GetInstance(id string) (*types.Instance, error)
	ListInstances() ([]*types.Instance, error)
	ListInstancesByService(serviceName string) ([]*types.Instance, error)
	UpdateInstance(instance *types.Instance) error
	DeleteInstance(id string) error

	// Volumes
	CreateVolume(volume *types.Volume) error
	GetVolume(id string) (*types.Volume, error)
	GetVolumeByName(name string) (*types.Volume, error)
	ListVolumes() ([]*types.Volume, error)
	DeleteVolume(id string) error

	// Networks
	CreateNetwork(network *types.Network) error
	GetNetwork(id string) (*types.Network, error)
	GetNetworkByName(name string) (*types.Network, error)
	ListNetworks() ([]*types.Network, error)
	DeleteNetwork(id string) error

	// Utility
	Close() error
}
