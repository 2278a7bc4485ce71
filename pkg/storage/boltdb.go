package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/hutchd/hutch/pkg/types"
)

var (
	// Bucket names
	bucketImages    = []byte("images")
	bucketServices  = []byte("services")
	bucketInstances = []byte("instances")
	bucketVolumes   = []byte("volumes")
	bucketNetworks  = []byte("networks")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "hutch.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketImages,
			bucketServices,
			bucketInstances,
			bucketVolumes,
			bucketNetworks,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Image operations
func (s *BoltStore) CreateImage(image *types.Image) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketImages)
		data, err := json.Marshal(image)
		if err != nil {
			return err
		}
		return b.Put([]byte(image.Ref()), data)
	})
}

func (s *BoltStore) GetImage(ref string) (*types.Image, error) {
	var image types.Image
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketImages)
		data := b.Get([]byte(ref))
		if data == nil {
			return fmt.Errorf("image %s: %w", ref, types.ErrNotFound)
		}
		return json.Unmarshal(data, &image)
	})
	if err != nil {
		return nil, err
	}
	return &image, nil
}

func (s *BoltStore) ListImages() ([]*types.Image, error) {
	var images []*types.Image
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketImages)
		return b.ForEach(func(k, v []byte) error {
			var image types.Image
			if err := json.Unmarshal(v, &image); err != nil {
				return err
			}
			images = append(images, &image)
			return nil
		})
	})
	return images, err
}

func (s *BoltStore) DeleteImage(ref string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketImages)
		return b.Delete([]byte(ref))
	})
}

// Service operations
func (s *BoltStore) CreateService(service *types.ServiceDescriptor) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketServices)
		data, err := json.Marshal(service)
		if err != nil {
			return err
		}
		return b.Put([]byte(service.Name), data)
	})
}

func (s *BoltStore) GetService(name string) (*types.ServiceDescriptor, error) {
	var service types.ServiceDescriptor
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketServices)
		data := b.Get([]byte(name))
		if data == nil {
			return fmt.Errorf("service %s: %w", name, types.ErrNotFound)
		}
		return json.Unmarshal(data, &service)
	})
	if err != nil {
		return nil, err
	}
	return &service, nil
}

func (s *BoltStore) ListServices() ([]*types.ServiceDescriptor, error) {
	var services []*types.ServiceDescriptor
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketServices)
		return b.ForEach(func(k, v []byte) error {
			var service types.ServiceDescriptor
			if err := json.Unmarshal(v, &service); err != nil {
				return err
			}
			services = append(services, &service)
			return nil
		})
	})
	return services, err
}

func (s *BoltStore) UpdateService(service *types.ServiceDescriptor) error {
	return s.CreateService(service) // Same as create (upsert)
}

func (s *BoltStore) DeleteService(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketServices)
		return b.Delete([]byte(name))
	})
}

// Instance operations
func (s *BoltStore) CreateInstance(instance *types.Instance) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInstances)
		data, err := json.Marshal(instance)
		if err != nil {
			return err
		}
		return b.Put([]byte(instance.ID), data)
	})
}

func (s *BoltStore) GetInstance(id string) (*types.Instance, error) {
	var instance types.Instance
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInstances)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("instance %s: %w", id, types.ErrNotFound)
		}
		return json.Unmarshal(data, &instance)
	})
	if err != nil {
		return nil, err
	}
	return &instance, nil
}

func (s *BoltStore) ListInstances() ([]*types.Instance, error) {
	var instances []*types.Instance
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInstances)
		return b.ForEach(func(k, v []byte) error {
			var instance types.Instance
			if err := json.Unmarshal(v, &instance); err != nil {
				return err
			}
			instances = append(instances, &instance)
			return nil
		})
	})
	return instances, err
}

func (s *BoltStore) ListInstancesByService(serviceName string) ([]*types.Instance, error) {
	instances, err := s.ListInstances()
	if err != nil {
		return nil, err
	}

	var filtered []*types.Instance
	for _, instance := range instances {
		if instance.ServiceName == serviceName {
			filtered = append(filtered, instance)
		}
	}
	return filtered, nil
}

func (s *BoltStore) UpdateInstance(instance *types.Instance) error {
	return s.CreateInstance(instance) // Same as create (upsert)
}

func (s *BoltStore) DeleteInstance(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInstances)
		return b.Delete([]byte(id))
	})
}

// Volume operations
func (s *BoltStore) CreateVolume(volume *types.Volume) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketVolumes)
		data, err := json.Marshal(volume)
		if err != nil {
			return err
		}
		return b.Put([]byte(volume.ID), data)
	})
}

func (s *BoltStore) GetVolume(id string) (*types.Volume, error) {
	var volume types.Volume
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketVolumes)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("volume %s: %w", id, types.ErrNotFound)
		}
		return json.Unmarshal(data, &volume)
	})
	if err != nil {
		return nil, err
	}
	return &volume, nil
}

func (s *BoltStore) GetVolumeByName(name string) (*types.Volume, error) {
	volumes, err := s.ListVolumes()
	if err != nil {
		return nil, err
	}

	for _, volume := range volumes {
		if !volume.Anonymous && volume.Name == name {
			return volume, nil
		}
	}
	return nil, fmt.Errorf("volume %s: %w", name, types.ErrNotFound)
}

func (s *BoltStore) ListVolumes() ([]*types.Volume, error) {
	var volumes []*types.Volume
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketVolumes)
		return b.ForEach(func(k, v []byte) error {
			var volume types.Volume
			if err := json.Unmarshal(v, &volume); err != nil {
				return err
			}
			volumes = append(volumes, &volume)
			return nil
		})
	})
	return volumes, err
}

func (s *BoltStore) DeleteVolume(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketVolumes)
		return b.Delete([]byte(id))
	})
}

// Network operations
func (s *BoltStore) CreateNetwork(network *types.Network) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNetworks)
		data, err := json.Marshal(network)
		if err != nil {
			return err
		}
		return b.Put([]byte(network.ID), data)
	})
}

func (s *BoltStore) GetNetwork(id string) (*types.Network, error) {
	var network types.Network
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNetworks)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("network %s: %w", id, types.ErrNotFound)
		}
		return json.Unmarshal(data, &network)
	})
	if err != nil {
		return nil, err
	}
	return &network, nil
}

func (s *BoltStore) GetNetworkByName(name string) (*types.Network, error) {
	networks, err := s.ListNetworks()
	if err != nil {
		return nil, err
	}

	for _, network := range networks {
		if network.Name == name {
			return network, nil
		}
	}
	return nil, fmt.Errorf("network %s: %w", name, types.ErrNotFound)
}

func (s *BoltStore) ListNetworks() ([]*types.Network, error) {
	var networks []*types.Network
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNetworks)
		return b.ForEach(func(k, v []byte) error {
			var network types.Network
			if err := json.Unmarshal(v, &network); err != nil {
				return err
			}
			networks = append(networks, &network)
			return nil
		})
	})
	return networks, err
}

func (s *BoltStore) DeleteNetwork(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNetworks)
		return b.Delete([]byte(id))
	})
}
