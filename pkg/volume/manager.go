package volume

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hutchd/hutch/pkg/log"
	"github.com/hutchd/hutch/pkg/storage"
	"github.com/hutchd/hutch/pkg/types"
)

const (
	// DefaultVolumesPath is the base directory for volume data
	DefaultVolumesPath = "/var/lib/hutch/volumes"
)

// Manager provisions volume directories and tracks them in the store.
// Named volumes are created on first use and survive instance removal;
// anonymous volumes belong to a single instance.
type Manager struct {
	store    storage.Store
	basePath string
	logger   zerolog.Logger
	mu       sync.Mutex
}

// NewManager creates a volume manager rooted at basePath
func NewManager(store storage.Store, basePath string) (*Manager, error) {
	if basePath == "" {
		basePath = DefaultVolumesPath
	}

	// Ensure base directory exists
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create volumes directory: %w", err)
	}

	return &Manager{
		store:    store,
		basePath: basePath,
		logger:   log.WithComponent("volume"),
	}, nil
}

// EnsureNamed returns the named volume, creating directory and record on
// first use. Repeated calls with the same name return the same volume.
func (m *Manager) EnsureNamed(name string) (*types.Volume, error) {
	if name == "" {
		return nil, fmt.Errorf("volume name must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := m.store.GetVolumeByName(name)
	if err == nil {
		return existing, nil
	}

	volume := &types.Volume{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now(),
	}
	volume.MountPath = filepath.Join(m.basePath, volume.ID)

	if err := os.MkdirAll(volume.MountPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create volume directory: %w", err)
	}
	if err := m.store.CreateVolume(volume); err != nil {
		os.RemoveAll(volume.MountPath)
		return nil, fmt.Errorf("failed to record volume: %w", err)
	}

	m.logger.Info().
		Str("volume_id", volume.ID).
		Str("name", name).
		Msg("Volume created")
	return volume, nil
}

// CreateAnonymous creates an unnamed volume for a single instance
func (m *Manager) CreateAnonymous() (*types.Volume, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	volume := &types.Volume{
		ID:        uuid.New().String(),
		Anonymous: true,
		CreatedAt: time.Now(),
	}
	volume.MountPath = filepath.Join(m.basePath, volume.ID)

	if err := os.MkdirAll(volume.MountPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create volume directory: %w", err)
	}
	if err := m.store.CreateVolume(volume); err != nil {
		os.RemoveAll(volume.MountPath)
		return nil, fmt.Errorf("failed to record volume: %w", err)
	}

	m.logger.Debug().
		Str("volume_id", volume.ID).
		Msg("Anonymous volume created")
	return volume, nil
}

// Get returns a volume by ID
func (m *Manager) Get(id string) (*types.Volume, error) {
	return m.store.GetVolume(id)
}

// GetByName returns a named volume
func (m *Manager) GetByName(name string) (*types.Volume, error) {
	return m.store.GetVolumeByName(name)
}

// List returns all volumes
func (m *Manager) List() ([]*types.Volume, error) {
	return m.store.ListVolumes()
}

// HostPath returns the directory backing a volume
func (m *Manager) HostPath(volume *types.Volume) string {
	return volume.MountPath
}

// Remove deletes a volume's directory and record. The caller is
// responsible for ensuring no instance still mounts it.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.remove(id)
}

func (m *Manager) remove(id string) error {
	volume, err := m.store.GetVolume(id)
	if err != nil {
		return err
	}

	if err := os.RemoveAll(volume.MountPath); err != nil {
		return fmt.Errorf("failed to delete volume directory: %w", err)
	}
	if err := m.store.DeleteVolume(id); err != nil {
		return fmt.Errorf("failed to delete volume record: %w", err)
	}

	m.logger.Info().
		Str("volume_id", id).
		Str("name", volume.Name).
		Bool("anonymous", volume.Anonymous).
		Msg("Volume removed")
	return nil
}

// GCUnreferenced removes every volume whose ID is not in referenced and
// returns the number removed. Both named and anonymous volumes are
// eligible: an unreferenced named volume is one no service mentions.
func (m *Manager) GCUnreferenced(referenced map[string]struct{}) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	volumes, err := m.store.ListVolumes()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, volume := range volumes {
		if _, ok := referenced[volume.ID]; ok {
			continue
		}
		if err := m.remove(volume.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
