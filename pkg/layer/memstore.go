package layer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/hutchd/hutch/pkg/types"
)

// MemStore is an in-memory Store. It backs tests and dry runs; contents
// are lost when the process exits.
type MemStore struct {
	mu     sync.RWMutex
	layers map[string]*types.Layer
	blobs  map[string][]byte
	locks  *sectionLocks
}

// NewMemStore creates an empty in-memory layer store
func NewMemStore() *MemStore {
	return &MemStore{
		layers: make(map[string]*types.Layer),
		blobs:  make(map[string][]byte),
		locks:  newSectionLocks(),
	}
}

func (s *MemStore) Get(fp types.Fingerprint) (*types.Layer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	layer, ok := s.layers[fp.String()]
	if !ok {
		return nil, fmt.Errorf("layer %s: %w", fp, types.ErrNotFound)
	}
	return layer, nil
}

func (s *MemStore) Put(fp, parent types.Fingerprint, delta types.Delta, blob io.Reader) (*types.Layer, error) {
	if fp.IsZero() {
		return nil, fmt.Errorf("layer fingerprint must not be zero")
	}

	var data []byte
	if blob != nil {
		var err error
		data, err = io.ReadAll(blob)
		if err != nil {
			return nil, fmt.Errorf("failed to read blob: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.layers[fp.String()]; ok {
		// Same fingerprint, same content: keep the stored layer
		return existing, nil
	}
	if !parent.IsZero() {
		if _, ok := s.layers[parent.String()]; !ok {
			return nil, fmt.Errorf("parent layer %s: %w", parent, types.ErrNotFound)
		}
	}

	layer := &types.Layer{
		Fingerprint: fp,
		Parent:      parent,
		Delta:       delta,
		Size:        int64(len(data)),
		CreatedAt:   time.Now(),
	}
	s.layers[fp.String()] = layer
	s.blobs[fp.String()] = data
	return layer, nil
}

func (s *MemStore) Has(fp types.Fingerprint) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.layers[fp.String()]
	return ok
}

func (s *MemStore) Open(fp types.Fingerprint) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.blobs[fp.String()]
	if !ok {
		return nil, fmt.Errorf("layer %s: %w", fp, types.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemStore) List() ([]types.Fingerprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.layers))
	for key := range s.layers {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fps := make([]types.Fingerprint, 0, len(keys))
	for _, key := range keys {
		fps = append(fps, s.layers[key].Fingerprint)
	}
	return fps, nil
}

func (s *MemStore) GC(live []types.Fingerprint) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reachable := make(map[string]struct{})
	var mark func(fp types.Fingerprint)
	mark = func(fp types.Fingerprint) {
		if fp.IsZero() {
			return
		}
		key := fp.String()
		if _, ok := reachable[key]; ok {
			return
		}
		reachable[key] = struct{}{}
		if layer, ok := s.layers[key]; ok {
			mark(layer.Parent)
		}
	}
	for _, fp := range live {
		mark(fp)
	}

	removed := 0
	for key := range s.layers {
		if _, ok := reachable[key]; ok {
			continue
		}
		delete(s.layers, key)
		delete(s.blobs, key)
		removed++
	}
	return removed, nil
}

func (s *MemStore) Stats() (int, int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var bytes int64
	for _, layer := range s.layers {
		bytes += layer.Size
	}
	return len(s.layers), bytes
}

func (s *MemStore) Acquire(ctx context.Context, fp types.Fingerprint) (func(), error) {
	return s.locks.acquire(ctx, fp.String())
}

func (s *MemStore) Close() error {
	return nil
}
