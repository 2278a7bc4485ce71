package layer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/hutchd/hutch/pkg/types"
)

// Store is the content-addressable layer store. Layers are immutable once
// stored: a fingerprint always names the same delta and blob, so Put is
// idempotent and Get results may be shared freely.
type Store interface {
	// Get returns the layer addressed by fp. Returns an error wrapping
	// types.ErrNotFound when no such layer exists.
	Get(fp types.Fingerprint) (*types.Layer, error)

	// Put stores a layer under fp. The parent must already be stored
	// unless it is the zero Fingerprint (base layers). blob is the
	// compressed tar stream for the delta and may be nil for layers
	// with no file content. Storing an existing fingerprint is a no-op
	// that returns the stored layer.
	Put(fp, parent types.Fingerprint, delta types.Delta, blob io.Reader) (*types.Layer, error)

	// Has reports whether fp is stored
	Has(fp types.Fingerprint) bool

	// Open returns a reader over the layer's compressed blob
	Open(fp types.Fingerprint) (io.ReadCloser, error)

	// List returns the fingerprints of all stored layers in stable order
	List() ([]types.Fingerprint, error)

	// GC removes every layer not reachable from live via parent chains
	// and returns the number removed. Callers pass the top layer of
	// every image plus any fingerprints pinned by in-progress builds.
	GC(live []types.Fingerprint) (int, error)

	// Stats reports the layer count and total compressed blob bytes
	Stats() (count int, bytes int64)

	// Acquire claims the exclusive section for fp, blocking until the
	// current holder releases it or ctx expires. A deadline expiry is
	// reported as types.ErrTimeout. The returned release function is
	// idempotent.
	Acquire(ctx context.Context, fp types.Fingerprint) (release func(), err error)

	Close() error
}

// sectionLocks hands out one exclusive section per key. Writers for the
// same fingerprint serialize here; different fingerprints never contend.
type sectionLocks struct {
	mu       sync.Mutex
	sections map[string]chan struct{}
}

func newSectionLocks() *sectionLocks {
	return &sectionLocks{sections: make(map[string]chan struct{})}
}

func (l *sectionLocks) acquire(ctx context.Context, key string) (func(), error) {
	for {
		l.mu.Lock()
		ch, held := l.sections[key]
		if !held {
			done := make(chan struct{})
			l.sections[key] = done

			var once sync.Once
			release := func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.sections, key)
					l.mu.Unlock()
					close(done)
				})
			}
			l.mu.Unlock()
			return release, nil
		}
		l.mu.Unlock()

		select {
		case <-ch:
			// Holder released; race for the section again
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("waiting for layer %s: %w", key, types.ErrTimeout)
			}
			return nil, ctx.Err()
		}
	}
}
