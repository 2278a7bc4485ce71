package builder

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/hutchd/hutch/pkg/layer"
	"github.com/hutchd/hutch/pkg/log"
	"github.com/hutchd/hutch/pkg/metrics"
	"github.com/hutchd/hutch/pkg/types"
)

// scratchKey names the realized root for builds with no base image
const scratchKey = "scratch"

// Fetcher materializes layer chains into root directories. Realized roots
// are cached by top fingerprint and shared between builds, so concurrent
// builds on one base wait for a single materialization instead of each
// applying the chain themselves.
type Fetcher struct {
	layers layer.Store
	root   string // realized roots live at <root>/<fingerprint hex>
	sf     singleflight.Group
	logger zerolog.Logger
}

// NewFetcher creates a fetcher storing realized roots under root
func NewFetcher(layers layer.Store, root string) (*Fetcher, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create fetch root: %w", err)
	}
	return &Fetcher{
		layers: layers,
		root:   root,
		logger: log.WithComponent("builder.fetcher"),
	}, nil
}

// Realize returns a directory holding the filesystem addressed by top,
// materializing it on first use. At most one materialization per fingerprint
// is in flight; other callers wait on it. A ctx deadline bounds the wait and
// surfaces as types.ErrTimeout, leaving the materialization to finish for
// the next caller.
//
// The returned directory is shared and must be treated as read-only.
func (f *Fetcher) Realize(ctx context.Context, top types.Fingerprint) (string, error) {
	key := scratchKey
	if !top.IsZero() {
		key = hex.EncodeToString(top.Checksum())
	}

	select {
	case res := <-f.sf.DoChan(key, func() (interface{}, error) {
		return f.realize(top, key)
	}):
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			metrics.BaseFetchesDeduped.Inc()
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("awaiting base %s: %w", key, types.ErrTimeout)
		}
		return "", ctx.Err()
	}
}

// realize materializes the chain below top into the cache directory
func (f *Fetcher) realize(top types.Fingerprint, key string) (string, error) {
	target := filepath.Join(f.root, key)
	if _, err := os.Stat(target); err == nil {
		return target, nil
	}

	// Collect the chain top-down, then apply base-first.
	var chain []*types.Layer
	for fp := top; !fp.IsZero(); {
		l, err := f.layers.Get(fp)
		if err != nil {
			return "", fmt.Errorf("failed to load layer %s: %w", fp, err)
		}
		chain = append(chain, l)
		fp = l.Parent
	}

	tmp, err := os.MkdirTemp(f.root, ".realize-*")
	if err != nil {
		return "", fmt.Errorf("failed to create staging dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	for i := len(chain) - 1; i >= 0; i-- {
		l := chain[i]
		blob, err := f.layers.Open(l.Fingerprint)
		if err != nil {
			return "", fmt.Errorf("failed to open layer %s: %w", l.Fingerprint, err)
		}
		err = layer.ApplyBlob(blob, tmp)
		blob.Close()
		if err != nil {
			return "", fmt.Errorf("failed to apply layer %s: %w", l.Fingerprint, err)
		}
	}

	if err := os.Rename(tmp, target); err != nil {
		return "", fmt.Errorf("failed to commit realized root: %w", err)
	}

	f.logger.Debug().
		Str("fingerprint", key).
		Int("layers", len(chain)).
		Msg("Realized layer chain")

	return target, nil
}

// Forget drops the cached root for a fingerprint, forcing the next Realize
// to rebuild it. Used after GC evicts layers.
func (f *Fetcher) Forget(top types.Fingerprint) error {
	key := scratchKey
	if !top.IsZero() {
		key = hex.EncodeToString(top.Checksum())
	}
	f.sf.Forget(key)
	if err := os.RemoveAll(filepath.Join(f.root, key)); err != nil {
		return fmt.Errorf("failed to remove realized root: %w", err)
	}
	return nil
}
