package layer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/hutchd/hutch/pkg/types"
)

var bucketLayers = []byte("layers")

// BoltStore persists layer metadata in a bbolt database and blobs as
// files under <dataDir>/blobs/sha256/<hex>.
type BoltStore struct {
	db      *bolt.DB
	blobDir string
	locks   *sectionLocks
}

// NewBoltStore opens (or creates) a layer store rooted at dataDir
func NewBoltStore(dataDir string) (*BoltStore, error) {
	blobDir := filepath.Join(dataDir, "blobs", "sha256")
	if err := os.MkdirAll(blobDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "layers.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketLayers)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &BoltStore{
		db:      db,
		blobDir: blobDir,
		locks:   newSectionLocks(),
	}, nil
}

func (s *BoltStore) blobPath(fp types.Fingerprint) string {
	return filepath.Join(s.blobDir, hex.EncodeToString(fp.Checksum()))
}

func (s *BoltStore) Get(fp types.Fingerprint) (*types.Layer, error) {
	var layer types.Layer
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLayers)
		data := b.Get([]byte(fp.String()))
		if data == nil {
			return fmt.Errorf("layer %s: %w", fp, types.ErrNotFound)
		}
		return json.Unmarshal(data, &layer)
	})
	if err != nil {
		return nil, err
	}
	return &layer, nil
}

func (s *BoltStore) Put(fp, parent types.Fingerprint, delta types.Delta, blob io.Reader) (*types.Layer, error) {
	if fp.IsZero() {
		return nil, fmt.Errorf("layer fingerprint must not be zero")
	}
	if s.Has(fp) {
		// Same fingerprint, same content. Drain the blob so callers
		// streaming through a pipe are not left blocked.
		if blob != nil {
			_, _ = io.Copy(io.Discard, blob)
		}
		return s.Get(fp)
	}
	if !parent.IsZero() && !s.Has(parent) {
		return nil, fmt.Errorf("parent layer %s: %w", parent, types.ErrNotFound)
	}

	// Stream the blob beside its final location, then rename into place
	// so a crash never leaves a half-written blob under a valid name.
	var size int64
	if blob != nil {
		tmp, err := os.CreateTemp(s.blobDir, ".tmp-*")
		if err != nil {
			return nil, fmt.Errorf("failed to stage blob: %w", err)
		}
		size, err = io.Copy(tmp, blob)
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return nil, fmt.Errorf("failed to write blob: %w", err)
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmp.Name())
			return nil, fmt.Errorf("failed to close blob: %w", err)
		}
		if err := os.Rename(tmp.Name(), s.blobPath(fp)); err != nil {
			os.Remove(tmp.Name())
			return nil, fmt.Errorf("failed to store blob: %w", err)
		}
	}

	layer := &types.Layer{
		Fingerprint: fp,
		Parent:      parent,
		Delta:       delta,
		Size:        size,
		CreatedAt:   time.Now(),
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLayers)
		data, err := json.Marshal(layer)
		if err != nil {
			return err
		}
		return b.Put([]byte(fp.String()), data)
	})
	if err != nil {
		os.Remove(s.blobPath(fp))
		return nil, fmt.Errorf("failed to store layer: %w", err)
	}
	return layer, nil
}

func (s *BoltStore) Has(fp types.Fingerprint) bool {
	var found bool
	_ = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLayers)
		found = b.Get([]byte(fp.String())) != nil
		return nil
	})
	return found
}

func (s *BoltStore) Open(fp types.Fingerprint) (io.ReadCloser, error) {
	if !s.Has(fp) {
		return nil, fmt.Errorf("layer %s: %w", fp, types.ErrNotFound)
	}
	f, err := os.Open(s.blobPath(fp))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("layer blob %s: %w", fp, types.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return f, nil
}

func (s *BoltStore) List() ([]types.Fingerprint, error) {
	var fps []types.Fingerprint
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLayers)
		return b.ForEach(func(k, v []byte) error {
			fp, err := types.ParseFingerprint(string(k))
			if err != nil {
				return fmt.Errorf("corrupt layer key %q: %w", k, err)
			}
			fps = append(fps, fp)
			return nil
		})
	})
	return fps, err
}

func (s *BoltStore) GC(live []types.Fingerprint) (int, error) {
	// Load the full parent index first; the deletion pass needs it and
	// bolt forbids writes from inside a View.
	parents := make(map[string]types.Fingerprint)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLayers)
		return b.ForEach(func(k, v []byte) error {
			var layer types.Layer
			if err := json.Unmarshal(v, &layer); err != nil {
				return err
			}
			parents[string(k)] = layer.Parent
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("failed to index layers: %w", err)
	}

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
		if parent, ok := parents[key]; ok {
			mark(parent)
		}
	}
	for _, fp := range live {
		mark(fp)
	}

	var doomed []string
	for key := range parents {
		if _, ok := reachable[key]; !ok {
			doomed = append(doomed, key)
		}
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLayers)
		for _, key := range doomed {
			if err := b.Delete([]byte(key)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete layers: %w", err)
	}

	for _, key := range doomed {
		fp, err := types.ParseFingerprint(key)
		if err != nil {
			continue
		}
		_ = os.Remove(s.blobPath(fp))
	}
	return len(doomed), nil
}

func (s *BoltStore) Stats() (int, int64) {
	var count int
	var bytes int64
	_ = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLayers)
		return b.ForEach(func(k, v []byte) error {
			var layer types.Layer
			if err := json.Unmarshal(v, &layer); err != nil {
				return nil
			}
			count++
			bytes += layer.Size
			return nil
		})
	})
	return count, bytes
}

func (s *BoltStore) Acquire(ctx context.Context, fp types.Fingerprint) (func(), error) {
	return s.locks.acquire(ctx, fp.String())
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}
