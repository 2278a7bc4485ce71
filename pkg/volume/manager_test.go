package volume

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hutchd/hutch/pkg/storage"
	"github.com/hutchd/hutch/pkg/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	m, err := NewManager(store, t.TempDir())
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	return m
}

func TestEnsureNamedCreatesOnce(t *testing.T) {
	m := newTestManager(t)

	first, err := m.EnsureNamed("dbdata")
	if err != nil {
		t.Fatalf("EnsureNamed failed: %v", err)
	}
	if first.Name != "dbdata" || first.Anonymous {
		t.Errorf("unexpected volume: %+v", first)
	}

	info, err := os.Stat(first.MountPath)
	if err != nil || !info.IsDir() {
		t.Fatalf("volume directory missing: %v", err)
	}

	// Second call returns the same volume, not a new one
	second, err := m.EnsureNamed("dbdata")
	if err != nil {
		t.Fatalf("EnsureNamed failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected same volume, got %s and %s", first.ID, second.ID)
	}

	volumes, err := m.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(volumes) != 1 {
		t.Errorf("expected 1 volume, got %d", len(volumes))
	}
}

func TestEnsureNamedEmptyName(t *testing.T) {
	m := newTestManager(t)

	if _, err := m.EnsureNamed(""); err == nil {
		t.Error("expected error for empty name")
	}
}

func TestDataSurvivesRecreation(t *testing.T) {
	m := newTestManager(t)

	vol, err := m.EnsureNamed("dbdata")
	if err != nil {
		t.Fatalf("EnsureNamed failed: %v", err)
	}

	// Write data as an instance would
	dataFile := filepath.Join(vol.MountPath, "state.db")
	if err := os.WriteFile(dataFile, []byte("records"), 0644); err != nil {
		t.Fatalf("failed to write data: %v", err)
	}

	// A later stack run asks for the same volume
	again, err := m.EnsureNamed("dbdata")
	if err != nil {
		t.Fatalf("EnsureNamed failed: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(again.MountPath, "state.db"))
	if err != nil {
		t.Fatalf("data file missing after re-ensure: %v", err)
	}
	if string(content) != "records" {
		t.Errorf("expected data to survive, got %q", content)
	}
}

func TestCreateAnonymous(t *testing.T) {
	m := newTestManager(t)

	first, err := m.CreateAnonymous()
	if err != nil {
		t.Fatalf("CreateAnonymous failed: %v", err)
	}
	second, err := m.CreateAnonymous()
	if err != nil {
		t.Fatalf("CreateAnonymous failed: %v", err)
	}

	if first.ID == second.ID {
		t.Error("anonymous volumes must be distinct")
	}
	if !first.Anonymous || first.Name != "" {
		t.Errorf("unexpected anonymous volume: %+v", first)
	}
}

func TestRemove(t *testing.T) {
	m := newTestManager(t)

	vol, err := m.EnsureNamed("scratch")
	if err != nil {
		t.Fatalf("EnsureNamed failed: %v", err)
	}

	if err := m.Remove(vol.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	if _, err := os.Stat(vol.MountPath); !os.IsNotExist(err) {
		t.Error("volume directory should be gone")
	}
	if _, err := m.Get(vol.ID); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	// Removing again reports not found
	if err := m.Remove(vol.ID); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestGCUnreferenced(t *testing.T) {
	m := newTestManager(t)

	kept, err := m.EnsureNamed("kept")
	if err != nil {
		t.Fatalf("EnsureNamed failed: %v", err)
	}
	doomedNamed, err := m.EnsureNamed("doomed")
	if err != nil {
		t.Fatalf("EnsureNamed failed: %v", err)
	}
	doomedAnon, err := m.CreateAnonymous()
	if err != nil {
		t.Fatalf("CreateAnonymous failed: %v", err)
	}

	removed, err := m.GCUnreferenced(map[string]struct{}{kept.ID: {}})
	if err != nil {
		t.Fatalf("GCUnreferenced failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}

	if _, err := m.Get(kept.ID); err != nil {
		t.Errorf("referenced volume should survive: %v", err)
	}
	for _, id := range []string{doomedNamed.ID, doomedAnon.ID} {
		if _, err := m.Get(id); !errors.Is(err, types.ErrNotFound) {
			t.Errorf("volume %s should be gone, got %v", id, err)
		}
	}
}
