package mount

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hutchd/hutch/pkg/types"
)

func TestResolveOrdersShallowToDeep(t *testing.T) {
	table, warnings, err := Resolve([]types.MountSpec{
		{Type: types.MountTypeAnonymous, Target: "/data/cache/tmp"},
		{Type: types.MountTypeVolume, Source: "dbdata", Target: "/data"},
		{Type: types.MountTypeBind, Source: "/srv/conf", Target: "/data/cache"},
	})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Equal(t, 3, table.Len())

	targets := make([]string, 0, 3)
	for _, e := range table.Entries() {
		targets = append(targets, e.Spec.Target)
	}
	assert.Equal(t, []string{"/data", "/data/cache", "/data/cache/tmp"}, targets)
}

func TestResolveDeterministic(t *testing.T) {
	mounts := []types.MountSpec{
		{Type: types.MountTypeVolume, Source: "a", Target: "/one"},
		{Type: types.MountTypeVolume, Source: "b", Target: "/two"},
		{Type: types.MountTypeBind, Source: "/x", Target: "/one/sub"},
	}

	first, _, err := Resolve(mounts)
	require.NoError(t, err)
	second, _, err := Resolve(mounts)
	require.NoError(t, err)

	assert.Equal(t, first.Entries(), second.Entries())
}

func TestSourceAtMostSpecificWins(t *testing.T) {
	table, _, err := Resolve([]types.MountSpec{
		{Type: types.MountTypeVolume, Source: "dbdata", Target: "/data", ReadOnly: true},
		{Type: types.MountTypeAnonymous, Target: "/data/cache"},
	})
	require.NoError(t, err)

	tests := []struct {
		name       string
		path       string
		wantOwner  types.MountType
		wantSource string
		wantRO     bool
		wantFound  bool
	}{
		{
			name:      "under the deeper mount",
			path:      "/data/cache/objects/ab",
			wantOwner: types.MountTypeAnonymous,
			wantRO:    false,
			wantFound: true,
		},
		{
			name:      "deeper mount target itself",
			path:      "/data/cache",
			wantOwner: types.MountTypeAnonymous,
			wantRO:    false,
			wantFound: true,
		},
		{
			name:       "under the shallow mount only",
			path:       "/data/state.db",
			wantOwner:  types.MountTypeVolume,
			wantSource: "dbdata",
			wantRO:     true,
			wantFound:  true,
		},
		{
			name:      "sibling path not covered",
			path:      "/database",
			wantFound: false,
		},
		{
			name:      "unrelated path",
			path:      "/etc/conf",
			wantFound: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, ok := table.SourceAt(tt.path)
			assert.Equal(t, tt.wantFound, ok)
			if !tt.wantFound {
				return
			}
			assert.Equal(t, tt.wantOwner, entry.Spec.Type)
			assert.Equal(t, tt.wantRO, entry.Spec.ReadOnly, "read-only must not propagate across mounts")
			if tt.wantSource != "" {
				assert.Equal(t, tt.wantSource, entry.Spec.Source)
			}
		})
	}
}

func TestResolveIdenticalTargetLaterWins(t *testing.T) {
	table, warnings, err := Resolve([]types.MountSpec{
		{Type: types.MountTypeBind, Source: "/srv/old", Target: "/app/conf"},
		{Type: types.MountTypeBind, Source: "/srv/new", Target: "/app/conf"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())

	entry, ok := table.SourceAt("/app/conf")
	require.True(t, ok)
	assert.Equal(t, "/srv/new", entry.Spec.Source)

	require.Len(t, warnings, 1)
	assert.Equal(t, "/app/conf", warnings[0].Target)
	assert.Equal(t, "/srv/new", warnings[0].Winner.Source)
	assert.Equal(t, "/srv/old", warnings[0].Loser.Source)
}

func TestResolveVolumeConflict(t *testing.T) {
	_, _, err := Resolve([]types.MountSpec{
		{Type: types.MountTypeVolume, Source: "first", Target: "/data"},
		{Type: types.MountTypeVolume, Source: "second", Target: "/data"},
	})
	require.Error(t, err)

	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "/data", conflict.Target)
	assert.Equal(t, "first", conflict.First)
	assert.Equal(t, "second", conflict.Second)
}

func TestResolveSameVolumeTwiceIsNotConflict(t *testing.T) {
	table, warnings, err := Resolve([]types.MountSpec{
		{Type: types.MountTypeVolume, Source: "shared", Target: "/data"},
		{Type: types.MountTypeVolume, Source: "shared", Target: "/data", ReadOnly: true},
	})
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	assert.Len(t, warnings, 1)

	entry, _ := table.SourceAt("/data")
	assert.True(t, entry.Spec.ReadOnly, "later declaration wins")
}

func TestResolveValidation(t *testing.T) {
	tests := []struct {
		name   string
		mounts []types.MountSpec
	}{
		{
			name:   "relative target",
			mounts: []types.MountSpec{{Type: types.MountTypeBind, Source: "/x", Target: "data"}},
		},
		{
			name:   "empty target",
			mounts: []types.MountSpec{{Type: types.MountTypeBind, Source: "/x", Target: ""}},
		},
		{
			name:   "root target",
			mounts: []types.MountSpec{{Type: types.MountTypeVolume, Source: "v", Target: "/"}},
		},
		{
			name:   "bind without source",
			mounts: []types.MountSpec{{Type: types.MountTypeBind, Target: "/data"}},
		},
		{
			name:   "volume without name",
			mounts: []types.MountSpec{{Type: types.MountTypeVolume, Target: "/data"}},
		},
		{
			name:   "anonymous with source",
			mounts: []types.MountSpec{{Type: types.MountTypeAnonymous, Source: "x", Target: "/data"}},
		},
		{
			name:   "unknown type",
			mounts: []types.MountSpec{{Type: "tmpfs", Target: "/data"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Resolve(tt.mounts)
			assert.Error(t, err)
		})
	}
}

func TestResolveCleansTargets(t *testing.T) {
	table, warnings, err := Resolve([]types.MountSpec{
		{Type: types.MountTypeBind, Source: "/x", Target: "/data/"},
		{Type: types.MountTypeBind, Source: "/y", Target: "/data/../data"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	assert.Len(t, warnings, 1, "cleaned targets collide")
	assert.Equal(t, "/data", table.Entries()[0].Spec.Target)
}

func TestToOCI(t *testing.T) {
	table, _, err := Resolve([]types.MountSpec{
		{Type: types.MountTypeVolume, Source: "dbdata", Target: "/var/lib/db"},
		{Type: types.MountTypeBind, Source: "/srv/conf", Target: "/etc/app", ReadOnly: true},
	})
	require.NoError(t, err)

	mounts, err := table.ToOCI(func(spec types.MountSpec) (string, error) {
		if spec.Type == types.MountTypeVolume {
			return "/data/volumes/" + spec.Source, nil
		}
		return spec.Source, nil
	})
	require.NoError(t, err)
	require.Len(t, mounts, 2)

	for _, m := range mounts {
		assert.Equal(t, "bind", m.Type)
		assert.Equal(t, "rbind", m.Options[0])
	}

	byDest := map[string]int{}
	for i, m := range mounts {
		byDest[m.Destination] = i
	}
	conf := mounts[byDest["/etc/app"]]
	assert.Equal(t, "/srv/conf", conf.Source)
	assert.Contains(t, conf.Options, "ro")

	db := mounts[byDest["/var/lib/db"]]
	assert.Equal(t, "/data/volumes/dbdata", db.Source)
	assert.Contains(t, db.Options, "rw")
}

func TestToOCISourceError(t *testing.T) {
	table, _, err := Resolve([]types.MountSpec{
		{Type: types.MountTypeVolume, Source: "ghost", Target: "/data"},
	})
	require.NoError(t, err)

	_, err = table.ToOCI(func(spec types.MountSpec) (string, error) {
		return "", fmt.Errorf("volume %s: %w", spec.Source, types.ErrNotFound)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNotFound)
}
