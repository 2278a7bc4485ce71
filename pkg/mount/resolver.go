package mount

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/hutchd/hutch/pkg/types"
)

// Entry is one resolved mount. Depth counts target path segments;
// Index is the declaration position, kept for deterministic ordering.
type Entry struct {
	Spec  types.MountSpec
	Depth int
	Index int
}

// Table is an ordered mount plan: shallow targets first, so applying
// entries in order lets a deeper mount carve a subtree out of a
// shallower one. Order is fully determined by the declarations.
type Table struct {
	entries []Entry
}

// Entries returns the resolved mounts in application order
func (t Table) Entries() []Entry {
	return t.entries
}

// Len returns the number of resolved mounts
func (t Table) Len() int {
	return len(t.entries)
}

// SourceAt returns the mount that provides the given container path,
// which is the entry with the deepest target covering it. The second
// return is false when no mount covers the path (the image filesystem
// is the authority).
func (t Table) SourceAt(p string) (Entry, bool) {
	p = path.Clean(p)

	best := -1
	bestDepth := -1
	for i, e := range t.entries {
		if !covers(e.Spec.Target, p) {
			continue
		}
		if e.Depth > bestDepth {
			best = i
			bestDepth = e.Depth
		}
	}
	if best < 0 {
		return Entry{}, false
	}
	return t.entries[best], true
}

// covers reports whether target contains p, on whole segments only.
// "/data" covers "/data" and "/data/sub" but not "/database".
func covers(target, p string) bool {
	if target == p {
		return true
	}
	return strings.HasPrefix(p, target+"/")
}

// Warning records a mount declaration that was shadowed by a later one
// with the identical target.
type Warning struct {
	Target string
	Winner types.MountSpec
	Loser  types.MountSpec
}

func (w Warning) String() string {
	return fmt.Sprintf("mount target %s declared twice; later declaration (%s %q) shadows earlier (%s %q)",
		w.Target, w.Winner.Type, w.Winner.Source, w.Loser.Type, w.Loser.Source)
}

// ConflictError reports two distinct named volumes declared for the
// identical target. There is no sensible winner; the declaration is
// rejected.
type ConflictError struct {
	Target string
	First  string
	Second string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting volumes %q and %q for mount target %s", e.First, e.Second, e.Target)
}

// Resolve turns mount declarations into an ordered Table. Targets are
// cleaned and validated; identical targets collapse to the latest
// declaration with a Warning, except that two distinct named volumes on
// one target return a ConflictError. The result depends only on the
// declarations, never on host state.
func Resolve(mounts []types.MountSpec) (Table, []Warning, error) {
	byTarget := make(map[string]int)
	volumeAt := make(map[string]string)
	entries := make([]Entry, 0, len(mounts))
	var warnings []Warning

	for i, m := range mounts {
		if m.Target == "" || !path.IsAbs(m.Target) {
			return Table{}, nil, fmt.Errorf("mount target %q must be an absolute path", m.Target)
		}
		m.Target = path.Clean(m.Target)
		if m.Target == "/" {
			return Table{}, nil, fmt.Errorf("mount target must not be /")
		}
		switch m.Type {
		case types.MountTypeBind:
			if m.Source == "" {
				return Table{}, nil, fmt.Errorf("bind mount for %s requires a source path", m.Target)
			}
		case types.MountTypeVolume:
			if m.Source == "" {
				return Table{}, nil, fmt.Errorf("volume mount for %s requires a volume name", m.Target)
			}
		case types.MountTypeAnonymous:
			if m.Source != "" {
				return Table{}, nil, fmt.Errorf("anonymous mount for %s must not name a source", m.Target)
			}
		default:
			return Table{}, nil, fmt.Errorf("unknown mount type %q for %s", m.Type, m.Target)
		}

		if m.Type == types.MountTypeVolume {
			if name, seen := volumeAt[m.Target]; seen && name != m.Source {
				return Table{}, nil, &ConflictError{
					Target: m.Target,
					First:  name,
					Second: m.Source,
				}
			}
			volumeAt[m.Target] = m.Source
		}

		if prev, dup := byTarget[m.Target]; dup {
			warnings = append(warnings, Warning{
				Target: m.Target,
				Winner: m,
				Loser:  entries[prev].Spec,
			})
			entries[prev] = Entry{Spec: m, Depth: depth(m.Target), Index: entries[prev].Index}
			continue
		}

		byTarget[m.Target] = len(entries)
		entries = append(entries, Entry{Spec: m, Depth: depth(m.Target), Index: i})
	}

	// Shallow before deep; declaration order breaks depth ties
	sort.SliceStable(entries, func(a, b int) bool {
		if entries[a].Depth != entries[b].Depth {
			return entries[a].Depth < entries[b].Depth
		}
		return entries[a].Index < entries[b].Index
	})

	return Table{entries: entries}, warnings, nil
}

func depth(target string) int {
	return strings.Count(target, "/")
}
