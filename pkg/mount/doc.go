/*
Package mount resolves mount declarations into a deterministic mount plan.

Services declare bind, volume, and anonymous mounts with container-path
targets. Resolve validates the declarations, collapses duplicates, and
orders the survivors so that applying them in sequence produces the
intended filesystem view: shallow targets first, deeper targets carving
subtrees out of them.

# Resolution Rules

Overlapping targets (one a path prefix of the other) are both kept; the
deeper mount shadows the shallower one for its subtree. Identical targets
collapse to the latest declaration and record a Warning. Two distinct
named volumes on the identical target are rejected with ConflictError,
since silently dropping either would lose data the user asked for.

Read-only does not propagate downward: a read-only mount at /data says
nothing about a separate mount at /data/cache, which follows its own
flag.

The resolver is pure bookkeeping. It never touches the filesystem, and
for a given declaration list the resulting Table (and warning list) is
always identical.

# Authority Queries

Table.SourceAt answers "which mount provides this path": the covering
entry with the deepest target wins, falling back to the image filesystem
when nothing covers the path.

	table, warnings, err := mount.Resolve(service.Mounts)
	if entry, ok := table.SourceAt("/data/cache/x"); ok {
		// entry.Spec is the mount that owns /data/cache/x
	}

# OCI Conversion

ToOCI turns the table into runtime-spec bind mounts (rbind plus ro/rw),
resolving volume names to host paths through a caller-supplied SourceFunc.
*/
package mount
