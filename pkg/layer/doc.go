/*
Package layer implements Hutch's content-addressable layer store.

A layer is an immutable filesystem delta identified by a fingerprint over
the inputs that produced it. The store maps fingerprints to layer metadata
and compressed blobs, making every build step reusable: if a fingerprint
is present, the work that would produce it is skipped.

# Architecture

	┌─────────────────── LAYER STORE ───────────────────┐
	│                                                     │
	│  Store interface                                    │
	│    Get / Put / Has / Open / List / GC / Acquire     │
	│         │                                           │
	│    ┌────┴─────────────┐                             │
	│    │                  │                             │
	│  MemStore          BoltStore                        │
	│  (tests)           metadata: layers.db              │
	│                    blobs: blobs/sha256/<hex>        │
	└─────────────────────────────────────────────────────┘

# Immutability

A fingerprint always names the same delta and blob. Put is therefore
idempotent: storing an existing fingerprint returns the stored layer
untouched. Parents are fixed at creation; Put rejects a parent that is
not already stored, so chains never dangle.

# Concurrency

Two writers can race to produce the same fingerprint. Acquire hands out
an exclusive section per fingerprint: the builder acquires, re-checks
with Has, and only executes the step on a genuine miss. Waiters honor
their context deadline and give up with a timeout error rather than
queueing forever. Sections for different fingerprints never contend.

# Garbage Collection

GC takes the set of live roots (the top layer of every image plus
fingerprints pinned by in-progress builds), marks everything reachable
through parent chains, and removes the rest. An interior layer can never
be collected while a descendant survives.

# Blob Format

Blobs are gzip-compressed tar streams written in sorted path order.
Removed paths are stored as OCI-style whiteout entries (".wh.<name>")
that delete the named path when the blob is applied to a directory.

# See Also

  - pkg/builder for fingerprint computation and staging
  - pkg/types for Layer, Delta, and Fingerprint
*/
package layer
