/*
Package storage provides BoltDB-backed state persistence for Hutch's runtime data.

The storage package implements the Store interface using BoltDB as the
underlying database, providing ACID transactions for runtime state including
images, services, instances, volumes, and networks. All data is serialized as
JSON and stored in separate buckets for efficient querying and isolation.

# Bucket Structure

	images     keyed by "name:tag" reference
	services   keyed by service name
	instances  keyed by instance ID
	volumes    keyed by volume ID (named volumes also queried by name)
	networks   keyed by network ID (also queried by name)

One entity type per bucket; values are JSON documents. Name lookups for
volumes and networks scan the bucket, which is fine at the scale of one
host's runtime state.

# Usage

	store, err := storage.NewBoltStore("/var/lib/hutch")
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.CreateImage(image); err != nil {
		return err
	}

	image, err := store.GetImage("web:latest")
	if errors.Is(err, types.ErrNotFound) {
		// Not built yet
	}

Create on an existing key overwrites it; Update methods alias Create to
make the upsert explicit at call sites.

# Consistency

BoltDB gives single-writer, many-reader transactions. Every method is one
transaction, so readers always observe complete entities. Cross-entity
invariants (instances referencing services, volume refcounts) are enforced
by the orchestrator, not here.

# Layer Data

Layer metadata and blobs deliberately live in pkg/layer's own store, not
here: layers are content-addressed and garbage collected by reachability,
which wants a separate lifecycle from runtime state. This database holds
only entities addressed by name or ID.

# See Also

  - pkg/layer for the content-addressed layer store
  - pkg/orchestrator for cross-entity lifecycle rules
*/
package storage
