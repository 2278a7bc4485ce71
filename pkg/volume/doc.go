/*
Package volume manages the host directories backing container volumes.

Volumes are plain directories under a base path, tracked in the state
store. Named volumes are created on first use and persist until removed
or pruned, so database files and caches survive instance and stack
recreation. Anonymous volumes are created per instance for mounts that
declare no name.

# Lifecycle

	EnsureNamed("dbdata")  creates on first use, returns existing after
	CreateAnonymous()      one fresh directory per call
	Remove(id)             deletes directory and record
	GCUnreferenced(refs)   prunes volumes no instance or service mentions

Removal policy lives in the orchestrator: bringing a stack down keeps
named volume data unless the caller explicitly asks for removal.

# Layout

	<basePath>/<volume-id>/

The directory name is the volume ID, not the name, so a named volume can
be removed and recreated without colliding with leftover data.
*/
package volume
