/*
Package orchestrator coordinates stacks of services on one host.

Up turns service descriptors into running instances; Down tears a
project back down. Everything shared (images, layers, volumes,
networks, host ports) lives in explicit collaborators passed in at
construction, never in package state.

# Up Flow

	descriptors ──► per service, bounded parallelism:
	     │
	     │   image  ──► build iff build spec present and image
	     │              absent or ForceRebuild (stale reuse is
	     │              the documented default)
	     │   mounts ──► resolve table ──► volumes on first use
	     │   scratch ─► instance dir + runtime spec config.json
	     │   ports  ──► host port reservation
	     │   network ─► join, address assigned
	     ▼
	 planned → building → created → running

Failures are isolated per service: one build error does not stop
siblings, and the returned error joins the individual failures. An
instance that fails before reaching created leaves no artifacts: the
build aborts cleanly, fresh anonymous volumes and the scratch dir are
rolled back, reserved ports and addresses are released.

# Lifecycle

	planned → building → created → running → stopped → removed
	              │           │        │
	              └───────────┴────────┴──► failed (terminal)

Stopped instances may start again; failed and removed are terminal.
Instances are persisted only once they reach created.

# Teardown and Retention

Down stops and removes the project's instances, releases addresses and
host ports, removes the network, and applies the volume policy: named
volume data survives unless RemoveVolumes; anonymous volumes are
deleted with RemoveVolumes and otherwise leaked on purpose, visible in
volume listings until GCUnreferencedVolumes sweeps everything no live
instance references.

# See Also

  - pkg/manifest for where descriptors come from
  - pkg/builder, pkg/mount, pkg/network, pkg/volume for the parts
*/
package orchestrator
