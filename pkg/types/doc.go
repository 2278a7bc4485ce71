/*
Package types defines the core data structures used throughout Hutch.

This package contains all fundamental types that represent Hutch's domain
model: build plans and their steps, content-addressed layers and images,
mount declarations, volumes, networks, service descriptors, and instances.
These types are used by all other packages for building, state management,
and orchestration logic.

# Core Types

Building:
  - BuildStep: One step of a build plan (typed, kind-discriminated)
  - Condition: Build-time branch on a build argument
  - ArgBindings: Build argument values substituted into operands
  - Fingerprint: Content address ("sha256:hex") for layers and files

Layers and Images:
  - Layer: Immutable filesystem delta with a parent chain
  - Delta: Added files and removed paths relative to the parent
  - FileEntry: Mode, size, and content digest of one captured file
  - Image: Ordered layer stack plus runtime configuration
  - ImageConfig: Workdir, env, exposed ports, default command

Storage:
  - MountSpec: Bind, volume, or anonymous mount declaration
  - Volume: Managed host directory that outlives instances

Services:
  - ServiceDescriptor: User-defined workload from a stack manifest
  - BuildSpec: Context directory, plan, and argument bindings
  - PortMapping: Container port published on the host
  - Instance: One copy of a service with lifecycle state
  - Network: Isolated address range with optional DNS

# State Machine

Instances follow a state machine:

	planned → building → created → running → stopped → removed
	            ↓           ↓         ↓
	          failed      failed    failed

Valid transitions:
  - planned → building (image must be produced first)
  - planned → created (image already cached)
  - building → created (build succeeded)
  - created → running (instance started)
  - running → stopped (instance stopped)
  - stopped → running (instance restarted)
  - stopped → removed (instance deleted)
  - planned/building/created/running → failed (error occurred)

failed and removed are terminal. A failed build never leaves a partial
instance behind; cleanup happens before the state is recorded.

# Design Patterns

Enumeration pattern:

	All enums use typed string constants:
	  type InstanceState string
	  const (
	      InstanceStateRunning InstanceState = "running"
	  )

Kind-discriminated steps:

	BuildStep is a single struct whose Kind field selects the meaningful
	operands. This keeps plans serializable as plain JSON and walkable
	without type assertions. The if step carries a *Condition whose
	branches are themselves step lists.

Optional fields:

	Optional configurations use pointers:
	  - *BuildSpec: nil = service uses a prebuilt image
	  - *Condition: nil = step is unconditional

# Thread Safety

Types in this package are plain data. They may be read concurrently;
mutations must be synchronized by callers. The storage layer handles
synchronization for persisted state.

# See Also

  - pkg/layer for fingerprint-addressed layer storage
  - pkg/builder for plan walking and fingerprint computation
  - pkg/storage for persistence
  - pkg/orchestrator for the instance lifecycle
*/
package types
