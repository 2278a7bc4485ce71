package types

import (
	"net"
	"time"
)

// StepKind identifies what a build step does
type StepKind string

const (
	StepFromBase   StepKind = "from-base"   // Select the base image
	StepSetWorkdir StepKind = "set-workdir" // Set working directory for later steps
	StepCopy       StepKind = "copy"        // Copy files from the build context
	StepRun        StepKind = "run"         // Run a command in the staged filesystem
	StepSetEnv     StepKind = "set-env"     // Record environment variables
	StepExpose     StepKind = "expose"      // Record an exposed port
	StepSetCommand StepKind = "set-command" // Record the default command
	StepIf         StepKind = "if"          // Branch on a build argument
)

// BuildStep is one step of a build plan. Kind selects which fields are
// meaningful; the rest stay zero. Steps are immutable once part of a plan.
type BuildStep struct {
	Kind StepKind

	From    string   // from-base: image reference "name:tag"
	Workdir string   // set-workdir: absolute path inside the image
	Src     string   // copy: path relative to the build context
	Dst     string   // copy: destination path inside the image
	Command string   // run: shell command
	Env     []EnvVar // set-env: variables to record
	Port    uint16   // expose: port to record
	Cmd     []string // set-command: default command (exec form)

	Cond *Condition // if: branch taken at build time
}

// Condition selects between two step lists based on a build argument.
// The comparison happens once, when the plan is walked; the chosen
// branch is spliced into the step sequence in place of the if step.
type Condition struct {
	Arg    string
	Equals string
	Then   []BuildStep
	Else   []BuildStep
}

// ArgBindings maps build argument names to values. Operands may reference
// arguments as ${NAME}; references are substituted before any step is
// fingerprinted or executed, so different bindings produce different
// fingerprint chains.
type ArgBindings map[string]string

// EnvVar is a single environment variable
type EnvVar struct {
	Name  string
	Value string
}

// FileEntry describes one regular file captured in a layer delta.
// Directories are implied by paths; mtimes never participate.
type FileEntry struct {
	Mode   uint32 // Permission bits
	Size   int64
	Digest Fingerprint // Content address of the file bytes
}

// Delta is the filesystem difference a layer introduces relative to its
// parent. Added maps image-absolute paths to entries; Removed lists paths
// deleted by the step (materialized as whiteouts in the blob).
type Delta struct {
	Added   map[string]FileEntry
	Removed []string
}

// Layer is an immutable filesystem delta owned by the layer store.
// Parent is the zero Fingerprint for base layers.
type Layer struct {
	Fingerprint Fingerprint
	Parent      Fingerprint
	Delta       Delta
	Size        int64 // Compressed blob size in bytes
	CreatedAt   time.Time
}

// Image is an ordered stack of layers plus runtime configuration.
// Images are immutable and addressed by "name:tag".
type Image struct {
	Name      string
	Tag       string
	Layers    []Fingerprint // Bottom to top
	Config    ImageConfig
	CreatedAt time.Time
}

// Ref returns the image reference in "name:tag" form
func (i *Image) Ref() string {
	return i.Name + ":" + i.Tag
}

// Top returns the fingerprint of the topmost layer, which identifies the
// image content as a whole. Returns the zero Fingerprint for empty images.
func (i *Image) Top() Fingerprint {
	if len(i.Layers) == 0 {
		return Fingerprint{}
	}
	return i.Layers[len(i.Layers)-1]
}

// ImageConfig is the runtime metadata accumulated from metadata steps
type ImageConfig struct {
	Workdir      string
	Env          []EnvVar
	ExposedPorts []uint16
	Cmd          []string
}

// MountType discriminates mount declarations
type MountType string

const (
	MountTypeBind      MountType = "bind"      // Host directory into the container
	MountTypeVolume    MountType = "volume"    // Named managed volume
	MountTypeAnonymous MountType = "anonymous" // Unnamed volume created per instance
)

// MountSpec declares one mount for a service. Source is a host path for
// bind mounts, a volume name for volume mounts, and empty for anonymous
// mounts. Target is always an absolute container path.
type MountSpec struct {
	Type     MountType
	Source   string
	Target   string
	ReadOnly bool
}

// Volume is a managed directory that outlives instances
type Volume struct {
	ID        string
	Name      string // Empty for anonymous volumes
	Anonymous bool
	MountPath string // Host directory backing the volume
	CreatedAt time.Time
}

// BuildSpec describes how to build a service's image
type BuildSpec struct {
	ContextDir string
	Plan       []BuildStep
	Args       ArgBindings
}

// ServiceDescriptor is a user-defined workload from a stack manifest.
// Exactly one of Image or Build is set after manifest validation.
type ServiceDescriptor struct {
	Name      string
	Image     string // Prebuilt image reference
	Build     *BuildSpec
	Command   []string
	Env       []EnvVar
	Mounts    []MountSpec
	Ports     []*PortMapping
	Networks  []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PortMapping publishes a container port on the host
type PortMapping struct {
	HostPort      uint16
	ContainerPort uint16
	Protocol      string // "tcp" or "udp"
}

// InstanceState represents the lifecycle state of an instance
type InstanceState string

const (
	InstanceStatePlanned  InstanceState = "planned"
	InstanceStateBuilding InstanceState = "building"
	InstanceStateCreated  InstanceState = "created"
	InstanceStateRunning  InstanceState = "running"
	InstanceStateStopped  InstanceState = "stopped"
	InstanceStateRemoved  InstanceState = "removed"
	InstanceStateFailed   InstanceState = "failed"
)

// Instance is one running (or previously running) copy of a service
type Instance struct {
	ID          string
	Project     string // Stack the instance belongs to
	ServiceName string
	ImageRef    string
	State       InstanceState
	Mounts      []MountSpec // Resolved: sources are absolute host paths
	VolumeIDs   []string    // Volumes attached through the mount table
	Address     net.IP      // Address on the attached network
	NetworkID   string
	ScratchDir  string // Instance-private writable layer
	Error       string // Failure detail when State is failed
	CreatedAt   time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Network is an isolated address range instances can join
type Network struct {
	ID         string
	Name       string
	Subnet     string // CIDR notation
	Gateway    net.IP
	Resolvable bool // Whether members get DNS names
	CreatedAt  time.Time
}
