package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/hutchd/hutch/pkg/types"
)

// File is a parsed stack file. Dir is the directory the file was loaded
// from; relative build contexts and bind sources resolve against it.
type File struct {
	Name     string              `yaml:"name"`
	Services map[string]*Service `yaml:"services"`

	Dir string `yaml:"-"`
}

// Service is one service entry of a stack file. Exactly one of Image
// and Build must be set once base and override files are merged.
type Service struct {
	Image       string            `yaml:"image"`
	Build       *Build            `yaml:"build"`
	Command     []string          `yaml:"command"`
	Environment map[string]string `yaml:"environment"`
	Volumes     []string          `yaml:"volumes"`
	Ports       []string          `yaml:"ports"`
}

// Build describes how a service's image is produced. Context is the
// build context directory, relative paths resolve against File.Dir.
type Build struct {
	Context string            `yaml:"context"`
	Args    map[string]string `yaml:"args"`
	Steps   []Step            `yaml:"steps"`
}

// Step is one build instruction. Kind selects which fields apply; the
// names match the step kinds of the build plan model.
type Step struct {
	Kind string `yaml:"kind"`

	From    string            `yaml:"from"`
	Workdir string            `yaml:"workdir"`
	Src     string            `yaml:"src"`
	Dst     string            `yaml:"dst"`
	Command string            `yaml:"command"`
	Env     map[string]string `yaml:"env"`
	Port    uint16            `yaml:"port"`
	Cmd     []string          `yaml:"cmd"`

	Arg    string `yaml:"arg"`
	Equals string `yaml:"equals"`
	Then   []Step `yaml:"then"`
	Else   []Step `yaml:"else"`
}

// Load reads and parses a stack file. The file's directory is recorded
// so relative paths inside it can be resolved later.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stack file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("stack file %s: %w", path, err)
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve stack file directory: %w", err)
	}
	f.Dir = abs
	return f, nil
}

// Parse unmarshals stack file bytes. Parse does not check completeness:
// an override file on its own may declare partial services, so semantic
// validation happens in Validate after merging.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if f.Services == nil {
		f.Services = make(map[string]*Service)
	}
	for name, svc := range f.Services {
		if svc == nil {
			f.Services[name] = &Service{}
		}
	}
	return &f, nil
}

// Validate checks a merged stack file for completeness: every service
// carries exactly one provisioning method, names are resolvable, and
// every mount, port, and build step parses.
func (f *File) Validate() error {
	if len(f.Services) == 0 {
		return fmt.Errorf("stack file declares no services")
	}
	for name, svc := range f.Services {
		if err := validateServiceName(name); err != nil {
			return err
		}
		if err := svc.validate(name); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) validate(name string) error {
	hasImage := s.Image != ""
	hasBuild := s.Build != nil
	if hasImage == hasBuild {
		return fmt.Errorf("service %q: exactly one of image or build is required", name)
	}
	if hasBuild {
		if len(s.Build.Steps) == 0 {
			return fmt.Errorf("service %q: build has no steps", name)
		}
		if err := validateSteps(s.Build.Steps, true); err != nil {
			return fmt.Errorf("service %q: %w", name, err)
		}
	}
	for _, v := range s.Volumes {
		if _, err := ParseMount(v); err != nil {
			return fmt.Errorf("service %q: %w", name, err)
		}
	}
	for _, p := range s.Ports {
		if _, err := ParsePort(p); err != nil {
			return fmt.Errorf("service %q: %w", name, err)
		}
	}
	return nil
}

// validateSteps walks a step list, recursing into conditional branches.
// top is true only for the outermost list, where a leading from-base
// step is allowed.
func validateSteps(steps []Step, top bool) error {
	for i, st := range steps {
		if err := validateStep(st, top && i == 0); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return nil
}

func validateStep(st Step, first bool) error {
	switch types.StepKind(st.Kind) {
	case types.StepFromBase:
		if !first {
			return fmt.Errorf("from-base is only allowed as the first step")
		}
		if st.From == "" {
			return fmt.Errorf("from-base requires from")
		}
	case types.StepSetWorkdir:
		if st.Workdir == "" || st.Workdir[0] != '/' {
			return fmt.Errorf("set-workdir requires an absolute workdir")
		}
	case types.StepCopy:
		if st.Src == "" || st.Dst == "" {
			return fmt.Errorf("copy requires src and dst")
		}
	case types.StepRun:
		if st.Command == "" {
			return fmt.Errorf("run requires command")
		}
	case types.StepSetEnv:
		if len(st.Env) == 0 {
			return fmt.Errorf("set-env requires env")
		}
	case types.StepExpose:
		if st.Port == 0 {
			return fmt.Errorf("expose requires port")
		}
	case types.StepSetCommand:
		if len(st.Cmd) == 0 {
			return fmt.Errorf("set-command requires cmd")
		}
	case types.StepIf:
		if st.Arg == "" {
			return fmt.Errorf("if requires arg")
		}
		if len(st.Then) == 0 && len(st.Else) == 0 {
			return fmt.Errorf("if requires a then or else branch")
		}
		if err := validateSteps(st.Then, false); err != nil {
			return fmt.Errorf("then: %w", err)
		}
		if err := validateSteps(st.Else, false); err != nil {
			return fmt.Errorf("else: %w", err)
		}
	case "":
		return fmt.Errorf("step kind is required")
	default:
		return fmt.Errorf("unknown step kind %q", st.Kind)
	}
	return nil
}

// validateServiceName enforces DNS-resolvable names: lowercase letters,
// digits and hyphens, starting with a letter or digit. Service names
// become DNS names on resolvable networks, so the character set is the
// DNS label set.
func validateServiceName(name string) error {
	if name == "" {
		return fmt.Errorf("service name is required")
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-' && i > 0:
		default:
			return fmt.Errorf("service name %q: must be lowercase letters, digits and hyphens", name)
		}
	}
	return nil
}
