package manifest

import (
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hutchd/hutch/pkg/types"
)

// Descriptors validates the file and converts it into service
// descriptors, sorted by name. Relative build contexts and bind mount
// sources are resolved against the file's directory.
func (f *File) Descriptors() ([]types.ServiceDescriptor, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(f.Services))
	for name := range f.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	descs := make([]types.ServiceDescriptor, 0, len(names))
	for _, name := range names {
		d, err := f.descriptor(name, f.Services[name])
		if err != nil {
			return nil, err
		}
		descs = append(descs, d)
	}
	return descs, nil
}

func (f *File) descriptor(name string, svc *Service) (types.ServiceDescriptor, error) {
	d := types.ServiceDescriptor{
		Name:    name,
		Image:   svc.Image,
		Command: append([]string(nil), svc.Command...),
		Env:     envVars(svc.Environment),
	}
	if svc.Build != nil {
		d.Build = &types.BuildSpec{
			ContextDir: f.resolvePath(svc.Build.Context),
			Plan:       toSteps(svc.Build.Steps),
			Args:       types.ArgBindings(svc.Build.Args),
		}
	}
	for _, v := range svc.Volumes {
		m, err := ParseMount(v)
		if err != nil {
			return d, fmt.Errorf("service %q: %w", name, err)
		}
		if m.Type == types.MountTypeBind {
			m.Source = f.resolvePath(m.Source)
		}
		d.Mounts = append(d.Mounts, m)
	}
	for _, p := range svc.Ports {
		pm, err := ParsePort(p)
		if err != nil {
			return d, fmt.Errorf("service %q: %w", name, err)
		}
		d.Ports = append(d.Ports, pm)
	}
	return d, nil
}

// resolvePath makes a path absolute relative to the stack file's
// directory. Absolute paths pass through; an empty path means the
// stack file's directory itself.
func (f *File) resolvePath(p string) string {
	if p == "" {
		return f.Dir
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(f.Dir, p)
}

// envVars flattens an environment map into sorted assignments so the
// resulting descriptor is deterministic.
func envVars(env map[string]string) []types.EnvVar {
	if len(env) == 0 {
		return nil
	}
	names := make([]string, 0, len(env))
	for k := range env {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([]types.EnvVar, 0, len(names))
	for _, k := range names {
		out = append(out, types.EnvVar{Name: k, Value: env[k]})
	}
	return out
}

func toSteps(steps []Step) []types.BuildStep {
	out := make([]types.BuildStep, 0, len(steps))
	for _, st := range steps {
		out = append(out, toStep(st))
	}
	return out
}

func toStep(st Step) types.BuildStep {
	b := types.BuildStep{
		Kind:    types.StepKind(st.Kind),
		From:    st.From,
		Workdir: st.Workdir,
		Src:     st.Src,
		Dst:     st.Dst,
		Command: st.Command,
		Port:    st.Port,
		Cmd:     append([]string(nil), st.Cmd...),
	}
	if len(st.Env) > 0 {
		b.Env = envVars(st.Env)
	}
	if types.StepKind(st.Kind) == types.StepIf {
		b.Cond = &types.Condition{
			Arg:    st.Arg,
			Equals: st.Equals,
			Then:   toSteps(st.Then),
			Else:   toSteps(st.Else),
		}
	}
	return b
}

// ParseMount parses one volume string into a mount declaration. The
// grammar follows the common stack file form:
//
//	/path            anonymous volume at /path
//	name:/path       named volume mounted at /path
//	./src:/path      bind mount, source relative to the stack file
//	/abs:/path:ro    bind mount, read only
//
// A source starting with "/" or "." is a host path; anything else is a
// volume name. Targets are cleaned, so "/app/" and "/app" key the same
// mount when merging.
func ParseMount(s string) (types.MountSpec, error) {
	parts := strings.Split(s, ":")
	var m types.MountSpec
	switch len(parts) {
	case 1:
		m = types.MountSpec{Type: types.MountTypeAnonymous, Target: parts[0]}
	case 2:
		m = types.MountSpec{Source: parts[0], Target: parts[1]}
	case 3:
		m = types.MountSpec{Source: parts[0], Target: parts[1]}
		switch parts[2] {
		case "ro":
			m.ReadOnly = true
		case "rw":
		default:
			return m, fmt.Errorf("mount %q: mode must be ro or rw", s)
		}
	default:
		return m, fmt.Errorf("mount %q: too many fields", s)
	}

	if m.Type != types.MountTypeAnonymous {
		switch {
		case m.Source == "":
			return m, fmt.Errorf("mount %q: source is required", s)
		case strings.HasPrefix(m.Source, "/") || strings.HasPrefix(m.Source, "."):
			m.Type = types.MountTypeBind
		default:
			m.Type = types.MountTypeVolume
		}
	}
	if !strings.HasPrefix(m.Target, "/") {
		return m, fmt.Errorf("mount %q: target must be an absolute path", s)
	}
	m.Target = path.Clean(m.Target)
	return m, nil
}

// ParsePort parses "hostPort:containerPort" with an optional "/udp" or
// "/tcp" protocol suffix. Both ports are required; there is no
// ephemeral host port form.
func ParsePort(s string) (*types.PortMapping, error) {
	spec, proto, ok := strings.Cut(s, "/")
	if !ok {
		proto = "tcp"
	}
	if proto != "tcp" && proto != "udp" {
		return nil, fmt.Errorf("port %q: protocol must be tcp or udp", s)
	}
	host, cont, ok := strings.Cut(spec, ":")
	if !ok {
		return nil, fmt.Errorf("port %q: must be hostPort:containerPort", s)
	}
	hp, err := parsePortNum(host)
	if err != nil {
		return nil, fmt.Errorf("port %q: host port %w", s, err)
	}
	cp, err := parsePortNum(cont)
	if err != nil {
		return nil, fmt.Errorf("port %q: container port %w", s, err)
	}
	return &types.PortMapping{HostPort: hp, ContainerPort: cp, Protocol: proto}, nil
}

func parsePortNum(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%q must be between 1 and 65535", s)
	}
	return uint16(n), nil
}
