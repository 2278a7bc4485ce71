package manifest

import "fmt"

// Merge overlays an override file onto a base file and returns the
// result. Neither input is modified.
//
// Per-field policy: scalars replace, environment merges by key,
// volumes replace by target, ports replace by host port, and new list
// entries append in override order. Command replaces wholesale since
// argv fragments cannot be meaningfully appended. Setting image or
// build replaces the service's provisioning method entirely, so an
// override can switch a built service to a pinned image and back.
// Overrides can add and replace but never remove.
func Merge(base, override *File) *File {
	out := &File{
		Name:     base.Name,
		Services: make(map[string]*Service, len(base.Services)),
		Dir:      base.Dir,
	}
	if override.Name != "" {
		out.Name = override.Name
	}
	if out.Dir == "" {
		out.Dir = override.Dir
	}
	for name, svc := range base.Services {
		out.Services[name] = copyService(svc)
	}
	for name, over := range override.Services {
		cur, ok := out.Services[name]
		if !ok {
			out.Services[name] = copyService(over)
			continue
		}
		mergeService(cur, over)
	}
	return out
}

func mergeService(dst, over *Service) {
	if over.Image != "" || over.Build != nil {
		dst.Image = over.Image
		dst.Build = copyBuild(over.Build)
	}
	if len(over.Command) > 0 {
		dst.Command = append([]string(nil), over.Command...)
	}
	if len(over.Environment) > 0 {
		if dst.Environment == nil {
			dst.Environment = make(map[string]string, len(over.Environment))
		}
		for k, v := range over.Environment {
			dst.Environment[k] = v
		}
	}
	dst.Volumes = mergeKeyed(dst.Volumes, over.Volumes, mountKey)
	dst.Ports = mergeKeyed(dst.Ports, over.Ports, portKey)
}

// mergeKeyed replaces base entries whose key matches an override entry
// and appends the rest of the override in order. Duplicate keys inside
// the override collapse to the last declaration.
func mergeKeyed(base, override []string, key func(string) string) []string {
	if len(override) == 0 {
		return base
	}
	latest := make(map[string]string, len(override))
	for _, s := range override {
		latest[key(s)] = s
	}
	used := make(map[string]bool, len(override))
	out := make([]string, 0, len(base)+len(override))
	for _, s := range base {
		k := key(s)
		if r, ok := latest[k]; ok {
			out = append(out, r)
			used[k] = true
			continue
		}
		out = append(out, s)
	}
	for _, s := range override {
		k := key(s)
		if used[k] {
			continue
		}
		used[k] = true
		out = append(out, latest[k])
	}
	return out
}

// mountKey keys a volume string by its container target. Strings that
// do not parse key as themselves; Validate reports them after merging.
func mountKey(s string) string {
	m, err := ParseMount(s)
	if err != nil {
		return s
	}
	return m.Target
}

// portKey keys a port string by host port and protocol, so a tcp and a
// udp binding of the same host port stay distinct.
func portKey(s string) string {
	p, err := ParsePort(s)
	if err != nil {
		return s
	}
	return fmt.Sprintf("%d/%s", p.HostPort, p.Protocol)
}

func copyService(s *Service) *Service {
	out := &Service{
		Image:   s.Image,
		Build:   copyBuild(s.Build),
		Command: append([]string(nil), s.Command...),
		Volumes: append([]string(nil), s.Volumes...),
		Ports:   append([]string(nil), s.Ports...),
	}
	if s.Environment != nil {
		out.Environment = make(map[string]string, len(s.Environment))
		for k, v := range s.Environment {
			out.Environment[k] = v
		}
	}
	return out
}

func copyBuild(b *Build) *Build {
	if b == nil {
		return nil
	}
	out := &Build{
		Context: b.Context,
		Steps:   copySteps(b.Steps),
	}
	if b.Args != nil {
		out.Args = make(map[string]string, len(b.Args))
		for k, v := range b.Args {
			out.Args[k] = v
		}
	}
	return out
}

func copySteps(steps []Step) []Step {
	if steps == nil {
		return nil
	}
	out := make([]Step, len(steps))
	for i, st := range steps {
		out[i] = st
		if st.Env != nil {
			out[i].Env = make(map[string]string, len(st.Env))
			for k, v := range st.Env {
				out[i].Env[k] = v
			}
		}
		out[i].Cmd = append([]string(nil), st.Cmd...)
		out[i].Then = copySteps(st.Then)
		out[i].Else = copySteps(st.Else)
	}
	return out
}
