package builder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hutchd/hutch/pkg/events"
	"github.com/hutchd/hutch/pkg/layer"
	"github.com/hutchd/hutch/pkg/log"
	"github.com/hutchd/hutch/pkg/metrics"
	"github.com/hutchd/hutch/pkg/storage"
	"github.com/hutchd/hutch/pkg/types"
)

// BuildError reports a failed build step. Step is the zero-based position
// in the rendered plan (conditionals already spliced), Op the step kind.
type BuildError struct {
	Step int
	Op   string
	Err  error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build step %d (%s): %v", e.Step, e.Op, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// Request describes one image build
type Request struct {
	Name       string // image name, e.g. "myapp_web"
	Tag        string // defaults to "latest"
	Plan       []types.BuildStep
	Args       types.ArgBindings
	Base       string // base image ref when the plan has no from-base step
	ContextDir string // root that copy sources resolve against
}

// Builder turns build plans into images, reusing stored layers whenever a
// step's fingerprint already exists. All collaborators are explicit; two
// builders over the same stores share cache and locking through them.
type Builder struct {
	layers  layer.Store
	images  storage.Store
	fetcher *Fetcher
	exec    Executor
	broker  *events.Broker
	logger  zerolog.Logger
}

// New creates a builder. broker may be nil to disable events.
func New(layers layer.Store, images storage.Store, fetcher *Fetcher, exec Executor, broker *events.Broker) *Builder {
	if exec == nil {
		exec = ShellExecutor{}
	}
	return &Builder{
		layers:  layers,
		images:  images,
		fetcher: fetcher,
		exec:    exec,
		broker:  broker,
		logger:  log.WithComponent("builder"),
	}
}

// Build walks the plan and produces an image. Steps whose fingerprint is
// already stored are reused; the rest execute against a staging root
// materialized on first need. The image is published only after every step
// succeeded, so readers never observe a partial image. Cancellation between
// steps aborts the build; layers stored before the abort stay behind as
// reusable cache.
func (b *Builder) Build(ctx context.Context, req Request) (*types.Image, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("image name is required")
	}
	if req.Tag == "" {
		req.Tag = "latest"
	}

	timer := metrics.NewTimer()
	result := "failure"
	defer func() {
		metrics.BuildsTotal.WithLabelValues(result).Inc()
		timer.ObserveDuration(metrics.BuildDuration)
	}()

	rendered, err := renderPlan(req.Plan, req.Args)
	if err != nil {
		return nil, err
	}

	st := &buildState{}
	defer st.cleanup()

	// Seed from an explicit base when the plan brings none of its own.
	if req.Base != "" && (len(rendered) == 0 || rendered[0].Kind != types.StepFromBase) {
		if err := b.seedBase(st, render(req.Base, req.Args), 0); err != nil {
			return nil, err
		}
	}

	cached, executed := 0, 0
	for i, step := range rendered {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("build cancelled before step %d: %w", i, err)
		}

		if step.Kind == types.StepFromBase {
			if i != 0 {
				return nil, &BuildError{Step: i, Op: string(step.Kind),
					Err: fmt.Errorf("base image must be selected by the first step")}
			}
			if err := b.seedBase(st, step.From, i); err != nil {
				return nil, err
			}
			continue
		}

		hit, err := b.runStep(ctx, st, req, i, step)
		if err != nil {
			return nil, err
		}
		if hit {
			cached++
		} else {
			executed++
		}
	}

	image := &types.Image{
		Name:      req.Name,
		Tag:       req.Tag,
		Layers:    st.layerFPs,
		Config:    st.config,
		CreatedAt: time.Now(),
	}
	if err := b.images.CreateImage(image); err != nil {
		return nil, fmt.Errorf("failed to store image: %w", err)
	}
	result = "success"

	b.logger.Info().
		Str("image", image.Ref()).
		Int("steps", len(rendered)).
		Int("cached", cached).
		Int("executed", executed).
		Msg("Image built")

	b.publish(events.EventImageBuilt, image.Ref(), map[string]string{
		"image":    image.Ref(),
		"cached":   fmt.Sprintf("%d", cached),
		"executed": fmt.Sprintf("%d", executed),
	})

	return image, nil
}

// buildState carries the walk's accumulated position
type buildState struct {
	current  types.Fingerprint
	layerFPs []types.Fingerprint
	config   types.ImageConfig
	staging  string // writable root, materialized lazily
}

func (st *buildState) cleanup() {
	if st.staging != "" {
		os.RemoveAll(st.staging)
	}
}

// seedBase positions the walk on top of a stored base image
func (b *Builder) seedBase(st *buildState, ref string, stepIndex int) error {
	img, err := b.images.GetImage(ref)
	if err != nil {
		return &BuildError{Step: stepIndex, Op: string(types.StepFromBase),
			Err: fmt.Errorf("base image %q: %w", ref, err)}
	}
	st.current = img.Top()
	st.layerFPs = append([]types.Fingerprint(nil), img.Layers...)
	st.config = img.Config
	return nil
}

// runStep advances the walk by one rendered step, reusing a stored layer or
// executing the step's effect. It reports whether the cache served the step.
func (b *Builder) runStep(ctx context.Context, st *buildState, req Request, i int, step types.BuildStep) (bool, error) {
	var contextDigest string
	if step.Kind == types.StepCopy {
		var err error
		contextDigest, err = b.digestSource(req.ContextDir, step.Src, i)
		if err != nil {
			return false, err
		}
	}

	fp, err := stepKey(st.current, step.Kind, stepOperands(step, contextDigest)...)
	if err != nil {
		return false, err
	}

	// First probe without the lock: hits are the common case.
	if l, err := b.layers.Get(fp); err == nil && l.Parent.Equal(st.current) {
		if err := b.reuseLayer(st, l); err != nil {
			return false, err
		}
		applyConfig(step, &st.config)
		b.noteStep(step, i, fp, true)
		return true, nil
	}

	release, err := b.layers.Acquire(ctx, fp)
	if err != nil {
		return false, fmt.Errorf("step %d (%s): %w", i, step.Kind, err)
	}
	defer release()

	// Someone may have stored it while we waited for the section.
	if l, err := b.layers.Get(fp); err == nil && l.Parent.Equal(st.current) {
		if err := b.reuseLayer(st, l); err != nil {
			return false, err
		}
		applyConfig(step, &st.config)
		b.noteStep(step, i, fp, true)
		return true, nil
	}

	delta, err := b.executeStep(ctx, st, req, i, step)
	if err != nil {
		return false, err
	}

	blob := &bytes.Buffer{}
	if err := layer.WriteBlob(blob, st.staging, delta); err != nil {
		return false, fmt.Errorf("step %d (%s): failed to pack layer: %w", i, step.Kind, err)
	}
	l, err := b.layers.Put(fp, st.current, delta, blob)
	if err != nil {
		return false, fmt.Errorf("step %d (%s): failed to store layer: %w", i, step.Kind, err)
	}

	b.publish(events.EventLayerStored, fp.String(), map[string]string{
		"fingerprint": fp.String(),
		"size":        fmt.Sprintf("%d", l.Size),
	})

	applyConfig(step, &st.config)
	st.current = fp
	st.layerFPs = append(st.layerFPs, fp)
	b.noteStep(step, i, fp, false)
	return false, nil
}

// reuseLayer advances over a cached layer, applying its blob when a staging
// root is already materialized so later steps see its files
func (b *Builder) reuseLayer(st *buildState, l *types.Layer) error {
	if st.staging != "" {
		blob, err := b.layers.Open(l.Fingerprint)
		if err != nil {
			return fmt.Errorf("failed to open cached layer %s: %w", l.Fingerprint, err)
		}
		err = layer.ApplyBlob(blob, st.staging)
		blob.Close()
		if err != nil {
			return fmt.Errorf("failed to apply cached layer %s: %w", l.Fingerprint, err)
		}
	}
	st.current = l.Fingerprint
	st.layerFPs = append(st.layerFPs, l.Fingerprint)
	return nil
}

// executeStep performs a step's effect and returns the delta it introduced.
// Metadata steps have no filesystem effect and return an empty delta without
// touching staging.
func (b *Builder) executeStep(ctx context.Context, st *buildState, req Request, i int, step types.BuildStep) (types.Delta, error) {
	switch step.Kind {
	case types.StepSetWorkdir, types.StepSetEnv, types.StepExpose, types.StepSetCommand:
		return types.Delta{}, nil

	case types.StepCopy:
		if err := b.ensureStaging(ctx, st); err != nil {
			return types.Delta{}, err
		}
		before, err := takeSnapshot(st.staging)
		if err != nil {
			return types.Delta{}, err
		}

		src := filepath.Join(req.ContextDir, step.Src)
		dst := cleanDst(st.config.Workdir, step.Dst)
		if info, err := os.Stat(src); err == nil && !info.IsDir() && strings.HasSuffix(step.Dst, "/") {
			dst = path.Join(dst, filepath.Base(src))
		}
		if err := copyTree(src, filepath.Join(st.staging, strings.TrimPrefix(dst, "/"))); err != nil {
			return types.Delta{}, &BuildError{Step: i, Op: string(step.Kind),
				Err: fmt.Errorf("failed to copy %q: %w", step.Src, err)}
		}

		after, err := takeSnapshot(st.staging)
		if err != nil {
			return types.Delta{}, err
		}
		return diffSnapshots(before, after), nil

	case types.StepRun:
		if err := b.ensureStaging(ctx, st); err != nil {
			return types.Delta{}, err
		}
		before, err := takeSnapshot(st.staging)
		if err != nil {
			return types.Delta{}, err
		}

		code, err := b.exec.Run(ctx, RunSpec{
			RootDir: st.staging,
			Workdir: st.config.Workdir,
			Command: step.Command,
			Env:     st.config.Env,
		})
		if err != nil {
			return types.Delta{}, &BuildError{Step: i, Op: string(step.Kind), Err: err}
		}
		if code != 0 {
			return types.Delta{}, &BuildError{Step: i, Op: string(step.Kind),
				Err: fmt.Errorf("command exited with status %d", code)}
		}

		after, err := takeSnapshot(st.staging)
		if err != nil {
			return types.Delta{}, err
		}
		return diffSnapshots(before, after), nil

	default:
		return types.Delta{}, &BuildError{Step: i, Op: string(step.Kind),
			Err: fmt.Errorf("unknown step kind")}
	}
}

// digestSource digests a copy source, wrapping a missing path in BuildError
func (b *Builder) digestSource(contextDir, src string, i int) (string, error) {
	p := filepath.Join(contextDir, src)
	rel, err := filepath.Rel(contextDir, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &BuildError{Step: i, Op: string(types.StepCopy),
			Err: fmt.Errorf("source %q escapes the build context", src)}
	}

	digest, err := digestPath(p)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &BuildError{Step: i, Op: string(types.StepCopy),
				Err: fmt.Errorf("source %q: %w", src, types.ErrNotFound)}
		}
		return "", &BuildError{Step: i, Op: string(types.StepCopy), Err: err}
	}
	return digest, nil
}

// ensureStaging materializes the walk's current chain into a private
// writable root. Until a copy or run step misses the cache, no staging
// exists and cache-served builds never touch the filesystem.
func (b *Builder) ensureStaging(ctx context.Context, st *buildState) error {
	if st.staging != "" {
		return nil
	}

	realized, err := b.fetcher.Realize(ctx, st.current)
	if err != nil {
		return err
	}

	dir, err := os.MkdirTemp("", "hutch-build-*")
	if err != nil {
		return fmt.Errorf("failed to create staging root: %w", err)
	}
	if err := copyTree(realized, dir); err != nil {
		os.RemoveAll(dir)
		return fmt.Errorf("failed to populate staging root: %w", err)
	}
	st.staging = dir
	return nil
}

// applyConfig folds a metadata step into the image config
func applyConfig(step types.BuildStep, config *types.ImageConfig) {
	switch step.Kind {
	case types.StepSetWorkdir:
		config.Workdir = step.Workdir
	case types.StepSetEnv:
		for _, e := range step.Env {
			config.Env = setEnv(config.Env, e)
		}
	case types.StepExpose:
		for _, p := range config.ExposedPorts {
			if p == step.Port {
				return
			}
		}
		config.ExposedPorts = append(config.ExposedPorts, step.Port)
	case types.StepSetCommand:
		config.Cmd = append([]string(nil), step.Cmd...)
	}
}

// setEnv replaces a variable by name or appends it
func setEnv(env []types.EnvVar, v types.EnvVar) []types.EnvVar {
	for i, e := range env {
		if e.Name == v.Name {
			env[i] = v
			return env
		}
	}
	return append(env, v)
}

// noteStep records one step's outcome in logs, metrics and events
func (b *Builder) noteStep(step types.BuildStep, i int, fp types.Fingerprint, hit bool) {
	outcome := "miss"
	eventType := events.EventBuildStepExecuted
	if hit {
		outcome = "hit"
		eventType = events.EventBuildStepCached
	}
	metrics.BuildSteps.WithLabelValues(string(step.Kind), outcome).Inc()

	b.logger.Debug().
		Int("step", i).
		Str("kind", string(step.Kind)).
		Str("fingerprint", fp.String()).
		Bool("cached", hit).
		Msg("Build step")

	b.publish(eventType, fmt.Sprintf("step %d (%s)", i, step.Kind), map[string]string{
		"step":        fmt.Sprintf("%d", i),
		"kind":        string(step.Kind),
		"fingerprint": fp.String(),
	})
}

func (b *Builder) publish(eventType events.EventType, message string, metadata map[string]string) {
	if b.broker == nil {
		return
	}
	b.broker.Publish(events.New(eventType, message, metadata))
}
