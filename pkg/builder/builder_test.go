package builder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hutchd/hutch/pkg/layer"
	"github.com/hutchd/hutch/pkg/storage"
	"github.com/hutchd/hutch/pkg/types"
)

// scriptedExecutor records run commands and performs canned effects
type scriptedExecutor struct {
	mu      sync.Mutex
	runs    []string
	exits   map[string]int
	effects map[string]func(spec RunSpec) error
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{
		exits:   make(map[string]int),
		effects: make(map[string]func(spec RunSpec) error),
	}
}

func (e *scriptedExecutor) Run(_ context.Context, spec RunSpec) (int, error) {
	e.mu.Lock()
	e.runs = append(e.runs, spec.Command)
	e.mu.Unlock()

	if fn, ok := e.effects[spec.Command]; ok {
		if err := fn(spec); err != nil {
			return 0, err
		}
	}
	return e.exits[spec.Command], nil
}

func (e *scriptedExecutor) ranCommands() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.runs...)
}

// writeUnder writes a file relative to the step's working tree
func writeUnder(rel, content string) func(spec RunSpec) error {
	return func(spec RunSpec) error {
		p := filepath.Join(spec.RootDir, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		return os.WriteFile(p, []byte(content), 0o644)
	}
}

func newTestBuilder(t *testing.T, exec Executor) (*Builder, *storage.BoltStore, layer.Store) {
	t.Helper()
	layers := layer.NewMemStore()
	t.Cleanup(func() { layers.Close() })

	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	fetcher, err := NewFetcher(layers, t.TempDir())
	require.NoError(t, err)

	return New(layers, store, fetcher, exec, nil), store, layers
}

func writeContext(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func TestBuildProducesImage(t *testing.T) {
	exec := newScriptedExecutor()
	exec.effects["install deps"] = writeUnder("app/node_modules/left-pad.js", "module.exports = pad")

	b, store, layers := newTestBuilder(t, exec)
	ctx := writeContext(t, map[string]string{"server.js": "listen(3000)"})

	image, err := b.Build(context.Background(), Request{
		Name:       "myapp_web",
		ContextDir: ctx,
		Plan: []types.BuildStep{
			{Kind: types.StepSetWorkdir, Workdir: "/app"},
			{Kind: types.StepCopy, Src: "server.js", Dst: "server.js"},
			{Kind: types.StepRun, Command: "install deps"},
			{Kind: types.StepSetCommand, Cmd: []string{"node", "server.js"}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "myapp_web:latest", image.Ref())
	assert.Len(t, image.Layers, 4)
	assert.Equal(t, "/app", image.Config.Workdir)
	assert.Equal(t, []string{"node", "server.js"}, image.Config.Cmd)

	for _, fp := range image.Layers {
		assert.True(t, layers.Has(fp), "layer %s not stored", fp)
	}

	stored, err := store.GetImage("myapp_web:latest")
	require.NoError(t, err)
	assert.True(t, stored.Top().Equal(image.Top()))
}

func TestBuildReusesCachedLayers(t *testing.T) {
	exec := newScriptedExecutor()
	exec.effects["install deps"] = writeUnder("deps/installed", "ok")

	b, _, _ := newTestBuilder(t, exec)
	ctx := writeContext(t, map[string]string{"main.go": "package main"})

	req := Request{
		Name:       "svc",
		ContextDir: ctx,
		Plan: []types.BuildStep{
			{Kind: types.StepCopy, Src: "main.go", Dst: "/src/main.go"},
			{Kind: types.StepRun, Command: "install deps"},
		},
	}

	first, err := b.Build(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, []string{"install deps"}, exec.ranCommands())

	second, err := b.Build(context.Background(), req)
	require.NoError(t, err)

	// Nothing re-executed: every step was served from the layer store.
	assert.Equal(t, []string{"install deps"}, exec.ranCommands())
	assert.True(t, first.Top().Equal(second.Top()))
}

func TestChangedSourceInvalidatesCache(t *testing.T) {
	exec := newScriptedExecutor()
	b, _, _ := newTestBuilder(t, exec)
	ctx := writeContext(t, map[string]string{"main.go": "package main"})

	req := Request{
		Name:       "svc",
		ContextDir: ctx,
		Plan: []types.BuildStep{
			{Kind: types.StepCopy, Src: "main.go", Dst: "/src/main.go"},
		},
	}

	first, err := b.Build(context.Background(), req)
	require.NoError(t, err)

	// Same content again digests identically even though mtime moved.
	require.NoError(t, os.WriteFile(filepath.Join(ctx, "main.go"), []byte("package main"), 0o644))
	same, err := b.Build(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, first.Top().Equal(same.Top()))

	require.NoError(t, os.WriteFile(filepath.Join(ctx, "main.go"), []byte("package main // v2"), 0o644))
	changed, err := b.Build(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Top().Equal(changed.Top()))
}

func TestArgBindingsSplitCache(t *testing.T) {
	exec := newScriptedExecutor()
	exec.effects["install --mode=development"] = writeUnder("deps/dev", "dev")
	exec.effects["install --mode=production"] = writeUnder("deps/prod", "prod")

	b, _, _ := newTestBuilder(t, exec)

	plan := []types.BuildStep{
		{Kind: types.StepRun, Command: "install --mode=${MODE}"},
	}

	dev, err := b.Build(context.Background(), Request{
		Name: "svc", Plan: plan, Args: types.ArgBindings{"MODE": "development"},
	})
	require.NoError(t, err)

	prod, err := b.Build(context.Background(), Request{
		Name: "svc", Plan: plan, Args: types.ArgBindings{"MODE": "production"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"install --mode=development", "install --mode=production"}, exec.ranCommands())
	assert.False(t, dev.Top().Equal(prod.Top()))

	// Re-running either binding is now fully cached.
	_, err = b.Build(context.Background(), Request{
		Name: "svc", Plan: plan, Args: types.ArgBindings{"MODE": "development"},
	})
	require.NoError(t, err)
	assert.Len(t, exec.ranCommands(), 2)
}

func TestConditionalStepsSpliceBranch(t *testing.T) {
	exec := newScriptedExecutor()
	exec.effects["install all"] = writeUnder("deps/all", "x")
	exec.effects["install prod-only"] = writeUnder("deps/prod", "x")

	b, _, _ := newTestBuilder(t, exec)

	plan := []types.BuildStep{
		{Kind: types.StepIf, Cond: &types.Condition{
			Arg:    "NODE_ENV",
			Equals: "development",
			Then:   []types.BuildStep{{Kind: types.StepRun, Command: "install all"}},
			Else:   []types.BuildStep{{Kind: types.StepRun, Command: "install prod-only"}},
		}},
	}

	devImage, err := b.Build(context.Background(), Request{
		Name: "svc", Plan: plan, Args: types.ArgBindings{"NODE_ENV": "development"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"install all"}, exec.ranCommands())

	prodImage, err := b.Build(context.Background(), Request{
		Name: "svc", Plan: plan, Args: types.ArgBindings{"NODE_ENV": "production"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"install all", "install prod-only"}, exec.ranCommands())

	// One plan, two argument sets, two distinct cached dependency sets.
	assert.False(t, devImage.Top().Equal(prodImage.Top()))
}

func TestBuildFromBase(t *testing.T) {
	exec := newScriptedExecutor()
	b, _, _ := newTestBuilder(t, exec)
	ctx := writeContext(t, map[string]string{"runtime.bin": "ELF"})

	base, err := b.Build(context.Background(), Request{
		Name:       "runtime",
		ContextDir: ctx,
		Plan: []types.BuildStep{
			{Kind: types.StepSetWorkdir, Workdir: "/srv"},
			{Kind: types.StepCopy, Src: "runtime.bin", Dst: "/bin/runtime"},
		},
	})
	require.NoError(t, err)

	appCtx := writeContext(t, map[string]string{"app.js": "serve()"})
	app, err := b.Build(context.Background(), Request{
		Name:       "myapp_web",
		ContextDir: appCtx,
		Plan: []types.BuildStep{
			{Kind: types.StepFromBase, From: "runtime:latest"},
			{Kind: types.StepCopy, Src: "app.js", Dst: "app.js"},
		},
	})
	require.NoError(t, err)

	require.Len(t, app.Layers, len(base.Layers)+1)
	for i, fp := range base.Layers {
		assert.True(t, fp.Equal(app.Layers[i]))
	}
	// Base config is inherited.
	assert.Equal(t, "/srv", app.Config.Workdir)
}

func TestBuildMissingBase(t *testing.T) {
	b, _, _ := newTestBuilder(t, newScriptedExecutor())

	_, err := b.Build(context.Background(), Request{
		Name: "svc",
		Plan: []types.BuildStep{
			{Kind: types.StepFromBase, From: "ghost:latest"},
		},
	})

	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, 0, buildErr.Step)
	assert.Equal(t, "from-base", buildErr.Op)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestBuildMissingCopySource(t *testing.T) {
	b, _, _ := newTestBuilder(t, newScriptedExecutor())

	_, err := b.Build(context.Background(), Request{
		Name:       "svc",
		ContextDir: t.TempDir(),
		Plan: []types.BuildStep{
			{Kind: types.StepCopy, Src: "missing.txt", Dst: "/missing.txt"},
		},
	})

	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, "copy", buildErr.Op)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestBuildCopySourceEscape(t *testing.T) {
	b, _, _ := newTestBuilder(t, newScriptedExecutor())

	_, err := b.Build(context.Background(), Request{
		Name:       "svc",
		ContextDir: t.TempDir(),
		Plan: []types.BuildStep{
			{Kind: types.StepCopy, Src: "../outside", Dst: "/x"},
		},
	})

	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Contains(t, buildErr.Err.Error(), "escapes the build context")
}

func TestRunFailurePublishesNoImage(t *testing.T) {
	exec := newScriptedExecutor()
	exec.exits["broken step"] = 1

	b, store, layers := newTestBuilder(t, exec)
	ctx := writeContext(t, map[string]string{"file": "x"})

	_, err := b.Build(context.Background(), Request{
		Name:       "svc",
		ContextDir: ctx,
		Plan: []types.BuildStep{
			{Kind: types.StepCopy, Src: "file", Dst: "/file"},
			{Kind: types.StepRun, Command: "broken step"},
		},
	})

	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, 1, buildErr.Step)
	assert.Equal(t, "run", buildErr.Op)

	// No partial image is visible to readers.
	_, err = store.GetImage("svc:latest")
	assert.ErrorIs(t, err, types.ErrNotFound)

	// The successful step's layer stays behind as cache.
	fps, err := layers.List()
	require.NoError(t, err)
	assert.Len(t, fps, 1)
}

func TestBuildCancelledBetweenSteps(t *testing.T) {
	b, store, _ := newTestBuilder(t, newScriptedExecutor())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Build(ctx, Request{
		Name: "svc",
		Plan: []types.BuildStep{
			{Kind: types.StepSetWorkdir, Workdir: "/app"},
		},
	})
	require.ErrorIs(t, err, context.Canceled)

	_, err = store.GetImage("svc:latest")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestMetadataStepsCarryConfig(t *testing.T) {
	exec := newScriptedExecutor()
	b, _, _ := newTestBuilder(t, exec)

	req := Request{
		Name: "svc",
		Plan: []types.BuildStep{
			{Kind: types.StepSetEnv, Env: []types.EnvVar{{Name: "PORT", Value: "3000"}}},
			{Kind: types.StepExpose, Port: 3000},
			{Kind: types.StepSetEnv, Env: []types.EnvVar{{Name: "PORT", Value: "8080"}}},
		},
	}

	image, err := b.Build(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, image.Config.Env, 1)
	assert.Equal(t, "8080", image.Config.Env[0].Value)
	assert.Equal(t, []uint16{3000}, image.Config.ExposedPorts)

	// Cached rebuilds fold the same config state.
	again, err := b.Build(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, again.Config.Env, 1)
	assert.Equal(t, "8080", again.Config.Env[0].Value)
}

func TestBuildError(t *testing.T) {
	inner := errors.New("boom")
	err := &BuildError{Step: 3, Op: "run", Err: inner}

	assert.Equal(t, "build step 3 (run): boom", err.Error())
	assert.ErrorIs(t, err, inner)
}
