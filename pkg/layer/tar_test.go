package layer

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hutchd/hutch/pkg/types"
)

func writeFile(t *testing.T, root, rel string, content []byte, mode os.FileMode) {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, content, mode))
	require.NoError(t, os.Chmod(p, mode))
}

func TestBlobRoundTrip(t *testing.T) {
	staging := t.TempDir()
	writeFile(t, staging, "app/main.py", []byte("print('hi')\n"), 0644)
	writeFile(t, staging, "bin/run", []byte("#!/bin/sh\nexec python3\n"), 0755)

	delta := types.Delta{
		Added: map[string]types.FileEntry{
			"/app/main.py": {Mode: 0644, Size: 12},
			"/bin/run":     {Mode: 0755, Size: 23},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteBlob(&buf, staging, delta))

	target := t.TempDir()
	require.NoError(t, ApplyBlob(bytes.NewReader(buf.Bytes()), target))

	content, err := os.ReadFile(filepath.Join(target, "app/main.py"))
	require.NoError(t, err)
	assert.Equal(t, "print('hi')\n", string(content))

	info, err := os.Stat(filepath.Join(target, "bin/run"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())
}

func TestBlobDeterministic(t *testing.T) {
	staging := t.TempDir()
	writeFile(t, staging, "a", []byte("a"), 0644)
	writeFile(t, staging, "b", []byte("b"), 0644)

	delta := types.Delta{
		Added: map[string]types.FileEntry{
			"/a": {Mode: 0644, Size: 1},
			"/b": {Mode: 0644, Size: 1},
		},
		Removed: []string{"/z", "/y"},
	}

	var first, second bytes.Buffer
	require.NoError(t, WriteBlob(&first, staging, delta))
	require.NoError(t, WriteBlob(&second, staging, delta))
	assert.Equal(t, first.Bytes(), second.Bytes())
}

func TestWhiteoutDeletes(t *testing.T) {
	target := t.TempDir()
	writeFile(t, target, "etc/stale.conf", []byte("old"), 0644)
	writeFile(t, target, "etc/keep.conf", []byte("keep"), 0644)

	staging := t.TempDir()
	delta := types.Delta{
		Removed: []string{"/etc/stale.conf"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteBlob(&buf, staging, delta))
	require.NoError(t, ApplyBlob(bytes.NewReader(buf.Bytes()), target))

	_, err := os.Stat(filepath.Join(target, "etc/stale.conf"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(target, "etc/keep.conf"))
	assert.NoError(t, err)
}

func TestApplyBlobRejectsEscape(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "../evil",
		Typeflag: tar.TypeReg,
		Mode:     0644,
		Size:     0,
	}))
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	err := ApplyBlob(bytes.NewReader(buf.Bytes()), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes root")
}
