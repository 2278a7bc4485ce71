package builder

import (
	"crypto/sha256"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hutchd/hutch/pkg/types"
)

// snapshot maps slash-rooted relative paths to file entries. Only regular
// files take part; directories exist implicitly through the files in them.
type snapshot map[string]types.FileEntry

// takeSnapshot records every regular file under root
func takeSnapshot(root string) (snapshot, error) {
	snap := make(snapshot)

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		digest, err := digestFile(p)
		if err != nil {
			return err
		}

		snap["/"+filepath.ToSlash(rel)] = types.FileEntry{
			Mode:   uint32(info.Mode().Perm()),
			Size:   info.Size(),
			Digest: digest,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot %s: %w", root, err)
	}
	return snap, nil
}

// diffSnapshots computes the delta a step introduced: files new or changed
// since before, and files that disappeared
func diffSnapshots(before, after snapshot) types.Delta {
	delta := types.Delta{Added: make(map[string]types.FileEntry)}

	for p, entry := range after {
		prev, ok := before[p]
		if !ok || !prev.Digest.Equal(entry.Digest) || prev.Mode != entry.Mode {
			delta.Added[p] = entry
		}
	}
	for p := range before {
		if _, ok := after[p]; !ok {
			delta.Removed = append(delta.Removed, p)
		}
	}
	return delta
}

// digestFile content-addresses one file
func digestFile(p string) (types.Fingerprint, error) {
	f, err := os.Open(p)
	if err != nil {
		return types.Fingerprint{}, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return types.Fingerprint{}, err
	}
	return types.NewFingerprint("sha256", h.Sum(nil))
}

// copyTree copies src into dst, preserving file modes. src may be a single
// file or a directory tree; dst's parents are created as needed.
func copyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return copyFile(src, dst, info.Mode().Perm())
	}

	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o755)
		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				return err
			}
			return copyFile(p, target, info.Mode().Perm())
		default:
			// Sockets, devices and links are not part of build staging.
			return nil
		}
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	// Chmod explicitly so the umask cannot narrow the recorded mode.
	return os.Chmod(dst, perm)
}

// cleanDst normalizes a copy destination against the current workdir.
// Relative destinations land under the workdir, absolute ones stand alone.
func cleanDst(workdir, dst string) string {
	d := strings.TrimSpace(dst)
	if d == "" {
		d = "."
	}
	if !strings.HasPrefix(d, "/") {
		if workdir == "" {
			workdir = "/"
		}
		d = workdir + "/" + d
	}
	cleaned := filepath.ToSlash(filepath.Clean(d))
	if !strings.HasPrefix(cleaned, "/") {
		cleaned = "/" + cleaned
	}
	return cleaned
}
