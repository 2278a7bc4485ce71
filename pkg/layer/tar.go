package layer

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/hutchd/hutch/pkg/types"
)

// whiteoutPrefix marks a deleted path inside a layer blob. A file named
// ".wh.name" in a blob deletes "name" when the blob is applied.
const whiteoutPrefix = ".wh."

// WriteBlob writes a delta as a gzip-compressed tar stream. Added file
// contents are read from root; removed paths become whiteout entries.
// Entries are written in sorted path order so identical deltas produce
// identical blobs.
func WriteBlob(w io.Writer, root string, delta types.Delta) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	paths := make([]string, 0, len(delta.Added))
	for p := range delta.Added {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		entry := delta.Added[p]
		rel := strings.TrimPrefix(p, "/")

		hdr := &tar.Header{
			Name:     rel,
			Typeflag: tar.TypeReg,
			Mode:     int64(entry.Mode),
			Size:     entry.Size,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("failed to write header for %s: %w", p, err)
		}

		f, err := os.Open(filepath.Join(root, rel))
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", p, err)
		}
		_, err = io.Copy(tw, f)
		f.Close()
		if err != nil {
			return fmt.Errorf("failed to archive %s: %w", p, err)
		}
	}

	removed := append([]string(nil), delta.Removed...)
	sort.Strings(removed)
	for _, p := range removed {
		rel := strings.TrimPrefix(p, "/")
		dir, name := path.Split(rel)
		hdr := &tar.Header{
			Name:     path.Join(dir, whiteoutPrefix+name),
			Typeflag: tar.TypeReg,
			Mode:     0,
			Size:     0,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("failed to write whiteout for %s: %w", p, err)
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return gz.Close()
}

// ApplyBlob extracts a layer blob into root. Whiteout entries delete the
// named path; everything else is written with its recorded mode.
func ApplyBlob(r io.Reader, root string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to open blob: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read blob: %w", err)
		}

		name := path.Clean(hdr.Name)
		if name == ".." || strings.HasPrefix(name, "../") || path.IsAbs(name) {
			return fmt.Errorf("blob entry escapes root: %s", hdr.Name)
		}

		base := path.Base(name)
		if strings.HasPrefix(base, whiteoutPrefix) {
			target := filepath.Join(root, path.Dir(name), strings.TrimPrefix(base, whiteoutPrefix))
			if err := os.RemoveAll(target); err != nil {
				return fmt.Errorf("failed to apply whiteout %s: %w", hdr.Name, err)
			}
			continue
		}

		dest := filepath.Join(root, name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, os.FileMode(hdr.Mode)); err != nil {
				return fmt.Errorf("failed to create %s: %w", name, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
				return fmt.Errorf("failed to create parent of %s: %w", name, err)
			}
			f, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode))
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", name, err)
			}
			_, err = io.Copy(f, tr)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return fmt.Errorf("failed to extract %s: %w", name, err)
			}
			// OpenFile modes pass through the umask; restore explicitly
			if err := os.Chmod(dest, os.FileMode(hdr.Mode)); err != nil {
				return fmt.Errorf("failed to set mode on %s: %w", name, err)
			}
		default:
			// Blobs we produce only contain regular files and whiteouts
		}
	}
	return nil
}
