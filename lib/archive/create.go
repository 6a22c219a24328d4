// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// epoch is the modification time written for every entry.
var epoch = time.Unix(0, 0).UTC()

// Stats describes an archive written by Create.
type Stats struct {
	// Entries is the number of tar entries, directories included.
	Entries int
	// UncompressedSize is the total size of the regular files.
	UncompressedSize int64
	// CompressedSize is the size of the archive file.
	CompressedSize int64
}

type entry struct {
	name string
	mode fs.FileMode
	size int64
	link string
}

// Create writes an archive of paths (workspace-relative, slash
// separated, directories included recursively) under root to
// archivePath. The archive is written to a temporary file next to
// archivePath and renamed into place, so readers never see a partial
// archive.
func Create(archivePath, root string, paths []string, format Format) (stats Stats, err error) {
	entries, err := collect(root, paths)
	if err != nil {
		return Stats{}, err
	}

	temporary, err := os.CreateTemp(filepath.Dir(archivePath), ".archive-*.tmp")
	if err != nil {
		return Stats{}, fmt.Errorf("creating archive: %w", err)
	}
	defer func() {
		if err != nil {
			temporary.Close()
			os.Remove(temporary.Name())
		}
	}()

	compressed, err := format.compressor(temporary)
	if err != nil {
		return Stats{}, err
	}
	writer := tar.NewWriter(compressed)
	for _, e := range entries {
		if err := writeEntry(writer, root, e); err != nil {
			return Stats{}, err
		}
		stats.Entries++
		if e.mode.IsRegular() {
			stats.UncompressedSize += e.size
		}
	}
	if err := writer.Close(); err != nil {
		return Stats{}, fmt.Errorf("finishing tar stream: %w", err)
	}
	if err := compressed.Close(); err != nil {
		return Stats{}, fmt.Errorf("finishing %s stream: %w", format, err)
	}
	if err := temporary.Sync(); err != nil {
		return Stats{}, fmt.Errorf("syncing archive: %w", err)
	}
	info, err := temporary.Stat()
	if err != nil {
		return Stats{}, err
	}
	stats.CompressedSize = info.Size()
	if err := temporary.Close(); err != nil {
		return Stats{}, fmt.Errorf("closing archive: %w", err)
	}
	if err := os.Rename(temporary.Name(), archivePath); err != nil {
		return Stats{}, fmt.Errorf("renaming archive into place: %w", err)
	}
	return stats, nil
}

// collect expands paths into a sorted, deduplicated entry list. Parent
// directories of listed paths are not added: extraction creates them
// without cleaning.
func collect(root string, paths []string) ([]entry, error) {
	seen := make(map[string]entry)
	for _, relative := range paths {
		if err := validateName(relative); err != nil {
			return nil, err
		}
		start := filepath.Join(root, filepath.FromSlash(relative))
		err := filepath.WalkDir(start, func(absolute string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(root, absolute)
			if err != nil {
				return err
			}
			name := filepath.ToSlash(rel)
			info, err := d.Info()
			if err != nil {
				return err
			}
			e := entry{name: name, mode: info.Mode(), size: info.Size()}
			switch {
			case info.Mode()&fs.ModeSymlink != 0:
				if e.link, err = os.Readlink(absolute); err != nil {
					return err
				}
			case info.IsDir(), info.Mode().IsRegular():
			default:
				return fmt.Errorf("cannot archive %s: unsupported file type %s", name, info.Mode().Type())
			}
			seen[name] = e
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("collecting %s: %w", relative, err)
		}
	}

	entries := make([]entry, 0, len(seen))
	for _, e := range seen {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b entry) int {
		return compareNames(a.name, b.name)
	})
	return entries, nil
}

// compareNames orders paths so that a directory always precedes its
// contents: "a" < "a/b" < "a.txt".
func compareNames(a, b string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] == b[i] {
			continue
		}
		left, right := a[i], b[i]
		if left == '/' {
			left = 0
		}
		if right == '/' {
			right = 0
		}
		return int(left) - int(right)
	}
	return len(a) - len(b)
}

func writeEntry(writer *tar.Writer, root string, e entry) error {
	header := &tar.Header{
		Name:    e.name,
		ModTime: epoch,
		Format:  tar.FormatPAX,
	}
	switch {
	case e.mode.IsDir():
		header.Typeflag = tar.TypeDir
		header.Name = e.name + "/"
		header.Mode = 0o755
	case e.mode&fs.ModeSymlink != 0:
		header.Typeflag = tar.TypeSymlink
		header.Linkname = e.link
		header.Mode = 0o777
	default:
		header.Typeflag = tar.TypeReg
		header.Size = e.size
		header.Mode = 0o644
		if e.mode&0o111 != 0 {
			header.Mode = 0o755
		}
	}
	if err := writer.WriteHeader(header); err != nil {
		return fmt.Errorf("writing header for %s: %w", e.name, err)
	}
	if header.Typeflag != tar.TypeReg {
		return nil
	}

	file, err := os.Open(filepath.Join(root, filepath.FromSlash(e.name)))
	if err != nil {
		return err
	}
	defer file.Close()
	written, err := io.Copy(writer, file)
	if err != nil {
		return fmt.Errorf("archiving %s: %w", e.name, err)
	}
	if written != e.size {
		return fmt.Errorf("archiving %s: file changed size while archiving (%d != %d)", e.name, written, e.size)
	}
	return nil
}

// validateName rejects names that would land outside the root.
func validateName(name string) error {
	if name == "" || path.IsAbs(name) {
		return fmt.Errorf("invalid archive entry %q: must be a non-empty relative path", name)
	}
	cleaned := path.Clean(name)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return fmt.Errorf("invalid archive entry %q: escapes the destination root", name)
	}
	return nil
}
