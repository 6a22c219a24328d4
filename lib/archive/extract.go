// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ExistingFileMode says what Extract does with files already present
// at the destination.
type ExistingFileMode int

const (
	// Overwrite replaces files the archive contains and leaves
	// everything else in place.
	Overwrite ExistingFileMode = iota
	// OverwriteAndCleanDirectories additionally empties every
	// directory the archive records before writing into it.
	OverwriteAndCleanDirectories
)

func (m ExistingFileMode) String() string {
	switch m {
	case Overwrite:
		return "overwrite"
	case OverwriteAndCleanDirectories:
		return "overwrite-and-clean-directories"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Extract unpacks the archive at archivePath into root and returns the
// slash-separated relative paths of every entry, in archive order.
//
// On error, root may hold a partial extraction.
func Extract(archivePath, root string, format Format, mode ExistingFileMode) ([]string, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}

	stream, err := format.decompressor(file)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	extractor := &extractor{root: root, mode: mode, prepared: make(map[string]bool)}
	reader := tar.NewReader(stream)
	var extracted []string
	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return extracted, nil
		}
		if err != nil {
			return extracted, fmt.Errorf("reading %s: %w", archivePath, err)
		}
		name, err := extractor.extract(header, reader)
		if err != nil {
			return extracted, err
		}
		extracted = append(extracted, name)
	}
}

type extractor struct {
	root string
	mode ExistingFileMode
	// prepared holds directories created, cleaned, or written into
	// during this extraction. They are never cleaned again, or a
	// directory entry that follows its own contents would delete them.
	prepared map[string]bool
}

func (x *extractor) extract(header *tar.Header, contents io.Reader) (string, error) {
	if err := validateName(header.Name); err != nil {
		return "", err
	}
	name := path.Clean(header.Name)
	if err := x.ensureParent(name); err != nil {
		return "", err
	}
	target := x.absolute(name)

	switch header.Typeflag {
	case tar.TypeDir:
		if err := x.prepareDirectory(name); err != nil {
			return "", err
		}

	case tar.TypeReg:
		if err := removeExisting(target); err != nil {
			return "", err
		}
		perm := fs.FileMode(0o644)
		if header.Mode&0o111 != 0 {
			perm = 0o755
		}
		if err := writeFile(target, perm, contents); err != nil {
			return "", fmt.Errorf("extracting %s: %w", name, err)
		}
		if err := os.Chtimes(target, header.ModTime, header.ModTime); err != nil {
			return "", err
		}

	case tar.TypeSymlink:
		if err := removeExisting(target); err != nil {
			return "", err
		}
		if err := os.Symlink(header.Linkname, target); err != nil {
			return "", fmt.Errorf("extracting %s: %w", name, err)
		}
		if err := setSymlinkTime(target, header.ModTime); err != nil {
			return "", fmt.Errorf("setting times on %s: %w", name, err)
		}

	default:
		return "", fmt.Errorf("extracting %s: unsupported entry type %q", name, header.Typeflag)
	}
	return name, nil
}

func (x *extractor) absolute(name string) string {
	return filepath.Join(x.root, filepath.FromSlash(name))
}

// ensureParent creates the directories leading to name. Each existing
// component must be a real directory: writing through a symlink could
// land outside root.
func (x *extractor) ensureParent(name string) error {
	parent := path.Dir(name)
	if parent == "." || x.prepared[parent] {
		return nil
	}
	current := ""
	for _, component := range strings.Split(parent, "/") {
		current = path.Join(current, component)
		if x.prepared[current] {
			continue
		}
		info, err := os.Lstat(x.absolute(current))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			if err := os.Mkdir(x.absolute(current), 0o755); err != nil {
				return err
			}
		case err != nil:
			return err
		case info.Mode()&fs.ModeSymlink != 0:
			return fmt.Errorf("extracting %s: parent %s is a symlink", name, current)
		case !info.IsDir():
			if err := os.Remove(x.absolute(current)); err != nil {
				return err
			}
			if err := os.Mkdir(x.absolute(current), 0o755); err != nil {
				return err
			}
		}
		x.prepared[current] = true
	}
	return nil
}

func (x *extractor) prepareDirectory(name string) error {
	if x.prepared[name] {
		return nil
	}
	target := x.absolute(name)
	info, err := os.Lstat(target)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.Mkdir(target, 0o755); err != nil {
			return err
		}
	case err != nil:
		return err
	case !info.IsDir():
		if err := os.Remove(target); err != nil {
			return err
		}
		if err := os.Mkdir(target, 0o755); err != nil {
			return err
		}
	case x.mode == OverwriteAndCleanDirectories:
		if err := cleanDirectory(target); err != nil {
			return fmt.Errorf("cleaning %s: %w", name, err)
		}
	}
	x.prepared[name] = true
	return nil
}

func cleanDirectory(directory string) error {
	entries, err := os.ReadDir(directory)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(directory, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func removeExisting(target string) error {
	info, err := os.Lstat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return os.RemoveAll(target)
	}
	return os.Remove(target)
}

func writeFile(target string, perm fs.FileMode, contents io.Reader) error {
	file, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, contents); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
