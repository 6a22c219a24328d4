// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rulekey

import (
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/zeebo/blake3"
)

// Entry tags for the file hash domain.
const (
	fileTagRegular byte = 0x01
	fileTagDir     byte = 0x02
	fileTagSymlink byte = 0x03
)

// FileHashCache hashes workspace paths by content and memoizes the
// result. Regular files hash their bytes (with the executable bit,
// which changes what a build can do with them), directories hash their
// sorted entries recursively, and symlinks hash their target text
// without following it.
//
// All hashes are keyed BLAKE3 in the file hash domain, so a file hash
// can never collide with a rule key computed over the same bytes.
//
// FileHashCache is safe for concurrent use.
type FileHashCache struct {
	root string

	mu     sync.Mutex
	hashes map[string]Hash
}

// NewFileHashCache returns a cache over the workspace rooted at root.
func NewFileHashCache(root string) *FileHashCache {
	return &FileHashCache{root: root, hashes: make(map[string]Hash)}
}

// FileHash returns the content hash of the workspace-relative path.
func (c *FileHashCache) FileHash(relative string) (Hash, error) {
	if err := validateWorkspacePath(relative); err != nil {
		return Hash{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hashLocked(relative)
}

// Invalidate forgets the hash of path, of everything below it, and of
// every directory above it, since their hashes include path's.
func (c *FileHashCache) Invalidate(relative string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for cached := range c.hashes {
		if cached == relative || strings.HasPrefix(cached, relative+"/") || strings.HasPrefix(relative, cached+"/") {
			delete(c.hashes, cached)
		}
	}
}

func (c *FileHashCache) hashLocked(relative string) (Hash, error) {
	if cached, ok := c.hashes[relative]; ok {
		return cached, nil
	}

	absolute := filepath.Join(c.root, filepath.FromSlash(relative))
	info, err := os.Lstat(absolute)
	if err != nil {
		return Hash{}, err
	}

	var result Hash
	switch {
	case info.Mode().IsRegular():
		result, err = hashRegular(absolute, info.Mode())
	case info.IsDir():
		result, err = c.hashDirectory(relative, absolute)
	case info.Mode()&fs.ModeSymlink != 0:
		result, err = hashSymlink(absolute)
	default:
		err = fmt.Errorf("unsupported file type %s", info.Mode().Type())
	}
	if err != nil {
		return Hash{}, err
	}
	c.hashes[relative] = result
	return result, nil
}

func hashRegular(absolute string, mode fs.FileMode) (Hash, error) {
	file, err := os.Open(absolute)
	if err != nil {
		return Hash{}, err
	}
	defer file.Close()

	hasher := newKeyed(fileHashDomain)
	executable := byte(0)
	if mode&0o111 != 0 {
		executable = 1
	}
	hasher.Write([]byte{fileTagRegular, executable})
	if _, err := io.Copy(hasher, file); err != nil {
		return Hash{}, fmt.Errorf("reading %s: %w", absolute, err)
	}
	return sum(hasher), nil
}

func hashSymlink(absolute string) (Hash, error) {
	target, err := os.Readlink(absolute)
	if err != nil {
		return Hash{}, err
	}
	hasher := newKeyed(fileHashDomain)
	hasher.Write([]byte{fileTagSymlink})
	writeText(hasher, filepath.ToSlash(target))
	return sum(hasher), nil
}

func (c *FileHashCache) hashDirectory(relative, absolute string) (Hash, error) {
	entries, err := os.ReadDir(absolute)
	if err != nil {
		return Hash{}, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	slices.Sort(names)

	hasher := newKeyed(fileHashDomain)
	hasher.Write([]byte{fileTagDir})
	var count [binary.MaxVarintLen64]byte
	hasher.Write(count[:binary.PutUvarint(count[:], uint64(len(names)))])
	for _, name := range names {
		child, err := c.hashLocked(path.Join(relative, name))
		if err != nil {
			return Hash{}, err
		}
		writeText(hasher, name)
		hasher.Write(child[:])
	}
	return sum(hasher), nil
}

func writeText(hasher *blake3.Hasher, value string) {
	var prefix [binary.MaxVarintLen64]byte
	hasher.Write(prefix[:binary.PutUvarint(prefix[:], uint64(len(value)))])
	hasher.WriteString(value)
}

func sum(hasher *blake3.Hasher) Hash {
	var result Hash
	copy(result[:], hasher.Sum(nil))
	return result
}
