// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// SymlinkPrefix marks a WriteTree value as a symlink target rather
// than file content.
const SymlinkPrefix = "-> "

// WriteTree creates files under root from a map of slash-separated
// relative path to content. A value starting with [SymlinkPrefix]
// creates a symlink, and a path ending in "/" creates an empty
// directory.
func WriteTree(t testing.TB, root string, files map[string]string) {
	t.Helper()
	for relative, content := range files {
		path := filepath.Join(root, filepath.FromSlash(relative))
		if strings.HasSuffix(relative, "/") {
			if err := os.MkdirAll(path, 0o755); err != nil {
				t.Fatalf("creating %s: %v", relative, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("creating parent of %s: %v", relative, err)
		}
		if target, ok := strings.CutPrefix(content, SymlinkPrefix); ok {
			if err := os.Symlink(target, path); err != nil {
				t.Fatalf("creating symlink %s: %v", relative, err)
			}
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", relative, err)
		}
	}
}

// ReadTree returns the inverse of WriteTree for everything under root:
// regular files map to their content, symlinks to SymlinkPrefix plus
// their target, and empty directories to "".
func ReadTree(t testing.TB, root string) map[string]string {
	t.Helper()
	tree := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relative, err := filepath.Rel(root, path)
		if err != nil || relative == "." {
			return err
		}
		relative = filepath.ToSlash(relative)
		switch {
		case entry.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			tree[relative] = SymlinkPrefix + target
		case entry.IsDir():
			children, err := os.ReadDir(path)
			if err != nil {
				return err
			}
			if len(children) == 0 {
				tree[relative+"/"] = ""
			}
		default:
			content, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			tree[relative] = string(content)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("reading tree %s: %v", root, err)
	}
	return tree
}
