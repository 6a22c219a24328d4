// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bureau-foundation/buildcache/lib/testutil"
)

var outputTree = map[string]string{
	"out/bin/tool":  "#!/bin/sh\necho tool\n",
	"out/lib/a.so":  "shared object",
	"out/link":      testutil.SymlinkPrefix + "bin/tool",
	"out/empty/":    "",
	"out/notes.txt": "notes",
}

func TestCreateExtractRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatTarZstd, FormatTarLZ4, FormatTar} {
		t.Run(format.String(), func(t *testing.T) {
			source := t.TempDir()
			testutil.WriteTree(t, source, outputTree)
			if err := os.Chmod(filepath.Join(source, "out/bin/tool"), 0o755); err != nil {
				t.Fatal(err)
			}

			archivePath := filepath.Join(t.TempDir(), "artifact"+format.Extension())
			stats, err := Create(archivePath, source, []string{"out"}, format)
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if stats.Entries != 8 {
				t.Errorf("Entries = %d, want 8", stats.Entries)
			}
			wantSize := int64(len(outputTree["out/bin/tool"]) + len(outputTree["out/lib/a.so"]) + len(outputTree["out/notes.txt"]))
			if stats.UncompressedSize != wantSize {
				t.Errorf("UncompressedSize = %d, want %d", stats.UncompressedSize, wantSize)
			}
			info, err := os.Stat(archivePath)
			if err != nil {
				t.Fatalf("archive not written: %v", err)
			}
			if stats.CompressedSize != info.Size() {
				t.Errorf("CompressedSize = %d, file is %d bytes", stats.CompressedSize, info.Size())
			}

			destination := t.TempDir()
			extracted, err := Extract(archivePath, destination, format, OverwriteAndCleanDirectories)
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			want := []string{"out", "out/bin", "out/bin/tool", "out/empty", "out/lib", "out/lib/a.so", "out/link", "out/notes.txt"}
			if diff := cmp.Diff(want, extracted); diff != "" {
				t.Errorf("extracted paths mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(testutil.ReadTree(t, source), testutil.ReadTree(t, destination)); diff != "" {
				t.Errorf("extracted tree mismatch (-want +got):\n%s", diff)
			}

			tool, err := os.Stat(filepath.Join(destination, "out/bin/tool"))
			if err != nil {
				t.Fatal(err)
			}
			if tool.Mode().Perm()&0o111 == 0 {
				t.Errorf("executable bit lost: mode %v", tool.Mode())
			}
			if !tool.ModTime().Equal(epoch) {
				t.Errorf("ModTime = %v, want the epoch", tool.ModTime())
			}
		})
	}
}

func TestCreateIsDeterministic(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	testutil.WriteTree(t, first, outputTree)
	testutil.WriteTree(t, second, outputTree)

	archives := t.TempDir()
	firstPath := filepath.Join(archives, "first.tar.zst")
	secondPath := filepath.Join(archives, "second.tar.zst")
	if _, err := Create(firstPath, first, []string{"out"}, FormatTarZstd); err != nil {
		t.Fatalf("Create: %v", err)
	}
	// Listing order and duplicates must not matter.
	if _, err := Create(secondPath, second, []string{"out/lib", "out", "out/bin/tool"}, FormatTarZstd); err != nil {
		t.Fatalf("Create: %v", err)
	}

	firstBytes, _ := os.ReadFile(firstPath)
	secondBytes, _ := os.ReadFile(secondPath)
	if !bytes.Equal(firstBytes, secondBytes) {
		t.Error("identical trees produced different archives")
	}
}

func TestExtractCleansRecordedDirectories(t *testing.T) {
	source := t.TempDir()
	testutil.WriteTree(t, source, map[string]string{"out/new.txt": "new"})
	archivePath := filepath.Join(t.TempDir(), "a.tar")
	if _, err := Create(archivePath, source, []string{"out"}, FormatTar); err != nil {
		t.Fatalf("Create: %v", err)
	}

	stale := map[string]string{
		"out/stale.txt":      "from a previous build",
		"out/nested/old.txt": "old",
		"unrelated.txt":      "not part of the rule",
	}

	t.Run("clean", func(t *testing.T) {
		destination := t.TempDir()
		testutil.WriteTree(t, destination, stale)
		if _, err := Extract(archivePath, destination, FormatTar, OverwriteAndCleanDirectories); err != nil {
			t.Fatalf("Extract: %v", err)
		}
		want := map[string]string{"out/new.txt": "new", "unrelated.txt": "not part of the rule"}
		if diff := cmp.Diff(want, testutil.ReadTree(t, destination)); diff != "" {
			t.Errorf("tree mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("overwrite", func(t *testing.T) {
		destination := t.TempDir()
		testutil.WriteTree(t, destination, stale)
		if _, err := Extract(archivePath, destination, FormatTar, Overwrite); err != nil {
			t.Fatalf("Extract: %v", err)
		}
		got := testutil.ReadTree(t, destination)
		if got["out/stale.txt"] == "" || got["out/new.txt"] != "new" {
			t.Errorf("Overwrite should keep stale files and add new ones, got %v", got)
		}
	})
}

func TestExtractReplacesExistingEntries(t *testing.T) {
	source := t.TempDir()
	testutil.WriteTree(t, source, map[string]string{"out/x": "file now", "out/y": "file too"})
	archivePath := filepath.Join(t.TempDir(), "a.tar.lz4")
	if _, err := Create(archivePath, source, []string{"out/x", "out/y"}, FormatTarLZ4); err != nil {
		t.Fatalf("Create: %v", err)
	}

	destination := t.TempDir()
	testutil.WriteTree(t, destination, map[string]string{
		"out/x/":  "",
		"out/y":   testutil.SymlinkPrefix + "/etc/passwd",
		"out/z.o": "kept: out is not a recorded directory",
	})
	if _, err := Extract(archivePath, destination, FormatTarLZ4, OverwriteAndCleanDirectories); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := map[string]string{"out/x": "file now", "out/y": "file too", "out/z.o": "kept: out is not a recorded directory"}
	if diff := cmp.Diff(want, testutil.ReadTree(t, destination)); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
}

type rawEntry struct {
	header  tar.Header
	content string
}

func writeRawTar(t *testing.T, entries []rawEntry) string {
	t.Helper()
	var buffer bytes.Buffer
	writer := tar.NewWriter(&buffer)
	for _, entry := range entries {
		header := entry.header
		header.Size = int64(len(entry.content))
		if header.Mode == 0 {
			header.Mode = 0o644
		}
		if err := writer.WriteHeader(&header); err != nil {
			t.Fatal(err)
		}
		if _, err := writer.Write([]byte(entry.content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "raw.tar")
	if err := os.WriteFile(path, buffer.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtractRejectsEscapes(t *testing.T) {
	tests := []struct {
		name    string
		entries []rawEntry
	}{
		{"parent reference", []rawEntry{{header: tar.Header{Name: "../evil", Typeflag: tar.TypeReg}, content: "x"}}},
		{"nested parent reference", []rawEntry{{header: tar.Header{Name: "out/../../evil", Typeflag: tar.TypeReg}, content: "x"}}},
		{"absolute", []rawEntry{{header: tar.Header{Name: "/tmp/evil", Typeflag: tar.TypeReg}, content: "x"}}},
		{"through symlink", []rawEntry{
			{header: tar.Header{Name: "out/link", Typeflag: tar.TypeSymlink, Linkname: ".."}},
			{header: tar.Header{Name: "out/link/evil", Typeflag: tar.TypeReg}, content: "x"},
		}},
		{"hard link", []rawEntry{{header: tar.Header{Name: "out/hard", Typeflag: tar.TypeLink, Linkname: "out/a"}}}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			archivePath := writeRawTar(t, test.entries)
			parent := t.TempDir()
			destination := filepath.Join(parent, "workspace")
			if _, err := Extract(archivePath, destination, FormatTar, OverwriteAndCleanDirectories); err == nil {
				t.Fatal("Extract succeeded")
			}
			if _, err := os.Lstat(filepath.Join(parent, "evil")); err == nil {
				t.Error("entry escaped the destination root")
			}
		})
	}
}

func TestExtractCorruptArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.tar.zst")
	if err := os.WriteFile(path, []byte("definitely not zstd"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Extract(path, t.TempDir(), FormatTarZstd, OverwriteAndCleanDirectories); err == nil {
		t.Error("Extract of a corrupt archive succeeded")
	}
}

func TestCreateRejectsEscapingPaths(t *testing.T) {
	root := t.TempDir()
	for _, path := range []string{"../x", "/abs", "", "."} {
		if _, err := Create(filepath.Join(t.TempDir(), "a.tar"), root, []string{path}, FormatTar); err == nil {
			t.Errorf("Create(%q) succeeded", path)
		}
	}
}

func TestCompareNamesPutsDirectoriesFirst(t *testing.T) {
	names := []string{"a.txt", "a/b", "a", "a-b", "a/b/c", "b"}
	slices.SortFunc(names, compareNames)
	want := []string{"a", "a/b", "a/b/c", "a-b", "a.txt", "b"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFormat(t *testing.T) {
	for _, format := range []Format{FormatTarZstd, FormatTarLZ4, FormatTar} {
		parsed, err := ParseFormat(format.String())
		if err != nil || parsed != format {
			t.Errorf("ParseFormat(%q) = %v, %v", format.String(), parsed, err)
		}
	}
	if _, err := ParseFormat("zip"); err == nil || !strings.Contains(err.Error(), "zip") {
		t.Errorf("ParseFormat(zip) error = %v", err)
	}
}
