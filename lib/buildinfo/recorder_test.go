// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildinfo

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bureau-foundation/buildcache/lib/rulekey"
	"github.com/bureau-foundation/buildcache/lib/testutil"
)

func testKey(t *testing.T, seed byte) rulekey.RuleKey {
	t.Helper()
	key, err := rulekey.ParseRuleKey(strings.Repeat(string("0123456789abcdef"[seed%16]), 64))
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func TestMetadataDirectory(t *testing.T) {
	for target, want := range map[string]string{
		"//app/server:main": ".buildcache/metadata/app/server/main/artifact",
		"//:root":           ".buildcache/metadata/root/artifact",
		"lib:util":          ".buildcache/metadata/lib/util/artifact",
	} {
		got, err := MetadataDirectory(target)
		if err != nil || got != want {
			t.Errorf("MetadataDirectory(%q) = %q, %v; want %q", target, got, err, want)
		}
	}
	for _, target := range []string{"", "//", "//../escape:x", "//a/./b:c"} {
		if _, err := MetadataDirectory(target); err == nil {
			t.Errorf("MetadataDirectory(%q) succeeded", target)
		}
	}
}

func TestRecorderCommit(t *testing.T) {
	workspace := t.TempDir()
	testutil.WriteTree(t, workspace, map[string]string{
		"out/app/bin":        "12345",
		"out/app/lib/a.so":   "abc",
		"out/app/lib/link":   testutil.SymlinkPrefix + "a.so",
		"out/unrelated.txt":  "ignored",
		"out/app/empty-dir/": "",
	})

	recorder, err := NewRecorder(workspace, "//app:main")
	if err != nil {
		t.Fatal(err)
	}
	if err := recorder.AddRuleKey(KeyRuleKey, testKey(t, 1)); err != nil {
		t.Fatalf("AddRuleKey: %v", err)
	}
	if err := recorder.AddRuleKey(KeyOutputSize, testKey(t, 1)); err == nil {
		t.Error("AddRuleKey accepted a non-key metadata name")
	}
	recorder.AddMetadata("target_kind", "binary")
	if err := recorder.RecordArtifact("out/app/bin", "out/app/lib", "out/app/empty-dir"); err != nil {
		t.Fatalf("RecordArtifact: %v", err)
	}

	artifact, err := recorder.Commit("build-7")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	wantPaths := []string{"out/app/bin", "out/app/empty-dir", "out/app/lib", ".buildcache/metadata/app/main/artifact"}
	if diff := cmp.Diff(wantPaths, artifact.Paths); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
	if got := artifact.Metadata[KeyOutputSize]; got != "8" {
		t.Errorf("output_size = %s, want 8", got)
	}
	if got := artifact.Metadata[KeyOriginBuildID]; got != "build-7" {
		t.Errorf("origin_build_id = %s", got)
	}

	onDisk, err := NewOnDisk(workspace, "//app:main")
	if err != nil {
		t.Fatal(err)
	}
	for key, want := range artifact.Metadata {
		if got, ok := onDisk.GetValue(key); !ok || got != want {
			t.Errorf("GetValue(%s) = %q, %v; want %q", key, got, ok, want)
		}
	}
	if _, ok := onDisk.GetValue("../../escape"); ok {
		t.Error("GetValue accepted a key with a path separator")
	}
}

func TestRecorderRequiresRuleKeyAndBuildID(t *testing.T) {
	workspace := t.TempDir()
	recorder, _ := NewRecorder(workspace, "//x")
	if _, err := recorder.Commit("build"); err == nil {
		t.Error("Commit succeeded without a rule key")
	}
	recorder.AddRuleKey(KeyRuleKey, testKey(t, 2))
	if _, err := recorder.Commit(""); err == nil {
		t.Error("Commit succeeded without a build id")
	}
	for _, bad := range []string{"", "/abs", "../up", ".buildcache/metadata/x"} {
		if err := recorder.RecordArtifact(bad); err == nil {
			t.Errorf("RecordArtifact(%q) succeeded", bad)
		}
	}
}

func TestValidateArtifact(t *testing.T) {
	workspace := t.TempDir()
	testutil.WriteTree(t, workspace, map[string]string{
		"out/bin":       "x",
		"out/lib/a.txt": "y",
	})
	recorder, _ := NewRecorder(workspace, "//pkg:rule")
	recorder.AddRuleKey(KeyRuleKey, testKey(t, 3))
	recorder.RecordArtifact("out/bin", "out/lib")
	if _, err := recorder.Commit("build"); err != nil {
		t.Fatal(err)
	}
	onDisk, _ := NewOnDisk(workspace, "//pkg:rule")
	metadata := ".buildcache/metadata/pkg/rule/artifact"

	tests := []struct {
		name      string
		extracted []string
		wantErr   string
	}{
		{
			name:      "complete",
			extracted: []string{"out/bin", "out/lib", "out/lib/a.txt", metadata, metadata + "/rule_key"},
		},
		{
			name:      "missing output",
			extracted: []string{"out/lib", "out/lib/a.txt", metadata},
			wantErr:   "missing recorded output out/bin",
		},
		{
			name:      "unexpected path",
			extracted: []string{"out/bin", "out/lib", "out/other", metadata},
			wantErr:   "unexpected path out/other",
		},
		{
			name:      "prefix is not containment",
			extracted: []string{"out/bin", "out/lib", "out/library", metadata},
			wantErr:   "unexpected path out/library",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := onDisk.ValidateArtifact(test.extracted)
			if test.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateArtifact: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("ValidateArtifact error = %v, want it to contain %q", err, test.wantErr)
			}
		})
	}
}

func TestValidateArtifactWithoutRecordedPaths(t *testing.T) {
	onDisk, _ := NewOnDisk(t.TempDir(), "//pkg:rule")
	if err := onDisk.ValidateArtifact(nil); err == nil {
		t.Error("ValidateArtifact succeeded without recorded_paths")
	}
}

func TestRecordedPathsEncoding(t *testing.T) {
	value, err := EncodeRecordedPaths(nil)
	if err != nil || value != "[]" {
		t.Errorf("EncodeRecordedPaths(nil) = %q, %v", value, err)
	}
	decoded, err := DecodeRecordedPaths(`["a","b/c"]`)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a", "b/c"}, decoded); diff != "" {
		t.Errorf("decoded mismatch (-want +got):\n%s", diff)
	}
	if _, err := DecodeRecordedPaths("not json"); err == nil {
		t.Error("DecodeRecordedPaths accepted garbage")
	}
}
