// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bureau-foundation/buildcache/lib/rulekey"
)

func writeRules(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadRulesYAML(t *testing.T) {
	path := writeRules(t, "BUILD.yaml", `
rules:
  - target: //app:main
    srcs: [app/main.go]
    deps: [//lib:util]
    outputs: [out/main]
    fields:
      flags: [-O2, -g]
      level: 3
  - target: //lib:util
    srcs: [lib/util.go]
    cacheable: false
`)
	graph, err := loadRules(path)
	if err != nil {
		t.Fatalf("loadRules: %v", err)
	}
	if diff := cmp.Diff([]string{"//app:main", "//lib:util"}, graph.targets); diff != "" {
		t.Errorf("targets mismatch (-want +got):\n%s", diff)
	}

	binary := graph.rules["//app:main"]
	if len(binary.deps) != 1 || binary.deps[0].BuildTarget() != "//lib:util" {
		t.Errorf("//app:main deps = %v, want [//lib:util]", binary.deps)
	}
	if !binary.IsCacheable() {
		t.Error("//app:main is not cacheable; the default is cacheable")
	}
	if graph.rules["//lib:util"].IsCacheable() {
		t.Error("//lib:util is cacheable despite cacheable: false")
	}
}

func TestLoadRulesJSONC(t *testing.T) {
	path := writeRules(t, "BUILD.jsonc", `{
  // Comments and trailing commas are allowed.
  "rules": [
    {"target": "//app:main", "srcs": ["app/main.go"], "outputs": ["out/main"],},
  ],
}`)
	graph, err := loadRules(path)
	if err != nil {
		t.Fatalf("loadRules: %v", err)
	}
	rules, err := graph.lookup([]string{"//app:main"})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if diff := cmp.Diff([]string{"out/main"}, rules[0].entry.Outputs); diff != "" {
		t.Errorf("outputs mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveRulesRejectsInvalidGraphs(t *testing.T) {
	tests := []struct {
		name  string
		entries []ruleEntry
		want  string
	}{
		{
			name:  "relative target",
			entries: []ruleEntry{{Target: "app:main"}},
			want:  "must start with //",
		},
		{
			name:  "duplicate",
			entries: []ruleEntry{{Target: "//a"}, {Target: "//a"}},
			want:  "duplicate rule //a",
		},
		{
			name:  "unknown dependency",
			entries: []ruleEntry{{Target: "//a", Deps: []string{"//missing"}}},
			want:  "unknown dependency //missing",
		},
		{
			name:  "absolute source",
			entries: []ruleEntry{{Target: "//a", Srcs: []string{"/etc/passwd"}}},
			want:  "workspace-relative",
		},
		{
			name:  "escaping output",
			entries: []ruleEntry{{Target: "//a", Outputs: []string{"../out"}}},
			want:  "workspace-relative",
		},
		{
			name:  "unclean output",
			entries: []ruleEntry{{Target: "//a", Outputs: []string{"out/../x"}}},
			want:  "workspace-relative",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := resolveRules(test.entries)
			if err == nil {
				t.Fatal("resolveRules succeeded")
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Errorf("error %q does not contain %q", err, test.want)
			}
		})
	}
}

func TestLookupUnknownTarget(t *testing.T) {
	graph, err := resolveRules([]ruleEntry{{Target: "//a"}})
	if err != nil {
		t.Fatalf("resolveRules: %v", err)
	}
	if _, err := graph.lookup([]string{"//b"}); err == nil {
		t.Error("lookup of an unknown target succeeded")
	}
	all, err := graph.lookup(nil)
	if err != nil || len(all) != 1 {
		t.Errorf("lookup(nil) = %d rules, %v; want every rule", len(all), err)
	}
}

func TestFileRuleKeyFollowsDependencies(t *testing.T) {
	workspace := t.TempDir()
	writeWorkspaceFile(t, workspace, "lib/util.go", "package lib")
	writeWorkspaceFile(t, workspace, "app/main.go", "package main")

	graph, err := resolveRules([]ruleEntry{
		{Target: "//app:main", Srcs: []string{"app/main.go"}, Deps: []string{"//lib:util"}},
		{Target: "//lib:util", Srcs: []string{"lib/util.go"}, Fields: map[string]any{"opt": true}},
	})
	if err != nil {
		t.Fatalf("resolveRules: %v", err)
	}
	binary := graph.rules["//app:main"]

	files := rulekey.NewFileHashCache(workspace)
	factory := rulekey.NewFactory(files, nil)
	before, err := factory.Build(binary)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	writeWorkspaceFile(t, workspace, "lib/util.go", "package lib // changed")
	files.Invalidate("lib/util.go")
	factory.Forget()
	after, err := factory.Build(binary)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if before == after {
		t.Error("changing a dependency's source did not change the key")
	}
}

func TestFileRuleCycleIsReported(t *testing.T) {
	graph, err := resolveRules([]ruleEntry{
		{Target: "//a", Deps: []string{"//b"}},
		{Target: "//b", Deps: []string{"//a"}},
	})
	if err != nil {
		t.Fatalf("resolveRules: %v", err)
	}
	factory := rulekey.NewFactory(rulekey.NewFileHashCache(t.TempDir()), nil)
	if _, err := factory.Build(graph.rules["//a"]); err == nil {
		t.Error("Build succeeded on a dependency cycle")
	}
}

func writeWorkspaceFile(t *testing.T, root, relative, content string) {
	t.Helper()
	path := filepath.Join(root, relative)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
