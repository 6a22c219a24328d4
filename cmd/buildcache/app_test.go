// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/buildcache/cmd/buildcache/cli"
)

const testRules = `
rules:
  - target: //app:main
    srcs: [app/main.go]
    deps: [//lib:util]
    outputs: [out/app.bin]
  - target: //lib:util
    srcs: [lib/util.go]
    outputs: [out/util.a]
`

// testEnv is a config file, a rule file, and a producing workspace
// with sources and built outputs.
type testEnv struct {
	config    string
	rules     string
	workspace string
}

func newTestEnv(t *testing.T, store string) testEnv {
	t.Helper()
	root := t.TempDir()
	config := filepath.Join(root, "buildcache.yaml")
	content := "paths:\n" +
		"  root: " + root + "\n" +
		"  artifacts: " + filepath.Join(root, "artifacts") + "\n" +
		"  temp: " + filepath.Join(root, "tmp") + "\n" +
		"buildinfo:\n  store: " + store + "\n" +
		"log:\n  level: warn\n  format: json\n"
	if err := os.WriteFile(config, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	rules := filepath.Join(root, "BUILD.yaml")
	if err := os.WriteFile(rules, []byte(testRules), 0o644); err != nil {
		t.Fatal(err)
	}

	workspace := t.TempDir()
	writeSources(t, workspace)
	writeWorkspaceFile(t, workspace, "out/app.bin", "binary contents")
	writeWorkspaceFile(t, workspace, "out/util.a", "archive contents")
	return testEnv{config: config, rules: rules, workspace: workspace}
}

func writeSources(t *testing.T, workspace string) {
	t.Helper()
	writeWorkspaceFile(t, workspace, "app/main.go", "package main")
	writeWorkspaceFile(t, workspace, "lib/util.go", "package lib")
}

// execute runs the command line args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := newApp(context.Background(), &stdout, &stderr).root().Execute(args)
	if stderr.Len() > 0 {
		t.Logf("stderr:\n%s", stderr.String())
	}
	return stdout.String(), err
}

func TestKeyCommand(t *testing.T) {
	env := newTestEnv(t, "filesystem")

	output, err := execute(t, "key", "--config", env.config, "--rules", env.rules, "-w", env.workspace)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 2 {
		t.Fatalf("key printed %d lines, want 2:\n%s", len(lines), output)
	}
	for i, target := range []string{"//app:main", "//lib:util"} {
		fields := strings.Fields(lines[i])
		if len(fields) != 2 || len(fields[0]) != 64 || fields[1] != target {
			t.Errorf("line %d = %q, want <key> %s", i, lines[i], target)
		}
	}

	again, err := execute(t, "key", "--config", env.config, "--rules", env.rules, "-w", env.workspace)
	if err != nil || again != output {
		t.Errorf("second run printed %q, %v; want identical keys", again, err)
	}

	traced, err := execute(t, "key", "--config", env.config, "--rules", env.rules, "-w", env.workspace,
		"--trace", "--inputs", "//app:main")
	if err != nil {
		t.Fatalf("key --trace: %v", err)
	}
	for _, want := range []string{"trace: ", "path: app/main.go", "dep: //lib:util"} {
		if !strings.Contains(traced, want) {
			t.Errorf("key --trace --inputs output missing %q:\n%s", want, traced)
		}
	}
}

func TestKeyCommandRequiresRules(t *testing.T) {
	if _, err := execute(t, "key"); err == nil || !strings.Contains(err.Error(), "--rules") {
		t.Errorf("key without --rules: err = %v", err)
	}
}

func TestStoreThenFetchIntoFreshWorkspace(t *testing.T) {
	for _, backend := range []string{"sqlite", "filesystem"} {
		t.Run(backend, func(t *testing.T) {
			env := newTestEnv(t, backend)
			common := []string{"--config", env.config, "--rules", env.rules}

			stored, err := execute(t, append([]string{"store", "-w", env.workspace, "//app:main"}, common...)...)
			if err != nil {
				t.Fatalf("store: %v", err)
			}
			key := strings.Fields(stored)[0]

			consumer := t.TempDir()
			writeSources(t, consumer)
			fetched, err := execute(t, append([]string{"fetch", "-w", consumer, "--metrics", "//app:main"}, common...)...)
			if err != nil {
				t.Fatalf("fetch: %v\n%s", err, fetched)
			}
			if !strings.Contains(fetched, "//app:main  done  HIT from dir") {
				t.Errorf("fetch output missing the hit line:\n%s", fetched)
			}
			if !strings.Contains(fetched, "buildcache.decompression.finished{outcome=ok} 1") {
				t.Errorf("fetch --metrics output missing the finished counter:\n%s", fetched)
			}

			content, err := os.ReadFile(filepath.Join(consumer, "out", "app.bin"))
			if err != nil {
				t.Fatalf("reading materialized output: %v", err)
			}
			if string(content) != "binary contents" {
				t.Errorf("materialized output = %q", content)
			}

			metadata, err := execute(t, "metadata", "--config", env.config, "-w", consumer, "//app:main")
			if err != nil {
				t.Fatalf("metadata: %v", err)
			}
			if !strings.Contains(metadata, "rule_key = "+key) {
				t.Errorf("metadata output missing the rule key %s:\n%s", key, metadata)
			}

			listed, err := execute(t, "metadata", "--config", env.config, "-w", consumer)
			if err != nil {
				t.Fatalf("metadata (list): %v", err)
			}
			if strings.TrimSpace(listed) != "//app:main" {
				t.Errorf("metadata listed %q, want //app:main", listed)
			}
		})
	}
}

func TestFetchMissExitsOne(t *testing.T) {
	env := newTestEnv(t, "filesystem")
	consumer := t.TempDir()
	writeSources(t, consumer)

	output, err := execute(t, "fetch", "--config", env.config, "--rules", env.rules, "-w", consumer, "//lib:util")
	var exit *cli.ExitError
	if !errors.As(err, &exit) || exit.ExitCode() != 1 {
		t.Fatalf("fetch of an unstored rule: err = %v, want exit code 1", err)
	}
	if !strings.Contains(output, "//lib:util  miss  MISS") {
		t.Errorf("fetch output missing the miss line:\n%s", output)
	}
	if _, err := os.Stat(filepath.Join(consumer, "out")); !os.IsNotExist(err) {
		t.Errorf("a miss touched the workspace: stat out = %v", err)
	}
}

func TestFetchKeyOverrideValidation(t *testing.T) {
	env := newTestEnv(t, "filesystem")
	common := []string{"--config", env.config, "--rules", env.rules}
	if _, err := execute(t, append([]string{"store", "-w", env.workspace, "//lib:util"}, common...)...); err != nil {
		t.Fatalf("store: %v", err)
	}

	consumer := t.TempDir()
	if _, err := execute(t, append([]string{"fetch", "-w", consumer, "--key", "zz", "//lib:util"}, common...)...); err == nil {
		t.Error("fetch accepted a malformed --key")
	}
	if _, err := execute(t, append([]string{"fetch", "-w", consumer, "--key", strings.Repeat("ab", 32)}, common...)...); err == nil {
		t.Error("fetch accepted --key without a target")
	}
}

func TestStoreRefusesReadOnlyCache(t *testing.T) {
	env := newTestEnv(t, "filesystem")
	config, err := os.ReadFile(env.config)
	if err != nil {
		t.Fatal(err)
	}
	config = append(config, "cache:\n  read_only: true\n"...)
	if err := os.WriteFile(env.config, config, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = execute(t, "store", "--config", env.config, "--rules", env.rules, "-w", env.workspace, "//app:main")
	if err == nil || !strings.Contains(err.Error(), "read-only") {
		t.Errorf("store into a read-only cache: err = %v", err)
	}
}

func TestMetadataDelete(t *testing.T) {
	env := newTestEnv(t, "filesystem")
	if _, err := execute(t, "store", "--config", env.config, "--rules", env.rules, "-w", env.workspace, "//lib:util"); err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, err := execute(t, "metadata", "--config", env.config, "-w", env.workspace, "--delete", "//lib:util"); err != nil {
		t.Fatalf("metadata --delete: %v", err)
	}
	output, err := execute(t, "metadata", "--config", env.config, "-w", env.workspace, "--json", "//lib:util")
	if err != nil {
		t.Fatalf("metadata --json: %v", err)
	}
	if !strings.Contains(output, `"//lib:util": {}`) {
		t.Errorf("metadata after delete = %s, want an empty map", output)
	}
}

func TestCleanRemovesCaches(t *testing.T) {
	env := newTestEnv(t, "filesystem")
	if _, err := execute(t, "store", "--config", env.config, "--rules", env.rules, "-w", env.workspace, "//lib:util"); err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, err := execute(t, "clean", "--config", env.config, "-w", env.workspace); err != nil {
		t.Fatalf("clean: %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.workspace, ".buildcache")); !os.IsNotExist(err) {
		t.Errorf("workspace .buildcache survived clean: %v", err)
	}

	consumer := t.TempDir()
	writeSources(t, consumer)
	_, err := execute(t, "fetch", "--config", env.config, "--rules", env.rules, "-w", consumer, "//lib:util")
	var exit *cli.ExitError
	if !errors.As(err, &exit) {
		t.Errorf("fetch after clean: err = %v, want a miss", err)
	}
}

func TestVersionCommand(t *testing.T) {
	output, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(output, "buildcache ") {
		t.Errorf("version output = %q", output)
	}
}
