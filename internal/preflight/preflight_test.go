package preflight

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"speculum/internal/config"
)

const workflowYAML = `
name: summary
version: "1.0"
category: general
priority: 10
confidence_threshold: 0.5
trigger_labels: [summary]
deliverables:
  - name: summary
`

func writeWorkflow(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckDefinitions_LoadsWorkflows(t *testing.T) {
	dir := t.TempDir()
	writeWorkflow(t, dir, "summary.yaml", workflowYAML)

	result := CheckDefinitions(context.Background(), dir, false)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if result.Detail != "1 loaded" {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckDefinitions_ReportsSkippedFiles(t *testing.T) {
	dir := t.TempDir()
	writeWorkflow(t, dir, "summary.yaml", workflowYAML)
	writeWorkflow(t, dir, "broken.yaml", "- not a mapping\n")

	lenient := CheckDefinitions(context.Background(), dir, false)
	if !lenient.Passed {
		t.Fatalf("expected lenient pass, got: %s", lenient.Detail)
	}
	if !strings.Contains(lenient.Detail, "1 skipped") || !strings.Contains(lenient.Detail, "broken.yaml") {
		t.Fatalf("expected skipped file in detail, got %q", lenient.Detail)
	}

	strict := CheckDefinitions(context.Background(), dir, true)
	if strict.Passed {
		t.Fatal("expected strict load to fail")
	}
}

func TestCheckDefinitions_EmptyDirectoryFails(t *testing.T) {
	result := CheckDefinitions(context.Background(), t.TempDir(), false)
	if result.Passed {
		t.Fatal("expected failure for empty definitions dir")
	}
}

func TestCheckTrackerAuth(t *testing.T) {
	cfg := config.Default()
	cfg.Tracker.Repository = "acme/monitor"
	cfg.Tracker.Token = "config-token"
	if result := CheckTrackerAuth(&cfg); !result.Passed || !strings.Contains(result.Detail, "config") {
		t.Fatalf("expected config token to pass, got %+v", result)
	}

	cfg.Tracker.Token = ""
	t.Setenv("GH_TOKEN", "env-token")
	if result := CheckTrackerAuth(&cfg); !result.Passed || !strings.Contains(result.Detail, "GH_TOKEN") {
		t.Fatalf("expected env token to pass, got %+v", result)
	}

	cfg.Tracker.Repository = "monitor"
	if result := CheckTrackerAuth(&cfg); result.Passed {
		t.Fatal("expected malformed repository to fail")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Paths.OutputDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Paths.DefinitionsDir = t.TempDir()
	cfg.Tracker.Repository = ""
	writeWorkflow(t, cfg.Paths.DefinitionsDir, "summary.yaml", workflowYAML)

	results := RunAll(context.Background(), &cfg)
	// Three directories plus definitions; no tracker without a repository.
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}

func TestRunAll_IncludesTrackerWhenConfigured(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Paths.OutputDir = filepath.Join(t.TempDir(), "missing")
	cfg.Paths.LogDir = t.TempDir()
	cfg.Paths.DefinitionsDir = t.TempDir()
	cfg.Tracker.Repository = "acme/monitor"
	cfg.Tracker.Token = "token"
	writeWorkflow(t, cfg.Paths.DefinitionsDir, "summary.yaml", workflowYAML)

	results := RunAll(context.Background(), &cfg)
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Output directory" {
		t.Fatalf("expected only output directory to fail, got %+v", failed)
	}
}
