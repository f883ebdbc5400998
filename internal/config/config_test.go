package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"speculum/internal/config"
)

func TestLoadDefaultConfigExpandsPathsAndReadsTokenEnv(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("GH_TOKEN", " env-token ")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "speculum", "state")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Tracker.Token != "env-token" {
		t.Fatalf("expected token from env, got %q", cfg.Tracker.Token)
	}
	if cfg.Workflows.RequiredLabel != "site-monitor" {
		t.Fatalf("unexpected required label: %q", cfg.Workflows.RequiredLabel)
	}
	if !cfg.Processing.MultiWorkflow || !cfg.Processing.EnableParallel {
		t.Fatal("expected multi-workflow parallel planning by default")
	}
	if cfg.OverallTimeout() != nil {
		t.Fatalf("expected no overall timeout by default, got %v", *cfg.OverallTimeout())
	}
	if cfg.StateFile() != filepath.Join(wantState, "processing_state.json") {
		t.Fatalf("unexpected state file: %q", cfg.StateFile())
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.OutputDir, cfg.Paths.DefinitionsDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "speculum.toml")

	type payload struct {
		Processing struct {
			MaxParallel           int    `toml:"max_parallel"`
			OverallTimeoutSeconds int    `toml:"overall_timeout_seconds"`
			BranchPrefix          string `toml:"branch_prefix"`
		} `toml:"processing"`
		Tracker struct {
			Repository    string `toml:"repository"`
			ReviewerLogin string `toml:"reviewer_login"`
		} `toml:"tracker"`
		Logging struct {
			Format string `toml:"format"`
		} `toml:"logging"`
	}
	custom := payload{}
	custom.Processing.MaxParallel = 2
	custom.Processing.OverallTimeoutSeconds = 600
	custom.Processing.BranchPrefix = "/triage/"
	custom.Tracker.Repository = "acme/monitor"
	custom.Tracker.ReviewerLogin = "@octocat"
	custom.Logging.Format = "JSON"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom path to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Processing.MaxParallel != 2 {
		t.Fatalf("unexpected max parallel: %d", cfg.Processing.MaxParallel)
	}
	if got := cfg.OverallTimeout(); got == nil || *got != 600 {
		t.Fatalf("unexpected overall timeout: %v", got)
	}
	if cfg.Processing.BranchPrefix != "triage" {
		t.Fatalf("expected branch prefix trimmed, got %q", cfg.Processing.BranchPrefix)
	}
	if cfg.Tracker.ReviewerLogin != "octocat" {
		t.Fatalf("expected reviewer login without @, got %q", cfg.Tracker.ReviewerLogin)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected json log format, got %q", cfg.Logging.Format)
	}
	if cfg.Naming.FilePattern != config.Default().Naming.FilePattern {
		t.Fatalf("expected default file pattern, got %q", cfg.Naming.FilePattern)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "speculum.toml")
	if err := os.WriteFile(configPath, []byte("[processing]\nmax_paralel = 3\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, _, _, err := config.Load(configPath)
	if err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
	if !strings.Contains(err.Error(), "max_paralel") {
		t.Fatalf("expected error to name offending key, got %v", err)
	}
}

func TestValidateRejectsBadRepository(t *testing.T) {
	cfg := config.Default()
	cfg.Tracker.Repository = "not-a-repo"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected repository validation error")
	}
}

func TestValidateRejectsNonPositiveProcessingTimeout(t *testing.T) {
	cfg := config.Default()
	cfg.Processing.ProcessingTimeoutMinutes = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected processing timeout validation error")
	}
}

func TestSampleConfigParsesAndValidates(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	path := filepath.Join(dir, "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Workflows.RequiredLabel != "site-monitor" {
		t.Fatalf("unexpected required label: %q", cfg.Workflows.RequiredLabel)
	}
}
