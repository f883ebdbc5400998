package testsupport

import (
	"path/filepath"
	"testing"

	"speculum/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.DefinitionsDir = filepath.Join(base, "workflows")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.AuditDB = filepath.Join(base, "state", "audit.db")
	cfgVal.Tracker.Token = ""
	cfgVal.Retry.BaseDelayMillis = 0
	cfgVal.Retry.MaxDelayMillis = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure test directories: %v", err)
	}
	return builder.cfg
}

// WithPreviewOnly toggles preview mode.
func WithPreviewOnly(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Processing.PreviewOnly = enabled
	}
}

// WithMultiWorkflow toggles multi-workflow planning.
func WithMultiWorkflow(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Processing.MultiWorkflow = enabled
	}
}

// WithPartialSuccess toggles allow_partial_success.
func WithPartialSuccess(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Processing.AllowPartialSuccess = enabled
	}
}

// WithParallel sets enable_parallel and max_parallel.
func WithParallel(enabled bool, maxParallel int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Processing.EnableParallel = enabled
		b.cfg.Processing.MaxParallel = maxParallel
	}
}

// WithStaleRetries sets the processing timeout and stale retry budget.
func WithStaleRetries(timeoutMinutes, maxRetries int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Processing.ProcessingTimeoutMinutes = timeoutMinutes
		b.cfg.Processing.MaxStaleRetries = maxRetries
	}
}

// WithReviewer sets the reviewer assigned on completion.
func WithReviewer(login string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Tracker.ReviewerLogin = login
	}
}
