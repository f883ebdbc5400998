package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir       string `toml:"state_dir"`
	OutputDir      string `toml:"output_dir"`
	DefinitionsDir string `toml:"definitions_dir"`
	LogDir         string `toml:"log_dir"`
	AuditDB        string `toml:"audit_db"`
}

// Workflows controls how workflow definitions are discovered and matched.
type Workflows struct {
	RequiredLabel         string `toml:"required_label"`
	RescanIntervalSeconds int    `toml:"rescan_interval_seconds"`
	Strict                bool   `toml:"strict"`
	Watch                 bool   `toml:"watch"`
}

// Processing contains executor and planner knobs.
type Processing struct {
	MultiWorkflow            bool   `toml:"multi_workflow"`
	PreviewOnly              bool   `toml:"preview_only"`
	EnableParallel           bool   `toml:"enable_parallel"`
	MaxParallel              int    `toml:"max_parallel"`
	AllowPartialSuccess      bool   `toml:"allow_partial_success"`
	OverallTimeoutSeconds    int    `toml:"overall_timeout_seconds"`
	ProcessingTimeoutMinutes int    `toml:"processing_timeout_minutes"`
	MaxStaleRetries          int    `toml:"max_stale_retries"`
	BranchPrefix             string `toml:"branch_prefix"`
}

// Naming contains the default output layout used when a definition omits one.
type Naming struct {
	FolderTemplate string `toml:"folder_template"`
	FilePattern    string `toml:"file_pattern"`
}

// Retry configures the exponential backoff policy used for tracker calls,
// generator calls, and state saves.
type Retry struct {
	MaxAttempts     int     `toml:"max_attempts"`
	BaseDelayMillis int     `toml:"base_delay_millis"`
	Multiplier      float64 `toml:"multiplier"`
	MaxDelayMillis  int     `toml:"max_delay_millis"`
}

// Tracker contains GitHub issue tracker settings.
type Tracker struct {
	Repository     string `toml:"repository"`
	Host           string `toml:"host"`
	Token          string `toml:"token"`
	AssigneeLogin  string `toml:"assignee_login"`
	ReviewerLogin  string `toml:"reviewer_login"`
	CompletedLabel string `toml:"completed_label"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Telemetry toggles the event sinks.
type Telemetry struct {
	Enabled bool `toml:"enabled"`
	Metrics bool `toml:"metrics"`
	Audit   bool `toml:"audit"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for speculum.
//
// Configuration sections by subsystem:
//   - Paths: state, output, definitions, log, and audit locations
//   - Workflows: definition discovery and baseline label
//   - Processing: planner and executor policy
//   - Naming: default deliverable layout templates
//   - Retry: backoff for tracker, generator, and persistence calls
//   - Tracker: GitHub repository and credentials
//   - Telemetry: event sinks
//   - Logging: log format, level, and retention
type Config struct {
	Paths      Paths      `toml:"paths"`
	Workflows  Workflows  `toml:"workflows"`
	Processing Processing `toml:"processing"`
	Naming     Naming     `toml:"naming"`
	Retry      Retry      `toml:"retry"`
	Tracker    Tracker    `toml:"tracker"`
	Telemetry  Telemetry  `toml:"telemetry"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("speculum.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for processing.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StateDir, c.Paths.OutputDir, c.Paths.DefinitionsDir, c.Paths.LogDir}
	if c.Paths.AuditDB != "" {
		dirs = append(dirs, filepath.Dir(c.Paths.AuditDB))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StateFile returns the path of the persisted processing state document.
func (c *Config) StateFile() string {
	return filepath.Join(c.Paths.StateDir, "processing_state.json")
}

// LockPath returns the path of the single-instance lock used by the CLI.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "speculum.lock")
}

// MetricsFile returns the Prometheus textfile written after each command.
func (c *Config) MetricsFile() string {
	return filepath.Join(c.Paths.StateDir, "speculum.prom")
}

// RescanInterval returns the definition rescan interval.
func (c *Config) RescanInterval() time.Duration {
	return time.Duration(c.Workflows.RescanIntervalSeconds) * time.Second
}

// ProcessingTimeout returns the age after which a PROCESSING record is stale.
func (c *Config) ProcessingTimeout() time.Duration {
	return time.Duration(c.Processing.ProcessingTimeoutMinutes) * time.Minute
}

// OverallTimeout returns the advisory per-attempt deadline, or nil when unset.
func (c *Config) OverallTimeout() *int {
	if c.Processing.OverallTimeoutSeconds <= 0 {
		return nil
	}
	v := c.Processing.OverallTimeoutSeconds
	return &v
}

// TrackerTimeout returns the per-request tracker timeout.
func (c *Config) TrackerTimeout() time.Duration {
	return time.Duration(c.Tracker.RequestTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
