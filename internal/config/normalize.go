package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWorkflows()
	c.normalizeProcessing()
	c.normalizeNaming()
	c.normalizeRetry()
	c.normalizeTracker()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.DefinitionsDir, err = expandPath(c.Paths.DefinitionsDir); err != nil {
		return fmt.Errorf("paths.definitions_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.AuditDB, err = expandPath(c.Paths.AuditDB); err != nil {
		return fmt.Errorf("paths.audit_db: %w", err)
	}
	return nil
}

func (c *Config) normalizeWorkflows() {
	c.Workflows.RequiredLabel = strings.TrimSpace(c.Workflows.RequiredLabel)
	if c.Workflows.RequiredLabel == "" {
		c.Workflows.RequiredLabel = defaultRequiredLabel
	}
	if c.Workflows.RescanIntervalSeconds < 0 {
		c.Workflows.RescanIntervalSeconds = 0
	}
}

func (c *Config) normalizeProcessing() {
	if c.Processing.MaxParallel < 0 {
		c.Processing.MaxParallel = 0
	}
	if c.Processing.OverallTimeoutSeconds < 0 {
		c.Processing.OverallTimeoutSeconds = 0
	}
	c.Processing.BranchPrefix = strings.Trim(strings.TrimSpace(c.Processing.BranchPrefix), "/")
}

func (c *Config) normalizeNaming() {
	c.Naming.FolderTemplate = strings.TrimSpace(c.Naming.FolderTemplate)
	if c.Naming.FolderTemplate == "" {
		c.Naming.FolderTemplate = defaultFolderTemplate
	}
	c.Naming.FilePattern = strings.TrimSpace(c.Naming.FilePattern)
	if c.Naming.FilePattern == "" {
		c.Naming.FilePattern = defaultFilePattern
	}
}

func (c *Config) normalizeRetry() {
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = defaultRetryMaxAttempts
	}
	if c.Retry.BaseDelayMillis < 0 {
		c.Retry.BaseDelayMillis = 0
	}
	if c.Retry.Multiplier < 1 {
		c.Retry.Multiplier = defaultRetryMultiplier
	}
	if c.Retry.MaxDelayMillis <= 0 {
		c.Retry.MaxDelayMillis = defaultRetryMaxDelayMillis
	}
}

func (c *Config) normalizeTracker() {
	c.Tracker.Repository = strings.TrimSpace(c.Tracker.Repository)
	c.Tracker.Host = strings.TrimSpace(c.Tracker.Host)
	if c.Tracker.Host == "" {
		c.Tracker.Host = defaultTrackerHost
	}
	c.Tracker.Token = strings.TrimSpace(c.Tracker.Token)
	if c.Tracker.Token == "" {
		if value, ok := os.LookupEnv("GH_TOKEN"); ok {
			c.Tracker.Token = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("GITHUB_TOKEN"); ok {
			c.Tracker.Token = strings.TrimSpace(value)
		}
	}
	c.Tracker.AssigneeLogin = strings.TrimPrefix(strings.TrimSpace(c.Tracker.AssigneeLogin), "@")
	c.Tracker.ReviewerLogin = strings.TrimPrefix(strings.TrimSpace(c.Tracker.ReviewerLogin), "@")
	c.Tracker.CompletedLabel = strings.TrimSpace(c.Tracker.CompletedLabel)
	if c.Tracker.RequestTimeout <= 0 {
		c.Tracker.RequestTimeout = defaultTrackerRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
