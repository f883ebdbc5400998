package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateProcessing(); err != nil {
		return err
	}
	if err := c.validateNaming(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateTracker(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	for key, value := range map[string]string{
		"paths.state_dir":       c.Paths.StateDir,
		"paths.output_dir":      c.Paths.OutputDir,
		"paths.definitions_dir": c.Paths.DefinitionsDir,
	} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s must be set", key)
		}
	}
	if c.Telemetry.Audit && strings.TrimSpace(c.Paths.AuditDB) == "" {
		return errors.New("paths.audit_db must be set when telemetry.audit is true")
	}
	return nil
}

func (c *Config) validateProcessing() error {
	if err := ensurePositiveMap(map[string]int{
		"processing.processing_timeout_minutes": c.Processing.ProcessingTimeoutMinutes,
	}); err != nil {
		return err
	}
	if c.Processing.MaxStaleRetries < 0 {
		return errors.New("processing.max_stale_retries must be >= 0")
	}
	return nil
}

func (c *Config) validateNaming() error {
	if strings.ContainsAny(c.Naming.FolderTemplate, "\x00") || strings.HasPrefix(c.Naming.FolderTemplate, "/") {
		return errors.New("naming.folder_template must be a relative path")
	}
	if strings.Contains(c.Naming.FilePattern, "/") {
		return errors.New("naming.file_pattern must not contain path separators")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxDelayMillis < c.Retry.BaseDelayMillis {
		return errors.New("retry.max_delay_millis must be >= retry.base_delay_millis")
	}
	return nil
}

func (c *Config) validateTracker() error {
	repo := c.Tracker.Repository
	if repo == "" {
		return nil
	}
	parts := strings.Split(repo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("tracker.repository must be in owner/name form, got %q", repo)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
