package config

const (
	defaultConfigPath               = "~/.config/speculum/config.toml"
	defaultStateDir                 = "~/.local/share/speculum/state"
	defaultOutputDir                = "~/.local/share/speculum/output"
	defaultDefinitionsDir           = "~/.config/speculum/workflows"
	defaultLogDir                   = "~/.local/share/speculum/logs"
	defaultAuditDB                  = "~/.local/share/speculum/audit.db"
	defaultRequiredLabel            = "site-monitor"
	defaultRescanIntervalSeconds    = 300
	defaultMaxParallel              = 0
	defaultProcessingTimeoutMinutes = 30
	defaultMaxStaleRetries          = 3
	defaultFolderTemplate           = "{issue_number}-{title_slug}"
	defaultFilePattern              = "{deliverable_slug}.md"
	defaultRetryMaxAttempts         = 3
	defaultRetryBaseDelayMillis     = 500
	defaultRetryMultiplier          = 2.0
	defaultRetryMaxDelayMillis      = 10000
	defaultTrackerHost              = "github.com"
	defaultTrackerRequestTimeout    = 30
	defaultCompletedLabel           = "speculum:done"
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
	defaultLogRetentionDays         = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:       defaultStateDir,
			OutputDir:      defaultOutputDir,
			DefinitionsDir: defaultDefinitionsDir,
			LogDir:         defaultLogDir,
			AuditDB:        defaultAuditDB,
		},
		Workflows: Workflows{
			RequiredLabel:         defaultRequiredLabel,
			RescanIntervalSeconds: defaultRescanIntervalSeconds,
		},
		Processing: Processing{
			MultiWorkflow:            true,
			EnableParallel:           true,
			MaxParallel:              defaultMaxParallel,
			AllowPartialSuccess:      true,
			ProcessingTimeoutMinutes: defaultProcessingTimeoutMinutes,
			MaxStaleRetries:          defaultMaxStaleRetries,
		},
		Naming: Naming{
			FolderTemplate: defaultFolderTemplate,
			FilePattern:    defaultFilePattern,
		},
		Retry: Retry{
			MaxAttempts:     defaultRetryMaxAttempts,
			BaseDelayMillis: defaultRetryBaseDelayMillis,
			Multiplier:      defaultRetryMultiplier,
			MaxDelayMillis:  defaultRetryMaxDelayMillis,
		},
		Tracker: Tracker{
			Host:           defaultTrackerHost,
			CompletedLabel: defaultCompletedLabel,
			RequestTimeout: defaultTrackerRequestTimeout,
		},
		Telemetry: Telemetry{
			Enabled: true,
			Audit:   true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
