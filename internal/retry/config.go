package retry

import (
	"log/slog"
	"time"

	"speculum/internal/config"
)

// FromConfig builds the shared policy from the [retry] section.
func FromConfig(cfg *config.Config, logger *slog.Logger) Policy {
	if cfg == nil {
		return Policy{Logger: logger}
	}
	return Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Retry.BaseDelayMillis) * time.Millisecond,
		Multiplier:  cfg.Retry.Multiplier,
		MaxDelay:    time.Duration(cfg.Retry.MaxDelayMillis) * time.Millisecond,
		Logger:      logger,
	}
}
