package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and logs the effective engine limits
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.Print("harvestd", GetVersion())

	logger.Info().
		Str("environment", config.Environment).
		Str("source", config.Source.BaseURL).
		Int("rate_points", config.RateLimiter.Points).
		Int("rate_window_seconds", config.RateLimiter.WindowSeconds).
		Int("max_concurrent_groups", config.Scheduler.MaxConcurrentGroups).
		Int("tick_seconds", config.Scheduler.IntervalSeconds).
		Msg("Engine configuration")
}
