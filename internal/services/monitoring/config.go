package monitoring

import (
	"time"

	"github.com/ternarybob/harvestd/internal/common"
	"github.com/ternarybob/harvestd/internal/models"
)

// Config controls tick cadence, concurrency and pacing
type Config struct {
	TickInterval           time.Duration
	MaxConcurrentGroups    int
	GroupDelay             time.Duration // Minimum spacing between successive dispatches
	DefaultIntervalMinutes int
	DefaultPriority        int
	RunTimeout             time.Duration // 0 = no per-run bound
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{
		TickInterval:           time.Minute,
		MaxConcurrentGroups:    3,
		GroupDelay:             2 * time.Second,
		DefaultIntervalMinutes: models.DefaultIntervalMinutes,
		DefaultPriority:        models.DefaultPriority,
		RunTimeout:             30 * time.Minute,
	}
}

// ConfigFromCommon builds a Config from the [scheduler] section
func ConfigFromCommon(c common.SchedulerConfig) Config {
	cfg := DefaultConfig()
	if c.IntervalSeconds > 0 {
		cfg.TickInterval = c.TickInterval()
	}
	if c.MaxConcurrentGroups > 0 {
		cfg.MaxConcurrentGroups = c.MaxConcurrentGroups
	}
	if c.GroupDelaySeconds >= 0 {
		cfg.GroupDelay = c.GroupDelay()
	}
	if c.DefaultIntervalMinutes > 0 {
		cfg.DefaultIntervalMinutes = c.DefaultIntervalMinutes
	}
	cfg.DefaultPriority = c.DefaultPriority
	cfg.RunTimeout = common.ParseDurationOr(c.RunTimeout, cfg.RunTimeout)
	return cfg
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	if c.MaxConcurrentGroups < 1 {
		c.MaxConcurrentGroups = 1
	}
	if c.GroupDelay < 0 {
		c.GroupDelay = 0
	}
	if c.DefaultIntervalMinutes <= 0 {
		c.DefaultIntervalMinutes = def.DefaultIntervalMinutes
	}
	return c
}
