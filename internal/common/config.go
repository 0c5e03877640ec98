package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string            `toml:"environment"` // "development" or "production"
	Server      ServerConfig      `toml:"server"`
	Storage     StorageConfig     `toml:"storage"`
	Logging     LoggingConfig     `toml:"logging"`
	Source      SourceConfig      `toml:"source"`
	RateLimiter RateLimiterConfig `toml:"rate_limiter"`
	Retry       RetryConfig       `toml:"retry"`
	Pagination  PaginationConfig  `toml:"pagination"`
	Scheduler   SchedulerConfig   `toml:"scheduler"`
	Groups      GroupsConfig      `toml:"groups"`
	WebSocket   WebSocketConfig   `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gte=1,lte=65535"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level" validate:"oneof=trace debug info warn error"`
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
	FilePath   string   `toml:"file_path"`   // Log file path when "file" output is enabled
}

// SourceConfig configures the upstream wall API
type SourceConfig struct {
	BaseURL     string `toml:"base_url" validate:"required,url"`
	AccessToken string `toml:"access_token"`
	APIVersion  string `toml:"api_version" validate:"required"`
	Timeout     string `toml:"timeout"` // e.g. "30s"
}

// RateLimiterConfig is the global ceiling shared by every outbound call
type RateLimiterConfig struct {
	Points        int `toml:"points" validate:"gte=1"`
	WindowSeconds int `toml:"window_seconds" validate:"gte=1"`
}

// RetryConfig controls RetryingClient backoff
type RetryConfig struct {
	MaxAttempts    int     `toml:"max_attempts" validate:"gte=1,lte=10"`
	InitialBackoff string  `toml:"initial_backoff"`
	MaxBackoff     string  `toml:"max_backoff"`
	Multiplier     float64 `toml:"multiplier" validate:"gte=1"`
}

// PaginationConfig bounds every harvest
type PaginationConfig struct {
	PageSize      int `toml:"page_size" validate:"gte=1,lte=1000"`
	MaxPages      int `toml:"max_pages" validate:"gte=1"`
	PostsPageSize int `toml:"posts_page_size" validate:"gte=1,lte=1000"`
	PostsMaxPages int `toml:"posts_max_pages" validate:"gte=1"`
}

// SchedulerConfig controls the monitoring scheduler
type SchedulerConfig struct {
	Enabled                bool   `toml:"enabled"`
	IntervalSeconds        int    `toml:"interval_seconds" validate:"gte=1"`
	MaxConcurrentGroups    int    `toml:"max_concurrent_groups" validate:"gte=1"`
	GroupDelaySeconds      int    `toml:"group_delay_seconds" validate:"gte=0"`
	DefaultIntervalMinutes int    `toml:"default_interval_minutes" validate:"gte=1"`
	DefaultPriority        int    `toml:"default_priority"`
	RunTimeout             string `toml:"run_timeout"` // Upper bound for a single group run, e.g. "30m"
}

// GroupsConfig contains configuration for group seed files
type GroupsConfig struct {
	DefinitionsDir string `toml:"definitions_dir"` // Directory containing group seed files (TOML)
}

// WebSocketConfig controls the /ws event stream
type WebSocketConfig struct {
	AllowedEvents      []string `toml:"allowed_events"`      // Empty = all engine events
	TruncationThrottle string   `toml:"truncation_throttle"` // e.g. "1s", limits harvest_truncated broadcasts
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8086,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/harvestd",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05.000",
			FilePath:   "./logs/harvestd.log",
		},
		Source: SourceConfig{
			BaseURL:    "https://api.vk.com/method",
			APIVersion: "5.199",
			Timeout:    "30s",
		},
		RateLimiter: RateLimiterConfig{
			Points:        3,
			WindowSeconds: 1,
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: "500ms",
			MaxBackoff:     "10s",
			Multiplier:     2.0,
		},
		Pagination: PaginationConfig{
			PageSize:      100,
			MaxPages:      100,
			PostsPageSize: 100,
			PostsMaxPages: 1,
		},
		Scheduler: SchedulerConfig{
			Enabled:                true,
			IntervalSeconds:        60,
			MaxConcurrentGroups:    3,
			GroupDelaySeconds:      2,
			DefaultIntervalMinutes: 60,
			DefaultPriority:        0,
			RunTimeout:             "30m",
		},
		Groups: GroupsConfig{
			DefinitionsDir: "./groups",
		},
		WebSocket: WebSocketConfig{
			TruncationThrottle: "1s",
		},
	}
}

// LoadFromFile loads configuration from a single file
func LoadFromFile(path string) (*Config, error) {
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier ones. The merged result is validated before it is returned.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal merges into the existing values
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks struct constraints and duration strings
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"source.timeout":                c.Source.Timeout,
		"retry.initial_backoff":         c.Retry.InitialBackoff,
		"retry.max_backoff":             c.Retry.MaxBackoff,
		"scheduler.run_timeout":         c.Scheduler.RunTimeout,
		"websocket.truncation_throttle": c.WebSocket.TruncationThrottle,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid configuration: %s=%q is not a duration: %w", key, value, err)
		}
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("HARVESTD_ENV"); env != "" {
		config.Environment = env
	}

	// Server
	if port := os.Getenv("HARVESTD_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("HARVESTD_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage
	if badgerPath := os.Getenv("HARVESTD_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging
	if level := os.Getenv("HARVESTD_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("HARVESTD_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Source
	if baseURL := os.Getenv("HARVESTD_SOURCE_BASE_URL"); baseURL != "" {
		config.Source.BaseURL = baseURL
	}
	if token := os.Getenv("HARVESTD_SOURCE_ACCESS_TOKEN"); token != "" {
		config.Source.AccessToken = token
	}
	if version := os.Getenv("HARVESTD_SOURCE_API_VERSION"); version != "" {
		config.Source.APIVersion = version
	}

	// Rate limiter
	if points := os.Getenv("HARVESTD_RATE_LIMITER_POINTS"); points != "" {
		if v, err := strconv.Atoi(points); err == nil {
			config.RateLimiter.Points = v
		}
	}
	if window := os.Getenv("HARVESTD_RATE_LIMITER_WINDOW_SECONDS"); window != "" {
		if v, err := strconv.Atoi(window); err == nil {
			config.RateLimiter.WindowSeconds = v
		}
	}

	// Scheduler
	if maxConcurrent := os.Getenv("HARVESTD_MAX_CONCURRENT_GROUPS"); maxConcurrent != "" {
		if v, err := strconv.Atoi(maxConcurrent); err == nil {
			config.Scheduler.MaxConcurrentGroups = v
		}
	}
	if delay := os.Getenv("HARVESTD_GROUP_DELAY_SECONDS"); delay != "" {
		if v, err := strconv.Atoi(delay); err == nil {
			config.Scheduler.GroupDelaySeconds = v
		}
	}
	if interval := os.Getenv("HARVESTD_SCHEDULER_INTERVAL_SECONDS"); interval != "" {
		if v, err := strconv.Atoi(interval); err == nil {
			config.Scheduler.IntervalSeconds = v
		}
	}

	// Pagination
	if pageSize := os.Getenv("HARVESTD_PAGINATION_PAGE_SIZE"); pageSize != "" {
		if v, err := strconv.Atoi(pageSize); err == nil {
			config.Pagination.PageSize = v
		}
	}
	if maxPages := os.Getenv("HARVESTD_PAGINATION_MAX_PAGES"); maxPages != "" {
		if v, err := strconv.Atoi(maxPages); err == nil {
			config.Pagination.MaxPages = v
		}
	}

	// Groups
	if dir := os.Getenv("HARVESTD_GROUPS_DIR"); dir != "" {
		config.Groups.DefinitionsDir = dir
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config.
// Zero or empty values are ignored.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ParseDurationOr parses value, falling back to def when empty or invalid
func ParseDurationOr(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

// RateWindow returns the limiter window as a duration
func (c RateLimiterConfig) RateWindow() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// TickInterval returns the scheduler tick period
func (c SchedulerConfig) TickInterval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// GroupDelay returns the courtesy delay between dispatches
func (c SchedulerConfig) GroupDelay() time.Duration {
	return time.Duration(c.GroupDelaySeconds) * time.Second
}
