// Package config defines service configuration and its loading.
//
// Values are layered: defaults from New, then an optional YAML file named by
// HW_CONFIG, then HW_-prefixed environment variables. Keys are flat
// snake_case, so HW_STORE_DRIVER maps to store_driver.
package config

import (
	"fmt"
	"time"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Transfer modes.
const (
	TransferSimulated = "simulated"
	TransferHTTP      = "http"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// WebhookSecret verifies X-Hub-Signature-256. Deliveries are rejected while it is empty.
	WebhookSecret string `koanf:"webhook_secret"`
	// AdminAPIKey guards the admin routes. Admin routes are closed while it is empty.
	AdminAPIKey string `koanf:"admin_api_key"`

	// ParticipantPathPrefix is the repository folder holding one directory per username.
	ParticipantPathPrefix string `koanf:"participant_path_prefix"`
	// DeliveryDedupeSize is how many webhook delivery IDs are remembered. 0 disables.
	DeliveryDedupeSize int `koanf:"delivery_dedupe_size"`
	// CurriculumPath optionally replaces the built-in catalog with a YAML file.
	CurriculumPath string `koanf:"curriculum_path"`

	StoreDriver string `koanf:"store_driver"`
	SQLitePath  string `koanf:"sqlite_path"`
	PostgresDSN string `koanf:"postgres_dsn"`

	// MarkerTTLMS bounds an in-flight distribution marker. Must exceed TransferTimeoutMS.
	MarkerTTLMS int `koanf:"marker_ttl_ms"`

	TransferMode         string `koanf:"transfer_mode"`
	TransferEndpoint     string `koanf:"transfer_endpoint"`
	TransferAuthToken    string `koanf:"transfer_auth_token"`
	TransferTimeoutMS    int    `koanf:"transfer_timeout_ms"`
	TransferLatencyMinMS int    `koanf:"transfer_latency_min_ms"`
	TransferLatencyMaxMS int    `koanf:"transfer_latency_max_ms"`

	// KafkaBrokers enables ledger event publishing when non-empty.
	KafkaBrokers []string `koanf:"kafka_brokers"`
	KafkaTopic   string   `koanf:"kafka_topic"`
	// EventQueueCapacity bounds ledger events waiting for a publish worker.
	EventQueueCapacity int `koanf:"event_queue_capacity"`
	EventWorkers       int `koanf:"event_workers"`

	GitHubAPIURL         string `koanf:"github_api_url"`
	GitHubAppID          string `koanf:"github_app_id"`
	GitHubAppPrivateKey  string `koanf:"github_app_private_key"`
	GitHubInstallationID string `koanf:"github_installation_id"`
	GitHubRepoOwner      string `koanf:"github_repo_owner"`
	GitHubRepoName       string `koanf:"github_repo_name"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":9080",
		ParticipantPathPrefix: "participants/",
		DeliveryDedupeSize:    50_000,
		StoreDriver:           DriverMemory,
		SQLitePath:            "data/homework.db",
		MarkerTTLMS:           300_000,
		TransferMode:          TransferSimulated,
		TransferTimeoutMS:     60_000,
		TransferLatencyMinMS:  80,
		TransferLatencyMaxMS:  150,
		KafkaTopic:            "homework.ledger",
		EventQueueCapacity:    10_000,
		EventWorkers:          2,
		GitHubAPIURL:          "https://api.github.com",
		MaxLeaderboardLimit:   100,
	}
}

// Validate reports the first setting the service cannot start with.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: unknown log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite_path required for the sqlite driver", ErrInvalidConfig)
		}
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres_dsn required for the postgres driver", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	switch c.TransferMode {
	case TransferSimulated:
	case TransferHTTP:
		if c.TransferEndpoint == "" {
			return fmt.Errorf("%w: transfer_endpoint required for http transfers", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown transfer_mode %q", ErrInvalidConfig, c.TransferMode)
	}
	if c.TransferTimeoutMS <= 0 {
		return fmt.Errorf("%w: transfer_timeout_ms must be positive", ErrInvalidConfig)
	}
	if c.MarkerTTLMS <= c.TransferTimeoutMS {
		return fmt.Errorf("%w: marker_ttl_ms (%d) must exceed transfer_timeout_ms (%d)",
			ErrInvalidConfig, c.MarkerTTLMS, c.TransferTimeoutMS)
	}
	if c.KafkaEnabled() && (c.EventQueueCapacity <= 0 || c.EventWorkers <= 0) {
		return fmt.Errorf("%w: event_queue_capacity and event_workers must be positive", ErrInvalidConfig)
	}
	if c.DeliveryDedupeSize < 0 {
		return fmt.Errorf("%w: delivery_dedupe_size must not be negative", ErrInvalidConfig)
	}
	if c.MaxLeaderboardLimit <= 0 {
		return fmt.Errorf("%w: max_leaderboard_limit must be positive", ErrInvalidConfig)
	}
	return nil
}

// MarkerTTL returns MarkerTTLMS as a duration.
func (c *Config) MarkerTTL() time.Duration {
	return time.Duration(c.MarkerTTLMS) * time.Millisecond
}

// TransferTimeout returns TransferTimeoutMS as a duration.
func (c *Config) TransferTimeout() time.Duration {
	return time.Duration(c.TransferTimeoutMS) * time.Millisecond
}

// TransferLatency returns the simulated transfer latency bounds.
func (c *Config) TransferLatency() (time.Duration, time.Duration) {
	return time.Duration(c.TransferLatencyMinMS) * time.Millisecond,
		time.Duration(c.TransferLatencyMaxMS) * time.Millisecond
}

// KafkaEnabled reports whether ledger events should be published.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// GitHubEnabled reports whether deliverable submission can reach GitHub.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubAppID != "" && c.GitHubAppPrivateKey != "" && c.GitHubInstallationID != "" &&
		c.GitHubRepoOwner != "" && c.GitHubRepoName != ""
}
