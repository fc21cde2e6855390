// Package config defines the top-level configuration for the collector
// daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLYCOLLECT_* environment variables.
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Collector CollectorConfig `toml:"collector"`
	Venue     VenueConfig     `toml:"venue"`
	Logging   LoggingConfig   `toml:"logging"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Notify    NotifyConfig    `toml:"notify"`
}

// DatabaseConfig holds PostgreSQL/TimescaleDB connection parameters.
type DatabaseConfig struct {
	DSN                        string `toml:"dsn"`
	MinPoolSize                int    `toml:"min_pool_size"`
	MaxPoolSize                int    `toml:"max_pool_size"`
	CommandTimeoutSeconds      int    `toml:"command_timeout_seconds"`
	MaxInactiveLifetimeSeconds int    `toml:"max_inactive_lifetime_seconds"`
}

// CollectorConfig holds cadences and tuning for the five collectors.
type CollectorConfig struct {
	MarketRefreshIntervalSeconds     int  `toml:"market_refresh_interval_seconds"`
	PriceSnapshotIntervalSeconds     int  `toml:"price_snapshot_interval_seconds"`
	OrderbookSnapshotIntervalSeconds int  `toml:"orderbook_snapshot_interval_seconds"`
	ResolutionCheckIntervalSeconds   int  `toml:"resolution_check_interval_seconds"`
	OrderbookDepthLevels             int  `toml:"orderbook_depth_levels"`
	MaxMarkets                       int  `toml:"max_markets"`
	WSPingIntervalSeconds            int  `toml:"ws_ping_interval_seconds"`
	WSMaxInstrumentsPerConn          int  `toml:"ws_max_instruments_per_conn"`
	TradeBatchSize                   int  `toml:"trade_batch_size"`
	TradeBatchDrainTimeoutSeconds    int  `toml:"trade_batch_drain_timeout_seconds"`
	TradeQueueCapacity               int  `toml:"trade_queue_capacity"`
	EnableWebsocketTrades            bool `toml:"enable_websocket_trades"`
}

// VenueConfig holds Polymarket endpoints and account parameters. None of the
// account fields are used by the observer core but they must be present and
// valid so the same config file can drive trading tooling. SigningKey is only
// settable through the environment.
type VenueConfig struct {
	HTTPHost      string `toml:"http_host"`
	GammaHost     string `toml:"gamma_host"`
	WSHost        string `toml:"ws_host"`
	FunderAddress string `toml:"funder_address"`
	SignatureType int    `toml:"signature_type"`
	PaperTrading  bool   `toml:"paper_trading"`
	SigningKey    string `toml:"-"`
}

// LoggingConfig holds log level and rotation parameters. The daemon itself
// logs JSON to stdout; rotation settings are recognised for operators who
// redirect stdout through a rotating sink.
type LoggingConfig struct {
	Level         string `toml:"level"`
	RotationBytes int64  `toml:"rotation_bytes"`
	BackupCount   int    `toml:"backup_count"`
}

// RedisConfig holds parameters for the optional latest-price cache. The
// cache is disabled when Addr is empty.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds parameters for the optional cold-storage archiver. The
// archiver is disabled when Bucket is empty.
type S3Config struct {
	Endpoint               string `toml:"endpoint"`
	Region                 string `toml:"region"`
	Bucket                 string `toml:"bucket"`
	AccessKey              string `toml:"access_key"`
	SecretKey              string `toml:"secret_key"`
	UseSSL                 bool   `toml:"use_ssl"`
	ForcePathStyle         bool   `toml:"force_path_style"`
	ArchiveAfterDays       int    `toml:"archive_after_days"`
	ArchiveIntervalSeconds int    `toml:"archive_interval_seconds"`
}

// NotifyConfig holds notification channel credentials. Tokens are only
// settable through the environment.
type NotifyConfig struct {
	TelegramToken     string   `toml:"-"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"-"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			DSN:                        "",
			MinPoolSize:                2,
			MaxPoolSize:                10,
			CommandTimeoutSeconds:      60,
			MaxInactiveLifetimeSeconds: 300,
		},
		Collector: CollectorConfig{
			MarketRefreshIntervalSeconds:     300,
			PriceSnapshotIntervalSeconds:     60,
			OrderbookSnapshotIntervalSeconds: 300,
			ResolutionCheckIntervalSeconds:   600,
			OrderbookDepthLevels:             5,
			MaxMarkets:                       10000,
			WSPingIntervalSeconds:            10,
			WSMaxInstrumentsPerConn:          500,
			TradeBatchSize:                   500,
			TradeBatchDrainTimeoutSeconds:    2,
			TradeQueueCapacity:               10000,
			EnableWebsocketTrades:            true,
		},
		Venue: VenueConfig{
			HTTPHost:      "https://clob.polymarket.com",
			GammaHost:     "https://gamma-api.polymarket.com",
			WSHost:        "wss://ws-subscriptions-clob.polymarket.com",
			SignatureType: 0,
			PaperTrading:  true,
		},
		Logging: LoggingConfig{
			Level:         "info",
			RotationBytes: 10 * 1024 * 1024,
			BackupCount:   5,
		},
		Redis: RedisConfig{
			Addr:       "",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:               "",
			Region:                 "us-east-1",
			Bucket:                 "",
			UseSSL:                 true,
			ForcePathStyle:         true,
			ArchiveAfterDays:       83,
			ArchiveIntervalSeconds: 86400,
		},
		Notify: NotifyConfig{
			Events: []string{"daemon_started", "daemon_stopped", "collector_failed"},
		},
	}
}

// validLogLevels enumerates the accepted values for Logging.Level.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		errs = append(errs, "database: dsn must not be empty")
	}
	if c.Database.MaxPoolSize < 1 {
		errs = append(errs, "database: max_pool_size must be >= 1")
	}
	if c.Database.MinPoolSize < 0 {
		errs = append(errs, "database: min_pool_size must be >= 0")
	}
	if c.Database.MinPoolSize > c.Database.MaxPoolSize {
		errs = append(errs, "database: min_pool_size must not exceed max_pool_size")
	}
	if c.Database.CommandTimeoutSeconds < 1 {
		errs = append(errs, "database: command_timeout_seconds must be >= 1")
	}

	// Collector intervals
	for _, iv := range []struct {
		name string
		val  int
	}{
		{"market_refresh_interval_seconds", c.Collector.MarketRefreshIntervalSeconds},
		{"price_snapshot_interval_seconds", c.Collector.PriceSnapshotIntervalSeconds},
		{"orderbook_snapshot_interval_seconds", c.Collector.OrderbookSnapshotIntervalSeconds},
		{"resolution_check_interval_seconds", c.Collector.ResolutionCheckIntervalSeconds},
		{"ws_ping_interval_seconds", c.Collector.WSPingIntervalSeconds},
	} {
		if iv.val < 1 {
			errs = append(errs, fmt.Sprintf("collector: %s must be >= 1, got %d", iv.name, iv.val))
		}
	}
	if c.Collector.OrderbookDepthLevels < 1 {
		errs = append(errs, "collector: orderbook_depth_levels must be >= 1")
	}
	if c.Collector.WSMaxInstrumentsPerConn < 1 || c.Collector.WSMaxInstrumentsPerConn > 500 {
		errs = append(errs, fmt.Sprintf("collector: ws_max_instruments_per_conn must be 1-500, got %d", c.Collector.WSMaxInstrumentsPerConn))
	}
	if c.Collector.TradeBatchSize < 1 {
		errs = append(errs, "collector: trade_batch_size must be >= 1")
	}
	if c.Collector.TradeQueueCapacity < 1 {
		errs = append(errs, "collector: trade_queue_capacity must be >= 1")
	}
	if c.Collector.TradeBatchDrainTimeoutSeconds < 1 {
		errs = append(errs, "collector: trade_batch_drain_timeout_seconds must be >= 1")
	}

	// Venue endpoints
	if c.Venue.HTTPHost == "" {
		errs = append(errs, "venue: http_host must not be empty")
	}
	if c.Venue.GammaHost == "" {
		errs = append(errs, "venue: gamma_host must not be empty")
	}
	if c.Venue.WSHost == "" {
		errs = append(errs, "venue: ws_host must not be empty")
	}
	if c.Venue.SignatureType < 0 || c.Venue.SignatureType > 2 {
		errs = append(errs, fmt.Sprintf("venue: signature_type must be 0, 1 or 2, got %d", c.Venue.SignatureType))
	}

	// Logging
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("logging: unknown level %q (valid: debug, info, warn, error)", c.Logging.Level))
	}
	if c.Logging.RotationBytes < 0 {
		errs = append(errs, "logging: rotation_bytes must be >= 0")
	}
	if c.Logging.BackupCount < 0 {
		errs = append(errs, "logging: backup_count must be >= 0")
	}

	// Redis (optional; validated only when enabled)
	if c.Redis.Addr != "" && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 (optional; validated only when enabled)
	if c.S3.Bucket != "" {
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when bucket is set")
		}
		if c.S3.ArchiveAfterDays < 1 {
			errs = append(errs, "s3: archive_after_days must be >= 1")
		}
		if c.S3.ArchiveIntervalSeconds < 1 {
			errs = append(errs, "s3: archive_interval_seconds must be >= 1")
		}
	}

	// Telegram needs both token and chat id.
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram token and chat id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
