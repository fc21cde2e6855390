package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYCOLLECT_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYCOLLECT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	// The compatibility alias goes first so the project-specific variable
	// wins when both are set.
	setStr(&cfg.Database.DSN, "DATABASE_URL")
	setStr(&cfg.Database.DSN, "POLYCOLLECT_DATABASE_DSN")
	setInt(&cfg.Database.MinPoolSize, "POLYCOLLECT_DATABASE_MIN_POOL_SIZE")
	setInt(&cfg.Database.MaxPoolSize, "POLYCOLLECT_DATABASE_MAX_POOL_SIZE")
	setInt(&cfg.Database.CommandTimeoutSeconds, "POLYCOLLECT_DATABASE_COMMAND_TIMEOUT_SECONDS")
	setInt(&cfg.Database.MaxInactiveLifetimeSeconds, "POLYCOLLECT_DATABASE_MAX_INACTIVE_LIFETIME_SECONDS")

	// ── Collector ──
	setInt(&cfg.Collector.MarketRefreshIntervalSeconds, "POLYCOLLECT_COLLECTOR_MARKET_REFRESH_INTERVAL_SECONDS")
	setInt(&cfg.Collector.PriceSnapshotIntervalSeconds, "POLYCOLLECT_COLLECTOR_PRICE_SNAPSHOT_INTERVAL_SECONDS")
	setInt(&cfg.Collector.OrderbookSnapshotIntervalSeconds, "POLYCOLLECT_COLLECTOR_ORDERBOOK_SNAPSHOT_INTERVAL_SECONDS")
	setInt(&cfg.Collector.ResolutionCheckIntervalSeconds, "POLYCOLLECT_COLLECTOR_RESOLUTION_CHECK_INTERVAL_SECONDS")
	setInt(&cfg.Collector.OrderbookDepthLevels, "POLYCOLLECT_COLLECTOR_ORDERBOOK_DEPTH_LEVELS")
	setInt(&cfg.Collector.MaxMarkets, "POLYCOLLECT_COLLECTOR_MAX_MARKETS")
	setInt(&cfg.Collector.WSPingIntervalSeconds, "POLYCOLLECT_COLLECTOR_WS_PING_INTERVAL_SECONDS")
	setInt(&cfg.Collector.WSMaxInstrumentsPerConn, "POLYCOLLECT_COLLECTOR_WS_MAX_INSTRUMENTS_PER_CONN")
	setInt(&cfg.Collector.TradeBatchSize, "POLYCOLLECT_COLLECTOR_TRADE_BATCH_SIZE")
	setInt(&cfg.Collector.TradeBatchDrainTimeoutSeconds, "POLYCOLLECT_COLLECTOR_TRADE_BATCH_DRAIN_TIMEOUT_SECONDS")
	setInt(&cfg.Collector.TradeQueueCapacity, "POLYCOLLECT_COLLECTOR_TRADE_QUEUE_CAPACITY")
	setBool(&cfg.Collector.EnableWebsocketTrades, "POLYCOLLECT_COLLECTOR_ENABLE_WEBSOCKET_TRADES")

	// ── Venue ──
	setStr(&cfg.Venue.HTTPHost, "POLYCOLLECT_VENUE_HTTP_HOST")
	setStr(&cfg.Venue.GammaHost, "POLYCOLLECT_VENUE_GAMMA_HOST")
	setStr(&cfg.Venue.WSHost, "POLYCOLLECT_VENUE_WS_HOST")
	setStr(&cfg.Venue.FunderAddress, "POLYCOLLECT_VENUE_FUNDER_ADDRESS")
	setInt(&cfg.Venue.SignatureType, "POLYCOLLECT_VENUE_SIGNATURE_TYPE")
	setBool(&cfg.Venue.PaperTrading, "POLYCOLLECT_VENUE_PAPER_TRADING")
	setStr(&cfg.Venue.SigningKey, "POLYCOLLECT_VENUE_SIGNING_KEY")

	// ── Logging ──
	setStr(&cfg.Logging.Level, "POLYCOLLECT_LOG_LEVEL")
	setInt64(&cfg.Logging.RotationBytes, "POLYCOLLECT_LOG_ROTATION_BYTES")
	setInt(&cfg.Logging.BackupCount, "POLYCOLLECT_LOG_BACKUP_COUNT")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "POLYCOLLECT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYCOLLECT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYCOLLECT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYCOLLECT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYCOLLECT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYCOLLECT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "POLYCOLLECT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYCOLLECT_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYCOLLECT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYCOLLECT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYCOLLECT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POLYCOLLECT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POLYCOLLECT_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.ArchiveAfterDays, "POLYCOLLECT_S3_ARCHIVE_AFTER_DAYS")
	setInt(&cfg.S3.ArchiveIntervalSeconds, "POLYCOLLECT_S3_ARCHIVE_INTERVAL_SECONDS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POLYCOLLECT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYCOLLECT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYCOLLECT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLYCOLLECT_NOTIFY_EVENTS")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
