package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"fuel-price-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Expo      ExpoConfig      `mapstructure:"expo"`
	WebPush   WebPushConfig   `mapstructure:"webpush"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
}

// SchedulerConfig governs the alert evaluation cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// AlertingConfig defines notification policy.
type AlertingConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	Title            string        `mapstructure:"title"`
}

// ExpoConfig configures the Expo push service (iOS/Android).
type ExpoConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	BaseURL     string        `mapstructure:"base_url"`
	AccessToken string        `mapstructure:"access_token"`
	BatchSize   int           `mapstructure:"batch_size"`
	ChannelID   string        `mapstructure:"channel_id"`
	Sound       string        `mapstructure:"sound"`
	TTL         time.Duration `mapstructure:"ttl"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// WebPushConfig configures browser push with VAPID credentials.
type WebPushConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	VAPIDPublicKey  string        `mapstructure:"vapid_public_key"`
	VAPIDPrivateKey string        `mapstructure:"vapid_private_key"`
	Subject         string        `mapstructure:"subject"`
	TTL             time.Duration `mapstructure:"ttl"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// TelegramConfig describes the operator mirror chat.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// IngestionConfig covers the upstream fuel price data feed.
type IngestionConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Interval          time.Duration `mapstructure:"interval"`
	SyncMasterOnStart bool          `mapstructure:"sync_master_on_start"`
	BaseURL           string        `mapstructure:"base_url"`
	Token             string        `mapstructure:"token"`
	CountryID         int           `mapstructure:"country_id"`
	GeoLevel          int           `mapstructure:"geo_level"`
	GeoID             int           `mapstructure:"geo_id"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// HTTPConfig controls the operational endpoint.
type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxRows int `mapstructure:"max_rows"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("FUELWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "fuelwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrate_on_start", false)

	v.SetDefault("scheduler.interval", "60s")
	v.SetDefault("scheduler.align_to_bucket", false)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x66756c77))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.cooldown", "30m")
	v.SetDefault("alerting.operation_timeout", "10s")
	v.SetDefault("alerting.title", "Fuel alert triggered")

	v.SetDefault("expo.enabled", true)
	v.SetDefault("expo.base_url", "https://exp.host/--/api/v2/push/send")
	v.SetDefault("expo.batch_size", 100)
	v.SetDefault("expo.channel_id", "alerts")
	v.SetDefault("expo.sound", "default")
	v.SetDefault("expo.ttl", "30m")
	v.SetDefault("expo.timeout", "15s")

	v.SetDefault("webpush.enabled", false)
	v.SetDefault("webpush.subject", "mailto:admin@example.com")
	v.SetDefault("webpush.ttl", "30m")
	v.SetDefault("webpush.timeout", "10s")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.timeout", "10s")

	v.SetDefault("ingestion.enabled", true)
	v.SetDefault("ingestion.interval", "120s")
	v.SetDefault("ingestion.sync_master_on_start", true)
	v.SetDefault("ingestion.country_id", 21)
	v.SetDefault("ingestion.geo_level", 3)
	v.SetDefault("ingestion.geo_id", 1)
	v.SetDefault("ingestion.timeout", "60s")

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.addr", ":8080")

	v.SetDefault("export.max_rows", 10000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Alerting.Cooldown < 0 {
		return fmt.Errorf("alerting.cooldown cannot be negative")
	}
	if c.Alerting.OperationTimeout <= 0 {
		return fmt.Errorf("alerting.operation_timeout must be greater than zero")
	}
	if c.Expo.Enabled && (c.Expo.BatchSize <= 0 || c.Expo.BatchSize > 100) {
		return fmt.Errorf("expo.batch_size must be between 1 and 100")
	}
	if c.WebPush.Enabled {
		if c.WebPush.VAPIDPublicKey == "" || c.WebPush.VAPIDPrivateKey == "" {
			return fmt.Errorf("webpush.vapid_public_key and webpush.vapid_private_key are required")
		}
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required")
		}
	}
	if c.Ingestion.Enabled && c.Ingestion.Interval <= 0 {
		return fmt.Errorf("ingestion.interval must be greater than zero")
	}
	if c.Export.MaxRows <= 0 {
		return fmt.Errorf("export.max_rows must be greater than zero")
	}
	return nil
}

// ResolveMaxRows returns either the CLI override or config default.
func (c *Config) ResolveMaxRows(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxRows
}
