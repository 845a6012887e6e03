// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	DB        DBConfig        `mapstructure:"db"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Resolver  ResolverConfig  `mapstructure:"resolver"`
	Activity  ActivityConfig  `mapstructure:"activity"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Scraper   ScraperConfig   `mapstructure:"scraper"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	ConnLifetimeMin int    `mapstructure:"conn_lifetime_minutes"`
}

// QueueConfig governs the resolution job queue and its workers.
type QueueConfig struct {
	Workers         int `mapstructure:"workers"`
	PollIntervalSec int `mapstructure:"poll_interval_seconds"`
	MaxAttempts     int `mapstructure:"max_attempts"`
	BackoffBaseSec  int `mapstructure:"backoff_base_seconds"`
	BackoffMaxSec   int `mapstructure:"backoff_max_seconds"`
}

// ResolverConfig governs metadata resolution.
type ResolverConfig struct {
	SchemaVersion int `mapstructure:"schema_version"`
}

// ActivityConfig governs the scoring engine and impression buffering.
type ActivityConfig struct {
	ImpressionFlushSec int `mapstructure:"impression_flush_seconds"`
}

// ProviderConfig configures the metadata provider client and cache.
type ProviderConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	CacheTTLMinutes int    `mapstructure:"cache_ttl_minutes"`
	CacheMaxEntries int    `mapstructure:"cache_max_entries"`
}

// ScraperConfig configures the chapter scraper and the sync loop that
// drives it.
type ScraperConfig struct {
	UserAgent       string                   `mapstructure:"user_agent"`
	TimeoutSeconds  int                      `mapstructure:"timeout_seconds"`
	SyncIntervalMin int                      `mapstructure:"sync_interval_minutes"`
	RPS             float64                  `mapstructure:"rps"`
	Burst           int                      `mapstructure:"burst"`
	Sources         map[string]ScraperSource `mapstructure:"sources"`
	Targets         []SyncTarget             `mapstructure:"targets"`
}

// ScraperSource holds the URL template and selectors for one scrape source.
type ScraperSource struct {
	SeriesURL       string `mapstructure:"series_url"`
	TitleSelector   string `mapstructure:"title_selector"`
	CoverSelector   string `mapstructure:"cover_selector"`
	ChapterSelector string `mapstructure:"chapter_selector"`
	LabelSelector   string `mapstructure:"label_selector"`
	ChapterTitleSel string `mapstructure:"chapter_title_selector"`
	DateSelector    string `mapstructure:"date_selector"`
	DateLayout      string `mapstructure:"date_layout"`
}

// SyncTarget names one series/source pair the sync loop keeps current.
// ScrapeKey has the form "<source>/<series-key>".
type SyncTarget struct {
	SeriesID   string `mapstructure:"series_id"`
	SourceID   string `mapstructure:"source_id"`
	SourceName string `mapstructure:"source_name"`
	ScrapeKey  string `mapstructure:"scrape_key"`
}

// SchedulerConfig governs the background sweeps.
type SchedulerConfig struct {
	RecoveryIntervalMin int `mapstructure:"recovery_interval_minutes"`
	DemotionIntervalMin int `mapstructure:"demotion_interval_minutes"`
	BatchSize           int `mapstructure:"batch_size"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SERIALHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 2)
	v.SetDefault("db.conn_lifetime_minutes", 30)
	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.poll_interval_seconds", 2)
	v.SetDefault("queue.max_attempts", 8)
	v.SetDefault("queue.backoff_base_seconds", 60)
	v.SetDefault("queue.backoff_max_seconds", 3600)
	v.SetDefault("resolver.schema_version", 2)
	v.SetDefault("activity.impression_flush_seconds", 30)
	v.SetDefault("provider.timeout_seconds", 10)
	v.SetDefault("provider.cache_ttl_minutes", 15)
	v.SetDefault("provider.cache_max_entries", 1024)
	v.SetDefault("scraper.user_agent", "serialhub-bot/0.1")
	v.SetDefault("scraper.timeout_seconds", 15)
	v.SetDefault("scraper.sync_interval_minutes", 60)
	v.SetDefault("scraper.rps", 1)
	v.SetDefault("scraper.burst", 2)
	v.SetDefault("scheduler.recovery_interval_minutes", 15)
	v.SetDefault("scheduler.demotion_interval_minutes", 1440)
	v.SetDefault("scheduler.batch_size", 100)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	if c.Queue.Workers <= 0 {
		return fmt.Errorf("queue.workers must be > 0")
	}
	if c.Queue.MaxAttempts <= 0 {
		return fmt.Errorf("queue.max_attempts must be > 0")
	}
	if c.Resolver.SchemaVersion <= 0 {
		return fmt.Errorf("resolver.schema_version must be > 0")
	}
	if c.Provider.TimeoutSeconds <= 0 {
		return fmt.Errorf("provider.timeout_seconds must be > 0")
	}
	return nil
}

// PollInterval returns the worker poll interval as a duration.
func (c QueueConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// ConnLifetime returns the pool connection lifetime as a duration.
func (c DBConfig) ConnLifetime() time.Duration {
	return time.Duration(c.ConnLifetimeMin) * time.Minute
}
