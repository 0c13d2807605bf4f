package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/reelscout/reelscout/internal/indexer/types"
)

// ErrMissingBasePath is returned when a required directory is not configured.
var ErrMissingBasePath = errors.New("missing base path")

// Default directories, overridable through USER_DB_CONTENT, USER_CONFIG and USER_LOGS.
const (
	DefaultDBContentDir = "/user/db_content"
	DefaultConfigDir    = "/user/config"
	DefaultLogsDir      = "/user/logs"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig     `mapstructure:"server"`
	Paths    PathsConfig      `mapstructure:"paths"`
	Logging  LoggingConfig    `mapstructure:"logging"`
	Trakt    TraktConfig      `mapstructure:"trakt"`
	Metadata MetadataConfig   `mapstructure:"metadata"`
	Scraping ScrapingConfig   `mapstructure:"scraping"`
	Indexers []types.Instance `mapstructure:"indexers"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// ScrapesPerMinute caps scrape requests per client IP; zero disables the cap.
	ScrapesPerMinute int `mapstructure:"scrapes_per_minute"`
}

// PathsConfig holds the on-disk locations.
type PathsConfig struct {
	DBContent string `mapstructure:"db_content"`
	Config    string `mapstructure:"config"`
	Logs      string `mapstructure:"logs"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// TraktConfig holds the upstream metadata provider settings.
type TraktConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	APIVersion   string        `mapstructure:"api_version"`
	Timeout      time.Duration `mapstructure:"timeout"`
	GetLimit     int           `mapstructure:"get_limit"`
	GetWindow    time.Duration `mapstructure:"get_window"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
	// TokenFile defaults to trakt_token.json in the config directory.
	TokenFile string `mapstructure:"token_file"`
}

// MetadataConfig holds metadata cache settings.
type MetadataConfig struct {
	// StalenessThresholdDays seeds the settings file when it has no value.
	StalenessThresholdDays int `mapstructure:"staleness_threshold_days"`
	// AliasCacheTTL bounds alias cache entries; zero keeps them until a
	// force refresh or restart.
	AliasCacheTTL   time.Duration `mapstructure:"alias_cache_ttl"`
	IncludeSpecials bool          `mapstructure:"include_specials"`
}

// ScrapingConfig holds dispatcher and pipeline settings.
type ScrapingConfig struct {
	ScraperTimeout      time.Duration `mapstructure:"scraper_timeout"`
	BatchTimeout        time.Duration `mapstructure:"batch_timeout"`
	AnimeTimeout        time.Duration `mapstructure:"anime_timeout"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
	Workers             int           `mapstructure:"workers"`
	UltimateSortOrder   string        `mapstructure:"ultimate_sort_order"`
	SoftMaxSize         bool          `mapstructure:"soft_max_size"`
	FilterTrashReleases bool          `mapstructure:"filter_trash_releases"`
	DisableAdult        bool          `mapstructure:"disable_adult"`
	PackWantedness      bool          `mapstructure:"pack_wantedness"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ScrapesPerMinute: 30,
		},
		Paths: PathsConfig{
			DBContent: DefaultDBContentDir,
			Config:    DefaultConfigDir,
			Logs:      DefaultLogsDir,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Trakt: TraktConfig{
			BaseURL:    "https://api.trakt.tv",
			ClientID:   EmbeddedTraktClientID,
			APIVersion: "2",
			Timeout:    30 * time.Second,
			GetLimit:   1000,
			GetWindow:  5 * time.Minute,
			MaxRetries: 3,
			RetryDelay: time.Second,
		},
		Metadata: MetadataConfig{
			StalenessThresholdDays: 7,
		},
		Scraping: ScrapingConfig{
			ScraperTimeout:      30 * time.Second,
			BatchTimeout:        60 * time.Second,
			AnimeTimeout:        15 * time.Second,
			RequestTimeout:      20 * time.Second,
			Workers:             8,
			FilterTrashReleases: true,
			DisableAdult:        true,
		},
	}
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.reelscout")
	}

	v.SetEnvPrefix("REELSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The directory variables are shared with sibling services and carry no prefix.
	_ = v.BindEnv("paths.db_content", "USER_DB_CONTENT")
	_ = v.BindEnv("paths.config", "USER_CONFIG")
	_ = v.BindEnv("paths.logs", "USER_LOGS")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Trakt.TokenFile == "" && cfg.Paths.Config != "" {
		cfg.Trakt.TokenFile = filepath.Join(cfg.Paths.Config, "trakt_token.json")
	}

	return cfg, nil
}

// Validate fails fast on configuration the engine cannot run with.
func (c *Config) Validate() error {
	for name, p := range map[string]string{
		"db_content": c.Paths.DBContent,
		"config":     c.Paths.Config,
		"logs":       c.Paths.Logs,
	} {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%w: %s", ErrMissingBasePath, name)
		}
	}
	if c.Scraping.ScraperTimeout < 0 || c.Scraping.BatchTimeout < 0 {
		return errors.New("scraping timeouts must not be negative")
	}
	if c.Scraping.Workers <= 0 {
		return errors.New("scraping workers must be positive")
	}
	return nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.scrapes_per_minute", d.Server.ScrapesPerMinute)

	v.SetDefault("paths.db_content", d.Paths.DBContent)
	v.SetDefault("paths.config", d.Paths.Config)
	v.SetDefault("paths.logs", d.Paths.Logs)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
	v.SetDefault("logging.compress", d.Logging.Compress)

	v.SetDefault("trakt.base_url", d.Trakt.BaseURL)
	v.SetDefault("trakt.client_id", d.Trakt.ClientID)
	v.SetDefault("trakt.client_secret", EmbeddedTraktClientSecret)
	v.SetDefault("trakt.api_version", d.Trakt.APIVersion)
	v.SetDefault("trakt.timeout", d.Trakt.Timeout)
	v.SetDefault("trakt.get_limit", d.Trakt.GetLimit)
	v.SetDefault("trakt.get_window", d.Trakt.GetWindow)
	v.SetDefault("trakt.max_retries", d.Trakt.MaxRetries)
	v.SetDefault("trakt.retry_delay", d.Trakt.RetryDelay)
	v.SetDefault("trakt.token_file", "")

	v.SetDefault("metadata.staleness_threshold_days", d.Metadata.StalenessThresholdDays)
	v.SetDefault("metadata.alias_cache_ttl", d.Metadata.AliasCacheTTL)
	v.SetDefault("metadata.include_specials", false)

	v.SetDefault("scraping.scraper_timeout", d.Scraping.ScraperTimeout)
	v.SetDefault("scraping.batch_timeout", d.Scraping.BatchTimeout)
	v.SetDefault("scraping.anime_timeout", d.Scraping.AnimeTimeout)
	v.SetDefault("scraping.request_timeout", d.Scraping.RequestTimeout)
	v.SetDefault("scraping.workers", d.Scraping.Workers)
	v.SetDefault("scraping.ultimate_sort_order", "")
	v.SetDefault("scraping.soft_max_size", false)
	v.SetDefault("scraping.filter_trash_releases", d.Scraping.FilterTrashReleases)
	v.SetDefault("scraping.disable_adult", d.Scraping.DisableAdult)
	v.SetDefault("scraping.pack_wantedness", false)
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
