// Package config loads application configuration from file and environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/mmcdole/plexmirror/internal/domain"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Events  EventsConfig  `mapstructure:"events"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Store   StoreConfig   `mapstructure:"store"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds media server connection settings
type ServerConfig struct {
	URL      string `mapstructure:"url"`
	Token    string `mapstructure:"token"`
	ClientID string `mapstructure:"client_id"` // generated on first run
}

// SyncConfig holds full sync settings
type SyncConfig struct {
	Interval          time.Duration `mapstructure:"interval"`
	Workers           int           `mapstructure:"workers"`
	Repair            bool          `mapstructure:"repair"` // force-refresh every item on the startup sync
	StartupAttempts   int           `mapstructure:"startup_attempts"`
	StartupRetryDelay time.Duration `mapstructure:"startup_retry_delay"`
	Movies            bool          `mapstructure:"movies"`
	MusicVideos       bool          `mapstructure:"music_videos"`
	Shows             bool          `mapstructure:"shows"`
	Music             bool          `mapstructure:"music"`
}

// EventsConfig holds live change event settings
type EventsConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	SafetyMargin time.Duration `mapstructure:"safety_margin"`
	IgnoreWindow time.Duration `mapstructure:"ignore_window"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

// QueueConfig holds play queue reconciliation settings
type QueueConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	OwnPrefix    string        `mapstructure:"own_prefix"`
}

// StoreConfig holds local mirror database settings
type StoreConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File       string `mapstructure:"file"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Sync: SyncConfig{
			Interval:          time.Hour,
			Workers:           3,
			StartupAttempts:   3,
			StartupRetryDelay: 30 * time.Second,
			Movies:            true,
			MusicVideos:       true,
			Shows:             true,
			Music:             true,
		},
		Events: EventsConfig{
			Enabled:      true,
			SafetyMargin: 5 * time.Second,
			IgnoreWindow: 10 * time.Minute,
			MaxAttempts:  3,
		},
		Queue: QueueConfig{
			Enabled:      true,
			PollInterval: time.Second,
			OwnPrefix:    "plugin://plexmirror",
		},
		Store: StoreConfig{
			Dir: defaultDataPath(),
		},
		Logging: LoggingConfig{
			File:       filepath.Join(defaultDataPath(), "plexmirror.log"),
			Level:      "INFO",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// defaultDataPath returns the default data directory for the current OS
func defaultDataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "plexmirror")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "plexmirror")
	}
}

// defaultConfigPath returns the default config file path for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "plexmirror")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "plexmirror")
	}
}

// LoadConfig loads configuration from file and environment. A missing
// client identifier is generated and written back, so the server sees one
// stable device across restarts.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(defaultConfigPath())
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("PLEXMIRROR")
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if cfg.Server.ClientID == "" {
		cfg.Server.ClientID = uuid.NewString()
		if err := saveClientID(cfg.Server.ClientID); err != nil {
			// Not fatal; a new id is generated next run.
			fmt.Fprintf(os.Stderr, "warning: could not persist client id: %v\n", err)
		}
	}

	return cfg, nil
}

func saveClientID(id string) error {
	viper.Set("server.client_id", id)

	configPath := defaultConfigPath()
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(configPath, "config.yaml")
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// IsConfigured returns true if the server URL and token are set
func (c *Config) IsConfigured() bool {
	return c.Server.URL != "" && c.Server.Token != ""
}

// EnabledCategories returns the categories full syncs should cover.
func (c *Config) EnabledCategories() []domain.MediaCategory {
	var out []domain.MediaCategory
	if c.Sync.Movies {
		out = append(out, domain.CategoryMovies)
	}
	if c.Sync.MusicVideos {
		out = append(out, domain.CategoryMusicVideos)
	}
	if c.Sync.Shows {
		out = append(out, domain.CategoryShows)
	}
	if c.Sync.Music {
		out = append(out, domain.CategoryMusic)
	}
	return out
}
