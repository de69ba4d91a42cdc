// Package config loads application configuration from glimpse.yaml and
// GLIMPSE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration. The CLI and the server both
// read from it; unused sections stay at their zero values.
type Config struct {
	Socket   SocketConfig   `mapstructure:"socket"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Google   GoogleConfig   `mapstructure:"google"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Log      LogConfig      `mapstructure:"log"`
}

// SocketConfig configures the HTTP listener and the websocket mount point.
type SocketConfig struct {
	Port int    `mapstructure:"port"`
	Path string `mapstructure:"path"`
}

// DatabaseConfig points at the server-side Postgres instance.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// AuthConfig holds the token signing secret and the credential table used
// for session issuance.
type AuthConfig struct {
	Secret      string            `mapstructure:"secret"`
	TokenTTL    time.Duration     `mapstructure:"token_ttl"`
	Credentials map[string]string `mapstructure:"credentials"`
	APIBase     string            `mapstructure:"api_base"`
	SessionFile string            `mapstructure:"session_file"`
}

// GoogleConfig holds the calendar import credentials.
type GoogleConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	TokenFile    string `mapstructure:"token_file"`
	CalendarID   string `mapstructure:"calendar_id"`
}

// KafkaConfig configures the optional mutation event stream. Empty brokers
// disable publishing.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// LogConfig controls where server logs go. An empty file logs to stderr.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Socket: SocketConfig{
			Port: 3000,
			Path: "/ws",
		},
		Auth: AuthConfig{
			TokenTTL:    24 * time.Hour,
			APIBase:     "http://localhost:3000",
			SessionFile: filepath.Join(dataDir(), "session.json"),
		},
		Google: GoogleConfig{
			TokenFile:  filepath.Join(dataDir(), "google-token.json"),
			CalendarID: "primary",
		},
		Kafka: KafkaConfig{
			Topic: "glimpse.tasks",
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Load reads glimpse.yaml from the working directory or ~/.glimpse/, then
// applies GLIMPSE_* environment overrides (GLIMPSE_DATABASE_URL and so on).
// A missing config file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GLIMPSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("glimpse")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".glimpse"))
		}
	}

	cfg := Default()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// LocalDBPath returns where the guest-mode store lives.
func LocalDBPath() string {
	return filepath.Join(dataDir(), "tasks.db")
}

func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".glimpse"
	}
	return filepath.Join(home, ".glimpse")
}

