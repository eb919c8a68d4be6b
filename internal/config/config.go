// Package config loads server configuration from a YAML file and
// CANVAS_-prefixed environment variables, with typed defaults for every
// value the server reads.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/canvaslab/canvas-sync/internal/store"
)

// APIConfig configures the HTTP listener
type APIConfig struct {
	ListenAddress string        `mapstructure:"listen_address"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
}

// WebSocketConfig configures the realtime connection layer
type WebSocketConfig struct {
	MaxConnections int           `mapstructure:"max_connections"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`

	// RateLimit and RateBurst bound inbound messages per connection,
	// in messages per second
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// BatchConfig configures the operation batch scheduler
type BatchConfig struct {
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	QueueCap      int           `mapstructure:"queue_cap"`
}

// LoggingConfig configures log output
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// CatalogConfig points at the template catalog consumed at startup
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// Config is the root configuration of the server
type Config struct {
	Environment string          `mapstructure:"environment"`
	API         APIConfig       `mapstructure:"api"`
	WebSocket   WebSocketConfig `mapstructure:"websocket"`
	Batch       BatchConfig     `mapstructure:"batch"`
	Store       store.Config    `mapstructure:"store"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	Catalog     CatalogConfig   `mapstructure:"catalog"`
}

// Load loads configuration from file and environment variables. The config
// file path comes from CANVAS_CONFIG_FILE and defaults to
// configs/config.yaml; a missing file is not an error.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	configFile := os.Getenv("CANVAS_CONFIG_FILE")
	if configFile == "" {
		configFile = "configs/config.yaml"
	}
	v.SetConfigFile(configFile)

	v.SetEnvPrefix("CANVAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	if c.API.ListenAddress == "" {
		return fmt.Errorf("api.listen_address must not be empty")
	}
	if c.Batch.FlushInterval <= 0 {
		return fmt.Errorf("batch.flush_interval must be positive, got %s", c.Batch.FlushInterval)
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		return fmt.Errorf("websocket.max_message_size must be positive, got %d", c.WebSocket.MaxMessageSize)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "dev")

	v.SetDefault("api.listen_address", ":8080")
	v.SetDefault("api.read_timeout", 30*time.Second)
	v.SetDefault("api.write_timeout", 30*time.Second)
	v.SetDefault("api.idle_timeout", 90*time.Second)

	v.SetDefault("websocket.max_connections", 1024)
	v.SetDefault("websocket.max_message_size", 1048576)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("websocket.ping_interval", 30*time.Second)
	v.SetDefault("websocket.write_timeout", 10*time.Second)
	v.SetDefault("websocket.rate_limit", 100.0)
	v.SetDefault("websocket.rate_burst", 200)

	v.SetDefault("batch.flush_interval", 50*time.Millisecond)
	v.SetDefault("batch.queue_cap", 4096)

	v.SetDefault("store.oplog_cap", 1000)
	v.SetDefault("store.version_cap", 50)

	v.SetDefault("logging.level", "info")

	v.SetDefault("catalog.path", "configs/templates.json")
}
