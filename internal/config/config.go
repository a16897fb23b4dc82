// Package config loads the runtime's configuration, adapted from the
// teacher's commonlib/config package: viper-backed YAML plus environment
// overrides, with the env prefix generalized from CHATEE to ODIN.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServiceConfig identifies this process.
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // dev, staging, prod
	NodeID      string `mapstructure:"node_id"`
}

// ActorSystemConfig bounds the runtime's actor system.
type ActorSystemConfig struct {
	DefaultMailboxBound int           `mapstructure:"default_mailbox_bound"`
	HeartbeatInterval   time.Duration `mapstructure:"heartbeat_interval"`
	ShutdownTimeout     time.Duration `mapstructure:"shutdown_timeout"`
	SchedulerWorkers    int           `mapstructure:"scheduler_workers"`
}

// HTTPConfig configures the SPA Server's listener.
type HTTPConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	TLSCertFile string `mapstructure:"tls_cert_file"`
	TLSKeyFile  string `mapstructure:"tls_key_file"`
}

// WebSocketConfig configures per-connection tuning for the SPA Server.
type WebSocketConfig struct {
	ReadBufferSize  int           `mapstructure:"read_buffer_size"`
	WriteBufferSize int           `mapstructure:"write_buffer_size"`
	ConnBufferSize  int           `mapstructure:"conn_buffer_size"`
	ProxyTimeout    time.Duration `mapstructure:"proxy_timeout"`
}

// LogConfig configures obslog.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
	AddCaller  bool   `mapstructure:"add_caller"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// Config holds every section the runtime reads at startup.
type Config struct {
	Service     ServiceConfig      `mapstructure:"service"`
	ActorSystem ActorSystemConfig  `mapstructure:"actor_system"`
	HTTP        HTTPConfig         `mapstructure:"http"`
	WebSocket   WebSocketConfig    `mapstructure:"websocket"`
	Log         LogConfig          `mapstructure:"log"`
}

// Load reads configPath (or the default search path/name "config.yaml" under
// ".", "./configs", "/etc/odin") layered under defaults and ODIN_-prefixed
// environment variables.
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
		v.AddConfigPath("/etc/odin")
	}

	v.SetEnvPrefix("ODIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "odin")
	v.SetDefault("service.environment", "dev")

	v.SetDefault("actor_system.default_mailbox_bound", 64)
	v.SetDefault("actor_system.heartbeat_interval", "2s")
	v.SetDefault("actor_system.shutdown_timeout", "5s")
	v.SetDefault("actor_system.scheduler_workers", 4)

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)

	v.SetDefault("websocket.read_buffer_size", 4096)
	v.SetDefault("websocket.write_buffer_size", 4096)
	v.SetDefault("websocket.conn_buffer_size", 256)
	v.SetDefault("websocket.proxy_timeout", "10s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_path", "stdout")
	v.SetDefault("log.add_caller", true)
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 30)
}

// Validate checks the bounds the runtime cannot sensibly start without.
func (c *Config) Validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service.name is required")
	}
	if c.HTTP.Port <= 0 {
		return fmt.Errorf("http.port must be positive")
	}
	return nil
}

// Addr returns the HTTP/WebSocket listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// IsDev reports whether this process is running in a development
// environment.
func (c *Config) IsDev() bool {
	return c.Service.Environment == "dev" || c.Service.Environment == "development"
}
