// Package config defines eveflow's settings and loads them from viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid config")

// Config is the full set of runtime settings.
type Config struct {
	EvePath string       `mapstructure:"eve_path"`
	Buffer  BufferConfig `mapstructure:"buffer"`
	Hub     HubConfig    `mapstructure:"hub"`
	Tail    TailConfig   `mapstructure:"tail"`
	Server  ServerConfig `mapstructure:"server"`
	Log     LogConfig    `mapstructure:"log"`
	NATS    NATSConfig   `mapstructure:"nats"`
}

type BufferConfig struct {
	Capacity int `mapstructure:"capacity"`
}

type HubConfig struct {
	SnapshotSize int `mapstructure:"snapshot_size"`
	QueueSize    int `mapstructure:"queue_size"`
	MaxMisses    int `mapstructure:"max_misses"`
}

type TailConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type ServerConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	Pprof       bool     `mapstructure:"pprof"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// NATSConfig enables forwarding of live records when URL is set.
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("eve_path", "/var/log/suricata/eve.json")
	v.SetDefault("buffer.capacity", 1000)
	v.SetDefault("hub.snapshot_size", 50)
	v.SetDefault("hub.queue_size", 256)
	v.SetDefault("hub.max_misses", 128)
	v.SetDefault("tail.poll_interval", time.Second)
	v.SetDefault("server.addr", ":3001")
	v.SetDefault("server.cors_origins", []string{
		"http://localhost:5173",
		"http://localhost:5174",
		"http://127.0.0.1:5173",
		"http://127.0.0.1:5174",
	})
	v.SetDefault("server.pprof", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "eveflow.records")
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that have no sensible fallback.
func (c Config) Validate() error {
	switch {
	case c.EvePath == "":
		return fmt.Errorf("%w: eve_path is empty", ErrInvalid)
	case c.Buffer.Capacity <= 0:
		return fmt.Errorf("%w: buffer.capacity must be positive, got %d", ErrInvalid, c.Buffer.Capacity)
	case c.Hub.SnapshotSize < 0:
		return fmt.Errorf("%w: hub.snapshot_size must not be negative", ErrInvalid)
	case c.Hub.QueueSize <= 0:
		return fmt.Errorf("%w: hub.queue_size must be positive", ErrInvalid)
	case c.Tail.PollInterval <= 0:
		return fmt.Errorf("%w: tail.poll_interval must be positive", ErrInvalid)
	case c.Server.Addr == "":
		return fmt.Errorf("%w: server.addr is empty", ErrInvalid)
	}
	return nil
}
