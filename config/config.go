// Package config provides YAML-based configuration for the demo commands.
// The library packages themselves take their settings as plain arguments;
// nothing here is required to embed an engine.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config is the root demo-app configuration.
type Config struct {
	// Name is the logical node name shown in the UI.
	Name string `mapstructure:"name"`

	// Link selects and configures the physical channel.
	Link Link `mapstructure:"link"`

	// Engine holds dispatch engine settings.
	Engine Engine `mapstructure:"engine"`

	// Log holds logger settings.
	Log Log `mapstructure:"log"`
}

// Link selects one channel kind and its settings.
type Link struct {
	// Kind: loopback, serial, ws-serve, or ws-connect.
	Kind string `mapstructure:"kind"`

	Serial SerialLink `mapstructure:"serial"`
	WS     WSLink     `mapstructure:"ws"`
}

// SerialLink configures the serial channel.
type SerialLink struct {
	Port     string `mapstructure:"port"`
	BaudRate int    `mapstructure:"baud_rate"`
}

// WSLink configures the debug-bridge channel.
type WSLink struct {
	// Addr is the listen address for ws-serve (host:port).
	Addr string `mapstructure:"addr"`
	// URL is the endpoint for ws-connect (ws://host:port/bridge).
	URL string `mapstructure:"url"`
}

// Engine holds dispatch engine settings; zero values fall back to the
// transport package defaults.
type Engine struct {
	SendIntervalMS int `mapstructure:"send_interval_ms"`
	QueueCapacity  int `mapstructure:"queue_capacity"`
}

// Log defines logger settings.
type Log struct {
	// Level: debug, info, warn, error.
	Level string `mapstructure:"level"`
	// Format: console or json.
	Format string `mapstructure:"format"`
	// Output: stderr, stdout, or a file path (rotated).
	Output string `mapstructure:"output"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Name: "nets-node",
		Link: Link{
			Kind: "loopback",
			Serial: SerialLink{
				Port:     "/dev/ttyUSB0",
				BaudRate: 115200,
			},
			WS: WSLink{
				Addr: "127.0.0.1:8787",
				URL:  "ws://127.0.0.1:8787/bridge",
			},
		},
		Log: Log{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults untouched.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
