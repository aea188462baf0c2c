package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the daemon configuration, usually <data_dir>/config.toml.
type Config struct {
	ListenAddr     string   `toml:"listen_addr"`
	DataDir        string   `toml:"data_dir"`
	AllowedOrigins []string `toml:"allowed_origins"`

	AuthSecret string   `toml:"auth_secret"`
	TokenTTL   Duration `toml:"token_ttl"`

	HandshakeGrace  Duration `toml:"handshake_grace"`
	SendBuffer      int      `toml:"send_buffer"`
	FanoutWorkers   int      `toml:"fanout_workers"`
	PreviewLength   int      `toml:"notification_preview_length"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`

	BackplaneRedisURL     string `toml:"backplane_redis_url"`
	BackplaneRedisChannel string `toml:"backplane_redis_channel"`
}

// Duration lets TOML carry values like "10s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// BaseDir returns the default data directory, ~/.chatd.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chatd")
}

// Default returns a config with every field set to its default value.
// AuthSecret has no default and must come from the file.
func Default() *Config {
	return &Config{
		ListenAddr:            ":8080",
		DataDir:               BaseDir(),
		AllowedOrigins:        []string{"*"},
		TokenTTL:              Duration{24 * time.Hour},
		HandshakeGrace:        Duration{10 * time.Second},
		SendBuffer:            256,
		FanoutWorkers:         8,
		PreviewLength:         80,
		ShutdownTimeout:       Duration{10 * time.Second},
		BackplaneRedisChannel: "chatd:presence",
	}
}

// Load reads config from the given path on top of defaults.
// Returns an error if the file is missing or invalid.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

func (c *Config) validate() error {
	if c.AuthSecret == "" {
		return fmt.Errorf("auth_secret must be set")
	}
	if c.SendBuffer <= 0 || c.FanoutWorkers <= 0 || c.PreviewLength <= 0 {
		return fmt.Errorf("send_buffer, fanout_workers and notification_preview_length must be positive")
	}
	return nil
}

// DBPath returns the SQLite database path inside the data dir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "chatd.db")
}

// LogPath returns the daemon log file path inside the data dir.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "logs", "chatd.log")
}
