// Package config loads server settings from code defaults, an optional
// TOML or YAML file and REPLKV_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v2"
)

var ErrUnsupportedFormat = errors.New("unsupported config file format")

type Config struct {
	Server      ServerConfig      `toml:"server" yaml:"server"`
	Log         LogConfig         `toml:"log" yaml:"log"`
	Replication ReplicationConfig `toml:"replication" yaml:"replication"`
}

type ServerConfig struct {
	Addr         string `toml:"addr" yaml:"addr"`
	Port         int    `toml:"port" yaml:"port"`
	Role         string `toml:"role" yaml:"role"`
	FollowerAddr string `toml:"follower_addr" yaml:"follower_addr"`
	LeaderAddr   string `toml:"leader_addr" yaml:"leader_addr"`
	// Data is the log file; empty means kv_<port>.db in the working directory.
	Data        string `toml:"data" yaml:"data"`
	MetricsAddr string `toml:"metrics_addr" yaml:"metrics_addr"`
}

type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

type ReplicationConfig struct {
	DialTimeout  time.Duration `toml:"dial_timeout" yaml:"dial_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout" yaml:"write_timeout"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr: "127.0.0.1",
			Port: 4000,
			Role: "leader",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Replication: ReplicationConfig{
			DialTimeout:  2 * time.Second,
			WriteTimeout: 2 * time.Second,
		},
	}
}

// Load returns the defaults overlaid with the file at path (if non-empty)
// and then with the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.UnmarshalStrict(data, cfg); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

func (c *Config) applyEnv() error {
	c.Server.Addr = envOrDefault("REPLKV_ADDR", c.Server.Addr)
	c.Server.Role = envOrDefault("REPLKV_ROLE", c.Server.Role)
	c.Server.FollowerAddr = envOrDefault("REPLKV_FOLLOWER_ADDR", c.Server.FollowerAddr)
	c.Server.LeaderAddr = envOrDefault("REPLKV_LEADER_ADDR", c.Server.LeaderAddr)
	c.Server.Data = envOrDefault("REPLKV_DATA", c.Server.Data)
	c.Server.MetricsAddr = envOrDefault("REPLKV_METRICS_ADDR", c.Server.MetricsAddr)
	c.Log.Level = envOrDefault("REPLKV_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOrDefault("REPLKV_LOG_FORMAT", c.Log.Format)

	if v := os.Getenv("REPLKV_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REPLKV_PORT: %w", err)
		}
		c.Server.Port = port
	}
	return nil
}

// Validate checks the settings that cannot be caught by parsing alone.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Server.Port)
	}
	switch strings.ToLower(c.Server.Role) {
	case "leader":
	case "follower":
		if c.Server.LeaderAddr == "" {
			return errors.New("follower requires leader_addr")
		}
	default:
		return fmt.Errorf("unknown role %q", c.Server.Role)
	}
	return nil
}

// ListenAddr joins Addr and Port.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Server.Addr, strconv.Itoa(c.Server.Port))
}

// DataPath is the log file to open.
func (c Config) DataPath() string {
	if c.Server.Data != "" {
		return c.Server.Data
	}
	return fmt.Sprintf("kv_%d.db", c.Server.Port)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
