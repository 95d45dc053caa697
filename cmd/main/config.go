package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/CTAG07/tundra/pkg/tundra"
	"github.com/natefinch/atomic"
)

const (
	backendMemory = "memory"
	backendSQLite = "sqlite"
	backendRedis  = "redis"
)

// ServerConfig holds the settings of the preview server and logging.
type ServerConfig struct {
	Addr     string `json:"addr"`
	LogLevel string `json:"log_level"`
}

// CacheConfig selects and configures the program cache backend.
type CacheConfig struct {
	Backend       string `json:"backend"`
	SQLitePath    string `json:"sqlite_path"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
	RedisPrefix   string `json:"redis_prefix"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server *ServerConfig  `json:"server_config"`
	Engine *tundra.Config `json:"engine_config"`
	Cache  *CacheConfig   `json:"cache_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Addr:     ":7280",
		LogLevel: "info",
	}
}

// DefaultCacheConfig keeps compiled programs in process memory.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Backend:     backendMemory,
		SQLitePath:  "./data/tundra_cache.db?_journal_mode=WAL&_busy_timeout=5000",
		RedisAddr:   "localhost:6379",
		RedisPrefix: "tundra:program:",
	}
}

func defaultConfig() *Config {
	engine := tundra.DefaultConfig()
	engine.BaseDir = "./templates"
	engine.Extension = "html"
	return &Config{
		Server: DefaultServerConfig(),
		Engine: engine,
		Cache:  DefaultCacheConfig(),
	}
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	config := defaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// Defaults still work without the file on disk.
				fmt.Fprintf(os.Stderr, "warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// sections set to null in the file fall back to defaults
	defaults := defaultConfig()
	if config.Server == nil {
		config.Server = defaults.Server
	}
	if config.Engine == nil {
		config.Engine = defaults.Engine
	}
	if config.Cache == nil {
		config.Cache = defaults.Cache
	}
	return config, nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(config *Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(config.Server.LogLevel)}))
}
