package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/CTAG07/tundra/pkg/store/redis"
	"github.com/CTAG07/tundra/pkg/store/sqlite"
	"github.com/CTAG07/tundra/pkg/tundra"
)

// openStore builds the program cache backend named by the config. The returned
// closer releases whatever the backend holds open.
func openStore(config *CacheConfig, logger *slog.Logger) (tundra.ProgramStore, func(), error) {
	switch strings.ToLower(config.Backend) {
	case "", backendMemory:
		return tundra.NewMemoryStore(), func() {}, nil

	case backendSQLite:
		path, _, _ := strings.Cut(config.SQLitePath, "?")
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, nil, fmt.Errorf("failed to create cache directory: %w", err)
			}
		}
		db, err := openDB(config.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open cache database: %w", err)
		}
		if err = sqlite.SetupSchema(db); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to setup cache schema: %w", err)
		}
		store, err := sqlite.NewStore(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to prepare cache store: %w", err)
		}
		store.SetLogger(logger)
		logger.Info("Using sqlite program cache", "path", path)
		return store, func() {
			store.Close()
			if err := db.Close(); err != nil {
				logger.Error("Failed to close cache database", "error", err)
			}
		}, nil

	case backendRedis:
		var opts []redis.Option
		if config.RedisPrefix != "" {
			opts = append(opts, redis.WithPrefix(config.RedisPrefix))
		}
		store := redis.New(config.RedisAddr, config.RedisPassword, config.RedisDB, opts...)
		logger.Info("Using redis program cache", "addr", config.RedisAddr, "db", config.RedisDB)
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Error("Failed to close redis client", "error", err)
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", config.Backend)
	}
}
