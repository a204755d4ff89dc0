package tracestore

import (
	"fmt"
	"log/slog"
	"time"
)

// The backends that Open understands.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// SQLiteConfig configures a SQLiteStore.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Config selects and configures a store backend.
type Config struct {
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`
	SQLite  SQLiteConfig  `yaml:"sqlite"`
	Badger  BadgerConfig  `yaml:"badger"`
	Redis   RedisConfig   `yaml:"redis"`
}

// Open creates the store selected by the configuration. An empty backend
// selects the memory store.
func Open(cfg Config, logger *slog.Logger) (Store, error) {
	var (
		s   Store
		err error
	)

	switch cfg.Backend {
	case "", BackendMemory:
		s = NewMemoryStore(cfg.TTL)
	case BackendSQLite:
		s, err = openSQLite(cfg)
	case BackendBadger:
		s, err = openBadger(cfg, logger)
	case BackendRedis:
		s, err = openRedis(cfg)
	default:
		err = fmt.Errorf("unknown store backend %q", cfg.Backend)
	}

	if err != nil {
		return nil, err
	}

	return s, nil
}

func openSQLite(cfg Config) (Store, error) {
	s, err := NewSQLiteStore(cfg.SQLite.Path, cfg.TTL)
	if err != nil {
		return nil, err
	}

	return s, nil
}

func openBadger(cfg Config, logger *slog.Logger) (Store, error) {
	s, err := NewBadgerStore(cfg.Badger, cfg.TTL, logger)
	if err != nil {
		return nil, err
	}

	return s, nil
}

func openRedis(cfg Config) (Store, error) {
	s, err := DialRedisStore(cfg.Redis, cfg.TTL)
	if err != nil {
		return nil, err
	}

	return s, nil
}
