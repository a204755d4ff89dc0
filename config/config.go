// Package config loads the configuration of the miniprof tools.
//
// Values come from three layers, later ones winning: the defaults, a YAML
// file, and MINIPROF_* environment variables. A .env file in the working
// directory is loaded into the environment first, without overriding
// variables that are already set.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sarchlab/miniprof/idgen"
	"github.com/sarchlab/miniprof/tracestore"
	"github.com/sarchlab/miniprof/webprof"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes the environment variables that override the file.
const EnvPrefix = "MINIPROF_"

// Config is the configuration of the miniprof tools.
type Config struct {
	Server   ServerConfig      `yaml:"server"`
	Store    tracestore.Config `yaml:"store"`
	Profiler ProfilerConfig    `yaml:"profiler"`
	Log      LogConfig         `yaml:"log"`
}

// ServerConfig configures the results server.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	BasePath    string `yaml:"base_path"`
	OpenBrowser bool   `yaml:"open_browser"`
}

// ProfilerConfig decides which requests are profiled and how they are
// identified.
type ProfilerConfig struct {
	RestrictToAdmins bool     `yaml:"restrict_to_admins"`
	RestrictToUsers  []string `yaml:"restrict_to_users"`
	RestrictToURLs   []string `yaml:"restrict_to_urls"`

	// IDGenerator is one of sequential, xid and uuid. When empty, the memory
	// store gets sequential IDs and the other stores get xid.
	IDGenerator string `yaml:"id_generator"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn and error.
	Level string `yaml:"level"`

	// Format is either text or json.
	Format string `yaml:"format"`
}

// Default returns a configuration that keeps traces in memory.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:     "127.0.0.1:8090",
			BasePath: webprof.DefaultResultsPath,
		},
		Store: tracestore.Config{
			Backend: tracestore.BackendMemory,
			TTL:     30 * time.Minute,
			SQLite:  tracestore.SQLiteConfig{Path: "miniprof.sqlite3"},
			Badger:  tracestore.BadgerConfig{Path: "miniprof.badger"},
			Redis: tracestore.RedisConfig{
				Addr:     "127.0.0.1:6379",
				PoolSize: 4,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the configuration file at path, which may be empty, and applies
// the environment overrides. The envFiles are loaded into the environment
// first; without envFiles, ".env" is loaded if it exists.
func Load(path string, envFiles ...string) (Config, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return Config{}, err
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}

		files = []string{".env"}
	}

	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}

	return nil
}

func (c *Config) applyEnv() error {
	var errs []error

	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}

	list := func(name string, dst *[]string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = splitList(v)
		}
	}

	boolean := func(name string, dst *bool) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}

			*dst = b
		}
	}

	integer := func(name string, dst *int) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			i, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}

			*dst = i
		}
	}

	duration := func(name string, dst *time.Duration) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}

			*dst = d
		}
	}

	str("SERVER_ADDR", &c.Server.Addr)
	str("SERVER_BASE_PATH", &c.Server.BasePath)
	boolean("SERVER_OPEN_BROWSER", &c.Server.OpenBrowser)

	str("STORE_BACKEND", &c.Store.Backend)
	duration("STORE_TTL", &c.Store.TTL)
	str("SQLITE_PATH", &c.Store.SQLite.Path)
	str("BADGER_PATH", &c.Store.Badger.Path)
	boolean("BADGER_IN_MEMORY", &c.Store.Badger.InMemory)
	str("REDIS_ADDR", &c.Store.Redis.Addr)
	integer("REDIS_POOL_SIZE", &c.Store.Redis.PoolSize)
	integer("REDIS_DB", &c.Store.Redis.DB)

	boolean("RESTRICT_TO_ADMINS", &c.Profiler.RestrictToAdmins)
	list("RESTRICT_TO_USERS", &c.Profiler.RestrictToUsers)
	list("RESTRICT_TO_URLS", &c.Profiler.RestrictToURLs)
	str("ID_GENERATOR", &c.Profiler.IDGenerator)

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string

	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}

	return out
}

// Validate reports every problem of the configuration.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}

	switch {
	case !strings.HasPrefix(c.Server.BasePath, "/"):
		errs = append(errs, fmt.Errorf(
			"server.base_path %q must start with /", c.Server.BasePath))
	case strings.Trim(c.Server.BasePath, "/") == "":
		errs = append(errs, fmt.Errorf(
			"server.base_path %q must not be the root", c.Server.BasePath))
	}

	if c.Store.TTL < 0 {
		errs = append(errs, errors.New("store.ttl must not be negative"))
	}

	switch c.Store.Backend {
	case tracestore.BackendMemory:
	case tracestore.BackendSQLite:
		if c.Store.SQLite.Path == "" {
			errs = append(errs, errors.New("store.sqlite.path is required"))
		}
	case tracestore.BackendBadger:
		if c.Store.Badger.Path == "" && !c.Store.Badger.InMemory {
			errs = append(errs, errors.New("store.badger.path is required"))
		}
	case tracestore.BackendRedis:
		if c.Store.Redis.Addr == "" {
			errs = append(errs, errors.New("store.redis.addr is required"))
		}
	default:
		errs = append(errs, fmt.Errorf(
			"store.backend %q is not one of memory, sqlite, badger, redis",
			c.Store.Backend))
	}

	if _, err := idgen.New(c.Profiler.IDGenerator); err != nil {
		errs = append(errs, fmt.Errorf("profiler.id_generator: %w", err))
	}

	if c.Profiler.IDGenerator == idgen.KindSequential && c.persistentStore() {
		errs = append(errs, fmt.Errorf(
			"profiler.id_generator sequential restarts with every process "+
				"and would overwrite the traces kept by the %s store",
			c.Store.Backend))
	}

	if _, err := c.Log.level(); err != nil {
		errs = append(errs, err)
	}

	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf(
			"log.format %q is not one of text, json", c.Log.Format))
	}

	return errors.Join(errs...)
}

// IDGeneratorKind returns the kind of request IDs to generate.
func (c Config) IDGeneratorKind() string {
	if c.Profiler.IDGenerator != "" {
		return c.Profiler.IDGenerator
	}

	if c.persistentStore() {
		return idgen.KindXID
	}

	return idgen.KindSequential
}

func (c Config) persistentStore() bool {
	switch c.Store.Backend {
	case "", tracestore.BackendMemory:
		return false
	case tracestore.BackendBadger:
		return !c.Store.Badger.InMemory
	default:
		return true
	}
}

func (c LogConfig) level() (slog.Level, error) {
	var level slog.Level

	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", c.Level, err)
	}

	return level, nil
}

// NewLogger creates the logger described by the configuration.
func (c LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := c.level()
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}

	switch c.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", c.Format)
	}
}
