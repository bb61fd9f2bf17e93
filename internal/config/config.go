// Package config loads querypool's configuration.
//
// Values come from a YAML file and are then overridden by environment
// variables for the fields that carry an env tag. DSNs and keys may
// reference environment variables as ${NAME} so secrets stay out of the
// file.
//
// Usage:
//
//	cfg, err := config.Load("querypool.yaml")
//	if err != nil { ... }
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/koustreak/querypool/internal/backend"
	"github.com/koustreak/querypool/internal/backend/objectstore"
	"github.com/koustreak/querypool/internal/errs"
	"github.com/koustreak/querypool/internal/executor"
	"github.com/koustreak/querypool/internal/logger"
	"github.com/koustreak/querypool/internal/pool"
	"go.yaml.in/yaml/v3"
)

// Backend names the kind of data store a pool connects to.
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendMySQL    Backend = "mysql"
	BackendMSSQL    Backend = "mssql"
	BackendMinIO    Backend = "minio"
)

// IsSQL reports whether the backend speaks SQL.
func (b Backend) IsSQL() bool {
	return b == BackendPostgres || b == BackendMySQL || b == BackendMSSQL
}

// Config is the root configuration.
type Config struct {
	Logger   logger.Config   `yaml:"logger"`
	Executor executor.Config `yaml:"executor"`
	Server   ServerConfig    `yaml:"server"`
	Pools    []PoolConfig    `yaml:"pools"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"QUERYPOOL_HTTP_ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"QUERYPOOL_HTTP_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"QUERYPOOL_HTTP_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"QUERYPOOL_SHUTDOWN_TIMEOUT"`

	// QueryTimeout bounds how long a request waits for its query.
	QueryTimeout time.Duration `yaml:"query_timeout" env:"QUERYPOOL_HTTP_QUERY_TIMEOUT"`
}

// PoolConfig describes one named pool and the service dispatching to it.
type PoolConfig struct {
	Name    string  `yaml:"name"`
	Backend Backend `yaml:"backend"`

	// MaxSize bounds the idle connections kept; 0 keeps none.
	MaxSize int `yaml:"max_size"`

	// Validator is none, automatic or periodic. Empty means automatic.
	Validator pool.ValidatorKind `yaml:"validator"`

	// RevalidateInterval is the periodic validator's check interval.
	RevalidateInterval time.Duration `yaml:"revalidate_interval"`

	// Threads sizes the pool's own executor. Zero uses executor.concurrency.
	Threads int `yaml:"threads"`

	SQL         backend.Config     `yaml:"sql"`
	ObjectStore objectstore.Config `yaml:"object_store"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Logger:   *logger.DefaultConfig(),
		Executor: *executor.DefaultConfig(),
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			QueryTimeout:    30 * time.Second,
		},
	}
}

// Load reads path (skipped when empty), applies environment overrides,
// fills per-pool defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, fmt.Sprintf("failed to read %s", path), err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, fmt.Sprintf("failed to parse %s", path), err)
		}
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to read environment overrides", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-valued per-pool settings and expands ${VAR}
// references in secrets.
func (c *Config) applyDefaults() {
	for i := range c.Pools {
		p := &c.Pools[i]
		p.Backend = Backend(strings.ToLower(string(p.Backend)))
		if p.Validator == pool.ValidatorPeriodic && p.RevalidateInterval == 0 {
			p.RevalidateInterval = pool.DefaultRevalidateInterval
		}

		if p.Backend.IsSQL() {
			def := backend.DefaultConfig(backend.Driver(p.Backend), "")
			p.SQL.Driver = def.Driver
			p.SQL.DSN = os.ExpandEnv(p.SQL.DSN)
			if p.SQL.ConnectTimeout == 0 {
				p.SQL.ConnectTimeout = def.ConnectTimeout
			}
			if p.SQL.PingTimeout == 0 {
				p.SQL.PingTimeout = def.PingTimeout
			}
			if p.SQL.QueryTimeout == 0 {
				p.SQL.QueryTimeout = def.QueryTimeout
			}
		}

		if p.Backend == BackendMinIO {
			def := objectstore.DefaultConfig("", "", "")
			p.ObjectStore.AccessKey = os.ExpandEnv(p.ObjectStore.AccessKey)
			p.ObjectStore.SecretKey = os.ExpandEnv(p.ObjectStore.SecretKey)
			if p.ObjectStore.MaxObjectSize == 0 {
				p.ObjectStore.MaxObjectSize = def.MaxObjectSize
			}
			if p.ObjectStore.PingTimeout == 0 {
				p.ObjectStore.PingTimeout = def.PingTimeout
			}
			if p.ObjectStore.RequestTimeout == 0 {
				p.ObjectStore.RequestTimeout = def.RequestTimeout
			}
		}
	}
}

// Validate checks the configuration for values the pools and executors
// would reject at startup.
func (c *Config) Validate() error {
	if c.Executor.Concurrency < 1 {
		return invalid("executor.concurrency must be at least 1, got %d", c.Executor.Concurrency)
	}
	if c.Server.Addr == "" {
		return invalid("server.addr is required")
	}

	seen := make(map[string]bool, len(c.Pools))
	for i, p := range c.Pools {
		if p.Name == "" {
			return invalid("pools[%d].name is required", i)
		}
		if seen[p.Name] {
			return invalid("duplicate pool name %q", p.Name)
		}
		seen[p.Name] = true

		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks one pool's settings.
func (p *PoolConfig) Validate() error {
	if p.MaxSize < 0 {
		return invalid("pool %q: max_size must not be negative", p.Name)
	}
	if p.Threads < 0 {
		return invalid("pool %q: threads must not be negative", p.Name)
	}
	if _, err := p.NewValidator(); err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, fmt.Sprintf("pool %q", p.Name), err)
	}

	switch {
	case p.Backend.IsSQL():
		if p.SQL.DSN == "" {
			return invalid("pool %q: sql.dsn is required", p.Name)
		}
	case p.Backend == BackendMinIO:
		if p.ObjectStore.Endpoint == "" {
			return invalid("pool %q: object_store.endpoint is required", p.Name)
		}
	default:
		return invalid("pool %q: unknown backend %q", p.Name, p.Backend)
	}
	return nil
}

// NewValidator builds the validator the pool is configured with.
func (p *PoolConfig) NewValidator() (pool.Validator, error) {
	return pool.NewValidator(p.Validator, p.RevalidateInterval)
}

// ExecutorConfig returns the executor settings for the pool's service.
func (c *Config) ExecutorConfig(p PoolConfig) *executor.Config {
	cfg := c.Executor
	if p.Threads > 0 {
		cfg.Concurrency = p.Threads
	}
	return &cfg
}

// Pool returns the pool configuration with the given name.
func (c *Config) Pool(name string) (PoolConfig, bool) {
	for _, p := range c.Pools {
		if p.Name == name {
			return p, true
		}
	}
	return PoolConfig{}, false
}

func invalid(format string, args ...any) error {
	return errs.New(errs.ErrKindInvalidInput, fmt.Sprintf(format, args...))
}
