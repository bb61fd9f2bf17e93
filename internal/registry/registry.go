// Package registry builds the configured pools and their dispatch
// services, and looks them up by name.
//
// Usage:
//
//	reg, err := registry.New(cfg, log)
//	if err != nil { ... }
//	defer reg.Close(ctx)
//
//	sp, ok := reg.SQL("orders")
//	fut := sp.Service.Dispatch(backend.Stmt("SELECT 1"))
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/koustreak/querypool/internal/backend"
	"github.com/koustreak/querypool/internal/backend/mssql"
	"github.com/koustreak/querypool/internal/backend/mysql"
	"github.com/koustreak/querypool/internal/backend/objectstore"
	"github.com/koustreak/querypool/internal/backend/postgres"
	"github.com/koustreak/querypool/internal/config"
	"github.com/koustreak/querypool/internal/dispatch"
	"github.com/koustreak/querypool/internal/errs"
	"github.com/koustreak/querypool/internal/executor"
	"github.com/koustreak/querypool/internal/logger"
	"github.com/koustreak/querypool/internal/pool"
)

// SQLService dispatches SQL statements.
type SQLService = dispatch.Service[backend.Statement, *backend.ResultSet]

// ObjectService dispatches object store requests.
type ObjectService = dispatch.Service[objectstore.Request, *objectstore.Response]

// SQLPool is a configured SQL pool and its service.
type SQLPool struct {
	Config  config.PoolConfig
	Dialect backend.Dialect
	Service *SQLService
}

// ObjectPool is a configured object store pool and its service.
type ObjectPool struct {
	Config  config.PoolConfig
	Service *ObjectService
}

// PoolStats reports one pool and its executor.
type PoolStats struct {
	Name     string         `json:"name"`
	Backend  config.Backend `json:"backend"`
	Pool     pool.Stats     `json:"pool"`
	InUse    int64          `json:"in_use"`
	Executor executor.Stats `json:"executor"`
}

// SQLConnectorFunc builds the connector for a SQL pool.
type SQLConnectorFunc func(cfg *backend.Config) (backend.Connector, error)

// ObjectConnectorFunc builds the connector for an object store pool.
type ObjectConnectorFunc func(cfg *objectstore.Config) (pool.Connector[objectstore.Request, *objectstore.Response], error)

type options struct {
	sqlConnector    SQLConnectorFunc
	objectConnector ObjectConnectorFunc
}

// Option configures a Registry.
type Option func(o *options)

// WithSQLConnector replaces the driver-based SQL connector factory.
func WithSQLConnector(fn SQLConnectorFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.sqlConnector = fn
		}
	}
}

// WithObjectConnector replaces the MinIO connector factory.
func WithObjectConnector(fn ObjectConnectorFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.objectConnector = fn
		}
	}
}

// Registry owns every configured pool and service.
type Registry struct {
	log     *logger.Logger
	sql     map[string]*SQLPool
	objects map[string]*ObjectPool
	names   []string
}

// New builds a pool and service for every entry in cfg.Pools. If any of
// them fails, the ones already built are closed.
func New(cfg *config.Config, log *logger.Logger, opts ...Option) (*Registry, error) {
	if cfg == nil {
		return nil, errs.New(errs.ErrKindInvalidInput, "config is nil")
	}
	if log == nil {
		log = logger.Global()
	}
	o := options{
		sqlConnector:    NewSQLConnector,
		objectConnector: NewObjectConnector,
	}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Registry{
		log:     log.Named("registry"),
		sql:     make(map[string]*SQLPool),
		objects: make(map[string]*ObjectPool),
	}

	for _, pc := range cfg.Pools {
		if err := r.add(cfg, pc, o); err != nil {
			_ = r.Close(context.Background())
			return nil, err
		}
	}
	sort.Strings(r.names)
	return r, nil
}

func (r *Registry) add(cfg *config.Config, pc config.PoolConfig, o options) error {
	if err := pc.Validate(); err != nil {
		return err
	}
	validator, err := pc.NewValidator()
	if err != nil {
		return err
	}
	poolOpts := []pool.Option{
		pool.WithName(pc.Name),
		pool.WithValidator(validator),
		pool.WithLogger(r.log),
	}
	execCfg := cfg.ExecutorConfig(pc)
	execOpts := []executor.Option{executor.WithLogger(r.log)}

	if pc.Backend.IsSQL() {
		sqlCfg := pc.SQL
		dialect, err := backend.DialectFor(sqlCfg.Driver)
		if err != nil {
			return err
		}
		connector, err := o.sqlConnector(&sqlCfg)
		if err != nil {
			return errs.Wrap(errs.KindOf(err), fmt.Sprintf("pool %q", pc.Name), err)
		}
		p, err := pool.New[backend.Statement, *backend.ResultSet](connector, pc.MaxSize, poolOpts...)
		if err != nil {
			return err
		}
		svc, err := dispatch.NewService(p, execCfg, execOpts...)
		if err != nil {
			_ = p.Close()
			return err
		}
		r.sql[pc.Name] = &SQLPool{Config: pc, Dialect: dialect, Service: svc}
	} else {
		objCfg := pc.ObjectStore
		connector, err := o.objectConnector(&objCfg)
		if err != nil {
			return errs.Wrap(errs.KindOf(err), fmt.Sprintf("pool %q", pc.Name), err)
		}
		p, err := pool.New[objectstore.Request, *objectstore.Response](connector, pc.MaxSize, poolOpts...)
		if err != nil {
			return err
		}
		svc, err := dispatch.NewService(p, execCfg, execOpts...)
		if err != nil {
			_ = p.Close()
			return err
		}
		r.objects[pc.Name] = &ObjectPool{Config: pc, Service: svc}
	}

	r.names = append(r.names, pc.Name)
	r.log.With().
		Str("pool", pc.Name).
		Str("backend", string(pc.Backend)).
		Int("max_size", pc.MaxSize).
		Int("threads", execCfg.Concurrency).
		Logger().Info("pool ready")
	return nil
}

// NewSQLConnector picks the backend for cfg.Driver.
func NewSQLConnector(cfg *backend.Config) (backend.Connector, error) {
	switch cfg.Driver {
	case backend.DriverPostgres:
		return postgres.NewConnector(cfg)
	case backend.DriverMySQL:
		return mysql.NewConnector(cfg)
	case backend.DriverMSSQL:
		return mssql.NewConnector(cfg)
	}
	return nil, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("unknown driver %q", cfg.Driver))
}

// NewObjectConnector builds a MinIO connector.
func NewObjectConnector(cfg *objectstore.Config) (pool.Connector[objectstore.Request, *objectstore.Response], error) {
	return objectstore.NewConnector(cfg)
}

// SQL returns the SQL pool named name.
func (r *Registry) SQL(name string) (*SQLPool, bool) {
	p, ok := r.sql[name]
	return p, ok
}

// ObjectStore returns the object store pool named name.
func (r *Registry) ObjectStore(name string) (*ObjectPool, bool) {
	p, ok := r.objects[name]
	return p, ok
}

// Names lists every pool, sorted.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Stats snapshots the pool with the given name.
func (r *Registry) Stats(name string) (PoolStats, bool) {
	if p, ok := r.sql[name]; ok {
		return snapshot(p.Config, p.Service.Pool().Stats(), p.Service.Executor().Stats()), true
	}
	if p, ok := r.objects[name]; ok {
		return snapshot(p.Config, p.Service.Pool().Stats(), p.Service.Executor().Stats()), true
	}
	return PoolStats{}, false
}

// AllStats snapshots every pool, in name order.
func (r *Registry) AllStats() []PoolStats {
	out := make([]PoolStats, 0, len(r.names))
	for _, name := range r.names {
		if s, ok := r.Stats(name); ok {
			out = append(out, s)
		}
	}
	return out
}

func snapshot(pc config.PoolConfig, ps pool.Stats, es executor.Stats) PoolStats {
	return PoolStats{Name: pc.Name, Backend: pc.Backend, Pool: ps, InUse: ps.InUse(), Executor: es}
}

// Close stops every service, then closes every pool.
func (r *Registry) Close(ctx context.Context) error {
	var errList []error
	for name, p := range r.sql {
		if err := p.Service.Shutdown(ctx); err != nil {
			errList = append(errList, fmt.Errorf("%s: %w", name, err))
		}
		if err := p.Service.Pool().Close(); err != nil {
			errList = append(errList, fmt.Errorf("%s: %w", name, err))
		}
	}
	for name, p := range r.objects {
		if err := p.Service.Shutdown(ctx); err != nil {
			errList = append(errList, fmt.Errorf("%s: %w", name, err))
		}
		if err := p.Service.Pool().Close(); err != nil {
			errList = append(errList, fmt.Errorf("%s: %w", name, err))
		}
	}
	if err := errors.Join(errList...); err != nil {
		r.log.ErrorWith("registry shutdown finished with errors", err, nil)
		return err
	}
	r.log.Info("registry closed")
	return nil
}
