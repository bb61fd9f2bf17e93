// Package mysql provides single-session MySQL connections for querypool,
// backed by go-sql-driver/mysql.
//
// Usage:
//
//	cfg := backend.DefaultConfig(backend.DriverMySQL, "app:secret@tcp(localhost:3306)/app?parseTime=true")
//	connector, err := mysql.NewConnector(cfg)
//	if err != nil { ... }
//	p, err := pool.New[backend.Statement, *backend.ResultSet](connector, 8)
package mysql

import (
	"github.com/go-sql-driver/mysql"
	"github.com/koustreak/querypool/internal/backend"
	"github.com/koustreak/querypool/internal/backend/sqlconn"
	"github.com/koustreak/querypool/internal/errs"
)

// NewConnector parses cfg.DSN and returns a connector whose sessions are
// each pinned to one MySQL connection.
func NewConnector(cfg *backend.Config) (*sqlconn.Connector, error) {
	if cfg == nil {
		return nil, errs.New(errs.ErrKindInvalidInput, "mysql config is nil")
	}
	myCfg, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid DSN", err)
	}
	if cfg.ConnectTimeout > 0 {
		myCfg.Timeout = cfg.ConnectTimeout
	}
	dc, err := mysql.NewConnector(myCfg)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid mysql config", err)
	}
	return sqlconn.NewConnector(cfg, dc, mapError)
}
