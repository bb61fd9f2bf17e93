// Package mssql provides single-session SQL Server connections for
// querypool, backed by go-mssqldb.
//
// Statements use @p1, @p2 placeholders (backend.DialectMSSQL).
package mssql

import (
	"github.com/koustreak/querypool/internal/backend"
	"github.com/koustreak/querypool/internal/backend/sqlconn"
	"github.com/koustreak/querypool/internal/errs"
	mssql "github.com/microsoft/go-mssqldb"
)

// NewConnector parses cfg.DSN (sqlserver:// URL or ADO string) and returns
// a connector whose sessions are each pinned to one SQL Server connection.
func NewConnector(cfg *backend.Config) (*sqlconn.Connector, error) {
	if cfg == nil {
		return nil, errs.New(errs.ErrKindInvalidInput, "mssql config is nil")
	}
	dc, err := mssql.NewConnector(cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid DSN", err)
	}
	return sqlconn.NewConnector(cfg, dc, mapError)
}
