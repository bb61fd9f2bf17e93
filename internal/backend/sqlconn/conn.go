// Package sqlconn adapts a database/sql driver into a single pinned session
// that a querypool pool can own. The mysql and mssql backends are built on
// it.
package sqlconn

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"time"

	"github.com/koustreak/querypool/internal/backend"
	"github.com/koustreak/querypool/internal/errs"
)

// ErrorMapper translates a driver error into *errs.Error.
type ErrorMapper func(err error, msg string) *errs.Error

// Connector opens sessions through a database/sql driver.Connector.
type Connector struct {
	cfg    *backend.Config
	dc     driver.Connector
	mapErr ErrorMapper
}

// NewConnector wraps dc. mapErr may be nil, in which case MapError is used.
func NewConnector(cfg *backend.Config, dc driver.Connector, mapErr ErrorMapper) (*Connector, error) {
	if cfg == nil || dc == nil {
		return nil, errs.New(errs.ErrKindInvalidInput, "sql connector requires a config and a driver connector")
	}
	if mapErr == nil {
		mapErr = MapError
	}
	return &Connector{cfg: cfg, dc: dc, mapErr: mapErr}, nil
}

// Connect opens a database handle limited to one physical connection and
// pins that connection.
func (c *Connector) Connect(ctx context.Context) (backend.Conn, error) {
	db := sql.OpenDB(c.dc)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	conn := &Conn{connector: c, db: db}
	if err := conn.pin(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return conn, nil
}

// Conn is one pinned database/sql session.
type Conn struct {
	connector *Connector
	db        *sql.DB
	conn      *sql.Conn
}

func (c *Conn) pin(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, c.connector.cfg.ConnectTimeout)
	defer cancel()

	conn, err := c.db.Conn(ctx)
	if err != nil {
		return c.connector.mapErr(err, "failed to connect")
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return c.connector.mapErr(err, "failed to connect")
	}
	c.conn = conn
	return nil
}

// IsValid pings the pinned session.
func (c *Conn) IsValid(ctx context.Context) bool {
	if c.conn == nil {
		return false
	}
	ctx, cancel := withTimeout(ctx, c.connector.cfg.PingTimeout)
	defer cancel()
	return c.conn.PingContext(ctx) == nil
}

// Reconnect returns the old session to database/sql, which drops it when
// broken, and pins a fresh one.
func (c *Conn) Reconnect(ctx context.Context) error {
	if c.conn != nil {
		// Raw forces the driver to discard the physical connection
		// instead of parking it in the idle list.
		_ = c.conn.Raw(func(any) error { return driver.ErrBadConn })
		_ = c.conn.Close()
		c.conn = nil
	}
	return c.pin(ctx)
}

// Execute runs stmt. Row-returning statements are fully materialized;
// everything else reports RowsAffected.
func (c *Conn) Execute(ctx context.Context, stmt backend.Statement) (*backend.ResultSet, error) {
	if c.conn == nil {
		return nil, errs.New(errs.ErrKindConnectionFailed, "connection is closed")
	}
	ctx, cancel := withTimeout(ctx, c.connector.cfg.QueryTimeout)
	defer cancel()

	if backend.ReturnsRows(stmt.SQL) {
		rows, err := c.conn.QueryContext(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			return nil, c.connector.mapErr(err, "query failed")
		}
		rs, err := backend.ScanRows(rows)
		if err != nil {
			return nil, err
		}
		return rs, nil
	}

	res, err := c.conn.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, c.connector.mapErr(err, "exec failed")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		affected = -1
	}
	return &backend.ResultSet{Rows: make([][]any, 0), RowsAffected: affected}, nil
}

// Close releases the session and its database handle.
func (c *Conn) Close() error {
	var errList []error
	if c.conn != nil {
		errList = append(errList, c.conn.Close())
		c.conn = nil
	}
	if c.db != nil {
		errList = append(errList, c.db.Close())
		c.db = nil
	}
	if err := errors.Join(errList...); err != nil {
		return c.connector.mapErr(err, "failed to close connection")
	}
	return nil
}

// MapError is the driver-agnostic fallback mapping.
func MapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	case errors.Is(err, sql.ErrNoRows):
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}
	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
