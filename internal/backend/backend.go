// Package backend defines the query and result types shared by the SQL
// connection backends (postgres, mysql, mssql), plus the helpers they
// have in common.
//
// Every SQL backend produces a pool.Conn[Statement, *ResultSet], so a pool
// or dispatch.Service over any of them has the same type:
//
//	var p *pool.Pool[backend.Statement, *backend.ResultSet]
package backend

import (
	"strings"

	"github.com/koustreak/querypool/internal/pool"
)

// Statement is one parameterized SQL statement.
type Statement struct {
	SQL  string
	Args []any
}

// Stmt is shorthand for Statement{SQL: sql, Args: args}.
func Stmt(sql string, args ...any) Statement {
	return Statement{SQL: sql, Args: args}
}

// ResultSet is the fully materialized outcome of a Statement.
type ResultSet struct {
	// Columns holds the column names, in select-list order. Empty for
	// statements that return no rows.
	Columns []string

	// Rows holds one slice per row, aligned with Columns.
	Rows [][]any

	// RowsAffected is reported by statements that modify data; -1 when the
	// backend does not say.
	RowsAffected int64
}

// Maps returns the rows keyed by column name.
func (r *ResultSet) Maps() []map[string]any {
	out := make([]map[string]any, len(r.Rows))
	for i, row := range r.Rows {
		m := make(map[string]any, len(r.Columns))
		for j, col := range r.Columns {
			if j < len(row) {
				m[col] = row[j]
			}
		}
		out[i] = m
	}
	return out
}

// Conn is a connection to any SQL backend.
type Conn = pool.Conn[Statement, *ResultSet]

// Connector builds connections to a SQL backend.
type Connector = pool.Connector[Statement, *ResultSet]

// ReturnsRows guesses from the leading keyword whether sql produces a
// result set. Backends that distinguish query from exec use it.
func ReturnsRows(sql string) bool {
	s := strings.TrimLeft(sql, " \t\r\n(")
	end := strings.IndexFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '('
	})
	if end >= 0 {
		s = s[:end]
	}
	switch strings.ToUpper(s) {
	case "SELECT", "WITH", "SHOW", "DESCRIBE", "DESC", "EXPLAIN", "VALUES", "TABLE", "PRAGMA":
		return true
	}
	return strings.Contains(strings.ToUpper(sql), " RETURNING ")
}
