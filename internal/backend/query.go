package backend

import (
	"fmt"
	"strings"

	"github.com/koustreak/querypool/internal/errs"
)

// Dialect controls the placeholder and identifier quoting style the
// builders emit.
type Dialect int

const (
	// DialectPostgres uses $1, $2 placeholders and "ident" quoting.
	DialectPostgres Dialect = iota

	// DialectMySQL uses ? placeholders and `ident` quoting.
	DialectMySQL

	// DialectMSSQL uses @p1, @p2 placeholders and [ident] quoting.
	DialectMSSQL
)

// DialectFor returns the dialect spoken by driver.
func DialectFor(driver Driver) (Dialect, error) {
	switch driver {
	case DriverPostgres:
		return DialectPostgres, nil
	case DriverMySQL:
		return DialectMySQL, nil
	case DriverMSSQL:
		return DialectMSSQL, nil
	}
	return 0, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("unknown driver %q", driver))
}

// validOps is the allowlist of comparison operators for WHERE clauses.
// The operator position cannot be parameterized, so anything else is
// rejected.
var validOps = map[string]bool{
	"=":     true,
	"!=":    true,
	"<>":    true,
	"<":     true,
	">":     true,
	"<=":    true,
	">=":    true,
	"LIKE":  true,
	"ILIKE": true,
}

// SortDirection controls the ORDER BY direction.
type SortDirection bool

const (
	Asc  SortDirection = false
	Desc SortDirection = true
)

type whereClause struct {
	column string
	op     string
	value  any
}

type orderClause struct {
	column string
	dir    SortDirection
}

// SelectBuilder constructs a parameterized SELECT Statement. Values are
// always passed as args, never interpolated.
//
//	stmt, err := backend.Select("users", backend.DialectPostgres).
//	    Columns("id", "name").
//	    Where("active", "=", true).
//	    OrderBy("created_at", backend.Desc).
//	    Limit(20).
//	    Build()
type SelectBuilder struct {
	table   string
	dialect Dialect
	columns []string
	where   []whereClause
	orderBy []orderClause
	limit   *int
	offset  *int
}

// Select starts a new SelectBuilder for the given table and dialect.
func Select(table string, d Dialect) *SelectBuilder {
	return &SelectBuilder{table: table, dialect: d}
}

// Columns restricts the SELECT to the given columns. Without it, SELECT *.
func (b *SelectBuilder) Columns(cols ...string) *SelectBuilder {
	b.columns = cols
	return b
}

// Where adds a condition; multiple calls are combined with AND.
func (b *SelectBuilder) Where(column, op string, value any) *SelectBuilder {
	b.where = append(b.where, whereClause{column, op, value})
	return b
}

// OrderBy appends an ORDER BY term.
func (b *SelectBuilder) OrderBy(column string, dir SortDirection) *SelectBuilder {
	b.orderBy = append(b.orderBy, orderClause{column, dir})
	return b
}

// Limit sets the maximum number of rows to return.
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = &n
	return b
}

// Offset sets the number of rows to skip.
func (b *SelectBuilder) Offset(n int) *SelectBuilder {
	b.offset = &n
	return b
}

// Build produces the Statement. It fails with InvalidInput when the table
// is empty or a WHERE operator is not in the allowlist.
func (b *SelectBuilder) Build() (Statement, error) {
	if b.table == "" {
		return Statement{}, errs.New(errs.ErrKindInvalidInput, "select requires a table")
	}

	cols := "*"
	if len(b.columns) > 0 {
		quoted := make([]string, len(b.columns))
		for i, c := range b.columns {
			quoted[i] = b.dialect.quoteIdent(c)
		}
		cols = strings.Join(quoted, ", ")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(cols)
	sb.WriteString(" FROM ")
	sb.WriteString(b.dialect.quoteIdent(b.table))

	var args []any

	if len(b.where) > 0 {
		parts := make([]string, 0, len(b.where))
		for _, w := range b.where {
			op := strings.ToUpper(w.op)
			if !validOps[op] {
				return Statement{}, errs.New(errs.ErrKindInvalidInput,
					fmt.Sprintf("unsupported WHERE operator: %q", w.op))
			}
			if op == "ILIKE" && b.dialect != DialectPostgres {
				return Statement{}, errs.New(errs.ErrKindInvalidInput, "ILIKE is only supported by postgres")
			}
			args = append(args, w.value)
			parts = append(parts, fmt.Sprintf("%s %s %s", b.dialect.quoteIdent(w.column), op, b.dialect.placeholder(len(args))))
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(parts, " AND "))
	}

	if len(b.orderBy) > 0 {
		parts := make([]string, len(b.orderBy))
		for i, o := range b.orderBy {
			dir := "ASC"
			if o.dir == Desc {
				dir = "DESC"
			}
			parts[i] = b.dialect.quoteIdent(o.column) + " " + dir
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}

	if b.dialect == DialectMSSQL {
		args = b.buildOffsetFetch(&sb, args)
	} else {
		if b.limit != nil {
			args = append(args, *b.limit)
			sb.WriteString(" LIMIT " + b.dialect.placeholder(len(args)))
		}
		if b.offset != nil {
			args = append(args, *b.offset)
			sb.WriteString(" OFFSET " + b.dialect.placeholder(len(args)))
		}
	}

	return Statement{SQL: sb.String(), Args: args}, nil
}

// buildOffsetFetch writes the SQL Server paging clause, which needs an
// ORDER BY to be legal.
func (b *SelectBuilder) buildOffsetFetch(sb *strings.Builder, args []any) []any {
	if b.limit == nil && b.offset == nil {
		return args
	}
	if len(b.orderBy) == 0 {
		sb.WriteString(" ORDER BY (SELECT NULL)")
	}
	offset := 0
	if b.offset != nil {
		offset = *b.offset
	}
	args = append(args, offset)
	sb.WriteString(" OFFSET " + b.dialect.placeholder(len(args)) + " ROWS")
	if b.limit != nil {
		args = append(args, *b.limit)
		sb.WriteString(" FETCH NEXT " + b.dialect.placeholder(len(args)) + " ROWS ONLY")
	}
	return args
}

func (d Dialect) placeholder(idx int) string {
	switch d {
	case DialectMySQL:
		return "?"
	case DialectMSSQL:
		return fmt.Sprintf("@p%d", idx)
	}
	return fmt.Sprintf("$%d", idx)
}

func (d Dialect) quoteIdent(name string) string {
	switch d {
	case DialectMySQL:
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	case DialectMSSQL:
		return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
