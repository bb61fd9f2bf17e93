package backend

import (
	"fmt"
	"strings"
)

// ColumnInfo describes a single column in a table.
type ColumnInfo struct {
	Name       string  `json:"name"`
	DataType   string  `json:"data_type"`
	IsNullable bool    `json:"is_nullable"`
	Default    *string `json:"default,omitempty"`
}

// TableInfo describes a table and its columns.
type TableInfo struct {
	Schema  string       `json:"schema"`
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
}

// ListTables returns a statement listing the base tables of schema. An
// empty schema selects the dialect's default: public, the current MySQL
// database, or dbo.
func ListTables(d Dialect, schema string) Statement {
	q := fmt.Sprintf(`SELECT table_name FROM information_schema.tables
WHERE table_schema = %s AND table_type = 'BASE TABLE'
ORDER BY table_name`, d.schemaArg(schema))
	return Statement{SQL: q, Args: d.schemaArgs(schema)}
}

// ListColumns returns a statement describing the columns of schema.table.
func ListColumns(d Dialect, schema, table string) Statement {
	args := d.schemaArgs(schema)
	args = append(args, table)
	q := fmt.Sprintf(`SELECT column_name, data_type, is_nullable, column_default
FROM information_schema.columns
WHERE table_schema = %s AND table_name = %s
ORDER BY ordinal_position`, d.schemaArg(schema), d.placeholder(len(args)))
	return Statement{SQL: q, Args: args}
}

// TableNames decodes the result of ListTables.
func TableNames(rs *ResultSet) []string {
	names := make([]string, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		if len(row) > 0 {
			names = append(names, asString(row[0]))
		}
	}
	return names
}

// DecodeColumns decodes the result of ListColumns.
func DecodeColumns(rs *ResultSet) []ColumnInfo {
	cols := make([]ColumnInfo, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		if len(row) < 4 {
			continue
		}
		col := ColumnInfo{
			Name:       asString(row[0]),
			DataType:   asString(row[1]),
			IsNullable: strings.EqualFold(asString(row[2]), "YES"),
		}
		if row[3] != nil {
			def := asString(row[3])
			col.Default = &def
		}
		cols = append(cols, col)
	}
	return cols
}

func (d Dialect) schemaArg(schema string) string {
	if schema == "" && d == DialectMySQL {
		return "DATABASE()"
	}
	return d.placeholder(1)
}

func (d Dialect) schemaArgs(schema string) []any {
	if schema != "" {
		return []any{schema}
	}
	switch d {
	case DialectMySQL:
		return nil
	case DialectMSSQL:
		return []any{"dbo"}
	}
	return []any{"public"}
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}
