package backend

import "github.com/koustreak/querypool/internal/errs"

// Rows is the cursor shape of database/sql.Rows.
type Rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// ScanRows reads every row into a ResultSet and closes rows.
// The returned Rows slice is always non-nil.
func ScanRows(rows Rows) (*ResultSet, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to read column names", err)
	}

	rs := &ResultSet{Columns: columns, Rows: make([][]any, 0), RowsAffected: -1}
	for rows.Next() {
		// Scan into *any so the driver can write any type.
		dest := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to scan row", err)
		}
		for i, v := range dest {
			// Drivers hand back []byte for text columns; copy so the row
			// outlives the driver's buffer.
			if b, ok := v.([]byte); ok {
				dest[i] = string(b)
			}
		}
		rs.Rows = append(rs.Rows, dest)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "error during row iteration", err)
	}
	return rs, nil
}
