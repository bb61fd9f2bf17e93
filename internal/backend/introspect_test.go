package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListTables(t *testing.T) {
	pg := ListTables(DialectPostgres, "")
	assert.Contains(t, pg.SQL, "table_schema = $1")
	assert.Equal(t, []any{"public"}, pg.Args)

	my := ListTables(DialectMySQL, "")
	assert.Contains(t, my.SQL, "table_schema = DATABASE()")
	assert.Empty(t, my.Args)

	ms := ListTables(DialectMSSQL, "sales")
	assert.Contains(t, ms.SQL, "table_schema = @p1")
	assert.Equal(t, []any{"sales"}, ms.Args)
}

func TestListColumns(t *testing.T) {
	pg := ListColumns(DialectPostgres, "", "users")
	assert.Contains(t, pg.SQL, "table_schema = $1 AND table_name = $2")
	assert.Equal(t, []any{"public", "users"}, pg.Args)

	my := ListColumns(DialectMySQL, "", "users")
	assert.Contains(t, my.SQL, "table_schema = DATABASE() AND table_name = ?")
	assert.Equal(t, []any{"users"}, my.Args)
}

func TestDecode(t *testing.T) {
	assert.Equal(t, []string{"orders", "users"}, TableNames(&ResultSet{
		Rows: [][]any{{"orders"}, {[]byte("users")}},
	}))

	def := "nextval('users_id_seq')"
	cols := DecodeColumns(&ResultSet{Rows: [][]any{
		{"id", "integer", "NO", def},
		{"email", "text", "YES", nil},
	}})
	assert.Equal(t, []ColumnInfo{
		{Name: "id", DataType: "integer", IsNullable: false, Default: &def},
		{Name: "email", DataType: "text", IsNullable: true},
	}, cols)
}
