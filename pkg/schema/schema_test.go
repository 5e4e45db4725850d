package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testSchema() *Schema {
	return &Schema{
		Name: "test",
		Tables: []TableInfo{
			{
				Name: "widgets",
				Columns: []ColumnInfo{
					{Name: "id", Type: "BIGINT", PrimaryKey: true},
					{Name: "label", Type: "VARCHAR"},
					{Name: "weight", Type: "DOUBLE", Nullable: true},
				},
			},
		},
	}
}

func TestSchema_Lookups(t *testing.T) {
	t.Parallel()

	s := testSchema()

	t.Run("table by name", func(t *testing.T) {
		t.Parallel()

		require.NotNil(t, s.Table("widgets"))
		require.Nil(t, s.Table("missing"))
	})

	t.Run("column by name", func(t *testing.T) {
		t.Parallel()

		table := s.Table("widgets")
		col := table.Column("label")
		require.NotNil(t, col)
		require.Equal(t, "VARCHAR", col.Type)
		require.Nil(t, table.Column("missing"))
	})

	t.Run("column names preserve declaration order", func(t *testing.T) {
		t.Parallel()

		require.Equal(t, []string{"id", "label", "weight"}, s.Table("widgets").ColumnNames())
	})
}

func TestSchema_CreateTableSQL(t *testing.T) {
	t.Parallel()

	sql := testSchema().Table("widgets").CreateTableSQL()
	require.Contains(t, sql, "CREATE TABLE IF NOT EXISTS widgets")
	require.Contains(t, sql, "id BIGINT PRIMARY KEY")
	require.Contains(t, sql, "label VARCHAR NOT NULL")
	require.Contains(t, sql, "weight DOUBLE")
	require.NotContains(t, sql, "weight DOUBLE NOT NULL")
}
