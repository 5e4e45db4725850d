package querier

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"github.com/dwwaite/gdelt-lake/pkg/querier/metrics"
	"github.com/dwwaite/gdelt-lake/pkg/schema"
)

// Condition is an equality predicate on a single scalar column.
type Condition struct {
	Column string
	Value  any
}

// Eq builds an equality condition.
func Eq(column string, value any) Condition {
	return Condition{Column: column, Value: value}
}

// Predicate is a conjunction of conditions over one table's columns. An
// empty predicate matches every row.
type Predicate struct {
	Conditions []Condition
}

// Materialize executes an equality-predicate query and returns the matching
// rows as a column-oriented Arrow record. The result set is read directly
// into column builders, without constructing an intermediate row object per
// result row; scanning through row structs first costs roughly twice as much
// on wide result sets.
//
// Output column order and count match the requested columns exactly. Row
// order is the store's natural result order; no sort is applied. The caller
// owns the returned record and must Release it.
func (q *Querier) Materialize(ctx context.Context, table string, pred Predicate, columns []string) (arrow.Record, error) {
	tableInfo := q.cfg.Schema.Table(table)
	if tableInfo == nil {
		return nil, fmt.Errorf("unknown table %q", table)
	}

	if len(columns) == 0 {
		columns = tableInfo.ColumnNames()
	}
	colInfos := make([]schema.ColumnInfo, 0, len(columns))
	for _, name := range columns {
		col := tableInfo.Column(name)
		if col == nil {
			return nil, fmt.Errorf("column %q not found in table %s", name, table)
		}
		colInfos = append(colInfos, *col)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(columns, ", "), table)
	args := make([]any, 0, len(pred.Conditions))
	for i, cond := range pred.Conditions {
		if tableInfo.Column(cond.Column) == nil {
			return nil, fmt.Errorf("predicate column %q not found in table %s", cond.Column, table)
		}
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		fmt.Fprintf(&sb, "%s = ?", cond.Column)
		args = append(args, cond.Value)
	}

	return q.MaterializeSQL(ctx, sb.String(), args, colInfos)
}

// MaterializeSQL executes an arbitrary statement whose output columns are
// described by cols, reading the result set straight into Arrow builders.
func (q *Querier) MaterializeSQL(ctx context.Context, sqlStr string, args []any, cols []schema.ColumnInfo) (arrow.Record, error) {
	metrics.MaterializationsTotal.Inc()

	conn, err := q.cfg.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	fields := make([]arrow.Field, len(cols))
	for i, col := range cols {
		dt, err := arrowType(col.Type)
		if err != nil {
			return nil, err
		}
		fields[i] = arrow.Field{Name: col.Name, Type: dt, Nullable: true}
	}
	arrowSchema := arrow.NewSchema(fields, nil)

	builder := array.NewRecordBuilder(memory.NewGoAllocator(), arrowSchema)
	defer builder.Release()

	rows, err := conn.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	// One scan target and one append function per output column; each result
	// row is a single Scan call followed by direct appends into the builders.
	targets := make([]any, len(cols))
	appends := make([]func(), len(cols))
	for i, col := range cols {
		target, appendFn, err := columnAppender(col.Type, builder.Field(i))
		if err != nil {
			return nil, err
		}
		targets[i] = target
		appends[i] = appendFn
	}

	for rows.Next() {
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for _, appendFn := range appends {
			appendFn()
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return builder.NewRecord(), nil
}

func arrowType(sqlType string) (arrow.DataType, error) {
	switch strings.ToUpper(sqlType) {
	case "VARCHAR":
		return arrow.BinaryTypes.String, nil
	case "DATE":
		return arrow.FixedWidthTypes.Date32, nil
	case "INTEGER":
		return arrow.PrimitiveTypes.Int32, nil
	case "BIGINT":
		return arrow.PrimitiveTypes.Int64, nil
	case "DOUBLE":
		return arrow.PrimitiveTypes.Float64, nil
	default:
		return nil, fmt.Errorf("unsupported column type %q", sqlType)
	}
}

func columnAppender(sqlType string, fieldBuilder array.Builder) (any, func(), error) {
	switch strings.ToUpper(sqlType) {
	case "VARCHAR":
		target := new(sql.NullString)
		b := fieldBuilder.(*array.StringBuilder)
		return target, func() {
			if target.Valid {
				b.Append(target.String)
			} else {
				b.AppendNull()
			}
		}, nil
	case "DATE":
		target := new(sql.NullTime)
		b := fieldBuilder.(*array.Date32Builder)
		return target, func() {
			if target.Valid {
				b.Append(arrow.Date32FromTime(target.Time))
			} else {
				b.AppendNull()
			}
		}, nil
	case "INTEGER":
		target := new(sql.NullInt32)
		b := fieldBuilder.(*array.Int32Builder)
		return target, func() {
			if target.Valid {
				b.Append(target.Int32)
			} else {
				b.AppendNull()
			}
		}, nil
	case "BIGINT":
		target := new(sql.NullInt64)
		b := fieldBuilder.(*array.Int64Builder)
		return target, func() {
			if target.Valid {
				b.Append(target.Int64)
			} else {
				b.AppendNull()
			}
		}, nil
	case "DOUBLE":
		target := new(sql.NullFloat64)
		b := fieldBuilder.(*array.Float64Builder)
		return target, func() {
			if target.Valid {
				b.Append(target.Float64)
			} else {
				b.AppendNull()
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported column type %q", sqlType)
	}
}
