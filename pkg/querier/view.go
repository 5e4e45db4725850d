package querier

import (
	"context"
	"fmt"
	"strings"

	"github.com/apache/arrow/go/v14/arrow"

	"github.com/dwwaite/gdelt-lake/pkg/schema"
)

// Aggregation is a supported column summarisation.
type Aggregation string

const (
	AggMin   Aggregation = "min"
	AggMax   Aggregation = "max"
	AggCount Aggregation = "count"
	AggSum   Aggregation = "sum"
)

// DateGrouping is a supported dynamic date grouping scale.
type DateGrouping string

const (
	GroupYear  DateGrouping = "Year"
	GroupMonth DateGrouping = "Month"
	GroupDay   DateGrouping = "Day"
)

type filterExpr struct {
	column string
	op     string
	value  any
}

type aggExpr struct {
	label string
	expr  string
	col   schema.ColumnInfo
}

// View accumulates filter, grouping and aggregation rules against one
// declared table, then resolves to a single SQL statement: successive rule
// additions, one resolution when expression building is complete.
type View struct {
	table       *schema.TableInfo
	filters     []filterExpr
	groupColumn string
	groupStep   string
	aggs        []aggExpr
}

func NewView(table *schema.TableInfo) *View {
	return &View{table: table}
}

// FilterGE appends a greater-than-or-equal condition on the column, assessed
// when the view is resolved.
func (v *View) FilterGE(column string, minValue any) error {
	return v.appendFilter(column, ">=", minValue)
}

// FilterLE appends a less-than-or-equal condition on the column.
func (v *View) FilterLE(column string, maxValue any) error {
	return v.appendFilter(column, "<=", maxValue)
}

func (v *View) appendFilter(column, op string, value any) error {
	if err := v.validateColumn(column); err != nil {
		return err
	}
	v.filters = append(v.filters, filterExpr{column: column, op: op, value: value})
	return nil
}

// ApplyDateGrouping sets the dynamic grouping scale on a date column and
// returns a display format hint for the grouped values.
func (v *View) ApplyDateGrouping(rank DateGrouping, column string) (string, error) {
	if err := v.validateColumn(column); err != nil {
		return "", err
	}

	var dispFmt string
	switch rank {
	case GroupYear:
		v.groupStep = "year"
		dispFmt = "2006"
	case GroupMonth:
		v.groupStep = "month"
		dispFmt = "2006 January"
	case GroupDay:
		v.groupStep = "day"
		dispFmt = "2006 Jan 02"
	default:
		v.groupColumn = ""
		v.groupStep = ""
		return "", fmt.Errorf("unable to apply grouping based on input value %q", rank)
	}
	v.groupColumn = column
	return dispFmt, nil
}

// ApplyAggregationRule adds a summarisation of the column and returns the
// alias of the summary column ("sum_num_events" and so on).
func (v *View) ApplyAggregationRule(column string, agg Aggregation) (string, error) {
	if err := v.validateColumn(column); err != nil {
		return "", err
	}
	col := v.table.Column(column)

	label := fmt.Sprintf("%s_%s", agg, column)
	var expr string
	var outType string
	switch agg {
	case AggCount:
		expr = fmt.Sprintf("count(%s)", column)
		outType = "BIGINT"
	case AggSum:
		// DuckDB widens integer sums to HUGEINT; cast back to a scannable
		// width.
		if col.Type == "DOUBLE" {
			expr = fmt.Sprintf("sum(%s)", column)
			outType = "DOUBLE"
		} else {
			expr = fmt.Sprintf("CAST(sum(%s) AS BIGINT)", column)
			outType = "BIGINT"
		}
	case AggMin:
		expr = fmt.Sprintf("min(%s)", column)
		outType = col.Type
	case AggMax:
		expr = fmt.Sprintf("max(%s)", column)
		outType = col.Type
	default:
		return "", fmt.Errorf("unsupported aggregation %q", agg)
	}

	v.aggs = append(v.aggs, aggExpr{
		label: label,
		expr:  fmt.Sprintf("%s AS %s", expr, label),
		col:   schema.ColumnInfo{Name: label, Type: outType, Nullable: true},
	})
	return label, nil
}

// Resolve renders the accumulated rules as one SQL statement, along with its
// arguments and the output column descriptions. Grouped views are ordered by
// the group column, since grouped output is otherwise in hash order;
// ungrouped views keep the store's natural row order.
func (v *View) Resolve() (string, []any, []schema.ColumnInfo, error) {
	grouped := v.groupColumn != "" && v.groupStep != ""
	if grouped && len(v.aggs) == 0 {
		return "", nil, nil, fmt.Errorf("date grouping on %s requires at least one aggregation rule", v.groupColumn)
	}

	var sb strings.Builder
	var cols []schema.ColumnInfo

	if grouped {
		groupExpr := fmt.Sprintf("date_trunc('%s', %s)", v.groupStep, v.groupColumn)
		selects := []string{fmt.Sprintf("%s AS %s", groupExpr, v.groupColumn)}
		cols = append(cols, schema.ColumnInfo{Name: v.groupColumn, Type: "DATE"})
		for _, agg := range v.aggs {
			selects = append(selects, agg.expr)
			cols = append(cols, agg.col)
		}
		fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(selects, ", "), v.table.Name)
	} else {
		fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(v.table.ColumnNames(), ", "), v.table.Name)
		cols = append(cols, v.table.Columns...)
	}

	args := make([]any, 0, len(v.filters))
	for i, filter := range v.filters {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		fmt.Fprintf(&sb, "%s %s ?", filter.column, filter.op)
		args = append(args, filter.value)
	}

	if grouped {
		fmt.Fprintf(&sb, " GROUP BY 1 ORDER BY 1")
	}

	return sb.String(), args, cols, nil
}

// validateColumn confirms the column exists in the view's table.
func (v *View) validateColumn(column string) error {
	if v.table.Column(column) == nil {
		return fmt.Errorf("column name %q not found in data view", column)
	}
	return nil
}

// ResolveView executes a view through the direct column materializer.
func (q *Querier) ResolveView(ctx context.Context, view *View) (arrow.Record, error) {
	sqlStr, args, cols, err := view.Resolve()
	if err != nil {
		return nil, err
	}
	return q.MaterializeSQL(ctx, sqlStr, args, cols)
}
