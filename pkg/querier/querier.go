package querier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dwwaite/gdelt-lake/pkg/querier/metrics"
	"github.com/dwwaite/gdelt-lake/pkg/schema"
)

// Querier reads the already-loaded store. It is independent of the ingestion
// pipeline at runtime and shares only the declared schema.
type Querier struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Querier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate querier config: %w", err)
	}
	return &Querier{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

func (q *Querier) Schema() *schema.Schema {
	return q.cfg.Schema
}

type QueryResponse struct {
	Columns []string   `json:"columns"`
	Rows    []QueryRow `json:"rows"`
	Count   int        `json:"count"`
}

type QueryRow map[string]any

// PresentTables reports which of the declared tables exist in the store.
func (q *Querier) PresentTables(ctx context.Context) (map[string]bool, error) {
	conn, err := q.cfg.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, `SELECT table_name FROM duckdb_tables()`)
	if err != nil {
		return nil, fmt.Errorf("failed to query table catalog: %w", err)
	}
	defer rows.Close()

	observed := make(map[string]bool)
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		observed[tableName] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating table catalog: %w", err)
	}

	present := make(map[string]bool, len(q.cfg.Schema.Tables))
	for _, table := range q.cfg.Schema.Tables {
		present[table.Name] = observed[table.Name]
	}
	return present, nil
}

// Query executes an ad-hoc SQL statement and returns generic row maps. Use
// Materialize for typed column-oriented results; this path exists for
// exploratory queries where the output shape is not known up front.
func (q *Querier) Query(ctx context.Context, sql string) (QueryResponse, error) {
	metrics.QueriesTotal.Inc()

	conn, err := q.cfg.DB.Conn(ctx)
	if err != nil {
		return QueryResponse{}, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, sql)
	if err != nil {
		return QueryResponse{}, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return QueryResponse{}, fmt.Errorf("failed to get columns: %w", err)
	}

	var resultRows []QueryRow
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return QueryResponse{}, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(QueryRow)
		for i, col := range columns {
			val := values[i]
			if val == nil {
				row[col] = nil
			} else {
				switch v := val.(type) {
				case []byte:
					row[col] = string(v)
				default:
					row[col] = val
				}
			}
		}
		resultRows = append(resultRows, row)
	}

	if err := rows.Err(); err != nil {
		return QueryResponse{}, fmt.Errorf("error iterating rows: %w", err)
	}

	return QueryResponse{
		Columns: columns,
		Rows:    resultRows,
		Count:   len(resultRows),
	}, nil
}
