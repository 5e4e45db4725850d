package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/apache/arrow/go/v14/arrow"

	"github.com/dwwaite/gdelt-lake/pkg/duck"
	"github.com/dwwaite/gdelt-lake/pkg/gdelt"
	"github.com/dwwaite/gdelt-lake/pkg/logger"
	"github.com/dwwaite/gdelt-lake/pkg/querier"
)

const defaultDBPath = ".tmp/gdelt.db"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	dbPathFlag := flag.String("db", defaultDBPath, "path to the DuckDB database file (or set GDELT_DB_PATH env var)")
	sqlFlag := flag.String("sql", "", "ad-hoc SQL statement to execute (overrides the predicate flags)")
	sourceFlag := flag.String("source", "", "source entity code to match")
	targetFlag := flag.String("target", "", "target entity code to match (refines --source)")
	columnsFlag := flag.StringSlice("columns", nil, "output columns (default: all record columns)")
	startDateFlag := flag.String("start-date", "", "keep records on or after this date (YYYY-MM-DD)")
	endDateFlag := flag.String("end-date", "", "keep records on or before this date (YYYY-MM-DD)")
	groupFlag := flag.String("group", "", "dynamic date grouping: Year, Month or Day")
	aggFlag := flag.StringSlice("agg", nil, "aggregation rules as func:column (func: min, max, count, sum)")

	flag.Parse()

	if envDBPath := os.Getenv("GDELT_DB_PATH"); envDBPath != "" {
		*dbPathFlag = envDBPath
	}

	log := logger.New(*verboseFlag)

	ctx := context.Background()

	db, err := duck.NewDB(ctx, *dbPathFlag, log)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	q, err := querier.New(querier.Config{
		Logger: log,
		DB:     db,
		Schema: gdelt.Schema,
	})
	if err != nil {
		return fmt.Errorf("failed to create querier: %w", err)
	}

	if *sqlFlag != "" {
		resp, err := q.Query(ctx, *sqlFlag)
		if err != nil {
			return err
		}
		printResponse(resp)
		return nil
	}

	if *groupFlag != "" || len(*aggFlag) > 0 || *startDateFlag != "" || *endDateFlag != "" {
		rec, err := resolveView(ctx, q, *sourceFlag, *targetFlag, *startDateFlag, *endDateFlag, *groupFlag, *aggFlag)
		if err != nil {
			return err
		}
		defer rec.Release()
		printRecord(rec)
		return nil
	}

	if *sourceFlag == "" {
		return fmt.Errorf("one of --sql, --source or the view flags is required")
	}

	pred := querier.Predicate{Conditions: []querier.Condition{querier.Eq("source_code", *sourceFlag)}}
	if *targetFlag != "" {
		pred.Conditions = append(pred.Conditions, querier.Eq("target_code", *targetFlag))
	}

	rec, err := q.Materialize(ctx, gdelt.TableRecords, pred, *columnsFlag)
	if err != nil {
		return err
	}
	defer rec.Release()
	printRecord(rec)
	return nil
}

// resolveView builds a filtered, optionally grouped view over the record
// table from the date-range, grouping and aggregation flags.
func resolveView(ctx context.Context, q *querier.Querier, source, target, startDate, endDate, group string, aggs []string) (arrow.Record, error) {
	view := querier.NewView(gdelt.Schema.Table(gdelt.TableRecords))

	if source != "" {
		if err := view.FilterGE("source_code", source); err != nil {
			return nil, err
		}
		if err := view.FilterLE("source_code", source); err != nil {
			return nil, err
		}
	}
	if target != "" {
		if err := view.FilterGE("target_code", target); err != nil {
			return nil, err
		}
		if err := view.FilterLE("target_code", target); err != nil {
			return nil, err
		}
	}
	if startDate != "" {
		date, err := time.Parse("2006-01-02", startDate)
		if err != nil {
			return nil, fmt.Errorf("invalid --start-date: %w", err)
		}
		if err := view.FilterGE("date", date); err != nil {
			return nil, err
		}
	}
	if endDate != "" {
		date, err := time.Parse("2006-01-02", endDate)
		if err != nil {
			return nil, fmt.Errorf("invalid --end-date: %w", err)
		}
		if err := view.FilterLE("date", date); err != nil {
			return nil, err
		}
	}
	if group != "" {
		if _, err := view.ApplyDateGrouping(querier.DateGrouping(group), "date"); err != nil {
			return nil, err
		}
	}
	for _, agg := range aggs {
		fn, column, found := strings.Cut(agg, ":")
		if !found {
			return nil, fmt.Errorf("invalid --agg %q: expected func:column", agg)
		}
		if _, err := view.ApplyAggregationRule(column, querier.Aggregation(fn)); err != nil {
			return nil, err
		}
	}

	return q.ResolveView(ctx, view)
}

func printResponse(resp querier.QueryResponse) {
	fmt.Println(strings.Join(resp.Columns, "\t"))
	for _, row := range resp.Rows {
		values := make([]string, len(resp.Columns))
		for i, col := range resp.Columns {
			values[i] = fmt.Sprintf("%v", row[col])
		}
		fmt.Println(strings.Join(values, "\t"))
	}
	fmt.Printf("(%d rows)\n", resp.Count)
}

func printRecord(rec arrow.Record) {
	for i := 0; i < int(rec.NumCols()); i++ {
		fmt.Printf("%s: %v\n", rec.ColumnName(i), rec.Column(i))
	}
	fmt.Printf("(%d rows)\n", rec.NumRows())
}
