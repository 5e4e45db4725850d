package duck

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// AppendTableViaCSV bulk-appends count rows to tableName. Rows are staged to
// a temporary CSV file and loaded with a single COPY statement inside one
// transaction, rather than one INSERT per row. writeCSVFn is called once per
// row index to emit that row's column values.
//
// Appends are not idempotent: loading the same data twice duplicates rows.
// On failure the transaction rolls back, so a partial batch is never
// committed; re-running from scratch is the recovery path.
func AppendTableViaCSV(ctx context.Context, log *slog.Logger, conn Connection, tableName string, count int, writeCSVFn func(*csv.Writer, int) error) error {
	appendStart := time.Now()
	defer func() {
		log.Debug("table append completed", "table", tableName, "rows", count, "duration", time.Since(appendStart).String())
	}()

	if count == 0 {
		return nil
	}

	// The CSV file is written once, before the retry loop, so every retry
	// attempt loads identical data.
	tmpFile, err := os.CreateTemp("", fmt.Sprintf("%s_*.csv", tableName))
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name())
	defer tmpFile.Close()

	csvWriter := csv.NewWriter(tmpFile)
	csvWriter.Comma = ','

	progressLogInterval := 5 * time.Second
	lastProgressLog := time.Now()

	for i := range count {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled while writing CSV for %s: %w", tableName, ctx.Err())
		default:
		}

		if err := writeCSVFn(csvWriter, i); err != nil {
			return fmt.Errorf("failed to write CSV record %d for %s: %w", i, tableName, err)
		}

		if count > 1000 {
			now := time.Now()
			if now.Sub(lastProgressLog) >= progressLogInterval {
				log.Debug("write progress", "table", tableName, "written", i+1, "total", count)
				lastProgressLog = now
			}
		}
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	// DuckDB opens the file itself, so close it before COPY.
	tmpFile.Close()

	return retryWithBackoff(ctx, log, fmt.Sprintf("append table %s", tableName), func() error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for %s: %w", tableName, err)
		}
		defer func() {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Error("failed to rollback transaction", "table", tableName, "error", err)
			}
		}()

		copySQL := fmt.Sprintf("COPY %s FROM '%s' (FORMAT CSV, HEADER false, NULLSTR '')", tableName, tmpFile.Name())
		if _, err := tx.ExecContext(ctx, copySQL); err != nil {
			return fmt.Errorf("failed to COPY FROM CSV for %s: %w", tableName, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction for %s: %w", tableName, err)
		}
		return nil
	})
}
