package gdelt

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/dwwaite/gdelt-lake/pkg/duck"
)

type StoreConfig struct {
	Logger *slog.Logger
	DB     duck.DB
}

func (cfg *StoreConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.DB == nil {
		return errors.New("db is required")
	}
	return nil
}

// Store persists the reference data and the normalized record stream. All
// inserts go through batched CSV-staged COPY statements, not per-row
// round trips.
type Store struct {
	log *slog.Logger
	cfg StoreConfig
	db  duck.DB
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		log: cfg.Logger,
		cfg: cfg,
		db:  cfg.DB,
	}, nil
}

// CreateTables creates the declared tables if they do not exist.
func (s *Store) CreateTables(ctx context.Context) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	for _, table := range Schema.Tables {
		if _, err := conn.ExecContext(ctx, table.CreateTableSQL()); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table.Name, err)
		}
	}
	return nil
}

// InsertCountries bulk-inserts the entity reference set.
func (s *Store) InsertCountries(ctx context.Context, countries []Country) error {
	s.log.Debug("store: inserting countries", "count", len(countries))
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	return duck.AppendTableViaCSV(ctx, s.log, conn, TableCountries, len(countries), func(w *csv.Writer, i int) error {
		c := countries[i]
		return w.Write([]string{c.Code, c.Name})
	})
}

// InsertGeoTags bulk-inserts the deduplicated geo set with its pre-assigned
// surrogate identifiers. Must complete before any record batch that
// references the identifiers.
func (s *Store) InsertGeoTags(ctx context.Context, tags []GeoTag) error {
	s.log.Debug("store: inserting geo tags", "count", len(tags))
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	return duck.AppendTableViaCSV(ctx, s.log, conn, TableGeoTags, len(tags), func(w *csv.Writer, i int) error {
		tag := tags[i]
		return w.Write([]string{
			strconv.FormatInt(tag.ID, 10),
			strconv.FormatInt(int64(tag.Key.Type), 10),
			formatCoordinate(tag.Key.Lat),
			formatCoordinate(tag.Key.Long),
		})
	})
}

// AppendRecords bulk-appends one batch of normalized records. Appends are not
// idempotent: reloading the same batch duplicates records.
func (s *Store) AppendRecords(ctx context.Context, records []EventRecord) error {
	s.log.Debug("store: appending records", "count", len(records))
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	return duck.AppendTableViaCSV(ctx, s.log, conn, TableRecords, len(records), func(w *csv.Writer, i int) error {
		r := records[i]
		return w.Write([]string{
			r.Date.Format("2006-01-02"),
			r.SourceCode,
			r.TargetCode,
			r.CameoCode,
			strconv.FormatInt(int64(r.NumEvents), 10),
			strconv.FormatInt(int64(r.NumArts), 10),
			strconv.FormatInt(int64(r.QuadClass), 10),
			strconv.FormatFloat(r.Goldstein, 'g', -1, 64),
			formatNullID(r.SourceGeoID),
			formatNullID(r.TargetGeoID),
			formatNullID(r.ActionGeoID),
		})
	})
}

// CountRows returns the row count of one of the declared tables.
func (s *Store) CountRows(ctx context.Context, table string) (int64, error) {
	if Schema.Table(table) == nil {
		return 0, fmt.Errorf("unknown table %q", table)
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	var count int64
	if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", table, err)
	}
	return count, nil
}

// formatCoordinate renders a coordinate with the shortest representation that
// round-trips exactly, preserving the exact-equality dedup contract through
// the CSV staging step.
func formatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// formatNullID renders a nullable surrogate reference; the empty string loads
// as NULL through the CSV staging step.
func formatNullID(id sql.NullInt64) string {
	if !id.Valid {
		return ""
	}
	return strconv.FormatInt(id.Int64, 10)
}
