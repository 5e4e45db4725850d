package gdelt

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/dwwaite/gdelt-lake/pkg/duck"
)

func testStore(t *testing.T) (*Store, duck.DB) {
	t.Helper()

	log := testLogger()
	db, err := duck.NewDB(t.Context(), "", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewStore(StoreConfig{Logger: log, DB: db})
	require.NoError(t, err)
	return store, db
}

func testPipeline(t *testing.T, store *Store, batchSize int) *Pipeline {
	t.Helper()

	pipeline, err := NewPipeline(PipelineConfig{
		Logger:    testLogger(),
		Clock:     clockwork.NewFakeClock(),
		Store:     store,
		BatchSize: batchSize,
	})
	require.NoError(t, err)
	return pipeline
}

func writeFeedFile(t *testing.T, lines ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "feed.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

var testCountries = []Country{
	{Code: "AUS", Name: "Australia"},
	{Code: "USA", Name: "United States"},
	{Code: "NZL", Name: "New Zealand"},
}

func TestPipeline_Run(t *testing.T) {
	t.Parallel()

	t.Run("loads a single row with shared source and action locations", func(t *testing.T) {
		t.Parallel()

		store, db := testStore(t)
		pipeline := testPipeline(t, store, 0)

		feedPath := writeFeedFile(t, feedLine(nil))
		summary, err := pipeline.Run(context.Background(), feedPath, testCountries)
		require.NoError(t, err)

		require.Equal(t, int64(1), summary.RowsRead)
		require.Equal(t, int64(1), summary.Accepted)
		require.Zero(t, summary.RejectedCode)
		require.Zero(t, summary.RejectedEntity)
		// Source and action share (1, -25.0, 133.0); target is distinct.
		require.Equal(t, 2, summary.GeoKeysDistinct)
		require.Zero(t, summary.GeoLookupMisses)

		conn, err := db.Conn(context.Background())
		require.NoError(t, err)
		defer conn.Close()

		var sourceID, targetID, actionID int64
		err = conn.QueryRowContext(context.Background(),
			"SELECT source_geo_id, target_geo_id, action_geo_id FROM gdelt_records").
			Scan(&sourceID, &targetID, &actionID)
		require.NoError(t, err)
		require.Equal(t, sourceID, actionID)
		require.NotEqual(t, sourceID, targetID)

		var lat, long float64
		err = conn.QueryRowContext(context.Background(),
			"SELECT geo_lat, geo_long FROM geo_tags WHERE geo_id = ?", sourceID).
			Scan(&lat, &long)
		require.NoError(t, err)
		require.Equal(t, -25.0, lat)
		require.Equal(t, 133.0, long)
	})

	t.Run("rejected rows are counted but not loaded", func(t *testing.T) {
		t.Parallel()

		store, _ := testStore(t)
		pipeline := testPipeline(t, store, 0)

		feedPath := writeFeedFile(t,
			feedLine(nil),
			feedLine(map[int]string{3: CameoNullSentinel}),
			feedLine(map[int]string{1: "XYZ"}),
			feedLine(map[int]string{2: "XYZ"}),
		)
		summary, err := pipeline.Run(context.Background(), feedPath, testCountries)
		require.NoError(t, err)

		require.Equal(t, int64(4), summary.RowsRead)
		require.Equal(t, int64(1), summary.Accepted)
		require.Equal(t, int64(1), summary.RejectedCode)
		require.Equal(t, int64(2), summary.RejectedEntity)

		count, err := store.CountRows(context.Background(), TableRecords)
		require.NoError(t, err)
		require.Equal(t, int64(1), count)
	})

	t.Run("geo dedup covers rejected rows", func(t *testing.T) {
		t.Parallel()

		store, _ := testStore(t)
		pipeline := testPipeline(t, store, 0)

		// The only row carrying (2, 40.7, -74.0) is rejected, but its
		// triple still lands in geo_tags: the distinct set is computed
		// before filtering.
		feedPath := writeFeedFile(t,
			feedLine(nil),
			feedLine(map[int]string{1: "XYZ", 8: "2", 9: "40.7", 10: "-74.0"}),
		)
		summary, err := pipeline.Run(context.Background(), feedPath, testCountries)
		require.NoError(t, err)
		require.Equal(t, 3, summary.GeoKeysDistinct)
		require.Zero(t, summary.GeoLookupMisses)

		count, err := store.CountRows(context.Background(), TableGeoTags)
		require.NoError(t, err)
		require.Equal(t, int64(3), count)
	})

	t.Run("flushes across multiple batches", func(t *testing.T) {
		t.Parallel()

		store, _ := testStore(t)
		pipeline := testPipeline(t, store, 2)

		lines := make([]string, 5)
		for i := range lines {
			lines[i] = feedLine(nil)
		}
		feedPath := writeFeedFile(t, lines...)

		summary, err := pipeline.Run(context.Background(), feedPath, testCountries)
		require.NoError(t, err)
		require.Equal(t, int64(5), summary.Accepted)

		count, err := store.CountRows(context.Background(), TableRecords)
		require.NoError(t, err)
		require.Equal(t, int64(5), count)
	})

	t.Run("null geo references survive the load", func(t *testing.T) {
		t.Parallel()

		store, db := testStore(t)
		pipeline := testPipeline(t, store, 0)

		feedPath := writeFeedFile(t, feedLine(map[int]string{11: "", 14: ""}))
		_, err := pipeline.Run(context.Background(), feedPath, testCountries)
		require.NoError(t, err)

		conn, err := db.Conn(context.Background())
		require.NoError(t, err)
		defer conn.Close()

		var sourceID, targetID, actionID sql.NullInt64
		err = conn.QueryRowContext(context.Background(),
			"SELECT source_geo_id, target_geo_id, action_geo_id FROM gdelt_records").
			Scan(&sourceID, &targetID, &actionID)
		require.NoError(t, err)
		require.True(t, sourceID.Valid)
		require.False(t, targetID.Valid)
		require.False(t, actionID.Valid)
	})

	t.Run("re-running the same feed duplicates records", func(t *testing.T) {
		t.Parallel()

		store, _ := testStore(t)
		pipeline := testPipeline(t, store, 0)

		feedPath := writeFeedFile(t, feedLine(nil))
		_, err := pipeline.Run(context.Background(), feedPath, testCountries)
		require.NoError(t, err)

		// Appends are not idempotent, and the second run re-inserts the
		// reference data too, so it fails on the countries primary key
		// unless pointed at a fresh database.
		_, err = pipeline.Run(context.Background(), feedPath, testCountries)
		require.Error(t, err)
	})

	t.Run("fails on malformed feed rows", func(t *testing.T) {
		t.Parallel()

		store, _ := testStore(t)
		pipeline := testPipeline(t, store, 0)

		feedPath := writeFeedFile(t, feedLine(nil), feedLine(map[int]string{0: "20201332"}))
		_, err := pipeline.Run(context.Background(), feedPath, testCountries)
		require.ErrorIs(t, err, ErrMalformedDate)
	})

	t.Run("stops on context cancellation", func(t *testing.T) {
		t.Parallel()

		store, _ := testStore(t)
		pipeline := testPipeline(t, store, 0)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		feedPath := writeFeedFile(t, feedLine(nil))
		_, err := pipeline.Run(ctx, feedPath, testCountries)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("fails when the feed file is missing", func(t *testing.T) {
		t.Parallel()

		store, _ := testStore(t)
		pipeline := testPipeline(t, store, 0)

		_, err := pipeline.Run(context.Background(), filepath.Join(t.TempDir(), "absent.txt"), testCountries)
		require.Error(t, err)
	})
}

func TestStore_Operations(t *testing.T) {
	t.Parallel()

	t.Run("create tables is idempotent", func(t *testing.T) {
		t.Parallel()

		store, _ := testStore(t)
		require.NoError(t, store.CreateTables(context.Background()))
		require.NoError(t, store.CreateTables(context.Background()))
	})

	t.Run("inserts countries and geo tags", func(t *testing.T) {
		t.Parallel()

		store, db := testStore(t)
		require.NoError(t, store.CreateTables(context.Background()))
		require.NoError(t, store.InsertCountries(context.Background(), testCountries))
		require.NoError(t, store.InsertGeoTags(context.Background(), []GeoTag{
			{ID: 1, Key: GeoKey{Type: 1, Lat: -25.0, Long: 133.0}},
			{ID: 2, Key: GeoKey{Type: 4, Lat: 40.7128, Long: -74.006}},
		}))

		count, err := store.CountRows(context.Background(), TableCountries)
		require.NoError(t, err)
		require.Equal(t, int64(3), count)

		conn, err := db.Conn(context.Background())
		require.NoError(t, err)
		defer conn.Close()

		// Coordinates round-trip exactly through the CSV staging step.
		var lat, long float64
		err = conn.QueryRowContext(context.Background(),
			"SELECT geo_lat, geo_long FROM geo_tags WHERE geo_id = 2").Scan(&lat, &long)
		require.NoError(t, err)
		require.Equal(t, 40.7128, lat)
		require.Equal(t, -74.006, long)
	})

	t.Run("appends records with dates intact", func(t *testing.T) {
		t.Parallel()

		store, db := testStore(t)
		require.NoError(t, store.CreateTables(context.Background()))

		date := time.Date(2020, 6, 15, 0, 0, 0, 0, time.UTC)
		require.NoError(t, store.AppendRecords(context.Background(), []EventRecord{
			{
				Date:       date,
				SourceCode: "AUS",
				TargetCode: "USA",
				CameoCode:  "010",
				NumEvents:  5,
				NumArts:    3,
				QuadClass:  1,
				Goldstein:  2.5,
			},
		}))

		conn, err := db.Conn(context.Background())
		require.NoError(t, err)
		defer conn.Close()

		var got time.Time
		err = conn.QueryRowContext(context.Background(), "SELECT date FROM gdelt_records").Scan(&got)
		require.NoError(t, err)
		require.Equal(t, date, got.UTC())
	})

	t.Run("count rows rejects undeclared tables", func(t *testing.T) {
		t.Parallel()

		store, _ := testStore(t)
		_, err := store.CountRows(context.Background(), "sqlite_master")
		require.Error(t, err)
	})
}
