package gdelt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dwwaite/gdelt-lake/pkg/gdelt/metrics"
)

const defaultBatchSize = 50_000

type PipelineConfig struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	Store  *Store
	// BatchSize is the number of normalized records per bulk insert.
	BatchSize int
}

func (cfg *PipelineConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Clock == nil {
		return errors.New("clock is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.BatchSize < 0 {
		return errors.New("batch size cannot be negative")
	}
	return nil
}

// Summary is the result of one ingestion run.
type Summary struct {
	RowsRead        int64
	Accepted        int64
	RejectedCode    int64
	RejectedEntity  int64
	GeoKeysDistinct int
	GeoLookupMisses int64
	Elapsed         time.Duration
}

// Pipeline runs one bulk load of a feed file: deduplicate the geo triples,
// persist them, then stream the feed a second time to normalize and append
// records in batches. Single-threaded by design; parallel ingestion would
// need one independent pipeline per feed file, with each geo batch committed
// before any record batch that references it.
type Pipeline struct {
	log       *slog.Logger
	cfg       PipelineConfig
	clock     clockwork.Clock
	store     *Store
	batchSize int
}

func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = defaultBatchSize
	}
	return &Pipeline{
		log:       cfg.Logger,
		cfg:       cfg,
		clock:     cfg.Clock,
		store:     cfg.Store,
		batchSize: batchSize,
	}, nil
}

// Run ingests one feed file. The run either completes and returns a summary
// of rows accepted and rejected, or fails outright on the first fatal error;
// there is no partial or resumable ingestion state, and re-running the same
// file duplicates records.
func (p *Pipeline) Run(ctx context.Context, feedPath string, countries []Country) (*Summary, error) {
	runStart := p.clock.Now()

	if err := p.store.CreateTables(ctx); err != nil {
		return nil, err
	}
	if err := p.store.InsertCountries(ctx, countries); err != nil {
		return nil, fmt.Errorf("failed to insert countries: %w", err)
	}

	// Pass 1: the distinct geo set is computed over the unfiltered feed, so
	// the index below can never miss for rows of the same file.
	tags, err := p.dedupGeoKeys(ctx, feedPath)
	if err != nil {
		return nil, err
	}
	p.log.Info("deduplicated geo triples", "distinct", len(tags))

	if err := p.store.InsertGeoTags(ctx, tags); err != nil {
		return nil, fmt.Errorf("failed to insert geo tags: %w", err)
	}
	index := BuildGeoKeyIndex(tags)

	// Pass 2: filter, resolve and append in batches.
	rowsRead, stats, err := p.normalizeAndLoad(ctx, feedPath, countries, index)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		RowsRead:        rowsRead,
		Accepted:        stats.Accepted,
		RejectedCode:    stats.RejectedCode,
		RejectedEntity:  stats.RejectedEntity,
		GeoKeysDistinct: len(tags),
		GeoLookupMisses: stats.GeoLookupMisses,
		Elapsed:         p.clock.Since(runStart),
	}
	p.log.Info("ingestion completed",
		"rows_read", summary.RowsRead,
		"accepted", summary.Accepted,
		"rejected_code", summary.RejectedCode,
		"rejected_entity", summary.RejectedEntity,
		"geo_keys", summary.GeoKeysDistinct,
		"geo_lookup_misses", summary.GeoLookupMisses,
		"elapsed", summary.Elapsed.String())
	return summary, nil
}

func (p *Pipeline) dedupGeoKeys(ctx context.Context, feedPath string) ([]GeoTag, error) {
	feed, err := os.Open(feedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open feed: %w", err)
	}
	defer feed.Close()

	dedup := NewDeduplicator()
	if err := scanFeedWithContext(ctx, feed, func(row *RawRow) error {
		dedup.Observe(row)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("geo dedup pass failed: %w", err)
	}
	return dedup.Finalize(), nil
}

func (p *Pipeline) normalizeAndLoad(ctx context.Context, feedPath string, countries []Country, index GeoKeyIndex) (int64, NormalizerStats, error) {
	feed, err := os.Open(feedPath)
	if err != nil {
		return 0, NormalizerStats{}, fmt.Errorf("failed to open feed: %w", err)
	}
	defer feed.Close()

	normalizer := NewNormalizer(p.log, CountryCodes(countries), index)
	batch := make([]EventRecord, 0, p.batchSize)
	var rowsRead int64

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.store.AppendRecords(ctx, batch); err != nil {
			return fmt.Errorf("failed to append record batch: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	if err := scanFeedWithContext(ctx, feed, func(row *RawRow) error {
		rowsRead++
		metrics.RowsRead.Inc()

		record, ok := normalizer.Normalize(row)
		if !ok {
			return nil
		}
		batch = append(batch, *record)
		if len(batch) >= p.batchSize {
			return flush()
		}
		return nil
	}); err != nil {
		return rowsRead, normalizer.Stats(), fmt.Errorf("normalization pass failed: %w", err)
	}
	if err := flush(); err != nil {
		return rowsRead, normalizer.Stats(), err
	}

	stats := normalizer.Stats()
	metrics.RowsAccepted.Add(float64(stats.Accepted))
	metrics.RowsRejected.WithLabelValues("cameo_sentinel").Add(float64(stats.RejectedCode))
	metrics.RowsRejected.WithLabelValues("unknown_entity").Add(float64(stats.RejectedEntity))
	metrics.GeoLookupMisses.Add(float64(stats.GeoLookupMisses))
	return rowsRead, stats, nil
}

// scanFeedWithContext wraps ScanFeed with a cancellation check per row, so a
// long-running pass over tens of millions of rows stays interruptible.
func scanFeedWithContext(ctx context.Context, r io.Reader, fn func(*RawRow) error) error {
	return ScanFeed(r, func(row *RawRow) error {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}
		return fn(row)
	})
}
