package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/dwwaite/gdelt-lake/pkg/duck"
	"github.com/dwwaite/gdelt-lake/pkg/gdelt"
	"github.com/dwwaite/gdelt-lake/pkg/gdelt/metrics"
	"github.com/dwwaite/gdelt-lake/pkg/logger"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultDBPath    = ".tmp/gdelt.db"
	defaultBatchSize = 50_000
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	dbPathFlag := flag.String("db", defaultDBPath, "path to the DuckDB database file (or set GDELT_DB_PATH env var)")
	feedFlag := flag.String("feed", "", "path to the tab-separated raw event feed file")
	countriesFlag := flag.String("countries", "", "path to the tab-separated country reference file")
	batchSizeFlag := flag.Int("batch-size", defaultBatchSize, "number of normalized records per bulk insert")
	metricsAddrFlag := flag.String("metrics-addr", "", "address to serve prometheus metrics on (empty to disable)")

	flag.Parse()

	if envDBPath := os.Getenv("GDELT_DB_PATH"); envDBPath != "" {
		*dbPathFlag = envDBPath
	}

	if *feedFlag == "" {
		return fmt.Errorf("--feed is required")
	}
	if *countriesFlag == "" {
		return fmt.Errorf("--countries is required")
	}

	log := logger.New(*verboseFlag)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigCh
		log.Info("ingest: received signal", "signal", sig.String())
		cancel()
	}()

	if *metricsAddrFlag != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", *metricsAddrFlag)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				return
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			http.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, nil); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
			}
		}()
	}

	countriesFile, err := os.Open(*countriesFlag)
	if err != nil {
		return fmt.Errorf("failed to open country file: %w", err)
	}
	countries, err := gdelt.ReadCountries(countriesFile)
	countriesFile.Close()
	if err != nil {
		return fmt.Errorf("failed to read country file: %w", err)
	}
	log.Info("loaded country reference data", "count", len(countries))

	db, err := duck.NewDB(ctx, *dbPathFlag, log)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	store, err := gdelt.NewStore(gdelt.StoreConfig{
		Logger: log,
		DB:     db,
	})
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	pipeline, err := gdelt.NewPipeline(gdelt.PipelineConfig{
		Logger:    log,
		Clock:     clockwork.NewRealClock(),
		Store:     store,
		BatchSize: *batchSizeFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	summary, err := pipeline.Run(ctx, *feedFlag, countries)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Printf("Ingested %s: %d rows read, %d accepted, %d rejected (%d sentinel code, %d unknown entity), %d distinct geo keys, %d lookup misses in %s\n",
		*feedFlag,
		summary.RowsRead,
		summary.Accepted,
		summary.RejectedCode+summary.RejectedEntity,
		summary.RejectedCode,
		summary.RejectedEntity,
		summary.GeoKeysDistinct,
		summary.GeoLookupMisses,
		summary.Elapsed,
	)
	return nil
}
