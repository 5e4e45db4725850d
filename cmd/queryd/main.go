package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/dwwaite/gdelt-lake/pkg/duck"
	"github.com/dwwaite/gdelt-lake/pkg/gdelt"
	"github.com/dwwaite/gdelt-lake/pkg/logger"
	"github.com/dwwaite/gdelt-lake/pkg/querier"
	"github.com/dwwaite/gdelt-lake/pkg/querier/metrics"
	"github.com/dwwaite/gdelt-lake/pkg/querier/server"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultDBPath            = ".tmp/gdelt.db"
	defaultHTTPListenAddr    = "0.0.0.0:3011"
	defaultReadHeaderTimeout = 30 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
	defaultMetricsAddr       = "0.0.0.0:8080"
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
	httpListenAddrFlag := flag.String("http-listen-addr", defaultHTTPListenAddr, "HTTP server listen address")
	readHeaderTimeoutFlag := flag.Duration("read-header-timeout", defaultReadHeaderTimeout, "HTTP read header timeout")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", defaultShutdownTimeout, "Server shutdown timeout")
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "Address to listen on for prometheus metrics (empty to disable)")

	flag.Parse()

	if envDBPath := os.Getenv("GDELT_DB_PATH"); envDBPath != "" {
		*dbPathFlag = envDBPath
	}

	log := logger.New(*verboseFlag)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigCh
		log.Info("server: received signal", "signal", sig.String())
		cancel()
	}()

	var metricsServerErrCh = make(chan error, 1)
	if *metricsAddrFlag != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", *metricsAddrFlag)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				metricsServerErrCh <- err
				return
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			http.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, nil); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
				metricsServerErrCh <- err
				return
			}
		}()
	}

	db, err := duck.NewDB(ctx, *dbPathFlag, log)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	log.Info("using database", "path", *dbPathFlag)

	httpListener, err := net.Listen("tcp", *httpListenAddrFlag)
	if err != nil {
		return fmt.Errorf("failed to create HTTP listener: %w", err)
	}
	defer httpListener.Close()

	srv, err := server.New(ctx, server.Config{
		HTTPListener:      httpListener,
		ReadHeaderTimeout: *readHeaderTimeoutFlag,
		ShutdownTimeout:   *shutdownTimeoutFlag,
		QuerierConfig: querier.Config{
			Logger: log,
			DB:     db,
			Schema: gdelt.Schema,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create querier server: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info("server: shutting down", "reason", ctx.Err())
		return nil
	case err := <-serverErrCh:
		if err != nil {
			log.Error("server: server error causing shutdown", "error", err)
		}
		return err
	case err := <-metricsServerErrCh:
		log.Error("server: metrics server error causing shutdown", "error", err)
		return err
	}
}
