package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/dwwaite/gdelt-lake/pkg/querier"
)

// Server exposes the querier over HTTP: health and readiness probes, the
// declared schema, table presence, and an ad-hoc SQL endpoint.
type Server struct {
	log          *slog.Logger
	cfg          Config
	querier      *querier.Querier
	httpSrv      *http.Server
	httpListener net.Listener
}

func New(ctx context.Context, cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	q, err := querier.New(cfg.QuerierConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create querier: %w", err)
	}

	s := &Server{
		log:     cfg.QuerierConfig.Logger,
		cfg:     cfg,
		querier: q,
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok\n")); err != nil {
			s.log.Error("failed to write healthz response", "error", err)
		}
	}))
	mux.Handle("/readyz", http.HandlerFunc(s.readyzHandler))
	mux.Handle("/api/schema", http.HandlerFunc(s.schemaHandler))
	mux.Handle("/api/tables", http.HandlerFunc(s.tablesHandler))
	mux.Handle("/api/query", http.HandlerFunc(s.queryHandler))

	s.httpSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}
	s.httpListener = cfg.HTTPListener

	return s, nil
}

func (s *Server) Run(ctx context.Context) error {
	serveErrCh := make(chan error, 1)

	go func() {
		if err := s.httpSrv.Serve(s.httpListener); err != nil && err != http.ErrServerClosed {
			s.log.Error("server: http server error", "error", err)
			serveErrCh <- fmt.Errorf("failed to serve HTTP: %w", err)
		}
	}()
	s.log.Info("server: http listening", "address", s.httpListener.Addr())

	select {
	case <-ctx.Done():
		s.log.Info("server: stopping", "reason", ctx.Err())
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer shutdownCancel()

		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
		s.log.Info("server: http server shutdown complete")
		return nil
	case err := <-serveErrCh:
		s.log.Error("server: server error causing shutdown", "error", err)
		return err
	}
}

// readyzHandler reports ready once every declared table exists in the store,
// i.e. an ingestion run has created the schema.
func (s *Server) readyzHandler(w http.ResponseWriter, r *http.Request) {
	present, err := s.querier.PresentTables(r.Context())
	if err != nil {
		s.log.Error("readyz: failed to check tables", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	for table, ok := range present {
		if !ok {
			s.log.Debug("readyz: table not present", "table", table)
			w.WriteHeader(http.StatusServiceUnavailable)
			if _, err := w.Write([]byte("store not ready\n")); err != nil {
				s.log.Error("failed to write readyz response", "error", err)
			}
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok\n")); err != nil {
		s.log.Error("failed to write readyz response", "error", err)
	}
}

func (s *Server) schemaHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.querier.Schema())
}

func (s *Server) tablesHandler(w http.ResponseWriter, r *http.Request) {
	present, err := s.querier.PresentTables(r.Context())
	if err != nil {
		s.log.Error("tables: failed to check tables", "error", err)
		http.Error(w, "failed to check tables", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, present)
}

type queryRequest struct {
	SQL string `json:"sql"`
}

// queryHandler executes an ad-hoc statement posted as {"sql": "..."} and
// returns the generic row maps of the querier.
func (s *Server) queryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	var req queryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SQL == "" {
		http.Error(w, "sql is required", http.StatusBadRequest)
		return
	}

	resp, err := s.querier.Query(r.Context(), req.SQL)
	if err != nil {
		s.log.Error("query: failed to execute", "error", err)
		http.Error(w, fmt.Sprintf("query failed: %v", err), http.StatusBadRequest)
		return
	}
	s.writeJSON(w, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to write json response", "error", err)
	}
}
