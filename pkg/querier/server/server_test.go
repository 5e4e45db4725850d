package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dwwaite/gdelt-lake/pkg/duck"
	"github.com/dwwaite/gdelt-lake/pkg/gdelt"
	"github.com/dwwaite/gdelt-lake/pkg/querier"
)

// testServer starts a server on a loopback listener over an in-memory store
// and returns its base URL. When seeded, the declared tables are created and
// a single record loaded.
func testServer(t *testing.T, seeded bool) string {
	t.Helper()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	db, err := duck.NewDB(t.Context(), "", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	if seeded {
		conn, err := db.Conn(context.Background())
		require.NoError(t, err)
		for _, table := range gdelt.Schema.Tables {
			_, err := conn.ExecContext(context.Background(), table.CreateTableSQL())
			require.NoError(t, err)
		}
		_, err = conn.ExecContext(context.Background(),
			`INSERT INTO gdelt_records VALUES ('2020-01-01', 'AUS', 'USA', '010', 5, 3, 1, 2.5, NULL, NULL, NULL)`)
		require.NoError(t, err)
		conn.Close()
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv, err := New(context.Background(), Config{
		HTTPListener:      listener,
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		QuerierConfig: querier.Config{
			Logger: log,
			DB:     db,
			Schema: gdelt.Schema,
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	return fmt.Sprintf("http://%s", listener.Addr())
}

func get(t *testing.T, url string) (int, []byte) {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestServer_Probes(t *testing.T) {
	t.Parallel()

	t.Run("healthz is always ok", func(t *testing.T) {
		t.Parallel()

		baseURL := testServer(t, false)
		status, body := get(t, baseURL+"/healthz")
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, "ok\n", string(body))
	})

	t.Run("readyz fails before tables exist", func(t *testing.T) {
		t.Parallel()

		baseURL := testServer(t, false)
		status, _ := get(t, baseURL+"/readyz")
		require.Equal(t, http.StatusServiceUnavailable, status)
	})

	t.Run("readyz succeeds once tables exist", func(t *testing.T) {
		t.Parallel()

		baseURL := testServer(t, true)
		status, _ := get(t, baseURL+"/readyz")
		require.Equal(t, http.StatusOK, status)
	})
}

func TestServer_API(t *testing.T) {
	t.Parallel()

	t.Run("schema lists declared tables", func(t *testing.T) {
		t.Parallel()

		baseURL := testServer(t, false)
		status, body := get(t, baseURL+"/api/schema")
		require.Equal(t, http.StatusOK, status)

		var got struct {
			Name   string `json:"name"`
			Tables []struct {
				Name string `json:"name"`
			} `json:"tables"`
		}
		require.NoError(t, json.Unmarshal(body, &got))
		require.Equal(t, "gdelt", got.Name)
		require.Len(t, got.Tables, 3)
	})

	t.Run("tables reports presence", func(t *testing.T) {
		t.Parallel()

		baseURL := testServer(t, true)
		status, body := get(t, baseURL+"/api/tables")
		require.Equal(t, http.StatusOK, status)

		var present map[string]bool
		require.NoError(t, json.Unmarshal(body, &present))
		require.True(t, present[gdelt.TableRecords])
	})

	t.Run("query executes posted sql", func(t *testing.T) {
		t.Parallel()

		baseURL := testServer(t, true)
		resp, err := http.Post(baseURL+"/api/query", "application/json",
			strings.NewReader(`{"sql": "SELECT source_code, num_events FROM gdelt_records"}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got querier.QueryResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		require.Equal(t, 1, got.Count)
		require.Equal(t, "AUS", got.Rows[0]["source_code"])
	})

	t.Run("query rejects bad requests", func(t *testing.T) {
		t.Parallel()

		baseURL := testServer(t, true)

		status, _ := get(t, baseURL+"/api/query")
		require.Equal(t, http.StatusMethodNotAllowed, status)

		for _, body := range []string{"not json", `{"sql": ""}`, `{"sql": "SELECT nope FROM nowhere"}`} {
			resp, err := http.Post(baseURL+"/api/query", "application/json", strings.NewReader(body))
			require.NoError(t, err)
			resp.Body.Close()
			require.Equal(t, http.StatusBadRequest, resp.StatusCode, "body %q", body)
		}
	})
}
