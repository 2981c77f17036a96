package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runger/fleetdash/internal/directory"
	"github.com/runger/fleetdash/internal/selection"
	"github.com/runger/fleetdash/internal/storage"
)

func newTestServer(t *testing.T, clients int) *Server {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := directory.NewService(store)
	for i := 1; i <= clients; i++ {
		status := directory.StatusActive
		if i%4 == 0 {
			status = directory.StatusSuspended
		}
		require.NoError(t, svc.Put(context.Background(), directory.Record{
			ID:     fmt.Sprintf("c%02d", i),
			Kind:   directory.KindClients,
			Name:   fmt.Sprintf("Client %02d", i),
			Status: status,
		}))
	}

	srv, err := NewServer(&ServerConfig{Service: svc})
	require.NoError(t, err)
	return srv
}

func doGet(t *testing.T, srv *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestNewServer_RequiresService(t *testing.T) {
	_, err := NewServer(&ServerConfig{})
	assert.Error(t, err)
}

func TestList_Envelope(t *testing.T) {
	srv := newTestServer(t, 25)

	rec := doGet(t, srv, "/api/v1/clients?page=2&per_page=10")
	require.Equal(t, http.StatusOK, rec.Code)

	var env directory.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Len(t, env.Data.Items, 10)
	assert.Equal(t, "Client 11", env.Data.Items[0].Name)
	assert.Equal(t, 2, env.Data.Pagination.CurrentPage)
	assert.Equal(t, 3, env.Data.Pagination.LastPage)
	assert.Equal(t, 25, env.Data.Pagination.Total)

	assert.Contains(t, rec.Body.String(), `"pagination":{"currentPage":2,"lastPage":3`)
}

func TestList_Filters(t *testing.T) {
	srv := newTestServer(t, 25)

	rec := doGet(t, srv, "/api/v1/clients?status=suspended")
	require.Equal(t, http.StatusOK, rec.Code)

	var env directory.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, 6, env.Data.Pagination.Total)
	for _, r := range env.Data.Items {
		assert.Equal(t, directory.StatusSuspended, r.Status)
	}
}

func TestList_Errors(t *testing.T) {
	srv := newTestServer(t, 1)

	tests := []struct {
		name   string
		target string
		code   int
	}{
		{"unknown kind", "/api/v1/trucks", http.StatusNotFound},
		{"bad page", "/api/v1/clients?page=abc", http.StatusBadRequest},
		{"negative per page", "/api/v1/clients?per_page=-1", http.StatusBadRequest},
		{"unknown id", "/api/v1/clients/zz", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doGet(t, srv, tt.target)
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestGet(t *testing.T) {
	srv := newTestServer(t, 3)

	rec := doGet(t, srv, "/api/v1/clients/c02")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data directory.Record `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Client 02", body.Data.Name)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, 3)
	doGet(t, srv, "/api/v1/clients")
	doGet(t, srv, "/api/v1/trucks")

	rec := doGet(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `fleetdash_api_requests_total{code="200",endpoint="list",kind="clients"} 1`)
	assert.Contains(t, body, `fleetdash_api_requests_total{code="404",endpoint="list",kind="unknown"} 1`)
	assert.Contains(t, body, "fleetdash_api_page_items")
}

func TestHTTPSourceAgainstServer(t *testing.T) {
	srv := newTestServer(t, 25)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	src := directory.NewHTTPSource(ts.URL, directory.KindClients, directory.WithPerPage(10))
	e, err := selection.New(selection.Config[directory.Record]{
		Fetch:  src.Fetch,
		Format: directory.Format,
	})
	require.NoError(t, err)

	run := func(req *selection.PageRequest) {
		require.NotNil(t, req)
		e.Resolve(e.Coordinator().Do(context.Background(), *req))
	}
	run(e.Start())
	e.Open()
	for e.HasMore() {
		run(e.ScrollNearBottom())
	}
	assert.Equal(t, 25, e.Len())
	assert.NoError(t, e.Err())

	e.SelectSingle("c07")
	assert.Equal(t, "Client 07", e.DisplayValue())
}

func TestServe_StopsOnCancel(t *testing.T) {
	srv := newTestServer(t, 1)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, l) }()

	url := "http://" + l.Addr().String() + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return strings.TrimSpace(string(b)) == "ok"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(6 * time.Second):
		t.Fatal("Serve did not return")
	}
}
