package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leadscout/leadscout/internal/confidence"
	"github.com/leadscout/leadscout/internal/config"
	"github.com/leadscout/leadscout/internal/discovery"
	"github.com/leadscout/leadscout/internal/dispatcher"
	"github.com/leadscout/leadscout/internal/keypool"
	queueMemory "github.com/leadscout/leadscout/internal/queue/memory"
	storeMemory "github.com/leadscout/leadscout/internal/storage/memory"
)

func TestServer_SubmitSearch_Succeeds(t *testing.T) {
	t.Parallel()

	runs := storeMemory.NewRunStore()
	q := queueMemory.NewQueue(10)
	dispatch := dispatcher.New(q, 2, dispatcher.WorkerDeps{})
	server := newTestServerWith(runs, dispatch, &fakeIDGen{ids: []string{"run-custom"}}, config.Config{
		Server:    config.ServerConfig{Port: 8080, TimeoutSeconds: 30},
		Discovery: config.DiscoveryConfig{MaxResultsDefault: 50},
	})

	reqBody := []byte(`{"query":"dentist","location":"Austin, TX"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/searches", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), "run-custom")

	item, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "run-custom", item.Request.ID)
	require.Equal(t, 50, item.Request.MaxResults, "default max results applied")

	status, _, found, err := runs.GetStatus(context.Background(), "run-custom")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, discovery.RunStatusQueued, status)
}

func TestServer_SubmitSearch_InvalidJSON(t *testing.T) {
	t.Parallel()

	server := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/v1/searches", bytes.NewBufferString("{invalid"))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_SubmitSearch_MissingQuery(t *testing.T) {
	t.Parallel()

	server := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/v1/searches", bytes.NewBufferString(`{"location":"Austin"}`))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "query is required")
}

func TestServer_GetSearchStatus(t *testing.T) {
	t.Parallel()

	runs := storeMemory.NewRunStore()
	require.NoError(t, runs.CreateRun(context.Background(), discovery.SearchRequest{ID: "run-status", Query: "dentist"}))
	require.NoError(t, runs.UpdateRunStatus(context.Background(), "run-status", discovery.RunStatusRunning, ""))
	server := newTestServerWithRuns(runs)

	req := httptest.NewRequest(http.MethodGet, "/v1/searches/run-status", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "running")
}

func TestServer_GetSearchStatus_NotFound(t *testing.T) {
	t.Parallel()

	server := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/v1/searches/missing", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_GetSearchResults_ReturnsRecords(t *testing.T) {
	t.Parallel()

	runs := storeMemory.NewRunStore()
	req := discovery.SearchRequest{ID: "run-result", Query: "dentist"}
	require.NoError(t, runs.CreateRun(context.Background(), req))
	require.NoError(t, runs.PutResult(context.Background(), discovery.RunResult{
		Request: req,
		Status:  discovery.RunStatusCompleted,
		Records: []discovery.MergedBusinessRecord{{ID: "b1", Name: "Acme Dental"}},
	}))
	server := newTestServerWithRuns(runs)

	httpReq := httptest.NewRequest(http.MethodGet, "/v1/searches/run-result/results", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, httpReq)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Acme Dental")
}

func TestServer_GetSearchResults_PendingRun(t *testing.T) {
	t.Parallel()

	runs := storeMemory.NewRunStore()
	require.NoError(t, runs.CreateRun(context.Background(), discovery.SearchRequest{ID: "run-pending", Query: "dentist"}))
	server := newTestServerWithRuns(runs)

	req := httptest.NewRequest(http.MethodGet, "/v1/searches/run-pending/results", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), "queued")
}

func TestServer_CancelSearch(t *testing.T) {
	t.Parallel()

	runs := storeMemory.NewRunStore()
	require.NoError(t, runs.CreateRun(context.Background(), discovery.SearchRequest{ID: "run-cancel", Query: "dentist"}))
	server := newTestServerWithRuns(runs)

	req := httptest.NewRequest(http.MethodPost, "/v1/searches/run-cancel/cancel", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	status, _, _, err := runs.GetStatus(context.Background(), "run-cancel")
	require.NoError(t, err)
	require.Equal(t, discovery.RunStatusCanceled, status)
}

func TestServer_SubmitFeedback(t *testing.T) {
	t.Parallel()

	server := newTestServer()
	body := `{"business_id":"b1","feedback_type":"confirmed_correct"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/feedback", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var record discovery.VerifiedBusinessRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	require.Equal(t, "b1", record.BusinessID)
	require.Equal(t, 1, record.PositiveReports)
}

func TestServer_SubmitFeedback_UnknownType(t *testing.T) {
	t.Parallel()

	server := newTestServer()
	body := `{"business_id":"b1","feedback_type":"sounds_great"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/feedback", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "unknown feedback type")
}

func TestServer_SubmitBounce(t *testing.T) {
	t.Parallel()

	server := newTestServer()
	body := `{"email":"info@acmedental.com","bounce_type":"hard","business_id":"b1"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/bounces", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
}

func TestServer_SubmitBounce_MissingEmail(t *testing.T) {
	t.Parallel()

	server := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/v1/bounces", bytes.NewBufferString(`{"bounce_type":"hard"}`))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_GetQuota(t *testing.T) {
	t.Parallel()

	server := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/v1/quota", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var quotas map[string]keypool.Quota
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quotas))
	require.True(t, quotas["places_api"].Available)
	require.Equal(t, 100, quotas["places_api"].Remaining)
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	runs := storeMemory.NewRunStore()
	q := queueMemory.NewQueue(1)
	dispatch := dispatcher.New(q, 2, dispatcher.WorkerDeps{})
	server := newTestServerWith(runs, dispatch, &fakeIDGen{}, config.Config{
		Server: config.ServerConfig{Port: 8080, TimeoutSeconds: 30},
		Auth:   config.AuthConfig{Enabled: true, APIKey: "secret"},
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	newTestServer().Handler().ServeHTTP(rec, req)

	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

// --- helpers/fakes ---

type fakeIDGen struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeIDGen) NewID() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ids) == 0 {
		return "id-default", nil
	}
	id := f.ids[0]
	f.ids = f.ids[1:]
	return id, nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}

func newTestServer() *Server {
	return newTestServerWithRuns(storeMemory.NewRunStore())
}

func newTestServerWithRuns(runs discovery.RunStore) *Server {
	q := queueMemory.NewQueue(10)
	dispatch := dispatcher.New(q, 2, dispatcher.WorkerDeps{})
	cfg := config.Config{
		Server:    config.ServerConfig{Port: 8080, TimeoutSeconds: 30},
		Discovery: config.DiscoveryConfig{MaxResultsDefault: 50},
	}
	return newTestServerWith(runs, dispatch, &fakeIDGen{}, cfg)
}

func newTestServerWith(runs discovery.RunStore, dispatch *dispatcher.Dispatcher, idGen discovery.IDGenerator, cfg config.Config) *Server {
	clock := &fakeClock{now: time.Unix(100, 0)}
	loop := confidence.NewLoop(storeMemory.NewFeedbackStore(), clock, zap.NewNop())
	keys := keypool.New(keypool.Config{
		Providers: map[string]keypool.ProviderConfig{
			"places_api": {Keys: []string{"key-1"}, DailyLimit: 100},
		},
	}, clock, nil, zap.NewNop())
	return NewServer(runs, dispatch, loop, keys, idGen, clock, cfg, zap.NewNop())
}
