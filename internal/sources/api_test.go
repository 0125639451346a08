package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leadscout/leadscout/internal/discovery"
)

type stubKeys struct {
	mu    sync.Mutex
	key   string
	ok    bool
	usage int
}

func (s *stubKeys) NextKey(string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key, s.ok
}

func (s *stubKeys) RecordUsage(_ context.Context, _, _ string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage += n
}

func testAPI(t *testing.T, endpoint string, keys *stubKeys) *API {
	t.Helper()
	return NewAPI(APIConfig{
		Descriptor: discovery.DataSource{
			ID: "test_api", Kind: discovery.SourceKindAPI, Provider: "testprov",
			Timeout: 5 * time.Second,
		},
		Endpoint: endpoint,
	}, keys, nil, nil)
}

func TestAPISearchParsesResults(t *testing.T) {
	var gotKey, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		gotQuery = r.URL.Query().Get("query")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[
			{"name":"Acme Dental","website":"https://acmedental.com","phone":"555-0101",
			 "address":"12 Main St","rating":4.6,"review_count":128,"email":"Info@AcmeDental.com"},
			{"name":"  ","phone":"ignored"},
			{"name":"Maple Clinic"}
		]}`))
	}))
	defer srv.Close()

	keys := &stubKeys{key: "sk-test-1", ok: true}
	api := testAPI(t, srv.URL, keys)

	candidates, err := api.Search(context.Background(), discovery.SearchRequest{Query: "dentist", Location: "Austin"})
	require.NoError(t, err)
	require.Len(t, candidates, 2, "blank-name rows are dropped")

	first := candidates[0]
	require.Equal(t, "Acme Dental", first.Name)
	require.Equal(t, "info@acmedental.com", first.Email, "emails are lowercased")
	require.Positive(t, first.Seed)
	require.Equal(t, 128, first.ReviewCount)
	require.NotNil(t, first.Rating)

	require.Equal(t, "sk-test-1", gotKey)
	require.Equal(t, "dentist", gotQuery)
	require.Equal(t, 1, keys.usage, "usage recorded once per successful call")
}

func TestAPISearchSkipsProviderWithoutKey(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
	}))
	defer srv.Close()

	api := testAPI(t, srv.URL, &stubKeys{ok: false})
	_, err := api.Search(context.Background(), discovery.SearchRequest{Query: "dentist"})
	require.Error(t, err)
	require.Equal(t, discovery.KindQuotaExceeded, discovery.KindOf(err))
	require.False(t, called, "no key means no request at all")
}

func TestAPISearchRateLimitNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	keys := &stubKeys{key: "sk-test-1", ok: true}
	api := testAPI(t, srv.URL, keys)

	_, err := api.Search(context.Background(), discovery.SearchRequest{Query: "dentist"})
	require.Error(t, err)
	require.Equal(t, discovery.KindRateLimit, discovery.KindOf(err))
	require.Equal(t, 1, calls, "429 must not be retried")
	require.Zero(t, keys.usage)
}

func TestAPISearchRetriesServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"name":"Acme"}]}`))
	}))
	defer srv.Close()

	api := testAPI(t, srv.URL, &stubKeys{key: "sk-test-1", ok: true})
	candidates, err := api.Search(context.Background(), discovery.SearchRequest{Query: "dentist"})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, 3, calls)
}

func TestAPISearchRejectedKeySurfacesQuotaError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	api := testAPI(t, srv.URL, &stubKeys{key: "sk-revoked", ok: true})
	_, err := api.Search(context.Background(), discovery.SearchRequest{Query: "dentist"})
	require.Error(t, err)
	require.Equal(t, discovery.KindQuotaExceeded, discovery.KindOf(err))
}
