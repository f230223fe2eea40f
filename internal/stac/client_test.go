package stac

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/forest-guardian/ndwi-water-cli/internal/cache"
	"github.com/forest-guardian/ndwi-water-cli/internal/observability"
	"github.com/forest-guardian/ndwi-water-cli/internal/properties"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testParams() SearchParams {
	return SearchParams{
		Collections:   []string{"sentinel-2-l2a"},
		BBox:          orb.Bound{Min: orb.Point{-74, 40.7}, Max: orb.Point{-73.9, 40.8}},
		Start:         time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		End:           time.Date(2024, 5, 31, 10, 0, 0, 0, time.UTC),
		CloudCoverMax: 20,
		Limit:         2,
	}
}

func testItem(id string, cloud float64, date time.Time) Item {
	return Item{
		Type: "Feature",
		ID:   id,
		BBox: []float64{-75, 40, -73, 41},
		Properties: Properties{
			Datetime:   date,
			CloudCover: &cloud,
		},
		Assets: map[string]Asset{
			"green": {Href: "https://example.com/" + id + "/B03.tif"},
			"nir":   {Href: "https://example.com/" + id + "/B08.tif"},
		},
	}
}

func writeCollection(t *testing.T, w http.ResponseWriter, fc FeatureCollection) {
	t.Helper()
	w.Header().Set("Content-Type", "application/geo+json")
	require.NoError(t, json.NewEncoder(w).Encode(fc))
}

func TestSearchParams_Datetime(t *testing.T) {
	assert.Equal(t, "2024-05-01T00:00:00Z/2024-05-31T23:59:59Z", testParams().Datetime())
}

func TestClient_Search_RequestBody(t *testing.T) {
	day := time.Date(2024, 5, 20, 15, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/search", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"sentinel-2-l2a"}, body.Collections)
		assert.Equal(t, []float64{-74, 40.7, -73.9, 40.8}, body.BBox)
		assert.Equal(t, "2024-05-01T00:00:00Z/2024-05-31T23:59:59Z", body.Datetime)
		assert.InDelta(t, 20, body.Query["eo:cloud_cover"]["lt"], 1e-9)
		assert.Equal(t, 2, body.Limit)

		writeCollection(t, w, FeatureCollection{
			Type:     "FeatureCollection",
			Features: []Item{testItem("S2A_A", 5, day)},
		})
	}))
	defer srv.Close()

	metrics := observability.NewMetricsForTesting()
	c := NewClient(srv.URL+"/v1/", WithLogger(testLogger()), WithMetrics(metrics))
	items, err := c.Search(context.Background(), testParams())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "S2A_A", items[0].ID)
	assert.True(t, items[0].Properties.Datetime.Equal(day))
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.SearchRequests.WithLabelValues("success")), 1e-9)
}

func TestClient_Search_FollowsNextLinks(t *testing.T) {
	day := time.Date(2024, 5, 20, 15, 0, 0, 0, time.UTC)
	var calls int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		var body map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		switch n {
		case 1:
			assert.NotContains(t, body, "next")
			writeCollection(t, w, FeatureCollection{
				Features: []Item{testItem("A", 5, day), testItem("B", 6, day)},
				Links: []Link{{
					Rel:    "next",
					Href:   srv.URL + "/search",
					Method: "POST",
					Body:   json.RawMessage(`{"next":"token-2"}`),
					Merge:  true,
				}},
			})
		case 2:
			assert.JSONEq(t, `"token-2"`, string(body["next"]))
			assert.Contains(t, body, "collections")
			writeCollection(t, w, FeatureCollection{
				Features: []Item{testItem("C", 7, day)},
			})
		default:
			t.Fatalf("unexpected request %d", n)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithLogger(testLogger()))
	items, err := c.Search(context.Background(), testParams())
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_Search_MaxItems(t *testing.T) {
	day := time.Date(2024, 5, 20, 15, 0, 0, 0, time.UTC)
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeCollection(t, w, FeatureCollection{
			Features: []Item{testItem("A", 5, day), testItem("B", 6, day)},
			Links:    []Link{{Rel: "next", Href: srv.URL + "/search?page=2"}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithLogger(testLogger()), WithMaxItems(3))
	items, err := c.Search(context.Background(), testParams())
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestClient_Search_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		writeCollection(t, w, FeatureCollection{Features: []Item{}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithLogger(testLogger()), WithRetries(3, time.Millisecond))
	items, err := c.Search(context.Background(), testParams())
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_Search_GivesUpAfterRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithLogger(testLogger()), WithRetries(2, time.Millisecond))
	_, err := c.Search(context.Background(), testParams())
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_Search_NoRetryOnBadRequest(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"code":"BadRequest"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithLogger(testLogger()), WithRetries(5, time.Millisecond))
	_, err := c.Search(context.Background(), testParams())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BadRequest")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_Search_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(srv.URL, WithLogger(testLogger()), WithRetries(3, time.Hour))
	_, err := c.Search(ctx, testParams())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_Search_UsesCache(t *testing.T) {
	day := time.Date(2024, 5, 20, 15, 0, 0, 0, time.UTC)
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeCollection(t, w, FeatureCollection{Features: []Item{testItem("A", 1, day)}})
	}))
	defer srv.Close()

	fc := cache.NewFileCache[[]Item](filepath.Join(t.TempDir(), "stac"), time.Hour)
	metrics := observability.NewMetricsForTesting()
	c := NewClient(srv.URL, WithLogger(testLogger()), WithCache(fc), WithMetrics(metrics))

	first, err := c.Search(context.Background(), testParams())
	require.NoError(t, err)
	second, err := c.Search(context.Background(), testParams())
	require.NoError(t, err)

	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.SearchRequests.WithLabelValues("cached")), 1e-9)
}

func TestClient_Search_InvalidParams(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", WithLogger(testLogger()))

	p := testParams()
	p.End = p.Start.AddDate(0, 0, -1)
	_, err := c.Search(context.Background(), p)
	assert.Error(t, err)

	p = testParams()
	p.Collections = nil
	_, err = c.Search(context.Background(), p)
	assert.Error(t, err)

	p = testParams()
	p.BBox = orb.Bound{Min: orb.Point{2, 2}, Max: orb.Point{1, 1}}
	_, err = c.Search(context.Background(), p)
	assert.Error(t, err)

	var nilClient *Client
	_, err = nilClient.Search(context.Background(), testParams())
	assert.ErrorIs(t, err, ErrNilClient)
}

func TestNewHTTPClient_OAuth(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-123","token_type":"bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	stacSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		writeCollection(t, w, FeatureCollection{Features: []Item{}})
	}))
	defer stacSrv.Close()

	hc := NewHTTPClient(context.Background(), properties.STAC{
		ClientID:     "id",
		ClientSecret: "secret",
		TokenURL:     tokenSrv.URL,
	}, 10*time.Second)

	c := NewClient(stacSrv.URL, WithHTTPClient(hc), WithLogger(testLogger()))
	_, err := c.Search(context.Background(), testParams())
	require.NoError(t, err)
}

func TestNewHTTPClient_Anonymous(t *testing.T) {
	hc := NewHTTPClient(context.Background(), properties.STAC{}, 7*time.Second)
	assert.Equal(t, 7*time.Second, hc.Timeout)
	assert.Nil(t, hc.Transport)
}
