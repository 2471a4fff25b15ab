// file: internal/server/server_test.go
// version: 2.1.0
// guid: 6e7f8a9b-0c1d-2e3f-4a5b-6c7d8e9f0a1b

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencatalog/streamvault/internal/catalog"
	"github.com/opencatalog/streamvault/internal/catalogsync"
	"github.com/opencatalog/streamvault/internal/config"
	"github.com/opencatalog/streamvault/internal/database"
	"github.com/opencatalog/streamvault/internal/engine"
	"github.com/opencatalog/streamvault/internal/realtime"
	"github.com/opencatalog/streamvault/internal/window"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// The key goes into the path URL-escaped; it contains no slashes so the
// router sees a single segment.
var testKey = catalog.Key{Server: "example.com:8080", Username: "alice"}

func keyPath() string {
	return url.PathEscape(testKey.String())
}

func testDocument(n int) *catalog.Document {
	doc := &catalog.Document{
		Categories: catalog.DocumentSections[catalog.RawCategory]{
			Live: []catalog.RawCategory{{CategoryID: "1", CategoryName: "News"}},
		},
	}
	for i := 0; i < n; i++ {
		doc.Streams.Live = append(doc.Streams.Live, catalog.RawItem{
			"stream_id":   fmt.Sprintf("%d", 100+i),
			"name":        fmt.Sprintf("News %d", i),
			"category_id": "1",
		})
	}
	return doc
}

func newTestServer(t *testing.T, hub *realtime.EventHub, fetcher catalogsync.Fetcher) *Server {
	t.Helper()
	eng := engine.New(database.NewMemoryStore(), engine.Options{ChunkSize: 10, ViewportSize: 5})
	t.Cleanup(func() { eng.Close() })
	return NewServer(eng, hub, fetcher, ServerConfig{}, nil)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func importTestCatalog(t *testing.T, s *Server, n int) {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/api/v1/catalogs/"+keyPath()+"/import", testDocument(n))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, nil, nil)
	for _, path := range []string{"/health", "/api/health"} {
		rec := doJSON(t, s, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode[map[string]any](t, rec)
		assert.Equal(t, "ok", body["status"])
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, nil, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/catalogs", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestImportAndListCatalogs(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/catalogs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	empty := decode[ListResponse](t, rec)
	assert.Equal(t, 0, empty.Count)

	importTestCatalog(t, s, 3)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/catalogs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Items []CatalogSummary `json:"items"`
		Count int              `json:"count"`
	}](t, rec)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, testKey.String(), list.Items[0].Key)
	assert.Equal(t, 3, list.Items[0].Counts["live"])
}

func TestImportRejectsBadBody(t *testing.T) {
	s := newTestServer(t, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/catalogs/"+keyPath()+"/import",
		bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvalidKeyParam(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := doJSON(t, s, http.MethodGet, "/api/v1/catalogs/nokey/live/categories", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[ErrorResponse](t, rec)
	assert.Equal(t, "BAD_REQUEST", body.Code)
}

func TestGetCategories(t *testing.T) {
	s := newTestServer(t, nil, nil)
	importTestCatalog(t, s, 3)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/catalogs/"+keyPath()+"/live/categories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Items []catalog.Category `json:"items"`
	}](t, rec)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "News", list.Items[0].Name)
	assert.Equal(t, 3, list.Items[0].ItemCount)
}

func TestGetCategoriesUnknownCollection(t *testing.T) {
	s := newTestServer(t, nil, nil)
	importTestCatalog(t, s, 1)
	rec := doJSON(t, s, http.MethodGet, "/api/v1/catalogs/"+keyPath()+"/music/categories", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Meta is a collection but not a content one.
	rec = doJSON(t, s, http.MethodGet, "/api/v1/catalogs/"+keyPath()+"/meta/categories", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetCategoriesNoCatalog(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := doJSON(t, s, http.MethodGet, "/api/v1/catalogs/"+keyPath()+"/live/categories", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decode[ErrorResponse](t, rec)
	assert.Equal(t, "NOT_FOUND", body.Code)
}

func TestWindowFlow(t *testing.T) {
	s := newTestServer(t, nil, nil)
	importTestCatalog(t, s, 23)
	base := "/api/v1/catalogs/" + keyPath() + "/live/window"

	rec := doJSON(t, s, http.MethodGet, base+"?category=1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decode[window.View](t, rec)
	assert.Equal(t, window.StateReady, view.State)
	assert.Equal(t, 23, view.TotalAvailable)
	assert.True(t, view.HasMore)
	assert.Len(t, view.Items, 5)

	rec = doJSON(t, s, http.MethodPost, base+"/load-more?category=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view = decode[window.View](t, rec)
	assert.Equal(t, 2, view.LoadedChunks)

	rec = doJSON(t, s, http.MethodPost, base+"/scroll?category=1", map[string]int{"index": 0})
	require.Equal(t, http.StatusOK, rec.Code)
	view = decode[window.View](t, rec)
	assert.Equal(t, 0, view.VisibleStart)

	rec = doJSON(t, s, http.MethodDelete, base+"?category=1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestWindowRequiresCategory(t *testing.T) {
	s := newTestServer(t, nil, nil)
	importTestCatalog(t, s, 3)
	rec := doJSON(t, s, http.MethodGet, "/api/v1/catalogs/"+keyPath()+"/live/window", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearch(t *testing.T) {
	s := newTestServer(t, nil, nil)
	importTestCatalog(t, s, 5)
	base := "/api/v1/catalogs/" + keyPath() + "/search"

	rec := doJSON(t, s, http.MethodGet, base+"?q=news", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Items []catalog.Item `json:"items"`
	}](t, rec)
	assert.Len(t, list.Items, 5)

	rec = doJSON(t, s, http.MethodGet, base+"?q=news&limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list = decode[struct {
		Items []catalog.Item `json:"items"`
	}](t, rec)
	assert.Len(t, list.Items, 2)

	// Missing q and unknown collection are client errors.
	rec = doJSON(t, s, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doJSON(t, s, http.MethodGet, base+"?q=news&collection=music", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunQuery(t *testing.T) {
	s := newTestServer(t, nil, nil)
	importTestCatalog(t, s, 5)
	path := "/api/v1/catalogs/" + keyPath() + "/query"

	rec := doJSON(t, s, http.MethodPost, path, map[string]any{
		"operation":  "SELECT",
		"collection": "live",
		"where":      map[string]any{"name": map[string]any{"like": "news 1"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[struct {
		Items []catalog.Item `json:"items"`
	}](t, rec)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "News 1", res.Items[0].Name)
}

func TestRunQueryInvalid(t *testing.T) {
	s := newTestServer(t, nil, nil)
	importTestCatalog(t, s, 1)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/catalogs/"+keyPath()+"/query", map[string]any{
		"operation":  "UPSERT",
		"collection": "live",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[ErrorResponse](t, rec)
	assert.Equal(t, "INVALID_QUERY", body.Code)
}

func TestDefaultCatalogEndpoints(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/catalogs/default", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, s, http.MethodPut, "/api/v1/catalogs/default",
		map[string]string{"key": testKey.String()})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/catalogs/default", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, testKey.String(), body["key"])

	// Malformed key in the body.
	rec = doJSON(t, s, http.MethodPut, "/api/v1/catalogs/default",
		map[string]string{"key": "nokey"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportCatalog(t *testing.T) {
	s := newTestServer(t, nil, nil)
	importTestCatalog(t, s, 3)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/catalogs/"+keyPath()+"/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode[catalog.Document](t, rec)
	assert.Len(t, doc.Streams.Live, 3)
	assert.Len(t, doc.Categories.Live, 1)
}

func TestExportCatalogNotImported(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := doJSON(t, s, http.MethodGet, "/api/v1/catalogs/"+keyPath()+"/export", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefreshWithoutFetcher(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := doJSON(t, s, http.MethodPost, "/api/v1/catalogs/"+keyPath()+"/refresh", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[ErrorResponse](t, rec)
	assert.Equal(t, "NO_FETCHER", body.Code)
}

func TestRefreshWithFetcher(t *testing.T) {
	fetcher := func(ctx context.Context, key catalog.Key) (*catalog.Document, error) {
		return testDocument(2), nil
	}
	s := newTestServer(t, nil, fetcher)
	path := "/api/v1/catalogs/" + keyPath() + "/refresh"

	type refreshBody struct {
		Success bool            `json:"success"`
		Cached  bool            `json:"cached"`
		Catalog *CatalogSummary `json:"catalog"`
	}

	rec := doJSON(t, s, http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[refreshBody](t, rec)
	assert.True(t, resp.Success)
	assert.False(t, resp.Cached)
	require.NotNil(t, resp.Catalog)
	assert.Equal(t, 2, resp.Catalog.Counts["live"])

	// Second refresh within the freshness horizon is served from cache.
	rec = doJSON(t, s, http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[refreshBody](t, rec)
	assert.True(t, resp.Cached)
}

func TestRefreshFetchFailure(t *testing.T) {
	fetcher := func(ctx context.Context, key catalog.Key) (*catalog.Document, error) {
		return nil, errors.New("provider down")
	}
	s := newTestServer(t, nil, fetcher)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/catalogs/"+keyPath()+"/refresh", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	resp := decode[RefreshResponse](t, rec)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "provider down")
}

func TestCancelRefresh(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := doJSON(t, s, http.MethodPost, "/api/v1/catalogs/"+keyPath()+"/refresh/cancel", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEventsWithoutHub(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := doJSON(t, s, http.MethodGet, "/api/events", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := doJSON(t, s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSettingsEndpoints(t *testing.T) {
	saved := config.AppConfig
	t.Cleanup(func() { config.AppConfig = saved })
	config.AppConfig.DatabasePath = filepath.Join(t.TempDir(), "streamvault.pebble")
	config.AppConfig.ChunkSize = 50

	s := newTestServer(t, nil, nil)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Settings map[string]string `json:"settings"`
	}](t, rec)
	assert.Equal(t, "50", body.Settings["chunk_size"])

	rec = doJSON(t, s, http.MethodPut, "/api/v1/settings", map[string]string{
		"chunk_size":   "40",
		"search_limit": "25",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 40, config.AppConfig.ChunkSize)
	assert.Equal(t, 25, config.AppConfig.SearchLimit)

	// The update lands in the store's meta collection.
	raw, ok, err := s.engine.Store().Get(catalog.CollectionMeta, "setting:chunk_size")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "40", string(raw))

	// Unknown keys reject the whole update.
	rec = doJSON(t, s, http.MethodPut, "/api/v1/settings", map[string]string{
		"chunk_size": "99",
		"bogus":      "1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 40, config.AppConfig.ChunkSize)

	rec = doJSON(t, s, http.MethodPut, "/api/v1/settings", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
