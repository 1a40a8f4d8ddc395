package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/lanbinleo/NovelWriter/internal/config"
	"github.com/lanbinleo/NovelWriter/internal/services"
	"github.com/lanbinleo/NovelWriter/internal/storage"
	"github.com/lanbinleo/NovelWriter/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	cfg    *config.Config
	store  *storage.BookStore
	hub    *EventHub
	router *gin.Engine
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		Port:           "8000",
		Host:           "127.0.0.1",
		StaticDir:      root,
		DataDir:        filepath.Join(root, "data"),
		MaxBodyBytes:   1 << 20,
		RateLimitBurst: 1,
		AllowedOrigins: []string{"*"},
	}
	for _, m := range mutate {
		m(cfg)
	}

	logger := utils.NewLogger(&bytes.Buffer{}, utils.DEBUG)
	collector := utils.NewMetricsCollector()
	bookMetrics := utils.NewBookMetrics(collector, logger)

	store, err := storage.NewBookStore(cfg)
	require.NoError(t, err)

	hub := NewEventHub(cfg.AllowedOrigins, logger, collector)
	t.Cleanup(hub.Close)

	svc := services.NewBookService(store, hub, bookMetrics, logger)
	handler := NewHandler(svc, hub, collector, cfg.StaticDir)

	router := SetupRouter(RouterDeps{Config: cfg, Handler: handler, Logger: logger, BookMetrics: bookMetrics})
	return &testEnv{cfg: cfg, store: store, hub: hub, router: router}
}

func (e *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestSaveBook_ThenDelete(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/save-book", `{"id": "42", "title": "Moon"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success": true}`, w.Body.String())
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	content, err := env.store.LoadBook("42")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id": "42", "title": "Moon"}`, string(content))

	w = env.do(http.MethodDelete, "/api/delete-book?id=42", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success": true}`, w.Body.String())
	assert.False(t, env.store.HasBook("42"))
}

func TestDeleteBook_MissingFileSucceeds(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodDelete, "/api/delete-book?id=never-saved", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success": true}`, w.Body.String())
}

func TestDeleteBook_MissingID(t *testing.T) {
	env := newTestEnv(t)

	for _, target := range []string{"/api/delete-book", "/api/delete-book?id="} {
		w := env.do(http.MethodDelete, target, "")
		assert.Equal(t, http.StatusInternalServerError, w.Code, target)
		assert.JSONEq(t, `{"error": "Missing book ID"}`, w.Body.String())
	}
}

func TestSaveBookList(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/save-book-list", `[{"id":"1"},{"id":"2"}]`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success": true}`, w.Body.String())

	content, err := os.ReadFile(filepath.Join(env.cfg.DataDir, "bookList.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"1"},{"id":"2"}]`, string(content))
}

func TestSaveBookList_InvalidJSON(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/save-book-list", `{"broken"`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"error"`)
	assert.False(t, env.store.HasBookList())
}

func TestSaveBook_InvalidBodyWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.SaveBook("1", []byte(`{"id":"1","title":"Keep"}`)))

	for _, body := range []string{`not-json`, `{"title":"no id"}`, `{"id":"1"}`} {
		w := env.do(http.MethodPost, "/api/save-book", body)
		assert.Equal(t, http.StatusInternalServerError, w.Code, body)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Error)
	}

	entries, err := os.ReadDir(env.cfg.BooksDir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	content, err := env.store.LoadBook("1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1","title":"Keep"}`, string(content))
}

func TestSaveEndpoints_RejectInvalidUTF8(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/save-book-list", "[\"\xff\xfe\"]")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error": "Book list must be UTF-8 text"}`, w.Body.String())
	assert.False(t, env.store.HasBookList())

	w = env.do(http.MethodPost, "/api/save-book", "{\"id\":\"u\",\"title\":\"\xff\xfe\"}")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error": "Book data must be UTF-8 text"}`, w.Body.String())
	assert.False(t, env.store.HasBook("u"))
}

func TestSaveBook_MissingFieldsMessage(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/save-book", `{"title":"Orphan"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error": "Book data must contain 'id' and 'title'"}`, w.Body.String())
}

func TestUnknownAPIRoutes(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		method string
		target string
	}{
		{http.MethodGet, "/api/unknown-endpoint"},
		{http.MethodPost, "/api/unknown-endpoint"},
		{http.MethodGet, "/api/save-book"},
		{http.MethodPut, "/api/save-book-list"},
		{http.MethodPost, "/api/delete-book?id=1"},
		{http.MethodGet, "/api"},
	}
	for _, tc := range cases {
		w := env.do(tc.method, tc.target, "")
		assert.Equal(t, http.StatusNotFound, w.Code, "%s %s", tc.method, tc.target)
	}

	w := env.do(http.MethodGet, "/api/unknown-endpoint", "")
	assert.JSONEq(t, `{"error": "API endpoint not found"}`, w.Body.String())
}

func TestAPIRoutes_NoTrailingSlashRedirect(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/save-book/", `{"id":"slash","title":"Slash"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, w.Header().Get("Location"))
	assert.JSONEq(t, `{"error": "API endpoint not found"}`, w.Body.String())
	assert.False(t, env.store.HasBook("slash"))

	require.NoError(t, env.store.SaveBook("1", []byte(`{"id":"1","title":"One"}`)))
	w = env.do(http.MethodDelete, "/api/delete-book/?id=1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.True(t, env.store.HasBook("1"))

	w = env.do(http.MethodGet, "/api/health/", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetrics_UnknownAPIPathsShareOneCounter(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 200; i++ {
		env.do(http.MethodGet, "/api/junk-"+strconv.Itoa(i), "")
	}
	env.do(http.MethodPost, "/api/save-book", `{"id":"1","title":"One"}`)

	w := env.do(http.MethodGet, "/api/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)

	var snapshot struct {
		Counters map[string]int64 `json:"counters"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))

	var perEndpoint []string
	for name := range snapshot.Counters {
		if strings.HasPrefix(name, "api_requests_") && name != "api_requests_total" {
			perEndpoint = append(perEndpoint, name)
		}
	}
	assert.ElementsMatch(t, []string{"api_requests_unmatched", "api_requests_POST_save-book"}, perEndpoint)
	assert.Equal(t, int64(200), snapshot.Counters["api_requests_unmatched"])
}

func TestStaticFiles(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.cfg.StaticDir, "index.html"), []byte("<h1>NovelWriter</h1>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(env.cfg.StaticDir, "editor.js"), []byte("console.log(1)"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(env.cfg.StaticDir, ".env"), []byte("SECRET=1"), 0644))
	require.NoError(t, env.store.SaveBookList([]byte(`[{"id":"1"}]`)))

	w := env.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "NovelWriter")

	w = env.do(http.MethodGet, "/editor.js", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "console.log(1)", w.Body.String())

	w = env.do(http.MethodGet, "/data/bookList.json", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"id":"1"}]`, w.Body.String())

	w = env.do(http.MethodHead, "/editor.js", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/missing.css", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/.env", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPost, "/editor.js", "x")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodDelete, "/index.html", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodOptions, "/api/save-book", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = env.do(http.MethodOptions, "/index.html", "")
	assert.Equal(t, http.StatusNotFound, w.Code, "静态路径不处理预检请求")
}

func TestCORS_RestrictedOrigins(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.AllowedOrigins = []string{"http://editor.test"} })

	req := httptest.NewRequest(http.MethodOptions, "/api/save-book", nil)
	req.Header.Set("Origin", "http://editor.test")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, "http://editor.test", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/save-book", nil)
	req.Header.Set("Origin", "http://evil.test")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestBodyLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.MaxBodyBytes = 64 })

	big := `{"id":"big","title":"` + strings.Repeat("x", 200) + `"}`
	w := env.do(http.MethodPost, "/api/save-book", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.False(t, env.store.HasBook("big"))
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.RateLimitRPS = 0.001
		c.RateLimitBurst = 2
	})

	assert.Equal(t, http.StatusOK, env.do(http.MethodDelete, "/api/delete-book?id=a", "").Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodDelete, "/api/delete-book?id=b", "").Code)

	w := env.do(http.MethodDelete, "/api/delete-book?id=c", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error": "Too many requests"}`, w.Body.String())

	// 只读端点不受限流影响
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/health", "").Code)
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/health", "")
	assert.Len(t, w.Header().Get("X-Request-Id"), 36)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-Id", "trace-123")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, "trace-123", w.Header().Get("X-Request-Id"))
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success": true, "status": "ok", "editors": 0, "books": 0}`, w.Body.String())

	env.do(http.MethodPost, "/api/save-book-list", `[{"id":"a"},{"id":"b"}]`)
	w = env.do(http.MethodGet, "/api/health", "")
	assert.JSONEq(t, `{"success": true, "status": "ok", "editors": 0, "books": 2}`, w.Body.String())

	env.do(http.MethodPost, "/api/save-book", `{"id":"m","title":"Metrics"}`)
	env.do(http.MethodPost, "/api/save-book", `nope`)

	w = env.do(http.MethodGet, "/api/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)

	var snapshot struct {
		Counters map[string]int64 `json:"counters"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	assert.Equal(t, int64(1), snapshot.Counters["book_writes_total"])
	assert.Equal(t, int64(1), snapshot.Counters["errors_save_book"])
	assert.Equal(t, int64(1), snapshot.Counters["api_responses_5xx"])
}

func TestPanicRecovery(t *testing.T) {
	env := newTestEnv(t)
	env.router.GET("/api/boom", func(c *gin.Context) { panic("kaboom") })

	w := env.do(http.MethodGet, "/api/boom", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error": "An internal error occurred"}`, w.Body.String())
}
