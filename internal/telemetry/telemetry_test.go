package telemetry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEnabled(t *testing.T) *Telemetry {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	tel, err := New(ctx, Config{Enabled: true, ServiceName: "fetchbox-test", ServiceVersion: "test"})
	require.NoError(t, err)

	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	return tel
}

func scrape(t *testing.T, tel *Telemetry) string {
	t.Helper()

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	return string(body)
}

func TestNilTelemetryIsSafe(t *testing.T) {
	var tel *Telemetry

	assert.NotPanics(t, func() {
		tel.RecordDownload("completed", 10, time.Second)
		tel.IncrementActiveDownloads()
		tel.DecrementActiveDownloads()
		tel.IncrementSessions()
		tel.DecrementSessions()
		tel.RecordPrecheck("ok")
		tel.RecordSystemError("session", "panic")
		_ = tel.Tracer()
	})

	called := false
	err := tel.InstrumentDBOperation(context.Background(), "list", func(context.Context) error {
		called = true

		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)

	wantErr := errors.New("boom")
	err = tel.InstrumentDownload(context.Background(), func(context.Context) (string, int64, error) {
		return "failed", 0, wantErr
	})
	require.ErrorIs(t, err, wantErr)

	require.NoError(t, tel.Shutdown(context.Background()))

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDisabledTelemetryIsInert(t *testing.T) {
	tel, err := New(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		tel.RecordHTTPRequest("GET", "/", "2xx", time.Millisecond)
		tel.RecordDBOperation("list", "success", time.Millisecond)
	})
	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestMetricsExposed(t *testing.T) {
	tel := newEnabled(t)

	err := tel.InstrumentDownload(context.Background(), func(context.Context) (string, int64, error) {
		return "completed", 2048, nil
	})
	require.NoError(t, err)

	require.NoError(t, tel.InstrumentDBOperation(context.Background(), "record_start", func(context.Context) error {
		return nil
	}))

	body := scrape(t, tel)
	assert.Contains(t, body, "downloads_total")
	assert.Contains(t, body, "download_bytes_total")
	assert.Contains(t, body, "db_operations_total")
	assert.Contains(t, body, `downloads_total{`)
	assert.Contains(t, body, `status="completed"`)
	assert.NotContains(t, body, "_ratio")
	assert.NotContains(t, body, "_seconds_seconds")
}

func TestHTTPMiddlewareUsesRoutePattern(t *testing.T) {
	tel := newEnabled(t)

	r := chi.NewRouter()
	r.Use(NewHTTPMiddleware(tel).Middleware)
	r.Get("/file/{filename}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/file/secret.zip", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	body := scrape(t, tel)
	assert.Contains(t, body, `path="/file/{filename}"`)
	assert.NotContains(t, body, "secret.zip")
	assert.Contains(t, body, `status="4xx"`)
}

func TestRequestID(t *testing.T) {
	var seen string

	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "upstream-id")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "upstream-id", seen)
		assert.Equal(t, "upstream-id", rec.Header().Get(RequestIDHeader))
	})

	assert.Empty(t, GetRequestID(context.Background()))
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := wrapResponseWriter(rec)

	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)

	n, err := rw.Write([]byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, 5, n)
	assert.Equal(t, http.StatusCreated, rw.status)
	assert.Equal(t, int64(5), rw.bytesWritten)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Same(t, rw, wrapResponseWriter(rw))

	_, _, err = rw.Hijack()
	require.Error(t, err)
}

func TestGetStatusClass(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{101, "1xx"},
		{200, "2xx"},
		{204, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{408, "4xx"},
		{500, "5xx"},
		{0, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, getStatusClass(tt.code), "code %d", tt.code)
	}
}
