package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dealhound/dealhound/internal/http/handlers"
)

func testRouter() http.Handler {
	return New(&Config{
		ChatHandler: handlers.NewChatHandler(nil, nil, nil, nil, nil, nil, "", false, nil),
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
		CORSAllowedOrigins: []string{"https://dealhound.example"},
	})
}

func TestRouter_HealthRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status"`)
}

func TestRouter_MetricsRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_StreamRouteRegistered(t *testing.T) {
	// Streaming is disabled in the fixture, so a registered route answers 501
	// rather than 404.
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat/stream", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestRouter_ChatRejectsGet(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouter_UnknownRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_CORSHeadersApplied(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/chat/health", nil)
	req.Header.Set("Origin", "https://dealhound.example")

	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, req)
	assert.Equal(t, "https://dealhound.example", rec.Header().Get("Access-Control-Allow-Origin"))
}
