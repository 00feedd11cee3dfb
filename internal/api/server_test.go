package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"example.com/backstage/services/partyup/config"
	"example.com/backstage/services/partyup/internal/database"
	"example.com/backstage/services/partyup/internal/identity"
	"example.com/backstage/services/partyup/internal/metrics"
	"example.com/backstage/services/partyup/internal/repositories/memstore"
	"example.com/backstage/services/partyup/internal/search/searchtest"
	"example.com/backstage/services/partyup/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, verifier identity.Verifier) (*Server, *metrics.Metrics) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m := metrics.NewMetrics()
	svc := services.NewService(services.Dependencies{Index: searchtest.New(), Metrics: m})
	cfg := config.Config{
		MetricsEnabled: true,
		Server: config.ServerConfig{
			Address:     "127.0.0.1:0",
			CorsEnabled: true,
			CorsOrigins: []string{"https://app.example.com"},
		},
	}
	return NewServer(cfg, Dependencies{
		Service:  svc,
		UoW:      database.NewUnitOfWorkWith(memstore.New()),
		Verifier: verifier,
		Metrics:  m,
	}), m
}

func TestHealthAndRequestID(t *testing.T) {
	s, _ := newTestServer(t, identity.NewGoogleVerifier(config.IdentityConfig{}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "req-42")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.Equal(t, "req-42", w.Header().Get(requestIDHeader))

	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestMetricsCountRequestsAndErrors(t *testing.T) {
	s, m := newTestServer(t, identity.NewGoogleVerifier(config.IdentityConfig{}))

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	// no bearer token is rejected before any outbound call
	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users/me/profile", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Counters map[string]int64 `json:"counters"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(2), body.Counters[metrics.RequestsTotal])
	assert.Equal(t, int64(1), m.Counter(metrics.RequestErrors))
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	s, _ := newTestServer(t, identity.NewGoogleVerifier(config.IdentityConfig{}))

	req := httptest.NewRequest(http.MethodOptions, "/events/leaderboard", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}
