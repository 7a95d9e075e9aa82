package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/api/handlers"
	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/observability/metrics"
	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/privacy"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/constants"
)

func newTestRouter(t *testing.T, m *metrics.PrometheusMetrics) http.Handler {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	defaults := handlers.AuditDefaults{
		Audit:               *privacy.DefaultAuditConfig(),
		QuasiIdentifiers:    []string{"age_group", "gender"},
		SensitiveAttributes: []string{"diagnosis"},
		EnforcementMethod:   string(privacy.MethodSuppress),
	}
	audit := handlers.NewAuditHandler(defaults, handlers.Backends{}, nil, logger)
	budget := handlers.NewBudgetHandler(handlers.NewSyncLedger(privacy.NewDefaultLedger()), nil, logger)
	health := handlers.NewHealthHandler(constants.AppVersion, "test")

	return NewRouter(audit, budget, health, m, logger).SetupRoutes()
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoutes(t *testing.T) {
	r := newTestRouter(t, nil)

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/", "", http.StatusOK},
		{http.MethodGet, "/api/v1/health", "", http.StatusOK},
		{http.MethodGet, "/api/v1/health/live", "", http.StatusOK},
		{http.MethodGet, "/api/v1/health/version", "", http.StatusOK},
		{http.MethodGet, "/api/v1/budget", "", http.StatusOK},
		{http.MethodPost, "/api/v1/budget/queries", `{"query":"q","epsilon":0.1}`, http.StatusCreated},
		{http.MethodPost, "/api/v1/audit", `{"records":[{"age_group":"18-30","gender":"F","diagnosis":"flu"}]}`, http.StatusOK},
		{http.MethodPost, "/api/v1/enforce", `{"records":[{"age_group":"18-30","gender":"F","diagnosis":"flu"}]}`, http.StatusOK},
		{http.MethodGet, "/api/v1/audit", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/unknown", "", http.StatusNotFound},
		{http.MethodGet, "/metrics", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := serve(r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	r := newTestRouter(t, nil)

	rec := serve(r, http.MethodGet, "/api/v1/health/live", "")
	assert.NotEmpty(t, rec.Header().Get(constants.HeaderRequestID))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/audit", strings.NewReader("{"))
	req.Header.Set(constants.HeaderRequestID, "req-42")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(constants.HeaderRequestID))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "req-42", body["request_id"])
	assert.Equal(t, "/api/v1/audit", body["path"])
}

func TestSecurityAndCORSHeaders(t *testing.T) {
	r := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/audit", nil)
	req.Header.Set("Origin", "https://dashboard.example.org")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://dashboard.example.org", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = serve(r, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestMetricsRoute(t *testing.T) {
	m, err := metrics.NewPrometheusMetrics(metrics.DefaultPrometheusConfig(), logrus.New())
	require.NoError(t, err)
	r := newTestRouter(t, m)

	serve(r, http.MethodGet, "/api/v1/health/live", "")
	rec := serve(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	count, err := testutil.GatherAndCount(m.Registry())
	require.NoError(t, err)
	assert.Greater(t, count, 0)
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:51234"
	assert.Equal(t, "10.0.0.5", getClientIP(req))

	req.Header.Set("X-Real-IP", "192.168.1.9")
	assert.Equal(t, "192.168.1.9", getClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", getClientIP(req))
}
