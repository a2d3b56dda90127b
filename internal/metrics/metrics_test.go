package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()

	require.NotNil(t, m.registry)
	require.NotNil(t, m.SessionsDeletedTotal)
	require.NotNil(t, m.SessionDecodeFailures)
	require.NotNil(t, m.ForcedLogoutsTotal)
	require.NotNil(t, m.LoginsTotal)
	require.NotNil(t, m.ReconcileDuration)
	require.NotNil(t, m.HTTPRequestsTotal)
	require.NotNil(t, m.HTTPRequestDuration)
	require.NotNil(t, m.PhotosUploadedTotal)
	require.NotNil(t, m.ReportsRendered)
}

func TestSessionMetricsSink(t *testing.T) {
	m := NewMetrics()

	m.SessionsDeleted("superseded", 2)
	m.SessionsDeleted("superseded", 1)
	m.SessionsDeleted("login_purge", 4)
	m.DecodeFailures(3)
	m.ForcedLogout()

	require.Equal(t, 3.0, testutil.ToFloat64(m.SessionsDeletedTotal.WithLabelValues("superseded")))
	require.Equal(t, 4.0, testutil.ToFloat64(m.SessionsDeletedTotal.WithLabelValues("login_purge")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.SessionDecodeFailures))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ForcedLogoutsTotal))
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.ForcedLogout()
	m.ObserveRequest(http.MethodGet, http.StatusOK, 15*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "cda_forced_logouts_total")
	require.Contains(t, string(body), `cda_http_requests_total{method="GET",status="200"} 1`)
}
