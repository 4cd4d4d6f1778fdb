// ABOUTME: Tests for the gateway metrics collectors and HTTP instrumentation
// ABOUTME: Reads values back through Gather instead of scraping text

package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/tool-gateway/internal/cache"
)

// find returns the metric named name whose labels include want.
func find(t *testing.T, m *Metrics, name string, want map[string]string) *dto.Metric {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			if labelsMatch(metric, want) {
				return metric
			}
		}
	}
	return nil
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	got := map[string]string{}
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestObserveAuth(t *testing.T) {
	m := New()
	m.ObserveAuth("validate", true)
	m.ObserveAuth("validate", true)
	m.ObserveAuth("validate", false)

	ok := find(t, m, "auth_attempts_total", map[string]string{"operation": "validate", "status": "success"})
	require.NotNil(t, ok)
	assert.Equal(t, 2.0, ok.GetCounter().GetValue())

	bad := find(t, m, "auth_attempts_total", map[string]string{"operation": "validate", "status": "failure"})
	require.NotNil(t, bad)
	assert.Equal(t, 1.0, bad.GetCounter().GetValue())
}

func TestObserveTool(t *testing.T) {
	m := New()
	m.ObserveTool("filesystem_read_file", true, 20*time.Millisecond)

	c := find(t, m, "tool_executions_total", map[string]string{"tool": "filesystem_read_file", "status": "success"})
	require.NotNil(t, c)
	assert.Equal(t, 1.0, c.GetCounter().GetValue())

	h := find(t, m, "tool_execution_duration_seconds", map[string]string{"tool": "filesystem_read_file"})
	require.NotNil(t, h)
	assert.Equal(t, uint64(1), h.GetHistogram().GetSampleCount())
}

func TestInstrument_UsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Instrument)
	r.Get("/api/adapters/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/adapters/"+id, nil))
	}

	c := find(t, m, "http_requests_total", map[string]string{"method": "GET", "path": "/api/adapters/{id}", "status": "418"})
	require.NotNil(t, c)
	assert.Equal(t, 2.0, c.GetCounter().GetValue())

	inFlight := find(t, m, "http_in_flight_requests", nil)
	require.NotNil(t, inFlight)
	assert.Zero(t, inFlight.GetGauge().GetValue())
}

func TestInstrument_DefaultStatus(t *testing.T) {
	m := New()
	h := m.Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	c := find(t, m, "http_requests_total", map[string]string{"path": "unmatched", "status": "200"})
	require.NotNil(t, c)
}

func TestInstrument_EmptyResponseCountsAsOK(t *testing.T) {
	m := New()
	h := m.Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	c := find(t, m, "http_requests_total", map[string]string{"path": "unmatched", "status": "200"})
	require.NotNil(t, c)
}

type fakeStats struct {
	stats cache.ManagerStats
	err   error
}

func (f fakeStats) Stats(context.Context) (cache.ManagerStats, error) { return f.stats, f.err }

func TestCacheCollector(t *testing.T) {
	m := New()
	require.NoError(t, m.RegisterCacheStats(fakeStats{stats: cache.ManagerStats{
		Primary:       cache.Stats{Size: 3, Hits: 10, Misses: 2, Evictions: 1},
		Secondary:     &cache.Stats{Size: 7},
		TotalRequests: 12,
		HitRate:       0.75,
	}}))

	l1 := find(t, m, "cache_entries", map[string]string{"tier": "l1"})
	require.NotNil(t, l1)
	assert.Equal(t, 3.0, l1.GetGauge().GetValue())

	l2 := find(t, m, "cache_entries", map[string]string{"tier": "l2"})
	require.NotNil(t, l2)
	assert.Equal(t, 7.0, l2.GetGauge().GetValue())

	ratio := find(t, m, "cache_hit_ratio", nil)
	require.NotNil(t, ratio)
	assert.Equal(t, 0.75, ratio.GetGauge().GetValue())
}

func TestCacheCollector_Error(t *testing.T) {
	m := New()
	require.NoError(t, m.RegisterCacheStats(fakeStats{err: errors.New("db closed")}))
	_, err := m.Registry().Gather()
	assert.Error(t, err)
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveAuth("authenticate", true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `auth_attempts_total{operation="authenticate",status="success"} 1`))
}
