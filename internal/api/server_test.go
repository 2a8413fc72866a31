package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scalper/internal/core"
	"scalper/internal/obs"
	"scalper/internal/schema"
)

type staticSource struct {
	status core.Status
}

func (s staticSource) Status() core.Status { return s.status }

var now = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newServer(st core.Status, metrics *obs.Metrics) *Server {
	s := NewServer(Config{StaleAfter: 5 * time.Second}, staticSource{status: st}, metrics)
	s.now = func() time.Time { return now }
	return s
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, newServer(core.Status{Symbol: "EURUSD", LastTick: now.Add(-time.Second)}, nil), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = get(t, newServer(core.Status{Symbol: "EURUSD", LastTick: now.Add(-time.Minute)}, nil), "/healthz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"stale"`)
}

func TestStatus(t *testing.T) {
	st := core.Status{
		Symbol:          "EURUSD",
		DayStartBalance: 10000,
		Halted:          true,
		Positions:       []schema.Position{{Ticket: 1001, Symbol: "EURUSD", Side: schema.SideBuy, Lots: 0.1}},
	}
	rec := get(t, newServer(st, nil), "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var got core.Status
	require.NoError(t, sonic.ConfigStd.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "EURUSD", got.Symbol)
	assert.True(t, got.Halted)
	require.Len(t, got.Positions, 1)
	assert.Equal(t, uint64(1001), got.Positions[0].Ticket)
}

func TestMetrics(t *testing.T) {
	m := obs.NewMetrics("scalper")
	m.IncSignal("spread too wide")
	rec := get(t, newServer(core.Status{}, m), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `scalper_signals_total{outcome="rejected",reason="spread too wide"} 1`)

	rec = get(t, newServer(core.Status{}, nil), "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
