package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bus-signage/internal/board"
	"bus-signage/internal/clock"
	mmetrics "bus-signage/internal/metrics"
	"bus-signage/internal/schedule"
)

const apiDataset = `{
	"station_name": "中央駅",
	"station_name_en": "Central Station",
	"calendar": {"2024-01-15": [{"gtfs_id": "A", "service_id": "WD"}]},
	"departure_info": {
		"2": [{"gtfs_id": "A", "service_id": "WD", "departure_time": "09:00:00", "route_name": "7", "headsign": "Harbour"}],
		"1": [
			{"gtfs_id": "A", "service_id": "WD", "departure_time": "06:00:00", "route_name": "1", "headsign": "North"},
			{"gtfs_id": "A", "service_id": "WD", "departure_time": "06:30:00", "route_name": "1", "headsign": "North"},
			{"gtfs_id": "A", "service_id": "WD", "departure_time": "07:00:00", "route_name": "3", "headsign": "South"},
			{"gtfs_id": "A", "service_id": "WD", "departure_time": "07:30:00", "route_name": "3", "headsign": "South"}
		]
	}
}`

type staticSource []byte

func (s staticSource) Fetch(context.Context) ([]byte, error) { return s, nil }
func (s staticSource) String() string                        { return "static" }

type staticBoards struct{ b *board.Board }

func (s staticBoards) Latest() *board.Board { return s.b }

func newTestServer(t *testing.T, load bool, boards BoardSource, opts Options, m *mmetrics.Collector) *Server {
	t.Helper()
	store := schedule.NewStore(nil, nil)
	if load {
		_, err := store.Load(context.Background(), staticSource(apiDataset))
		require.NoError(t, err)
	}
	engine := schedule.NewEngine(store, nil, nil)
	clk := clock.NewMockClock(time.Date(2024, 1, 15, 6, 15, 0, 0, time.UTC))
	s := NewServer(engine, boards, clk, opts, m, nil)
	t.Cleanup(s.Close)
	return s
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestServer(t, false, nil, Options{}, nil), "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = get(t, newTestServer(t, true, nil, Options{}, nil), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestStatus(t *testing.T) {
	s := newTestServer(t, true, nil, Options{Station: "central"}, nil)
	rec := get(t, s, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[statusResponse](t, rec)
	assert.True(t, resp.Loaded)
	assert.Equal(t, "central", resp.Station)
	assert.Equal(t, "中央駅", resp.StationName)
	assert.Equal(t, "2024-01-15", resp.ServiceDay)
	assert.Equal(t, 6*3600+15*60, resp.Elapsed)
	assert.Equal(t, 4, resp.DateChangeHour)
}

func TestStationAndSignage(t *testing.T) {
	s := newTestServer(t, true, nil, Options{}, nil)

	rec := get(t, s, "/api/station")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"name": "中央駅", "name_en": "Central Station"}, decode[map[string]string](t, rec))

	rec = get(t, s, "/api/signage")
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode[map[string]any](t, rec)
	assert.Equal(t, "Central Station", doc["station_name_en"])
	assert.Contains(t, doc, "departure_info")

	rec = get(t, newTestServer(t, false, nil, Options{}, nil), "/api/signage")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "dataset not loaded", decode[errorResponse](t, rec).Error)
}

func TestPlatforms(t *testing.T) {
	rec := get(t, newTestServer(t, true, nil, Options{}, nil), "/api/platforms")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string][]string{"platforms": {"1", "2"}}, decode[map[string][]string](t, rec))

	rec = get(t, newTestServer(t, false, nil, Options{}, nil), "/api/platforms")
	assert.Equal(t, map[string][]string{"platforms": {}}, decode[map[string][]string](t, rec))
}

func TestDepartures(t *testing.T) {
	s := newTestServer(t, true, nil, Options{DefaultLimit: 2}, nil)

	tests := []struct {
		name  string
		path  string
		want  []string
		check func(t *testing.T, resp departuresResponse)
	}{
		{name: "default limit", path: "/api/platforms/1/departures", want: []string{"06:30:00", "07:00:00"}},
		{name: "explicit limit", path: "/api/platforms/1/departures?limit=5", want: []string{"06:30:00", "07:00:00", "07:30:00"}},
		{name: "invalid limit falls back", path: "/api/platforms/1/departures?limit=abc", want: []string{"06:30:00", "07:00:00"}},
		{name: "zero limit falls back", path: "/api/platforms/1/departures?limit=0", want: []string{"06:30:00", "07:00:00"}},
		{name: "offset forward", path: "/api/platforms/1/departures?offset=50", want: []string{"07:30:00"}},
		{name: "offset backward", path: "/api/platforms/1/departures?offset=-30&limit=1", want: []string{"06:00:00"}},
		{name: "non-numeric offset ignored", path: "/api/platforms/1/departures?offset=later&limit=1", want: []string{"06:30:00"}},
		{name: "unknown platform", path: "/api/platforms/99/departures", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, s, tt.path)
			require.Equal(t, http.StatusOK, rec.Code)
			resp := decode[departuresResponse](t, rec)
			assert.Equal(t, "2024-01-15", resp.ServiceDay)
			require.NotNil(t, resp.Departures)
			got := make([]string, 0, len(resp.Departures))
			for _, d := range resp.Departures {
				got = append(got, d.DepartureClock)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDepartures_Unloaded(t *testing.T) {
	rec := get(t, newTestServer(t, false, nil, Options{}, nil), "/api/platforms/1/departures")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(mustRaw(t, rec, "departures")))
}

func mustRaw(t *testing.T, rec *httptest.ResponseRecorder, key string) json.RawMessage {
	t.Helper()
	m := decode[map[string]json.RawMessage](t, rec)
	require.Contains(t, m, key)
	return m[key]
}

func TestBoard(t *testing.T) {
	rec := get(t, newTestServer(t, true, staticBoards{}, Options{}, nil), "/api/board")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	b := &board.Board{ID: "abc", ServiceDay: "2024-01-15", Platforms: []board.PlatformBoard{}}
	rec = get(t, newTestServer(t, true, staticBoards{b: b}, Options{}, nil), "/api/board")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[board.Board](t, rec)
	assert.Equal(t, "abc", got.ID)
	assert.Equal(t, "2024-01-15", got.ServiceDay)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, true, nil, Options{RateLimitRPS: 1}, nil)

	assert.Equal(t, http.StatusOK, get(t, s, "/healthz").Code)
	rec := get(t, s, "/healthz")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate limit exceeded", decode[errorResponse](t, rec).Error)

	// a different client has its own bucket
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "203.0.113.7:4000"
	other := httptest.NewRecorder()
	s.ServeHTTP(other, req)
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	clk := clock.NewMockClock(time.Date(2024, 1, 15, 6, 0, 0, 0, time.UTC))
	rl := NewRateLimiter(5, clk)
	defer rl.Stop()

	rl.limiter("a")
	clk.Advance(8 * time.Minute)
	rl.limiter("b")
	clk.Advance(3 * time.Minute)
	rl.cleanupOnce()

	rl.mu.RLock()
	defer rl.mu.RUnlock()
	assert.NotContains(t, rl.clients, "a")
	assert.Contains(t, rl.clients, "b")
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, true, nil, Options{CORSOrigins: []string{"https://screen.example"}}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/station", nil)
	req.Header.Set("Origin", "https://screen.example")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, "https://screen.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestMetrics(t *testing.T) {
	m := mmetrics.NewCollector(time.Second, time.Second)
	s := newTestServer(t, false, nil, Options{}, m)

	get(t, s, "/api/platforms/1/departures")
	get(t, s, "/api/platforms/2/departures")
	get(t, s, "/api/signage")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/api/platforms/{platform}/departures", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/api/signage", "503")))
}

func TestRequestMetrics_UnmatchedPathsShareOneSeries(t *testing.T) {
	m := mmetrics.NewCollector(time.Second, time.Second)
	s := newTestServer(t, true, nil, Options{}, m)

	for i := 0; i < 200; i++ {
		rec := get(t, s, fmt.Sprintf("/no/such/path/%d", i))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}
	get(t, s, "/api/station")

	assert.Equal(t, 2, testutil.CollectAndCount(m.HTTPRequests))
	assert.Equal(t, 200.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues(unmatchedRoute, "404")))
}

func TestRequestMetrics_RateLimitedRequestsAreUnmatched(t *testing.T) {
	m := mmetrics.NewCollector(time.Second, time.Second)
	s := newTestServer(t, true, nil, Options{RateLimitRPS: 1}, m)

	get(t, s, "/api/station")
	for i := 0; i < 20; i++ {
		assert.Equal(t, http.StatusTooManyRequests, get(t, s, fmt.Sprintf("/x/%d", i)).Code)
	}

	assert.Equal(t, 2, testutil.CollectAndCount(m.HTTPRequests))
	assert.Equal(t, 20.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues(unmatchedRoute, "429")))
}
