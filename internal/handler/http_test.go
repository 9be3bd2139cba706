package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cpfleet/internal/domain"
	"cpfleet/internal/metrics"
	"cpfleet/internal/middleware"
	"cpfleet/pkg/cpapi"
)

type fakeUpstream struct {
	mu        sync.Mutex
	calls     []string
	requested []int
	trains    []domain.StaticTrain
	stations  []domain.Station
	details   map[int]domain.TrainDetails

	trainsErr   error
	stationsErr error
	detailsErr  error
}

func (f *fakeUpstream) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeUpstream) StaticTrains(ctx context.Context) ([]domain.StaticTrain, error) {
	f.record("trains")
	if f.trainsErr != nil {
		return nil, f.trainsErr
	}
	return f.trains, nil
}

func (f *fakeUpstream) Stations(ctx context.Context) ([]domain.Station, error) {
	f.record("stations")
	if f.stationsErr != nil {
		return nil, f.stationsErr
	}
	return f.stations, nil
}

func (f *fakeUpstream) RealtimeDetails(ctx context.Context, numbers []int) (map[int]domain.TrainDetails, error) {
	f.record("details")
	f.requested = numbers
	return f.details, f.detailsErr
}

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }

func envelope(s domain.TrainStatus) domain.TrainDetails {
	return domain.TrainDetails{Status: &s}
}

func newFixture() *fakeUpstream {
	return &fakeUpstream{
		trains: []domain.StaticTrain{
			{
				TrainNumber:      1,
				TrainService:     domain.Entity{Code: "IC", Designation: "Intercidades"},
				TrainOrigin:      domain.Entity{Code: "A", Designation: "Lisboa"},
				TrainDestination: domain.Entity{Code: "B", Designation: "Porto"},
			},
			{TrainNumber: 3},
			{TrainNumber: 3},
		},
		stations: []domain.Station{
			{Code: "94-2006", Designation: "Porto - Campanhã", Latitude: "41.148", Longitude: "-8.585", Railways: []string{"Linha do Norte"}},
		},
		details: map[int]domain.TrainDetails{
			1: envelope(domain.TrainStatus{TrainNumber: 1, Status: "RUNNING", Delay: intp(5), Speed: floatp(80), Occupancy: floatp(0.3)}),
			2: envelope(domain.TrainStatus{TrainNumber: 2, Status: domain.StatusCancelled, Delay: intp(0)}),
			3: envelope(domain.TrainStatus{TrainNumber: 3, Status: domain.StatusCompleted, Delay: intp(2)}),
			4: {Platforms: map[string]string{}},
		},
	}
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestServer(up Upstream) http.Handler {
	return NewPublicHandler(NewFleetHandler(up, discard), PublicOptions{
		Logger:    discard,
		WorkerKey: "worker-key",
	})
}

func get(t *testing.T, h http.Handler, target string, authorized bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if authorized {
		req.Header.Set("Authorization", "Bearer worker-key")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRoute(t *testing.T) {
	tests := map[string]string{
		"/":            RouteVehicles,
		"":             RouteVehicles,
		"/stations":    RouteStations,
		"/stations/":   RouteStations,
		"//stats//":    RouteStats,
		"/stats":       RouteStats,
		"/stats/extra": RouteVehicles,
		"/v1/stations": RouteVehicles,
		"/vehicles":    RouteVehicles,
		"/STATS":       RouteVehicles,
	}
	for path, want := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.URL.Path = path
		assert.Equal(t, want, Route(req), path)
	}
}

func TestUnauthorizedMakesNoUpstreamCalls(t *testing.T) {
	up := newFixture()
	h := newTestServer(up)

	for _, target := range []string{"/", "/stats", "/stations"} {
		rr := get(t, h, target, false)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "Unauthorized", rr.Body.String())
	}
	assert.Empty(t, up.calls)
}

func TestStations(t *testing.T) {
	up := newFixture()
	rr := get(t, newTestServer(up), "/stations", true)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, []string{"stations"}, up.calls)

	var resp StationsResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.Len(t, resp.Stations, 1)
	assert.Equal(t, "94-2006", resp.Stations[0].Code)
}

func TestStats(t *testing.T) {
	up := newFixture()
	rr := get(t, newTestServer(up), "/stats", true)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"trains", "details"}, up.calls)
	assert.Equal(t, []int{1, 3}, up.requested)

	var resp struct {
		Stats map[string]interface{} `json:"stats"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))

	s := resp.Stats
	assert.Equal(t, 1.0, s["cancelled"])
	assert.Equal(t, 1.0, s["running"])
	assert.Equal(t, 80.0, s["avgSpeed"])
	assert.InDelta(t, 7.0/3.0, s["avgDelay"], 1e-9)
	assert.Equal(t, 5.0, s["maxDelay"])
	assert.Equal(t, 0.0, s["maxAheadness"])
	assert.Equal(t, 5.0, s["maxRunningDelay"])
	assert.Equal(t, 5.0, s["maxRunningAheadness"])
	assert.Equal(t, 0.3, s["maxOccupancy"])
	assert.Equal(t, 0.3, s["minOccupancy"])
	assert.Equal(t, 1.0, s["trainsSupportingOccupancyData"])
}

func TestStatsEmptyFleetUsesNull(t *testing.T) {
	up := &fakeUpstream{details: map[int]domain.TrainDetails{}}
	rr := get(t, newTestServer(up), "/stats", true)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Stats map[string]interface{} `json:"stats"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))

	for _, field := range []string{"maxDelay", "maxAheadness", "maxOccupancy", "minOccupancy"} {
		v, ok := resp.Stats[field]
		assert.True(t, ok, field)
		assert.Nil(t, v, field)
	}
	assert.Equal(t, 0.0, resp.Stats["avgDelay"])
}

func decodeVehicles(t *testing.T, rr *httptest.ResponseRecorder) []map[string]interface{} {
	t.Helper()
	var resp struct {
		Vehicles []map[string]interface{} `json:"vehicles"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	return resp.Vehicles
}

func TestVehiclesEnrichesMatchesOnly(t *testing.T) {
	up := newFixture()
	rr := get(t, newTestServer(up), "/", true)
	require.Equal(t, http.StatusOK, rr.Code)

	vehicles := decodeVehicles(t, rr)
	require.Len(t, vehicles, 3)

	first := vehicles[0]
	assert.Equal(t, 1.0, first["trainNumber"])
	assert.Equal(t, "IC", first["service"].(map[string]interface{})["code"])
	assert.Equal(t, "A", first["origin"].(map[string]interface{})["code"])
	assert.Equal(t, "B", first["destination"].(map[string]interface{})["code"])

	second := vehicles[1]
	assert.Equal(t, 2.0, second["trainNumber"])
	assert.NotContains(t, second, "service")
	assert.NotContains(t, second, "origin")
	assert.NotContains(t, second, "destination")
}

func TestVehiclesExcludesCompleted(t *testing.T) {
	up := newFixture()
	h := newTestServer(up)

	vehicles := decodeVehicles(t, get(t, h, "/anything?excludes=cancelled,completed", true))
	require.Len(t, vehicles, 2)
	assert.Equal(t, 1.0, vehicles[0]["trainNumber"])
	assert.Equal(t, 2.0, vehicles[1]["trainNumber"])

	vehicles = decodeVehicles(t, get(t, h, "/?excludes=", true))
	assert.Len(t, vehicles, 3)
}

func TestVehiclesEnrichmentIgnoresFilters(t *testing.T) {
	h := newTestServer(newFixture())

	all := decodeVehicles(t, get(t, h, "/", true))
	require.Len(t, all, 3)
	filtered := decodeVehicles(t, get(t, h, "/?excludes=completed", true))
	require.Len(t, filtered, 2)

	for i, v := range filtered {
		assert.Equal(t, all[i], v)
		for _, field := range []string{"service", "origin", "destination"} {
			assert.Equal(t, all[i][field], v[field], field)
		}
	}
}

func TestVehiclesKeepsNullDelay(t *testing.T) {
	up := newFixture()
	up.details = map[int]domain.TrainDetails{
		1: envelope(domain.TrainStatus{TrainNumber: 1, Status: "RUNNING"}),
	}

	vehicles := decodeVehicles(t, get(t, newTestServer(up), "/", true))
	require.Len(t, vehicles, 1)
	v, ok := vehicles[0]["delay"]
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestUpstreamFailureIsBadGateway(t *testing.T) {
	up := newFixture()
	up.detailsErr = &cpapi.UpstreamError{Endpoint: cpapi.EndpointDetails, StatusCode: 500, Body: "secret internals"}

	for _, target := range []string{"/", "/stats"} {
		rr := get(t, newTestServer(up), target, true)
		assert.Equal(t, http.StatusBadGateway, rr.Code)
		assert.NotContains(t, rr.Body.String(), "secret internals")
	}
}

func TestTravelFailureFailsWholeRequest(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"upstream", &cpapi.UpstreamError{Endpoint: cpapi.EndpointTrains, StatusCode: 503, Body: "maintenance"}, http.StatusBadGateway},
		{"transport", errors.New("dial tcp: i/o timeout"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, target := range []string{"/", "/stats"} {
				up := newFixture()
				up.trainsErr = tt.err

				rr := get(t, newTestServer(up), target, true)
				assert.Equal(t, tt.status, rr.Code, target)
				assert.Contains(t, rr.Body.String(), `"error"`, target)
				assert.NotContains(t, rr.Body.String(), "maintenance", target)
				assert.Equal(t, []string{"trains"}, up.calls, "no realtime call after a travel failure")
			}
		})
	}
}

func TestStationsFailure(t *testing.T) {
	up := newFixture()
	up.stationsErr = &cpapi.UpstreamError{Endpoint: cpapi.EndpointStations, StatusCode: 500, Body: "boom"}
	rr := get(t, newTestServer(up), "/stations", true)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.NotContains(t, rr.Body.String(), "boom")

	up = newFixture()
	up.stationsErr = errors.New("connection reset by peer")
	rr = get(t, newTestServer(up), "/stations", true)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestUnauthorizedIsNeverRateLimited(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	up := newFixture()
	h := NewPublicHandler(NewFleetHandler(up, discard), PublicOptions{
		Logger:    discard,
		WorkerKey: "worker-key",
		Limiter:   middleware.NewRateLimiter(ctx, 1, time.Minute, nil, discard),
	})

	for i := 0; i < 5; i++ {
		rr := get(t, h, "/stats", false)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, "request %d", i+1)
		assert.Equal(t, "Unauthorized", rr.Body.String())
	}

	assert.Equal(t, http.StatusOK, get(t, h, "/stats", true).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(t, h, "/stats", true).Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/stats", false).Code)
}

func TestClientGoneIsRecordedAs499(t *testing.T) {
	up := newFixture()
	up.detailsErr = context.Canceled

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/gone", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer worker-key")

	before := testutil.ToFloat64(metrics.Requests.WithLabelValues(RouteVehicles, "499"))
	rr := httptest.NewRecorder()
	newTestServer(up).ServeHTTP(rr, req)

	assert.Equal(t, StatusClientClosedRequest, rr.Code)
	assert.Empty(t, rr.Body.String())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.Requests.WithLabelValues(RouteVehicles, "499")))
}

func TestTransportFailureIsInternalError(t *testing.T) {
	up := newFixture()
	up.detailsErr = errors.New("dial tcp: connection refused")

	rr := get(t, newTestServer(up), "/stats", true)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	up := newFixture()
	req := httptest.NewRequest(http.MethodPost, "/stats", nil)
	req.Header.Set("Authorization", "Bearer worker-key")
	rr := httptest.NewRecorder()
	newTestServer(up).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, "GET, HEAD", rr.Header().Get("Allow"))
	assert.Empty(t, up.calls)
}

func TestPreflightSkipsAuth(t *testing.T) {
	up := newFixture()
	req := httptest.NewRequest(http.MethodOptions, "/stats", nil)
	rr := httptest.NewRecorder()
	newTestServer(up).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	assert.Empty(t, up.calls)
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHealthHandler(nil, "test").Healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "ok", rr.Body.String())

	rr = httptest.NewRecorder()
	NewHealthHandler(nil, "test").Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"cache":"disabled"`)

	rr = httptest.NewRecorder()
	NewHealthHandler(fakePinger{err: errors.New("down")}, "test").Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), `"cache":"unreachable"`)
}
