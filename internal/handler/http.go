package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"cpfleet/internal/domain"
	"cpfleet/internal/fleet"
	"cpfleet/internal/metrics"
	"cpfleet/internal/middleware"
	"cpfleet/internal/report"
	"cpfleet/pkg/cpapi"
)

// Upstream is the operator API as seen by the handlers. Implemented by
// cpapi.Client and cache.Upstream.
type Upstream interface {
	StaticTrains(ctx context.Context) ([]domain.StaticTrain, error)
	Stations(ctx context.Context) ([]domain.Station, error)
	RealtimeDetails(ctx context.Context, trainNumbers []int) (map[int]domain.TrainDetails, error)
}

// StatusClientClosedRequest is recorded for requests abandoned by the
// caller before a response was written.
const StatusClientClosedRequest = 499

const (
	RouteStations = "stations"
	RouteStats    = "stats"
	RouteVehicles = "vehicles"
)

// Route names the behaviour selected by the request path. Only a path whose
// single non-empty segment is "stations" or "stats" selects those; every
// other path, including the root, lists vehicles.
func Route(r *http.Request) string {
	var segments []string
	for _, s := range strings.Split(r.URL.Path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}

	if len(segments) == 1 {
		switch segments[0] {
		case RouteStations:
			return RouteStations
		case RouteStats:
			return RouteStats
		}
	}
	return RouteVehicles
}

// FleetHandler serves the stations, stats and vehicles responses. Every
// request works on its own upstream snapshot; nothing is shared between
// requests.
type FleetHandler struct {
	upstream Upstream
	logger   *slog.Logger
}

func NewFleetHandler(upstream Upstream, logger *slog.Logger) *FleetHandler {
	return &FleetHandler{
		upstream: upstream,
		logger:   logger.With("component", "fleet_handler"),
	}
}

func (h *FleetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	switch Route(r) {
	case RouteStations:
		h.ListStations(w, r)
	case RouteStats:
		h.GetStats(w, r)
	default:
		h.ListVehicles(w, r)
	}
}

type StationsResponse struct {
	Stations []domain.Station `json:"stations"`
}

func (h *FleetHandler) ListStations(w http.ResponseWriter, r *http.Request) {
	stations, err := h.upstream.Stations(r.Context())
	if err != nil {
		h.fail(w, r, RouteStations, err)
		return
	}
	respondJSON(w, http.StatusOK, StationsResponse{Stations: stations})
}

type VehiclesResponse struct {
	Vehicles []domain.Vehicle `json:"vehicles"`
}

func (h *FleetHandler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	excludes := fleet.ParseExcludes(r.URL.Query().Get("excludes"))

	trains, statuses, err := h.snapshot(r.Context())
	if err != nil {
		h.fail(w, r, RouteVehicles, err)
		return
	}

	vehicles := fleet.Enrich(excludes.Apply(statuses), fleet.NewIndex(trains))
	respondJSON(w, http.StatusOK, VehiclesResponse{Vehicles: vehicles})
}

// snapshot fetches the static train list and then the realtime status of
// exactly the train numbers it contains.
func (h *FleetHandler) snapshot(ctx context.Context) ([]domain.StaticTrain, []domain.TrainStatus, error) {
	trains, err := h.upstream.StaticTrains(ctx)
	if err != nil {
		return nil, nil, err
	}

	details, err := h.upstream.RealtimeDetails(ctx, fleet.TrainNumbers(trains))
	if err != nil {
		return nil, nil, err
	}

	statuses := fleet.Statuses(details)
	h.logger.Debug("fleet snapshot", "static_trains", len(trains), "envelopes", len(details), "statuses", len(statuses))
	return trains, statuses, nil
}

func (h *FleetHandler) fail(w http.ResponseWriter, r *http.Request, route string, err error) {
	requestID := middleware.RequestIDFrom(r.Context())

	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		h.logger.Info("client went away", "route", route, "request_id", requestID)
		w.WriteHeader(StatusClientClosedRequest)
		return
	}

	status := http.StatusInternalServerError
	message := "internal error"
	tags := map[string]string{"route": route}

	var upErr *cpapi.UpstreamError
	if errors.As(err, &upErr) {
		status = http.StatusBadGateway
		message = "upstream request failed"
		tags["endpoint"] = upErr.Endpoint
		metrics.UpstreamErrors.WithLabelValues(upErr.Endpoint).Inc()
	}

	h.logger.Error("request failed", "route", route, "status", status, "error", err, "request_id", requestID)
	report.Error(err, report.Options{
		Tags:         tags,
		ExtraContext: map[string]interface{}{"request_id": requestID},
	})
	respondError(w, status, message)
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
