package handler

import (
	"net/http"

	"cpfleet/internal/fleet"
	"cpfleet/internal/metrics"
)

type StatsResponse struct {
	Stats fleet.Stats `json:"stats"`
}

// GetStats aggregates the realtime status of every scheduled train.
func (h *FleetHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	_, statuses, err := h.snapshot(r.Context())
	if err != nil {
		h.fail(w, r, RouteStats, err)
		return
	}

	summary := fleet.Aggregate(statuses)

	metrics.FleetTrains.WithLabelValues("running").Set(float64(summary.Running))
	metrics.FleetTrains.WithLabelValues("cancelled").Set(float64(summary.Cancelled))
	metrics.FleetTrains.WithLabelValues("completed").Set(float64(summary.Completed))

	respondJSON(w, http.StatusOK, StatsResponse{Stats: summary.Stats})
}
