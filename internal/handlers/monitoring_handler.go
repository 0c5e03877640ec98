package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvestd/internal/interfaces"
)

// MonitoringHandler serves engine-wide controls
type MonitoringHandler struct {
	monitoring interfaces.MonitoringService
	logger     arbor.ILogger
}

func NewMonitoringHandler(monitoring interfaces.MonitoringService, logger arbor.ILogger) *MonitoringHandler {
	return &MonitoringHandler{
		monitoring: monitoring,
		logger:     logger,
	}
}

// RunCycleHandler handles POST /api/monitoring/run-cycle
func (h *MonitoringHandler) RunCycleHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	queued, err := h.monitoring.RunCycleNow(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to queue monitoring cycle")
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"status": "queued",
		"queued": queued,
	})
}

// StatsHandler handles GET /api/monitoring/stats
func (h *MonitoringHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	stats, err := h.monitoring.GetEngineStats(r.Context())
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, stats)
}
