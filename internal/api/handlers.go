package api

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/igwedaniel/blockwatcher/internal/supervisor"
	"github.com/igwedaniel/blockwatcher/internal/types"
)

// ProgressSource provides the tracker's statistics snapshot
type ProgressSource interface {
	Snapshot() map[string]types.NetworkProgress
}

// StateSource reports the supervised process state
type StateSource interface {
	State() supervisor.RunState
}

// Handlers contains HTTP handlers for the status API
type Handlers struct {
	progress ProgressSource
	state    StateSource
	logger   *logrus.Logger
}

// NewHandlers creates new status API handlers
func NewHandlers(progress ProgressSource, state StateSource, logger *logrus.Logger) *Handlers {
	return &Handlers{
		progress: progress,
		state:    state,
		logger:   logger,
	}
}

// HealthCheck returns the run state of the supervised process
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":  "healthy",
		"service": "blockwatcher",
		"state":   h.state.State(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// GetProgress returns per-network block processing statistics
func (h *Handlers) GetProgress(w http.ResponseWriter, r *http.Request) {
	snapshot := h.progress.Snapshot()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		h.logger.Errorf("Failed to encode progress snapshot: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
}
