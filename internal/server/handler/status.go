package handler

import (
	"net/http"

	"github.com/makerdao/market-maker-keeper/internal/control"
)

// StatusHandler serves the keeper's current lifecycle state and pair for
// operator dashboards and scripts.
type StatusHandler struct {
	Mode string
	Loop *control.Loop
}

// NewStatusHandler creates a StatusHandler reporting the given mode and the
// lifecycle state of loop.
func NewStatusHandler(mode string, loop *control.Loop) *StatusHandler {
	return &StatusHandler{Mode: mode, Loop: loop}
}

// GetStatus responds with the current mode, pair, and control-loop state.
// GET /status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"mode": h.Mode,
	}
	if h.Loop != nil {
		body["pair"] = h.Loop.Pair()
		body["state"] = string(h.Loop.State())
	}
	writeJSON(w, http.StatusOK, body)
}
