package handler

import (
	"log/slog"
	"net/http"

	"github.com/makerdao/market-maker-keeper/internal/domain"
)

// EventsHandler serves the audited order-event history for operators
// diagnosing keeper behaviour after the fact.
type EventsHandler struct {
	store  domain.OrderEventStore
	logger *slog.Logger
}

// NewEventsHandler creates an EventsHandler backed by store.
func NewEventsHandler(store domain.OrderEventStore, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{store: store, logger: logger}
}

// ListEvents returns the most recent order events for a pair.
// GET /events?pair=WETH-USDC&limit=50&offset=0
func (h *EventsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	pair := r.URL.Query().Get("pair")
	if pair == "" {
		writeError(w, http.StatusBadRequest, "pair query parameter is required")
		return
	}

	events, err := h.store.ListByPair(r.Context(), pair, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list order events failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
