package server

import (
	"context"
	"net/http"

	"marketstream/internal/model"
)

// MarketController is the engine lifecycle surface the handlers drive.
type MarketController interface {
	Start(args model.StartStreamArgs) (model.Session, error)
	Stop() model.StopResult
	Status() model.StatusSnapshot
}

// SymbolSource lists tradable symbols for a market kind.
type SymbolSource interface {
	Symbols(ctx context.Context, kind model.MarketKind) ([]string, error)
}

// MarketHandler serves the stream commands.
type MarketHandler struct {
	controller MarketController
	symbols    SymbolSource
}

// NewMarketHandler wires the command endpoints.
func NewMarketHandler(controller MarketController, symbols SymbolSource) *MarketHandler {
	return &MarketHandler{controller: controller, symbols: symbols}
}

// StartStream handles POST /api/market/stream/start.
func (h *MarketHandler) StartStream(w http.ResponseWriter, r *http.Request) {
	var args model.StartStreamArgs
	if err := decodeBody(r, &args); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "malformed request body: " + err.Error()})
		return
	}

	session, err := h.controller.Start(args)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// StopStream handles POST /api/market/stream/stop.
func (h *MarketHandler) StopStream(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.controller.Stop())
}

// StreamStatus handles GET /api/market/stream/status.
func (h *MarketHandler) StreamStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.controller.Status())
}

// Symbols handles GET /api/market/symbols?marketKind=spot.
func (h *MarketHandler) Symbols(w http.ResponseWriter, r *http.Request) {
	kindParam := r.URL.Query().Get("marketKind")
	if kindParam == "" {
		kindParam = string(model.DefaultMarketKind)
	}

	kind, err := model.ParseMarketKind(kindParam)
	if err != nil {
		writeError(w, err)
		return
	}

	symbols, err := h.symbols.Symbols(r.Context(), kind)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, symbols)
}
