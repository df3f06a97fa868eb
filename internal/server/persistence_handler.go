package server

import (
	"context"
	"net/http"

	"marketstream/internal/model"
)

// MarketStore is the persistence surface the handlers expose. It is never
// touched by the streaming pipeline.
type MarketStore interface {
	GetPreferences(ctx context.Context) (model.PreferencesSnapshot, error)
	SavePreferences(ctx context.Context, args model.SavePreferencesArgs) (model.PreferencesSnapshot, error)
	ListDrawings(ctx context.Context, scope model.DrawingScope) ([]model.Drawing, error)
	UpsertDrawing(ctx context.Context, args model.DrawingUpsertArgs) (model.Drawing, error)
	DeleteDrawing(ctx context.Context, args model.DrawingDeleteArgs) (model.DrawingDeleteResult, error)
}

// PersistenceHandler serves the preferences and drawings endpoints.
type PersistenceHandler struct {
	store MarketStore
}

// NewPersistenceHandler wires the persistence endpoints.
func NewPersistenceHandler(store MarketStore) *PersistenceHandler {
	return &PersistenceHandler{store: store}
}

// GetPreferences handles GET /api/market/preferences.
func (h *PersistenceHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.store.GetPreferences(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// SavePreferences handles PUT /api/market/preferences.
func (h *PersistenceHandler) SavePreferences(w http.ResponseWriter, r *http.Request) {
	var args model.SavePreferencesArgs
	if err := decodeBody(r, &args); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "malformed request body: " + err.Error()})
		return
	}

	prefs, err := h.store.SavePreferences(r.Context(), args)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func drawingScopeFromQuery(r *http.Request) model.DrawingScope {
	query := r.URL.Query()
	return model.DrawingScope{
		MarketKind: model.MarketKind(query.Get("marketKind")),
		Symbol:     query.Get("symbol"),
		Timeframe:  model.Timeframe(query.Get("timeframe")),
	}
}

// ListDrawings handles GET /api/market/drawings?marketKind=&symbol=&timeframe=.
func (h *PersistenceHandler) ListDrawings(w http.ResponseWriter, r *http.Request) {
	drawings, err := h.store.ListDrawings(r.Context(), drawingScopeFromQuery(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, drawings)
}

// UpsertDrawing handles PUT /api/market/drawings.
func (h *PersistenceHandler) UpsertDrawing(w http.ResponseWriter, r *http.Request) {
	var args model.DrawingUpsertArgs
	if err := decodeBody(r, &args); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "malformed request body: " + err.Error()})
		return
	}

	drawing, err := h.store.UpsertDrawing(r.Context(), args)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, drawing)
}

// DeleteDrawing handles DELETE /api/market/drawings.
func (h *PersistenceHandler) DeleteDrawing(w http.ResponseWriter, r *http.Request) {
	var args model.DrawingDeleteArgs
	if err := decodeBody(r, &args); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "malformed request body: " + err.Error()})
		return
	}

	result, err := h.store.DeleteDrawing(r.Context(), args)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
