// Package server exposes the engine's control plane over HTTP: typed JSON
// commands, the persistence endpoints, a health probe and the WebSocket
// event push channel.
package server

import (
	"errors"
	"io"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"marketstream/internal/exchange"
	"marketstream/internal/model"
	"marketstream/internal/pipeline"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Debug().Err(err).Msg("response encode failed")
	}
}

// writeError maps the engine's error kinds onto HTTP statuses: invalid
// arguments are the caller's fault, a concurrent start is a conflict, an
// exchange rejection is an upstream failure.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidArgs):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, pipeline.ErrAlreadyStarting):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, exchange.ErrRejected):
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}

// decodeBody decodes a JSON request body. An empty body is accepted for
// commands whose arguments are entirely optional.
func decodeBody(r *http.Request, out any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
