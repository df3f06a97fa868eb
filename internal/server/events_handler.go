package server

import (
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"marketstream/internal/service"
)

const (
	eventWriteTimeout  = 5 * time.Second
	clientPingInterval = 30 * time.Second
)

// EventSource hands out per-client event subscriptions.
type EventSource interface {
	Subscribe() (*service.Subscriber, error)
	Unsubscribe(sub *service.Subscriber) error
}

// EventsHandler upgrades shell connections to WebSocket and pumps pipeline
// events to them.
type EventsHandler struct {
	source   EventSource
	upgrader websocket.Upgrader
}

// NewEventsHandler wires the event push endpoint.
func NewEventsHandler(source EventSource) *EventsHandler {
	return &EventsHandler{
		source: source,
		upgrader: websocket.Upgrader{
			// The desktop shell connects from its own origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Serve handles GET /api/market/events.
func (h *EventsHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("event subscriber upgrade failed")
		return
	}

	sub, err := h.source.Subscribe()
	if err != nil {
		log.Warn().Err(err).Msg("event subscription failed")
		conn.Close()
		return
	}

	logger := log.With().Str("component", "events").Str("remote", r.RemoteAddr).Logger()
	logger.Info().Msg("event subscriber connected")

	done := make(chan struct{})

	// Read side: discard inbound frames, detect the close.
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		if err := h.source.Unsubscribe(sub); err != nil {
			logger.Debug().Err(err).Msg("unsubscribe failed")
		}
		conn.Close()
		logger.Info().Msg("event subscriber disconnected")
	}()

	pingTicker := time.NewTicker(clientPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-done:
			return
		case <-pingTicker.C:
			deadline := time.Now().Add(eventWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				logger.Debug().Err(err).Str("event", event.Name).Msg("event marshal failed")
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}
