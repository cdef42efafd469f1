package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/chutulu/service/nats"
)

const sseKeepaliveInterval = 10 * time.Second

// FireEventSource delivers fire events for a player, or for every player
// when player is empty, until the returned func is called.
type FireEventSource interface {
	SubscribeFire(player string, fn func(*nats.FireEvent)) (func() error, error)
}

// handleStreamFireEvents handles SSE streaming of fire events.
// If the player path parameter is empty, streams all players. The stream
// ends when the client disconnects or done is closed.
// GET /events
// GET /events/{player}
func handleStreamFireEvents(source FireEventSource, done <-chan struct{}, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		player := r.PathValue("player")
		playerDesc := "all players"
		if player != "" {
			// the player becomes part of a NATS subject
			if err := validateAddress(player); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			playerDesc = player
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		events := make(chan *nats.FireEvent, 16)
		unsubscribe, err := source.SubscribeFire(player, func(e *nats.FireEvent) {
			select {
			case events <- e:
			default:
				logger.Warn("dropping fire event for slow SSE client",
					"player", playerDesc,
					"event_id", e.EventID,
				)
			}
		})
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to subscribe to fire events",
				"player", playerDesc,
				"error", err,
			)
			writeError(w, "failed to subscribe", http.StatusInternalServerError)
			return
		}
		defer unsubscribe()

		// the stream outlives the server's write timeout
		http.NewResponseController(w).SetWriteDeadline(time.Time{})

		// Set SSE headers
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		logger.DebugContext(r.Context(), "SSE client connected",
			"player", playerDesc,
			"remote_addr", r.RemoteAddr,
		)

		// Send initial connection event
		connected, _ := json.Marshal(map[string]string{"player": playerDesc})
		fmt.Fprintf(w, "event: connected\ndata: %s\n\n", connected)
		flusher.Flush()

		keepalive := time.NewTicker(sseKeepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				// Send keepalive comment to prevent timeout
				fmt.Fprintf(w, ": keepalive\n\n")
				flusher.Flush()

			case event := <-events:
				data, err := json.Marshal(event)
				if err != nil {
					logger.WarnContext(r.Context(), "failed to marshal fire event", "error", err)
					continue
				}
				fmt.Fprintf(w, "event: fire\ndata: %s\n\n", data)
				flusher.Flush()

				logger.DebugContext(r.Context(), "sent fire event",
					"player", event.Player,
					"event_id", event.EventID,
				)

			case <-done:
				logger.DebugContext(r.Context(), "closing SSE stream for shutdown",
					"player", playerDesc,
					"remote_addr", r.RemoteAddr,
				)
				return

			case <-r.Context().Done():
				// Client disconnected
				logger.DebugContext(r.Context(), "SSE client disconnected",
					"player", playerDesc,
					"remote_addr", r.RemoteAddr,
				)
				return
			}
		}
	})
}
