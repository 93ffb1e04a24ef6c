// Package server provides the HTTP surface of the simulation.
package server

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	"nhooyr.io/websocket"

	"github.com/astatos/coherence/internal/engine"
)

// fieldFrameInterval paces field frames to websocket clients.
const fieldFrameInterval = 50 * time.Millisecond

// FieldStreamHandler pushes wavefunction frames over a websocket as
// msgpack binary messages. Density and phase grids are too large for
// the SSE stream; the event bus only announces frames, this carries them.
type FieldStreamHandler struct {
	engine *engine.Engine
	log    zerolog.Logger
}

// NewFieldStreamHandler creates a new field stream handler.
func NewFieldStreamHandler(eng *engine.Engine, log zerolog.Logger) *FieldStreamHandler {
	return &FieldStreamHandler{
		engine: eng,
		log:    log.With().Str("component", "field_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/field/ws requests.
func (h *FieldStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	h.log.Info().Msg("Client connected to field stream")

	// Write-only connection; CloseRead keeps control frames flowing and
	// cancels the context when the client goes away.
	ctx := conn.CloseRead(r.Context())

	ticker := time.NewTicker(fieldFrameInterval)
	defer ticker.Stop()

	var lastStep uint64
	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("Client disconnected from field stream")
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-ticker.C:
		}

		frame, ok := h.engine.Frame()
		if !ok || frame.Step == lastStep {
			continue
		}
		lastStep = frame.Step

		payload, err := msgpack.Marshal(frame)
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to encode field frame")
			continue
		}
		if err := conn.Write(ctx, websocket.MessageBinary, payload); err != nil {
			h.log.Info().Err(err).Msg("Field stream write failed, closing")
			return
		}
	}
}
