package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/goanswer/internal/orchestrate"
)

// sseSink writes orchestrator events as Server-Sent Events. It becomes
// inert after a terminal event so nothing can follow complete or error.
type sseSink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	done    bool
}

func (s *sseSink) Emit(ev orchestrate.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		log.Warn().Err(err).Str("event", string(ev.Type)).Msg("event marshal failed")
		return
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, data)
	s.flusher.Flush()
	if ev.Type == orchestrate.EventComplete || ev.Type == orchestrate.EventError {
		s.done = true
	}
}

// serveStream runs the orchestrator with an SSE sink attached. A pipeline
// failure after the stream has started becomes a terminal error event.
func (s *Server) serveStream(w http.ResponseWriter, r *http.Request, orch *orchestrate.Orchestrator, req orchestrate.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, ErrInternal, errValue("streaming not supported"))
		return
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sink := &sseSink{w: w, flusher: flusher}
	if _, err := orch.Run(r.Context(), req, sink); err != nil {
		if r.Context().Err() != nil {
			// Client disconnected; the orchestrator already stopped.
			return
		}
		_, errType := Classify(err)
		payload := map[string]any{
			"error":     userMessage[errType],
			"errorType": string(errType),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		if s.Config.Debug {
			payload["detail"] = err.Error()
		}
		sink.Emit(orchestrate.Event{Type: orchestrate.EventError, Payload: payload})
	}
}
