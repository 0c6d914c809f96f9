package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Gourav1632/into-the-repo/internal/tasks"
)

// progressTerminal is the sentinel message ending every progress stream.
const progressTerminal = "done"

// handleProgressSSE streams a task's progress log as server-sent events.
// Events already appended are replayed first, so a client connecting late
// still sees the full ordered history. The stream ends with a terminal
// "done" event once the task reaches a terminal state.
func (s *Server) handleProgressSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w)
		return
	}
	task, ok := s.progressTask(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, fmt.Errorf("streaming unsupported"), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, cancel := task.Progress().Subscribe(0)
	defer cancel()

	for {
		select {
		case ev, open := <-ch:
			if !open {
				fmt.Fprintf(w, "data: %s\n\n", progressTerminal)
				flusher.Flush()
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", ev.Message)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is origin-agnostic; auth, when present, fronts the service.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleProgressWS serves the same ordered progress stream over a
// websocket. Each event goes out as a JSON frame; the stream closes with a
// final "done" text frame.
func (s *Server) handleProgressWS(w http.ResponseWriter, r *http.Request) {
	task, ok := s.progressTask(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		return
	}
	defer conn.Close()

	ch, cancel := task.Progress().Subscribe(0)
	defer cancel()

	for {
		select {
		case ev, open := <-ch:
			if !open {
				conn.WriteMessage(websocket.TextMessage, []byte(progressTerminal))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// progressTask resolves the requestId query parameter to a live task.
func (s *Server) progressTask(w http.ResponseWriter, r *http.Request) (*tasks.Task, bool) {
	requestID := r.URL.Query().Get("requestId")
	if requestID == "" {
		BadRequest(w, "requestId is required")
		return nil, false
	}
	task, ok := s.deps.Orchestrator.Get(requestID)
	if !ok {
		NotFound(w, "no task with request id "+requestID)
		return nil, false
	}
	return task, true
}
