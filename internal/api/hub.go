package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"gomodsel/internal"
	"gomodsel/internal/driver"
)

// Event is one progress notification streamed to clients.
type Event struct {
	Completed   int       `json:"completed"`
	Total       int       `json:"total"`
	PipelineID  string    `json:"pipeline_id"`
	RandomState int64     `json:"random_state"`
	Failed      bool      `json:"failed"`
	Timestamp   time.Time `json:"timestamp"`
}

// Hub fans progress events out to Server-Sent Events clients. Slow clients
// miss events rather than block the run.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan Event]struct{}
	logger  *internal.Logger

	done      chan struct{}
	closeOnce sync.Once

	// KeepAlive is the interval between ping comments on idle streams.
	KeepAlive time.Duration
}

// NewHub creates an empty hub.
func NewHub(logger *internal.Logger) *Hub {
	if logger == nil {
		logger = internal.DefaultLogger.With("SSE")
	}
	return &Hub{
		clients:   make(map[chan Event]struct{}),
		logger:    logger,
		done:      make(chan struct{}),
		KeepAlive: 30 * time.Second,
	}
}

func (h *Hub) subscribe() chan Event {
	ch := make(chan Event, 16)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan Event) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

// ClientCount is the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends ev to every client without blocking.
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- ev:
		default:
			h.logger.Debug("client channel full, dropping event for %s", ev.PipelineID)
		}
	}
}

// NewEvent stamps a driver progress update.
func NewEvent(p driver.Progress) Event {
	return Event{
		Completed:   p.Completed,
		Total:       p.Total,
		PipelineID:  p.PipelineID,
		RandomState: p.RandomState,
		Failed:      p.Failed,
		Timestamp:   time.Now().UTC(),
	}
}

// Close ends every open stream. Later subscribers return at once.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// ServeHTTP streams events until the client disconnects or the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.KeepAlive)
	defer ticker.Stop()
	for {
		select {
		case ev := <-ch:
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Warn("marshal event: %v", err)
				continue
			}
			fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		case <-h.done:
			return
		}
	}
}
