package sse

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/kuberdock/kuberdock/internal/principal"
)

// KeepaliveInterval is how often a comment line is written to keep the
// connection alive through intermediate proxies.
var KeepaliveInterval = 25 * time.Second

// Handler serves GET /stream: a Server-Sent-Events feed of one channel,
// "common" for an admin caller and "user_<id>" for everyone else. A caller
// is never subscribed to both.
type Handler struct {
	hub *Hub
}

// NewHandler creates an SSE Handler.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// ServeHTTP streams events as `event:<type>\ndata:<json>\nid:<n>\n\n`.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	p := principal.FromContext(r.Context())
	channel := ChannelCommon
	if !p.IsAdmin {
		channel = UserChannel(p.UserID)
	}

	var sinceID int64
	if v := r.Header.Get("Last-Event-Id"); v != "" {
		sinceID, _ = strconv.ParseInt(v, 10, 64)
	}

	events, unsubscribe, err := h.hub.Subscribe(r.Context(), channel, sinceID)
	if err != nil {
		http.Error(w, "subscribe failed", http.StatusInternalServerError)
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(KeepaliveInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event:%s\ndata:%s\nid:%d\n\n", ev.Type, ev.Data, ev.ID)
			flusher.Flush()
		}
	}
}
