package k8s

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	watchBackoffMin = 100 * time.Millisecond
	watchBackoffMax = 5 * time.Second
)

// filteredObjectNames are system objects the reconciler never acts on.
var filteredObjectNames = map[string]bool{
	"kubernetes":    true,
	"kubernetes-ro": true,
}

// Watch opens a long-lived WebSocket connection to
// <base>/<resource>?watch=true (optionally resuming from
// resourceVersion) and streams decoded events on the returned channel.
// On any read/connection error it reconnects with exponential backoff
// (100ms doubling up to 5s), resuming from the last resourceVersion
// observed. The channel is closed when ctx is cancelled.
func (c *Client) Watch(ctx context.Context, resource string, resourceVersion string, logger *slog.Logger) <-chan WatchEvent {
	out := make(chan WatchEvent, 256)

	go func() {
		defer close(out)

		backoff := watchBackoffMin
		lastResourceVersion := resourceVersion

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			conn, err := c.dialWatch(ctx, resource, lastResourceVersion)
			if err != nil {
				logger.Warn("k8s watch: connect failed, retrying", "resource", resource, "error", err, "backoff", backoff)
				if !sleepOrDone(ctx, backoff) {
					return
				}
				backoff = nextBackoff(backoff)
				continue
			}

			backoff = watchBackoffMin
			lastResourceVersion = c.readEvents(ctx, conn, resource, out, logger, lastResourceVersion)
			conn.Close()

			if ctx.Err() != nil {
				return
			}
			logger.Info("k8s watch: stream closed, reconnecting", "resource", resource)
			if !sleepOrDone(ctx, watchBackoffMin) {
				return
			}
		}
	}()

	return out
}

func (c *Client) dialWatch(ctx context.Context, resource, resourceVersion string) (*websocket.Conn, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = fmt.Sprintf("/api/%s/%s", c.apiVersion, resource)

	q := u.Query()
	q.Set("watch", "true")
	if resourceVersion != "" {
		q.Set("resourceVersion", resourceVersion)
	}
	u.RawQuery = q.Encode()

	header := map[string][]string{}
	if c.token != "" {
		header["Authorization"] = []string{"Bearer " + c.token}
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// readEvents reads events off conn until it closes or ctx is cancelled,
// decoding and filtering system objects, and returns the most recent
// resourceVersion observed so the next reconnect can resume from it.
func (c *Client) readEvents(ctx context.Context, conn *websocket.Conn, resource string, out chan<- WatchEvent, logger *slog.Logger, lastResourceVersion string) string {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("k8s watch: read failed", "resource", resource, "error", err)
			}
			return lastResourceVersion
		}

		var ev WatchEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			logger.Warn("k8s watch: malformed event", "resource", resource, "error", err)
			continue
		}

		name, rv := objectIdentity(ev.Object)
		if filteredObjectNames[name] {
			continue
		}
		if rv != "" {
			lastResourceVersion = rv
		}

		select {
		case out <- ev:
		case <-ctx.Done():
			return lastResourceVersion
		}
	}
}

// objectIdentity extracts metadata.name and metadata.resourceVersion
// without decoding the full object, since each resource kind has a
// different body shape.
func objectIdentity(raw json.RawMessage) (name, resourceVersion string) {
	var wrapper struct {
		Metadata ObjectMeta `json:"metadata"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return "", ""
	}
	return wrapper.Metadata.Name, wrapper.Metadata.ResourceVersion
}

func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > watchBackoffMax {
		return watchBackoffMax
	}
	return next
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// ResourceWatchPath is exposed for tests constructing expected WS URLs.
func ResourceWatchPath(apiVersion, resource string) string {
	return strings.TrimPrefix(fmt.Sprintf("/api/%s/%s", apiVersion, resource), "")
}
