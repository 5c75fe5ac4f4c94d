// Package sse fans out change notifications to Server-Sent-Events
// subscribers. Publishers (the Event Reconciler, pod/IP-pool commands) push
// events onto Redis pub/sub channels; Hub subscribes once per channel and
// replays recent history to late subscribers out of a Redis hash.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ChannelCommon is the admin-wide notification channel.
const ChannelCommon = "common"

// UserChannel returns the per-user notification channel name.
func UserChannel(userID string) string {
	return "user_" + userID
}

// replayHistoryLimit bounds how many recent events are retained per channel
// for Last-Event-Id replay.
const replayHistoryLimit = 200

// Event is a single notification delivered to subscribers.
type Event struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
	Data string `json:"data"`
}

// Hub subscribes to Redis pub/sub channels on demand and distributes events
// to local subscribers, maintaining a replay hash per channel.
type Hub struct {
	rdb    *redis.Client
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]*channelHub // channel name -> fan-out state
}

type channelHub struct {
	mu          sync.Mutex
	subscribers map[chan Event]struct{}
	cancel      context.CancelFunc
}

// New creates an SSE Hub.
func New(rdb *redis.Client, logger *slog.Logger) *Hub {
	return &Hub{rdb: rdb, logger: logger, subs: make(map[string]*channelHub)}
}

// Publish appends an event to channel's replay history and publishes it to
// any subscribers (in this process or any other, via Redis pub/sub).
func (h *Hub) Publish(ctx context.Context, channel, eventType, data string) error {
	id, err := h.rdb.Incr(ctx, replayCounterKey(channel)).Result()
	if err != nil {
		return fmt.Errorf("incrementing sse event counter: %w", err)
	}

	ev := Event{ID: id, Type: eventType, Data: data}
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling sse event: %w", err)
	}

	pipe := h.rdb.TxPipeline()
	pipe.HSet(ctx, replayHashKey(channel), strconv.FormatInt(id, 10), raw)
	pipe.HDel(ctx, replayHashKey(channel), strconv.FormatInt(id-replayHistoryLimit, 10))
	pipe.Publish(ctx, pubsubChannel(channel), raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publishing sse event: %w", err)
	}
	return nil
}

func replayCounterKey(channel string) string { return "SSEEVTCOUNTER:" + channel }
func replayHashKey(channel string) string    { return "SSEEVT:" + channel }
func pubsubChannel(channel string) string    { return "kd.sse." + channel }

// Subscribe registers a local subscriber on channel and returns a channel of
// events plus an unsubscribe function. If sinceID > 0, buffered events with
// ID > sinceID are replayed first, in order.
func (h *Hub) Subscribe(ctx context.Context, channel string, sinceID int64) (<-chan Event, func(), error) {
	var replay []Event
	if sinceID > 0 {
		var err error
		replay, err = h.replay(ctx, channel, sinceID)
		if err != nil {
			h.logger.Warn("sse replay failed", "channel", channel, "error", err)
		}
	}

	// Size the buffer so the whole replay fits before anyone reads from it.
	out := make(chan Event, 64+len(replay))
	for _, ev := range replay {
		out <- ev
	}

	ch := h.ensureChannelHub(ctx, channel)
	ch.mu.Lock()
	ch.subscribers[out] = struct{}{}
	ch.mu.Unlock()

	unsubscribe := func() {
		ch.mu.Lock()
		delete(ch.subscribers, out)
		empty := len(ch.subscribers) == 0
		ch.mu.Unlock()
		close(out)

		if empty {
			h.mu.Lock()
			if cur, ok := h.subs[channel]; ok && cur == ch {
				cur.cancel()
				delete(h.subs, channel)
			}
			h.mu.Unlock()
		}
	}

	return out, unsubscribe, nil
}

func (h *Hub) replay(ctx context.Context, channel string, sinceID int64) ([]Event, error) {
	raw, err := h.rdb.HGetAll(ctx, replayHashKey(channel)).Result()
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(raw))
	for _, v := range raw {
		var ev Event
		if err := json.Unmarshal([]byte(v), &ev); err != nil {
			continue
		}
		if ev.ID > sinceID {
			events = append(events, ev)
		}
	}
	for i := 1; i < len(events); i++ {
		for j := i; j > 0 && events[j-1].ID > events[j].ID; j-- {
			events[j-1], events[j] = events[j], events[j-1]
		}
	}
	return events, nil
}

// ensureChannelHub returns the shared fan-out state for channel, starting a
// Redis subscription the first time the channel is requested.
func (h *Hub) ensureChannelHub(ctx context.Context, channel string) *channelHub {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subs[channel]; ok {
		return ch
	}

	subCtx, cancel := context.WithCancel(context.Background())
	ch := &channelHub{subscribers: make(map[chan Event]struct{}), cancel: cancel}
	h.subs[channel] = ch

	go h.pump(subCtx, channel, ch)
	return ch
}

// pump reads from the Redis pub/sub channel and fans each event out to every
// local subscriber. It reconnects on error after a short backoff, following
// the reconnect-on-error shape used by the watch loops elsewhere.
func (h *Hub) pump(ctx context.Context, channel string, ch *channelHub) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		pubsub := h.rdb.Subscribe(ctx, pubsubChannel(channel))
		msgCh := pubsub.Channel()

	inner:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-msgCh:
				if !ok {
					pubsub.Close()
					break inner
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					h.logger.Warn("sse: dropping malformed event", "channel", channel, "error", err)
					continue
				}
				ch.mu.Lock()
				for sub := range ch.subscribers {
					select {
					case sub <- ev:
					default:
						h.logger.Warn("sse: subscriber buffer full, dropping event", "channel", channel)
					}
				}
				ch.mu.Unlock()
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(200 * time.Millisecond):
		}
	}
}
