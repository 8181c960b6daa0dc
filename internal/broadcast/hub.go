// Package broadcast fans state-change messages out to live push connections.
package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/buppyai/puppy-station/internal/otel"
	"github.com/buppyai/puppy-station/pkg/models"
	"github.com/google/uuid"
)

// Subscriber is one registered connection. C is closed when the subscriber is removed,
// either by Unsubscribe or by eviction after its queue filled up.
type Subscriber struct {
	ID        string
	Transport string
	C         <-chan []byte

	ch chan []byte
}

// Hub is the registry of live subscribers. Publish never blocks.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]*Subscriber
	buffer int
	log    *slog.Logger
	now    func() time.Time
}

// NewHub returns a hub whose subscribers queue up to buffer messages (0 means models.DefaultStreamBuffer).
func NewHub(buffer int, log *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = models.DefaultStreamBuffer
	}
	if log == nil {
		log = slog.Default()
	}
	return &Hub{subs: make(map[string]*Subscriber), buffer: buffer, log: log, now: time.Now}
}

// Subscribe registers a new subscriber. Callers must Unsubscribe when the connection ends.
func (h *Hub) Subscribe(transport string) *Subscriber {
	ch := make(chan []byte, h.buffer)
	s := &Subscriber{ID: uuid.NewString(), Transport: transport, C: ch, ch: ch}
	h.mu.Lock()
	h.subs[s.ID] = s
	h.mu.Unlock()
	otel.AddStreamConnection(transport)
	h.log.Debug("stream subscriber added", "subscriber", s.ID, "transport", transport)
	return s
}

// Unsubscribe removes s. Safe to call more than once and after eviction.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s)
}

func (h *Hub) removeLocked(s *Subscriber) bool {
	if _, ok := h.subs[s.ID]; !ok {
		return false
	}
	delete(h.subs, s.ID)
	close(s.ch)
	otel.RemoveStreamConnection(s.Transport)
	return true
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Encode builds one wire message.
func (h *Hub) Encode(kind string, seq uint64, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(models.Message{Type: kind, Seq: seq, TS: h.now().UTC(), Data: raw})
}

// Publish marshals once and enqueues to every subscriber. A subscriber whose queue is full is
// evicted rather than skipped, so a connection never sees a gap in the sequence it receives.
func (h *Hub) Publish(kind string, seq uint64, data any) {
	b, err := h.Encode(kind, seq, data)
	if err != nil {
		h.log.Error("broadcast encode failed", "kind", kind, "err", err)
		return
	}
	ctx := context.Background()
	otel.RecordStreamMessage(ctx, kind)

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		select {
		case s.ch <- b:
		default:
			if h.removeLocked(s) {
				otel.RecordStreamEviction(ctx)
				h.log.Debug("stream subscriber evicted", "subscriber", s.ID, "transport", s.Transport)
			}
		}
	}
}

// PublishSystem sends an unsequenced system message (host metrics).
func (h *Hub) PublishSystem(data any) {
	h.Publish(models.MsgSystem, 0, data)
}

// Close evicts every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		h.removeLocked(s)
	}
}
