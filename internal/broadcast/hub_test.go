package broadcast

import (
	"encoding/json"
	"testing"

	"github.com/buppyai/puppy-station/pkg/models"
)

func decode(t *testing.T, b []byte) models.Message {
	t.Helper()
	var m models.Message
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	return m
}

func TestPublishFIFOPerSubscriber(t *testing.T) {
	t.Parallel()
	h := NewHub(16, nil)
	a := h.Subscribe("ws")
	b := h.Subscribe("sse")
	defer h.Unsubscribe(a)
	defer h.Unsubscribe(b)

	for i := uint64(1); i <= 5; i++ {
		h.Publish(models.MsgActivity, i, map[string]any{"n": i})
	}
	for _, s := range []*Subscriber{a, b} {
		for want := uint64(1); want <= 5; want++ {
			m := decode(t, <-s.C)
			if m.Seq != want || m.Type != models.MsgActivity {
				t.Fatalf("%s: got %s seq %d, want seq %d", s.Transport, m.Type, m.Seq, want)
			}
		}
	}
}

func TestSlowSubscriberEvicted(t *testing.T) {
	t.Parallel()
	h := NewHub(2, nil)
	slow := h.Subscribe("ws")
	fast := h.Subscribe("ws")
	defer h.Unsubscribe(fast)

	for i := uint64(1); i <= 4; i++ {
		h.Publish(models.MsgActivity, i, i)
		if m := decode(t, <-fast.C); m.Seq != i {
			t.Fatalf("fast subscriber got seq %d, want %d", m.Seq, i)
		}
	}
	if h.Len() != 1 {
		t.Fatalf("Len = %d, want 1", h.Len())
	}
	var seqs []uint64
	for b := range slow.C {
		seqs = append(seqs, decode(t, b).Seq)
	}
	if len(seqs) != 2 || seqs[0] != 1 || seqs[1] != 2 {
		t.Fatalf("slow subscriber got %v, want the buffered prefix [1 2]", seqs)
	}
}

func TestEvictionClosesChannel(t *testing.T) {
	t.Parallel()
	h := NewHub(1, nil)
	s := h.Subscribe("grpc")
	h.Publish(models.MsgActivity, 1, nil)
	h.Publish(models.MsgActivity, 2, nil) // queue full: evicted

	if h.Len() != 0 {
		t.Fatalf("Len = %d, want 0", h.Len())
	}
	m := decode(t, <-s.C)
	if m.Seq != 1 {
		t.Fatalf("first message seq = %d", m.Seq)
	}
	if _, ok := <-s.C; ok {
		t.Fatal("channel should be closed after eviction")
	}
	h.Unsubscribe(s) // idempotent
}

func TestPublishSystemHasZeroSeq(t *testing.T) {
	t.Parallel()
	h := NewHub(0, nil)
	s := h.Subscribe("ws")
	defer h.Unsubscribe(s)
	h.PublishSystem(models.SystemMetrics{CPUPercent: 12.5})

	m := decode(t, <-s.C)
	if m.Type != models.MsgSystem || m.Seq != 0 {
		t.Fatalf("message = %+v", m)
	}
	var sm models.SystemMetrics
	if err := json.Unmarshal(m.Data, &sm); err != nil || sm.CPUPercent != 12.5 {
		t.Fatalf("data = %s (%v)", m.Data, err)
	}
}

func TestCloseEvictsAll(t *testing.T) {
	t.Parallel()
	h := NewHub(0, nil)
	a, b := h.Subscribe("ws"), h.Subscribe("sse")
	h.Close()
	for _, s := range []*Subscriber{a, b} {
		if _, ok := <-s.C; ok {
			t.Fatalf("%s not closed", s.ID)
		}
	}
	if h.Len() != 0 {
		t.Fatal("hub not empty")
	}
}
