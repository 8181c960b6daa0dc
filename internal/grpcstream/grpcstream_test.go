package grpcstream

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/buppyai/puppy-station/internal/broadcast"
	"github.com/buppyai/puppy-station/internal/fleet"
	"github.com/buppyai/puppy-station/internal/store"
	"github.com/buppyai/puppy-station/pkg/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

func startServer(t *testing.T) (*fleet.Service, *broadcast.Hub, *Client) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	svc := fleet.New(st, nil)
	hub := broadcast.NewHub(16, nil)
	svc.AddListener(fleet.PublishTo(hub))
	if err := svc.SeedFleet(context.Background(), fleet.DefaultFleet); err != nil {
		t.Fatal(err)
	}

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	Register(srv, &Server{Fleet: svc, Hub: hub})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return svc, hub, c
}

func TestSubscribeInitThenChanges(t *testing.T) {
	t.Parallel()
	svc, hub, c := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := c.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer func() { _ = s.Close() }()

	init, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if init.Type != models.MsgInit || init.Seq != svc.Seq() {
		t.Fatalf("init = %s seq %d, fleet seq %d", init.Type, init.Seq, svc.Seq())
	}
	var snap models.Snapshot
	if err := json.Unmarshal(init.Data, &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Agents) != len(fleet.DefaultFleet) {
		t.Fatalf("init agents = %d", len(snap.Agents))
	}

	// The server subscribes before sending init; wait for it so the write below is not missed.
	for hub.Len() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	act, err := svc.LogActivity(ctx, store.NewActivity{AgentID: "birdy", Type: store.TypeCommand, Description: "curl arxiv"})
	if err != nil {
		t.Fatal(err)
	}

	m, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if m.Type != models.MsgActivity || m.Seq != init.Seq+1 {
		t.Fatalf("message = %s seq %d", m.Type, m.Seq)
	}
	var got models.Activity
	if err := json.Unmarshal(m.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != act.ID || got.Description != "curl arxiv" {
		t.Fatalf("activity = %+v", got)
	}

	hub.PublishSystem(models.SystemMetrics{CPUPercent: 12.5})
	m, err = s.Next(ctx)
	if err != nil || m.Type != models.MsgSystem || m.Seq != 0 {
		t.Fatalf("system = %+v, %v", m, err)
	}
}

func TestSubscribeUnconfigured(t *testing.T) {
	err := (&Server{}).Subscribe(nil, nil)
	if err == nil {
		t.Fatal("expected error without fleet and hub")
	}
}
