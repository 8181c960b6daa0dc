package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/buppyai/puppy-station/internal/store"
)

func TestOpen_skipIfNoDatabaseURL(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping postgres test")
	}
	st, err := Open(dsn, store.Options{PerAgentRetention: 3})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = st.Close() }()
	ctx := context.Background()

	id := fmt.Sprintf("pg-%d", time.Now().UnixNano())
	if err := st.SeedFleet(ctx, []store.NewAgent{{ID: id, Name: "PG"}}); err != nil {
		t.Fatalf("SeedFleet: %v", err)
	}
	if _, err := st.CreateAgent(ctx, store.NewAgent{ID: id, Name: "PG"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := st.LogActivity(ctx, store.NewActivity{AgentID: id, Type: store.TypeCommand, Description: fmt.Sprint(i)}); err != nil {
			t.Fatalf("LogActivity: %v", err)
		}
	}
	acts, err := st.AgentActivities(ctx, id, 10)
	if err != nil {
		t.Fatalf("AgentActivities: %v", err)
	}
	if len(acts) != 3 || acts[0].Description != "4" {
		t.Fatalf("retention: %+v", acts)
	}

	rv, _, err := st.AddReview(ctx, store.NewReview{AgentID: id, Question: "ok?", Priority: store.PriorityHigh})
	if err != nil {
		t.Fatalf("AddReview: %v", err)
	}
	if _, _, err := st.ResolveReview(ctx, rv.ID); err != nil {
		t.Fatalf("ResolveReview: %v", err)
	}
	if _, _, err := st.ResolveReview(ctx, rv.ID); !errors.Is(err, store.ErrAlreadyResolved) {
		t.Fatalf("second resolve: %v", err)
	}

	p, err := st.Projections(ctx, 5)
	if err != nil {
		t.Fatalf("Projections: %v", err)
	}
	for _, r := range p.Reviews {
		if r.ID == rv.ID {
			t.Fatal("resolved review listed as pending")
		}
	}
	if len(p.Activities) == 0 || p.Activities[0].Type != store.TypeReviewResolved {
		t.Fatalf("newest activity = %+v", p.Activities)
	}
}
