package ui

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

// driver feeds each step from stdin to the browser fleet state and prints its view.
const driver = `
const { createFleet } = require(process.argv[2]);
const steps = JSON.parse(require("fs").readFileSync(0, "utf8"));
const f = createFleet(20);
for (const s of steps) {
  if (s.snapshot) f.applySnapshot(s.snapshot);
  if (s.message) f.applyMessage(s.message);
}
process.stdout.write(JSON.stringify(f.view()));
`

type fleetView struct {
	Agents     []struct{ ID string }
	Reviews    []struct{ Question string }
	Activities []struct{ Description string }
	Connection struct{ Seq uint64 }
}

func runFleet(t *testing.T, steps string) fleetView {
	t.Helper()
	node, err := exec.LookPath("node")
	if err != nil {
		t.Skip("node not installed")
	}
	lib, err := filepath.Abs(filepath.Join("dist", "fleet.js"))
	if err != nil {
		t.Fatal(err)
	}
	script := filepath.Join(t.TempDir(), "driver.js")
	if err := os.WriteFile(script, []byte(driver), 0o644); err != nil {
		t.Fatal(err)
	}
	cmd := exec.Command(node, script, lib)
	cmd.Stdin = strings.NewReader(steps)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("node: %v\n%s", err, stderr.String())
	}
	var v fleetView
	if err := json.Unmarshal(out, &v); err != nil {
		t.Fatalf("decode %s: %v", out, err)
	}
	return v
}

func TestFleetReviewsNewestFirstWithinPriority(t *testing.T) {
	v := runFleet(t, `[{"snapshot": {"epoch": "e1", "seq": 5, "reviews": [
		{"id": 1, "question": "older", "priority": "high", "status": "pending", "created_at": "2026-01-01T00:00:00.1Z"},
		{"id": 4, "question": "low", "priority": "low", "status": "pending", "created_at": "2026-01-01T00:00:09Z"},
		{"id": 2, "question": "newer", "priority": "high", "status": "pending", "created_at": "2026-01-01T00:00:00.2Z"},
		{"id": 3, "question": "same-time", "priority": "high", "status": "pending", "created_at": "2026-01-01T00:00:00.2Z"}]}}]`)
	var got []string
	for _, r := range v.Reviews {
		got = append(got, r.Question)
	}
	if want := []string{"same-time", "newer", "older", "low"}; !slices.Equal(got, want) {
		t.Fatalf("reviews = %v, want %v", got, want)
	}
}

func TestFleetActivitiesCompareFractionalTimestamps(t *testing.T) {
	v := runFleet(t, `[{"snapshot": {"epoch": "e1", "seq": 3, "activities": [
		{"id": 1, "description": "tenth", "timestamp": "2026-01-01T00:00:00.1Z"},
		{"id": 2, "description": "twelve-hundredths", "timestamp": "2026-01-01T00:00:00.12Z"},
		{"id": 3, "description": "whole-second", "timestamp": "2026-01-01T00:00:01Z"},
		{"id": 0, "description": "half", "timestamp": "2026-01-01T00:00:00.5Z"}]}}]`)
	var got []string
	for _, a := range v.Activities {
		got = append(got, a.Description)
	}
	if want := []string{"whole-second", "half", "twelve-hundredths", "tenth"}; !slices.Equal(got, want) {
		t.Fatalf("activities = %v, want %v", got, want)
	}
}

func TestFleetSnapshotDropsActivitiesItCovers(t *testing.T) {
	v := runFleet(t, `[
		{"snapshot": {"epoch": "e1", "seq": 4, "activities": [
			{"id": 1, "description": "trimmed", "timestamp": "2026-01-01T00:00:01Z"},
			{"id": 2, "description": "kept", "timestamp": "2026-01-01T00:00:02Z"}]}},
		{"message": {"type": "activity", "seq": 9, "data": {"id": 3, "description": "pushed", "timestamp": "2026-01-01T00:00:03Z"}}},
		{"snapshot": {"epoch": "e1", "seq": 6, "activities": [
			{"id": 2, "description": "kept", "timestamp": "2026-01-01T00:00:02Z"}]}}]`)
	var got []string
	for _, a := range v.Activities {
		got = append(got, a.Description)
	}
	if want := []string{"pushed", "kept"}; !slices.Equal(got, want) {
		t.Fatalf("activities = %v, want %v", got, want)
	}
	if v.Connection.Seq != 9 {
		t.Fatalf("seq = %d, want 9", v.Connection.Seq)
	}
}

func TestFleetStaleSnapshotKeepsNewerPush(t *testing.T) {
	v := runFleet(t, `[
		{"snapshot": {"epoch": "e1", "seq": 2, "reviews": [
			{"id": 7, "question": "q", "priority": "high", "status": "pending", "created_at": "2026-01-01T00:00:00Z"}]}},
		{"message": {"type": "review-resolved", "seq": 5, "data":
			{"id": 7, "question": "q", "priority": "high", "status": "resolved", "created_at": "2026-01-01T00:00:00Z"}}},
		{"snapshot": {"epoch": "e1", "seq": 3, "reviews": [
			{"id": 7, "question": "q", "priority": "high", "status": "pending", "created_at": "2026-01-01T00:00:00Z"}]}}]`)
	if len(v.Reviews) != 0 {
		t.Fatalf("stale poll revived a resolved review: %+v", v.Reviews)
	}
}

func TestFleetEpochChangeResets(t *testing.T) {
	v := runFleet(t, `[
		{"snapshot": {"epoch": "e1", "seq": 40, "agents": [{"id": "buppy", "name": "Buppy"}]}},
		{"snapshot": {"epoch": "e2", "seq": 1, "agents": [{"id": "kitty", "name": "Kitty"}]}}]`)
	if len(v.Agents) != 1 || v.Agents[0].ID != "kitty" || v.Connection.Seq != 1 {
		t.Fatalf("after restart: %+v", v)
	}
}
