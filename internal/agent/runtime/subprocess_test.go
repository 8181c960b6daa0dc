package runtime

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/buppyai/puppy-station/pkg/models"
)

type call struct {
	op, a, b string
	md       map[string]any
}

type fakeReporter struct {
	mu    sync.Mutex
	calls []call
}

func (f *fakeReporter) add(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeReporter) Log(_ context.Context, typ, description string, md map[string]any) (*models.Activity, error) {
	f.add(call{op: "log", a: typ, b: description, md: md})
	return &models.Activity{ID: 1, Type: typ, Description: description}, nil
}

func (f *fakeReporter) StartTask(_ context.Context, task string) error {
	f.add(call{op: "task", a: task})
	return nil
}

func (f *fakeReporter) SetStatus(_ context.Context, status string) error {
	f.add(call{op: "status", a: status})
	return nil
}

func (f *fakeReporter) AskReview(_ context.Context, q, p string) (*models.Review, error) {
	f.add(call{op: "review", a: q, b: p})
	return &models.Review{ID: 1, Question: q, Priority: p}, nil
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if goruntime.GOOS == "windows" {
		t.Skip("shell scripts")
	}
	script := filepath.Join(t.TempDir(), "agent.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return script
}

func TestSubprocess_emptyCommand(t *testing.T) {
	_, err := Subprocess{}.Run(context.Background(), &fakeReporter{})
	if err == nil {
		t.Fatal("expected error when command empty")
	}
}

func TestSubprocess_relaysEventsAndExit(t *testing.T) {
	script := writeScript(t, `echo 'building...'
echo '{"type":"file_update","description":"Edited main.go","data":{"path":"main.go"}}'
echo '{"type":"review","description":"Deploy?","priority":"high"}'
echo '{"not":"an event"}'
exit 3
`)
	var out bytes.Buffer
	rep := &fakeReporter{}
	res, err := Subprocess{Command: script, Task: "build", Stdout: &out, Timeout: 5 * time.Second}.Run(context.Background(), rep)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 3 || res.Events != 2 {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(out.String(), "building...") || !strings.Contains(out.String(), `{"not":"an event"}`) {
		t.Fatalf("passthrough = %q", out.String())
	}

	ops := make([]string, len(rep.calls))
	for i, c := range rep.calls {
		ops[i] = c.op
	}
	want := []string{"task", "log", "review", "log", "status"}
	if strings.Join(ops, ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v, want %v", ops, want)
	}
	if rep.calls[0].a != "build" || rep.calls[1].a != "file_update" || rep.calls[1].md["path"] != "main.go" {
		t.Fatalf("calls = %+v", rep.calls)
	}
	if rep.calls[2].b != "high" {
		t.Fatalf("review priority = %q", rep.calls[2].b)
	}
	exit := rep.calls[3]
	if exit.a != "command" || exit.md["exit_code"] != 3 || !strings.Contains(exit.b, "exited 3") {
		t.Fatalf("exit record = %+v", exit)
	}
	if rep.calls[4].a != "idle" {
		t.Fatalf("final status = %q", rep.calls[4].a)
	}
}

func TestSubprocess_timeoutStillReportsIdle(t *testing.T) {
	script := writeScript(t, "exec sleep 5\n")
	rep := &fakeReporter{}
	res, err := Subprocess{Command: script, Timeout: 100 * time.Millisecond}.Run(context.Background(), rep)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode == 0 {
		t.Fatal("killed command should not exit 0")
	}
	last := rep.calls[len(rep.calls)-1]
	if last.op != "status" || last.a != "idle" {
		t.Fatalf("last call = %+v", last)
	}
}

func TestParseEvent(t *testing.T) {
	tests := []struct {
		line string
		ok   bool
	}{
		{`{"type":"command","description":"ls"}`, true},
		{`  {"type":"task","description":"x"}  `, true},
		{`{"description":"no type"}`, false},
		{`plain text`, false},
		{`{broken`, false},
	}
	for _, tt := range tests {
		if _, ok := parseEvent(tt.line); ok != tt.ok {
			t.Errorf("parseEvent(%q) ok = %v, want %v", tt.line, ok, tt.ok)
		}
	}
}

func TestRelayAddsReportedAt(t *testing.T) {
	rep := &fakeReporter{}
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := Relay(context.Background(), rep, Event{Type: "command", Description: "make", Timestamp: ts}); err != nil {
		t.Fatal(err)
	}
	if rep.calls[0].md["reported_at"] != "2026-03-01T12:00:00Z" {
		t.Fatalf("metadata = %v", rep.calls[0].md)
	}
	if err := Relay(context.Background(), rep, Event{Type: EventStatus, Description: "active"}); err != nil || rep.calls[1].op != "status" {
		t.Fatalf("status relay: %v %+v", err, rep.calls)
	}
}

func TestSubprocess_guardQueuesReview(t *testing.T) {
	rep := &fakeReporter{}
	_, err := Subprocess{Command: "git", Args: []string{"push", "--force"}, Guard: true}.Run(context.Background(), rep)
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("err = %v, want ErrBlocked", err)
	}
	if len(rep.calls) != 1 || rep.calls[0].op != "review" || rep.calls[0].b != "high" {
		t.Fatalf("calls = %+v", rep.calls)
	}
}
