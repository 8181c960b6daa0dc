package sandbox

import (
	"context"
	"path/filepath"
	"slices"
	"testing"
)

func TestWrapCommandUnconfined(t *testing.T) {
	cmd := WrapCommand(context.Background(), "", "echo", []string{"hi"})
	if !slices.Equal(cmd.Args, []string{"echo", "hi"}) {
		t.Fatalf("cmd = %v", cmd.Args)
	}
}

func TestWrapCommandConfined(t *testing.T) {
	if !Available() {
		t.Skip("bwrap not available")
	}
	dir := t.TempDir()
	cmd := WrapCommand(context.Background(), dir, "echo", []string{"hi"})
	if filepath.Base(cmd.Path) != "bwrap" {
		t.Fatalf("path = %s", cmd.Path)
	}
	i := slices.Index(cmd.Args, "--bind")
	if i < 0 || cmd.Args[i+1] != dir {
		t.Fatalf("args = %v", cmd.Args)
	}
	if cmd.Args[len(cmd.Args)-2] != "echo" || cmd.Args[len(cmd.Args)-1] != "hi" {
		t.Fatalf("args tail = %v", cmd.Args)
	}
}
