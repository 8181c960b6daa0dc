package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/buppyai/puppy-station/pkg/models"
)

func TestNewRootCmd_hasSubcommands(t *testing.T) {
	root := NewRootCmd("test")
	if root == nil {
		t.Fatal("NewRootCmd returned nil")
	}
	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"start", "stop", "status", "doctor", "config", "agent", "activity", "review", "watch", "tail", "run", "daemon"} {
		if !names[want] {
			t.Errorf("expected subcommand %q", want)
		}
	}
}

func TestNewRootCmd_versionFlag(t *testing.T) {
	root := NewRootCmd("1.2.3")
	if root.Version != "1.2.3" {
		t.Errorf("Version: got %q", root.Version)
	}
}

func TestNewRootCmd_hasHomeAndServerFlags(t *testing.T) {
	root := NewRootCmd("")
	for _, name := range []string{"home", "server"} {
		if root.PersistentFlags().Lookup(name) == nil {
			t.Fatalf("expected --%s persistent flag", name)
		}
	}
}

func TestDaemonCmdAcceptsBackgroundFlags(t *testing.T) {
	root := NewRootCmd("")
	daemonCmd, _, err := root.Find([]string{"daemon"})
	if err != nil {
		t.Fatal(err)
	}
	args := []string{"--port", "9000", "--dev", "--pprof", "127.0.0.1:6060", "--db-driver", "postgres", "--db-url", "postgres://x",
		"--grpc-addr", "off", "--otel=false", "--no-simulator", "--watch", "a", "--watch", "b"}
	if err := daemonCmd.ParseFlags(args); err != nil {
		t.Fatalf("daemon flags: %v", err)
	}
}

func TestResolveServerURL(t *testing.T) {
	home := t.TempDir()
	tests := []struct {
		name, flag, env, want string
	}{
		{"flag wins", "http://a:1/", "http://b:2", "http://a:1"},
		{"env", "", "b:2", "http://b:2"},
		{"default", "", "", defaultServerURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(ServerEnv, tt.env)
			if got := resolveServerURL(tt.flag, home); got != tt.want {
				t.Errorf("got %q want %q", got, tt.want)
			}
		})
	}

	t.Run("daemon addr file", func(t *testing.T) {
		t.Setenv(ServerEnv, "")
		dir := filepath.Join(home, "protected")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "daemon.addr"), []byte("127.0.0.1:4000\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if got := resolveServerURL("", home); got != "http://127.0.0.1:4000" {
			t.Errorf("got %q", got)
		}
	})
}

func TestParseMetadata(t *testing.T) {
	md, err := parseMetadata([]string{"path=src/main.go", "op=write=x"})
	if err != nil {
		t.Fatal(err)
	}
	if md["path"] != "src/main.go" || md["op"] != "write=x" {
		t.Fatalf("md = %v", md)
	}
	if _, err := parseMetadata([]string{"novalue"}); err == nil {
		t.Fatal("expected error")
	}
}

func run(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd("")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--home", t.TempDir(), "--server", server}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestClientCommandsAgainstServer(t *testing.T) {
	var gotReview models.ReviewRequest
	mux := http.NewServeMux()
	mux.HandleFunc("GET /agents", func(w http.ResponseWriter, r *http.Request) {
		task := "write docs"
		_ = json.NewEncoder(w).Encode([]models.Agent{{ID: "birdy", Name: "Birdy", Status: "busy", CurrentTask: &task}})
	})
	mux.HandleFunc("POST /reviews", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReview)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(models.Review{ID: 12, AgentID: gotReview.Agent(), Question: gotReview.Question, Priority: gotReview.Priority, Status: "pending"})
	})
	mux.HandleFunc("PATCH /reviews/{id}/resolve", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(models.ErrorResponse{Error: "review not found"})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	out, err := run(t, ts.URL, "agent", "list")
	if err != nil || !strings.Contains(out, "birdy") || !strings.Contains(out, "write docs") {
		t.Fatalf("agent list: %q, %v", out, err)
	}

	out, err = run(t, ts.URL, "review", "add", "kitty", "merge?", "--priority", "high")
	if err != nil || !strings.Contains(out, "#12") {
		t.Fatalf("review add: %q, %v", out, err)
	}
	if gotReview.Agent() != "kitty" || gotReview.Priority != "high" {
		t.Fatalf("request = %+v", gotReview)
	}

	if _, err := run(t, ts.URL, "review", "resolve", "99"); err == nil || !strings.Contains(err.Error(), "not pending") {
		t.Fatalf("resolve missing: %v", err)
	}
	if _, err := run(t, ts.URL, "review", "resolve", "abc"); err == nil {
		t.Fatal("expected id parse error")
	}
}

func TestConfigShow(t *testing.T) {
	root := NewRootCmd("")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--home", t.TempDir(), "config", "show"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"port: 3548", "driver: sqlite", "debounce: 500ms"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("config show missing %q:\n%s", want, out.String())
		}
	}
}

func TestDoctorOnFreshHome(t *testing.T) {
	root := NewRootCmd("")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--home", t.TempDir(), "doctor"})
	if err := root.Execute(); err != nil {
		t.Fatalf("doctor: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "server: not running") || !strings.Contains(out.String(), "ok") {
		t.Fatalf("doctor output:\n%s", out.String())
	}
}

func TestExitCode(t *testing.T) {
	if got := ExitCode(&exitError{code: 7}); got != 7 {
		t.Fatalf("ExitCode = %d", got)
	}
	if !IsCommandExit(&exitError{code: 2}) || IsCommandExit(errors.New("boom")) {
		t.Fatal("IsCommandExit")
	}
	if got := ExitCode(errors.New("boom")); got != 1 {
		t.Fatalf("ExitCode = %d", got)
	}
}

func TestNukeNeedsConfirmation(t *testing.T) {
	home := filepath.Join(t.TempDir(), "station")
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatal(err)
	}
	nuke := func(stdin string, extra ...string) string {
		root := NewRootCmd("")
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetIn(strings.NewReader(stdin))
		root.SetArgs(append([]string{"--home", home, "nuke"}, extra...))
		if err := root.Execute(); err != nil {
			t.Fatalf("nuke: %v", err)
		}
		return out.String()
	}
	if out := nuke("no\n"); !strings.Contains(out, "aborted") {
		t.Fatalf("wrong phrase should abort:\n%s", out)
	}
	if _, err := os.Stat(home); err != nil {
		t.Fatal("home removed without confirmation")
	}
	nuke("delete everything\n")
	if _, err := os.Stat(home); !os.IsNotExist(err) {
		t.Fatalf("home still present: %v", err)
	}
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatal(err)
	}
	nuke("", "--yes")
	if _, err := os.Stat(home); !os.IsNotExist(err) {
		t.Fatal("--yes should skip the prompt")
	}
}
