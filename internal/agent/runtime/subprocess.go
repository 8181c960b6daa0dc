package runtime

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/buppyai/puppy-station/internal/sandbox"
)

// ErrBlocked is returned when Guard refused the command; a high-priority review was queued instead.
var ErrBlocked = errors.New("command blocked pending review")

// Subprocess runs a local agent command on behalf of one fleet member: the agent is busy with
// the command as its task while it runs, stdout events are relayed as they arrive, and on exit
// a command activity records the exit code and the agent goes idle.
type Subprocess struct {
	Command string
	Args    []string
	Dir     string
	Env     []string      // appended to the current environment
	Task    string        // default: the command line
	Timeout time.Duration // 0 = use context only
	Sandbox string        // if set, confine writes to this dir (bubblewrap, Linux)
	Guard   bool          // refuse destructive commands and ask for review instead
	Stdout  io.Writer     // non-event output; nil discards
	Stderr  io.Writer
	Log     *slog.Logger
}

// Result is the outcome of Run.
type Result struct {
	ExitCode int
	Duration time.Duration
	Events   int
}

func (s Subprocess) commandLine() string {
	return strings.TrimSpace(s.Command + " " + strings.Join(s.Args, " "))
}

// Run starts the command and blocks until it exits. A non-zero exit is reported in Result,
// not as an error; errors mean the command could not run or the station rejected the task.
func (s Subprocess) Run(ctx context.Context, r Reporter) (Result, error) {
	if s.Command == "" {
		return Result{}, errors.New("subprocess command is required")
	}
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	task := s.Task
	if task == "" {
		task = s.commandLine()
	}
	if s.Guard {
		if rule, blocked := sandbox.Check(s.Command, s.Args); blocked {
			q := fmt.Sprintf("Approve running %q? It matches the %q guard rule.", s.commandLine(), rule)
			if _, err := r.AskReview(ctx, q, "high"); err != nil {
				return Result{}, fmt.Errorf("%w (review not queued: %v)", ErrBlocked, err)
			}
			return Result{}, ErrBlocked
		}
	}
	if err := r.StartTask(ctx, task); err != nil {
		return Result{}, fmt.Errorf("start task: %w", err)
	}
	// Exit reporting must survive cancellation of the run itself.
	report := context.WithoutCancel(ctx)
	defer func() {
		if err := r.SetStatus(report, "idle"); err != nil {
			log.Warn("report idle failed", "err", err)
		}
	}()

	runCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	cmd := sandbox.WrapCommand(runCtx, s.Sandbox, s.Command, s.Args)
	cmd.Dir = s.Dir
	if len(s.Env) > 0 {
		cmd.Env = append(cmd.Environ(), s.Env...)
	}
	cmd.Stderr = s.Stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, err
	}
	passthrough := s.Stdout
	if passthrough == nil {
		passthrough = io.Discard
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		_, _ = r.Log(report, "command", fmt.Sprintf("Failed to start %s: %v", task, err), map[string]any{"command": s.commandLine()})
		return Result{}, err
	}

	var res Result
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		ev, ok := parseEvent(line)
		if !ok {
			_, _ = fmt.Fprintln(passthrough, line)
			continue
		}
		res.Events++
		if err := Relay(runCtx, r, ev); err != nil {
			log.Warn("relay event failed", "type", ev.Type, "err", err)
		}
	}
	scanErr := sc.Err()

	waitErr := cmd.Wait()
	res.Duration = time.Since(start)
	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
	case errors.As(waitErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return res, waitErr
	}

	desc := fmt.Sprintf("%s exited %d after %s", task, res.ExitCode, res.Duration.Round(time.Millisecond))
	if _, err := r.Log(report, "command", desc, map[string]any{
		"command":     s.commandLine(),
		"exit_code":   res.ExitCode,
		"duration_ms": res.Duration.Milliseconds(),
	}); err != nil {
		log.Warn("report exit failed", "err", err)
	}
	return res, scanErr
}

func parseEvent(line string) (Event, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return Event{}, false
	}
	var ev Event
	if err := json.Unmarshal([]byte(line), &ev); err != nil || ev.Type == "" {
		return Event{}, false
	}
	return ev, true
}
