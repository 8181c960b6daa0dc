// Package sandbox decides whether an agent command may run unattended and, on Linux with
// bubblewrap installed, confines it to one writable directory.
package sandbox

import (
	"context"
	"os/exec"
	"path/filepath"
	"runtime"
)

// Available reports whether WrapCommand will actually confine commands.
func Available() bool {
	if runtime.GOOS != "linux" {
		return false
	}
	_, err := exec.LookPath("bwrap")
	return err == nil
}

// WrapCommand returns an *exec.Cmd that runs binary with args. If writableDir is non-empty and
// bubblewrap (bwrap) is available on Linux, the command runs inside a minimal bubblewrap sandbox
// where only writableDir is writable; system directories are mounted read-only. Otherwise the
// command runs unconfined.
func WrapCommand(ctx context.Context, writableDir, binary string, args []string) *exec.Cmd {
	if writableDir == "" || runtime.GOOS != "linux" {
		return exec.CommandContext(ctx, binary, args...)
	}
	bwrap, err := exec.LookPath("bwrap")
	if err != nil {
		return exec.CommandContext(ctx, binary, args...)
	}
	abs, err := filepath.Abs(writableDir)
	if err != nil {
		return exec.CommandContext(ctx, binary, args...)
	}
	bwrapArgs := []string{
		"--ro-bind", "/", "/",
		"--bind", abs, abs,
		"--dev", "/dev",
		"--proc", "/proc",
		"--tmpfs", "/tmp",
		"--unshare-pid",
		"--die-with-parent",
		"--chdir", abs,
		"--", binary,
	}
	bwrapArgs = append(bwrapArgs, args...)
	return exec.CommandContext(ctx, bwrap, bwrapArgs...)
}
