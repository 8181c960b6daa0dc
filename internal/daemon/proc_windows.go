//go:build windows

package daemon

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// daemonLock is an exclusively created lock file holding the owner's pid; it is removed on release.
type daemonLock struct {
	f    *os.File
	path string
}

func acquireLock(lockFile string) (*daemonLock, error) {
	if err := os.MkdirAll(filepath.Dir(lockFile), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(lockFile, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, errAlreadyRunning(readTrimmed(lockFile))
		}
		return nil, err
	}
	_, _ = f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	return &daemonLock{f: f, path: lockFile}, nil
}

func (l *daemonLock) release() {
	if l == nil || l.f == nil {
		return
	}
	_ = l.f.Close()
	_ = os.Remove(l.path)
}

func setDaemonSysProcAttr(cmd *exec.Cmd) {}

// processExists cannot probe without x/sys/windows; a recorded pid is trusted and a dead
// daemon shows up as a refused connection instead.
func processExists(pid int) bool {
	return pid > 0
}

// signalTerm kills outright; Windows has no SIGTERM.
func signalTerm(proc *os.Process) error {
	return proc.Kill()
}
