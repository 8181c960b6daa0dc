package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func protectedDir(home string) string {
	return filepath.Join(home, "protected")
}

func pidPath(home string) string {
	return filepath.Join(protectedDir(home), "daemon.pid")
}

func lockPath(home string) string {
	return filepath.Join(protectedDir(home), "daemon.lock")
}

func addrPath(home string) string {
	return filepath.Join(protectedDir(home), "daemon.addr")
}

func grpcAddrPath(home string) string {
	return filepath.Join(protectedDir(home), "daemon.grpc")
}

func logPath(home string) string {
	return filepath.Join(protectedDir(home), "daemon.log")
}

// LogPath is where a background daemon writes its log.
func LogPath(home string) string { return logPath(home) }

func readTrimmed(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func errAlreadyRunning(pid string) error {
	if pid == "" {
		return errors.New("puppy-station is already running (could not acquire lock)")
	}
	return fmt.Errorf("puppy-station is already running (pid %s holds the lock)", pid)
}
