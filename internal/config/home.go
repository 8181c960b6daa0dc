package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// HomeEnv overrides the default home directory (~/.puppy-station).
const HomeEnv = "PUPPY_STATION_HOME"

const homeDirName = ".puppy-station"

type homeKey struct{}

// WithHome attaches a resolved home directory to ctx for subcommands.
func WithHome(ctx context.Context, home string) context.Context {
	return context.WithValue(ctx, homeKey{}, home)
}

// HomeFrom reports the home directory attached by WithHome.
func HomeFrom(ctx context.Context) (string, bool) {
	home, ok := ctx.Value(homeKey{}).(string)
	return home, ok
}

// MustHomeFrom is HomeFrom for code that only runs after the root command resolved home.
func MustHomeFrom(ctx context.Context) string {
	home, ok := HomeFrom(ctx)
	if !ok || home == "" {
		panic("config: no home directory in context")
	}
	return home
}

// ResolveHome picks the home directory: the explicit flag, then $PUPPY_STATION_HOME, then
// ~/.puppy-station. A leading "~/" in the first two is expanded.
func ResolveHome(override string) (string, error) {
	for _, candidate := range []string{override, os.Getenv(HomeEnv)} {
		if candidate == "" {
			continue
		}
		return expandTilde(candidate)
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home: %w", err)
	}
	return filepath.Join(userHome, homeDirName), nil
}

func expandTilde(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return filepath.Clean(p), nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", p, err)
	}
	return filepath.Join(userHome, strings.TrimPrefix(p, "~")), nil
}
