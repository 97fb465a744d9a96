package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMain(m *testing.M) {
	tempHome, err := os.MkdirTemp("", "wikisync-home-")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create temp HOME: %v\n", err)
		os.Exit(1)
	}

	oldHome, hadHome := os.LookupEnv("HOME")
	if err := os.Setenv("HOME", tempHome); err != nil {
		fmt.Fprintf(os.Stderr, "failed to set HOME: %v\n", err)
		_ = os.RemoveAll(tempHome)
		os.Exit(1)
	}
	_ = os.Setenv("WIKISYNC_HOME", filepath.Join(tempHome, ".wikisync"))
	_ = os.Unsetenv("WIKISYNC_CONFIG")
	for _, kv := range os.Environ() {
		if name, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(name, "WIKISYNC_") && name != "WIKISYNC_HOME" {
			_ = os.Unsetenv(name)
		}
	}

	code := m.Run()

	if hadHome {
		_ = os.Setenv("HOME", oldHome)
	} else {
		_ = os.Unsetenv("HOME")
	}
	_ = os.RemoveAll(tempHome)

	os.Exit(code)
}
