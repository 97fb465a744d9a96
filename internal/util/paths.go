package util

import (
	"os"
	"path/filepath"
	"strings"
)

// HomeDir returns the user's home directory
func HomeDir() string {
	home, _ := os.UserHomeDir()
	return home
}

// WikisyncConfigPath returns the wikisync configuration directory. It is
// ~/.wikisync unless WIKISYNC_HOME is set.
func WikisyncConfigPath() string {
	if dir := os.Getenv("WIKISYNC_HOME"); dir != "" {
		return dir
	}
	return filepath.Join(HomeDir(), ".wikisync")
}

// PagesRepositoryPath returns the default folder for locally edited pages.
func PagesRepositoryPath() string {
	return filepath.Join(WikisyncConfigPath(), "pages")
}

// AttachmentsRepositoryPath returns the default folder for downloaded attachments.
func AttachmentsRepositoryPath() string {
	return filepath.Join(WikisyncConfigPath(), "attachments")
}

// ExpandPath expands a leading ~ and resolves relative paths against baseDir.
// An empty path stays empty.
func ExpandPath(path, baseDir string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if path == "~" {
		return HomeDir()
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(HomeDir(), path[2:])
	}
	if filepath.IsAbs(path) || baseDir == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(baseDir, path)
}
