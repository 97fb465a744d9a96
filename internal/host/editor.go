// Package host connects the sync engine to the program the user edits
// pages with.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/klauern/wikisync/internal/logging"
)

// ErrNoEditor is returned by RunEditor when no editor command is configured.
var ErrNoEditor = errors.New("no editor configured")

// Editor is the host application holding local documents open.
type Editor interface {
	// Open shows the local document to the user. It must not block until
	// the user is done editing.
	Open(ctx context.Context, path string) error
	// ShadowCopy writes the current content of the document at src to dst
	// without touching the open document.
	ShadowCopy(ctx context.Context, src, dst string) error
}

// FileEditor edits documents as plain files on disk, optionally launching an
// external command on Open.
type FileEditor struct {
	// Command is run with the document path appended, for example "code -n".
	// Empty means documents are only written to disk.
	Command string
}

var _ Editor = (*FileEditor)(nil)

// Open starts the editor command in the background, if any.
func (e *FileEditor) Open(_ context.Context, path string) error {
	if strings.TrimSpace(e.Command) == "" {
		logging.Debug("no editor command, leaving document on disk", logging.Path(path))
		return nil
	}
	// Not bound to ctx: the editor outlives the call that opened it.
	cmd, err := editorCommand(context.Background(), e.Command, path)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start editor: %w", err)
	}
	logging.Debug("editor started", logging.Path(path), "pid", cmd.Process.Pid)
	return cmd.Process.Release()
}

// ShadowCopy copies the file at src to dst.
func (e *FileEditor) ShadowCopy(_ context.Context, src, dst string) error {
	return copyFile(src, dst)
}

// RunEditor runs command on path attached to the terminal and waits for it
// to exit.
func RunEditor(ctx context.Context, command, path string) error {
	if strings.TrimSpace(command) == "" {
		return ErrNoEditor
	}
	cmd, err := editorCommand(ctx, command, path)
	if err != nil {
		return err
	}
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run editor: %w", err)
	}
	return nil
}

// DefaultCommand returns the editor named by VISUAL or EDITOR.
func DefaultCommand() string {
	if v := os.Getenv("VISUAL"); v != "" {
		return v
	}
	return os.Getenv("EDITOR")
}

func editorCommand(ctx context.Context, commandLine, path string) (*exec.Cmd, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, ErrNoEditor
	}
	args := append(fields[1:], path)
	// #nosec G204 - the editor command comes from the user's own configuration
	return exec.CommandContext(ctx, fields[0], args...), nil
}

func copyFile(src, dst string) error {
	// #nosec G304 - src is a document tracked by the engine
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	out, err := os.Create(dst) // #nosec G304
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
