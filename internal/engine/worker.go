package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Outcome is the result of an operation run in the background.
type Outcome[T any] struct {
	Value T
	Err   error
}

// background runs fn on a goroutine tracked by the engine and delivers its
// result on the returned channel, which receives exactly one value. Close
// waits for every background call to finish.
func background[T any](ctx context.Context, e *Engine, fn func(context.Context) (T, error)) <-chan Outcome[T] {
	out := make(chan Outcome[T], 1)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		v, err := fn(ctx)
		out <- Outcome[T]{Value: v, Err: err}
		close(out)
	}()
	return out
}

// writeFileAtomic writes data to a temporary file next to path and renames
// it into place.
func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
