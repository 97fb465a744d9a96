// Package progress provides progress indicators for long-running operations.
package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/klauern/wikisync/internal/logging"
	"github.com/klauern/wikisync/internal/ui"
)

// Bar wraps progressbar functionality with integration to wikisync's UI and logging.
type Bar struct {
	bar     *progressbar.ProgressBar
	enabled bool
	desc    string
}

// Options configures the progress bar behavior.
type Options struct {
	// Max is the maximum value for the progress bar (total steps).
	Max int64
	// Description is the prefix text shown before the progress bar.
	Description string
	// Writer is the output destination. Defaults to os.Stderr.
	Writer io.Writer
}

// New creates a new progress bar with the given options.
// The bar is only shown if:
//   - Colors are enabled (respects NO_COLOR and --no-color)
//   - Output is a terminal
//   - Not in debug mode (to avoid interfering with logs)
func New(opts Options) *Bar {
	if opts.Writer == nil {
		opts.Writer = os.Stderr
	}

	b := &Bar{
		enabled: shouldShowProgress(opts.Writer),
		desc:    opts.Description,
	}

	if !b.enabled {
		logging.Debug(fmt.Sprintf("%s started", opts.Description), logging.Count(int(opts.Max)))
		return b
	}

	b.bar = progressbar.NewOptions64(
		opts.Max,
		progressbar.OptionSetDescription(opts.Description),
		progressbar.OptionSetWriter(opts.Writer),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(15),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprint(opts.Writer, "\n")
		}),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionEnableColorCodes(ui.IsColorEnabled()),
	)

	return b
}

// Set sets the progress bar to a specific value.
func (b *Bar) Set(n int) error {
	if !b.enabled {
		return nil
	}
	return b.bar.Set(n)
}

// Describe updates the progress bar description.
func (b *Bar) Describe(desc string) {
	b.desc = desc
	if !b.enabled {
		return
	}
	b.bar.Describe(desc)
}

// Finish completes the progress bar and logs completion.
func (b *Bar) Finish() error {
	if !b.enabled {
		logging.Debug(fmt.Sprintf("%s completed", b.desc))
		return nil
	}
	return b.bar.Finish()
}

// Clear removes the progress bar from the terminal.
func (b *Bar) Clear() error {
	if !b.enabled {
		return nil
	}
	return b.bar.Clear()
}

// Enabled reports whether the bar is drawn.
func (b *Bar) Enabled() bool {
	return b.enabled
}

// Uploads returns a callback for file uploads that moves the bar to done and
// names the file just uploaded.
func (b *Bar) Uploads() func(done, total int, file string) {
	return func(done, _ int, file string) {
		b.Describe("uploaded " + filepath.Base(file))
		_ = b.Set(done)
	}
}

// shouldShowProgress determines if progress bars should be displayed.
func shouldShowProgress(w io.Writer) bool {
	if !ui.IsColorEnabled() {
		return false
	}

	f, ok := w.(*os.File)
	if !ok || !ui.IsTerminal(f) {
		return false
	}

	// Debug logs and the bar would interleave.
	return !logging.Default().Enabled(context.Background(), logging.LevelDebug)
}
