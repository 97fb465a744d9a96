package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/urfave/cli/v3"

	"github.com/klauern/wikisync/internal/config"
	"github.com/klauern/wikisync/internal/convert"
	"github.com/klauern/wikisync/internal/engine"
	"github.com/klauern/wikisync/internal/host"
	"github.com/klauern/wikisync/internal/logging"
	"github.com/klauern/wikisync/internal/model"
	"github.com/klauern/wikisync/internal/ui"
	"github.com/klauern/wikisync/internal/ui/tui"
)

var watchFlag = &cli.BoolFlag{
	Name:    "watch",
	Aliases: []string{"w"},
	Usage:   "Start the editor in the background and save on every write until the file is removed or Ctrl-C",
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:      "new",
		Usage:     "Create a page locally, edit it and publish it",
		ArgsUsage: "<Space.Page>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "title",
				Aliases: []string{"t"},
				Usage:   "Page heading (default: the page name)",
			},
			&cli.StringFlag{
				Name:  "from-markdown",
				Usage: "Use the converted content of a Markdown file as the page body",
			},
			&cli.BoolFlag{
				Name:  "no-editor",
				Usage: "Publish the page without opening an editor",
			},
			watchFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := pageArg(cmd.Args().Slice(), 0)
			if err != nil {
				return err
			}
			var body string
			if src := cmd.String("from-markdown"); src != "" {
				md, err := readSource(src)
				if err != nil {
					return err
				}
				if body, err = convert.FromMarkdown(md); err != nil {
					return err
				}
			}

			cfg := configFrom(ctx)
			watch := cmd.Bool("watch") && !cmd.Bool("no-editor")
			return withEngine(ctx, watchEditor(cfg, watch), func(eng *engine.Engine) error {
				h, err := eng.CreateDocumentWithBody(ctx, id.Space, id.Name, cmd.String("title"), body)
				if err != nil {
					return err
				}
				fmt.Printf("Created %s at %s\n", ui.Bold(id.String()), h.Path)
				switch {
				case cmd.Bool("no-editor"):
					return saveDocument(ctx, eng, h.Path)
				case watch:
					return watchDocument(ctx, eng, h)
				default:
					return editDocument(ctx, eng, cfg, h, true)
				}
			})
		},
	}
}

func editCommand() *cli.Command {
	return &cli.Command{
		Name:      "edit",
		Usage:     "Fetch a page, edit it locally and save it back",
		ArgsUsage: "<Space.Page>",
		Flags:     []cli.Flag{watchFlag},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := pageArg(cmd.Args().Slice(), 0)
			if err != nil {
				return err
			}
			return openAndEdit(ctx, id, cmd.Bool("watch"))
		},
	}
}

func browseCommand() *cli.Command {
	return &cli.Command{
		Name:  "browse",
		Usage: "Pick a page interactively and edit it",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "all",
				Aliases: []string{"a"},
				Usage:   "Include hidden spaces",
			},
			watchFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if !ui.IsTerminal(os.Stdin) {
				return errors.New("browse needs an interactive terminal; use 'wikisync tree' and 'wikisync edit'")
			}
			var picked model.Identity
			err := withEngine(ctx, nil, func(eng *engine.Engine) error {
				spaces, err := eng.Structure(ctx)
				if err != nil {
					return err
				}
				if !cmd.Bool("all") {
					spaces = visibleSpaces(spaces)
				}
				result, err := tui.RunPagePicker(spaces, eng.IsProtected)
				if err != nil {
					return err
				}
				if result.Action == tui.PagePickerActionOpen {
					picked = result.Identity
				}
				return nil
			})
			if err != nil || picked.IsZero() {
				return err
			}
			return openAndEdit(ctx, picked, cmd.Bool("watch"))
		},
	}
}

func visibleSpaces(spaces []model.Space) []model.Space {
	out := make([]model.Space, 0, len(spaces))
	for _, sp := range spaces {
		if !sp.Hidden {
			out = append(out, sp)
		}
	}
	return out
}

func openAndEdit(ctx context.Context, id model.Identity, watch bool) error {
	cfg := configFrom(ctx)
	return withEngine(ctx, watchEditor(cfg, watch), func(eng *engine.Engine) error {
		h, err := eng.OpenDocument(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("Opened %s at %s\n", ui.Bold(id.String()), h.Path)
		if watch {
			return watchDocument(ctx, eng, h)
		}
		return editDocument(ctx, eng, cfg, h, false)
	})
}

// watchEditor returns the background editor used in watch mode. Blocking
// edits run the editor themselves and return nil.
func watchEditor(cfg *config.Config, watch bool) host.Editor {
	if !watch {
		return nil
	}
	return &host.FileEditor{Command: editorCommand(cfg)}
}

// editDocument runs the editor on h and saves the page if the file changed.
// New pages are always saved so that they get published.
func editDocument(ctx context.Context, eng *engine.Engine, cfg *config.Config, h engine.LocalHandle, always bool) error {
	before, err := os.ReadFile(h.Path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", h.Path, err)
	}
	if err := host.RunEditor(ctx, editorCommand(cfg), h.Path); err != nil {
		if errors.Is(err, host.ErrNoEditor) {
			return fmt.Errorf("%w: set editing.editor, VISUAL or EDITOR, or use --watch", err)
		}
		return err
	}
	after, err := os.ReadFile(h.Path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", h.Path, err)
	}
	if !always && bytes.Equal(before, after) {
		fmt.Println(ui.StatusSkipped("No changes, nothing saved"))
		return nil
	}
	return saveDocument(ctx, eng, h.Path)
}

func saveDocument(ctx context.Context, eng *engine.Engine, path string) error {
	eng.Activate(path)
	if err := eng.SaveCurrentDocument(ctx); err != nil {
		return err
	}
	id, _ := eng.CurrentIdentity()
	fmt.Println(ui.StatusSuccess("Saved " + id.String()))
	return nil
}

// watchDocument saves h every time its file is written. It returns when the
// file is removed or the user interrupts.
func watchDocument(ctx context.Context, eng *engine.Engine, h engine.LocalHandle) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := host.NewWatcher()
	if err != nil {
		return err
	}
	w.OnWrite = func(path string) {
		if err := saveDocument(ctx, eng, path); err != nil {
			logging.Warn("save failed", logging.Path(path), logging.Err(err))
			fmt.Println(ui.StatusError(engine.UserMessage(err)))
		}
	}
	w.OnRemove = func(path string) {
		eng.CloseDocument(path)
		fmt.Println(ui.StatusSkipped("Closed " + h.Identity.String()))
		cancel()
	}
	if err := w.Add(h.Path); err != nil {
		return err
	}

	fmt.Printf("Watching %s, press Ctrl-C to stop\n", h.Path)
	return w.Run(ctx)
}
