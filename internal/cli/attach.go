package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/klauern/wikisync/internal/engine"
	"github.com/klauern/wikisync/internal/progress"
	"github.com/klauern/wikisync/internal/ui"
)

func attachCommand() *cli.Command {
	return &cli.Command{
		Name:      "attach",
		Usage:     "Upload files as attachments of a published page",
		ArgsUsage: "<Space.Page> <file>...",
		Description: `Upload files to a page in the given order. The first failure stops
   the upload; files after it are not tried.

   Examples:
     wikisync attach Main.WebHome logo.png report.pdf`,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args().Slice()
			id, err := pageArg(args, 0)
			if err != nil {
				return err
			}
			files := args[1:]
			if len(files) == 0 {
				return errors.New("attach requires at least one file")
			}

			return withEngine(ctx, nil, func(eng *engine.Engine) error {
				if _, err := eng.SyncPublishedStatus(ctx, id); err != nil {
					return err
				}

				bar := progress.New(progress.Options{
					Max:         int64(len(files)),
					Description: "Uploading",
				})
				err := eng.AttachFilesWithProgress(ctx, id, files, bar.Uploads())
				if err != nil {
					_ = bar.Clear()
					return err
				}
				_ = bar.Finish()
				fmt.Println(ui.StatusSuccess(fmt.Sprintf("Attached %d files to %s", len(files), id)))
				return nil
			})
		},
	}
}
