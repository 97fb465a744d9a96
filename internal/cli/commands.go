package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/klauern/wikisync/internal/config"
	"github.com/klauern/wikisync/internal/convert"
	"github.com/klauern/wikisync/internal/engine"
	"github.com/klauern/wikisync/internal/ui"
)

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Display current configuration",
		Action: func(ctx context.Context, _ *cli.Command) error {
			cfg := *configFrom(ctx)
			if cfg.Server.Password != "" {
				cfg.Server.Password = "********"
			}
			data, err := yaml.Marshal(&cfg)
			if err != nil {
				return fmt.Errorf("failed to render config: %w", err)
			}
			fmt.Printf("Configuration file: %s\n", config.FilePath())
			if !config.Exists() {
				fmt.Println("  (not created yet, showing defaults)")
			}
			fmt.Println()
			fmt.Print(string(data))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write the configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "server",
						Usage: "Wiki base URL, e.g. https://wiki.example.com/xwiki",
					},
					&cli.StringFlag{
						Name:    "username",
						Aliases: []string{"u"},
						Usage:   "Wiki user name",
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing configuration file",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if config.Exists() && !cmd.Bool("force") {
						return fmt.Errorf("configuration file %s already exists (use --force to overwrite)", config.FilePath())
					}
					cfg := configFrom(ctx)
					if s := cmd.String("server"); s != "" {
						cfg.Server.URL = s
					}
					if u := cmd.String("username"); u != "" {
						cfg.Server.Username = u
					}
					if err := cfg.Validate(); err != nil && !errors.Is(err, config.ErrNoServer) {
						return err
					}
					if err := cfg.Save(); err != nil {
						return err
					}
					fmt.Println(ui.StatusSuccess("Wrote " + config.FilePath()))
					return nil
				},
			},
		},
	}
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Log in to the wiki and load its page tree",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "username",
				Aliases: []string{"u"},
				Usage:   "Log in as this user instead of the configured one",
			},
			&cli.BoolFlag{
				Name:  "save",
				Usage: "Remember the server and user name in the configuration file",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := configFrom(ctx)
			if u := cmd.String("username"); u != "" {
				cfg.Server.Username = u
			}
			err := withEngine(ctx, nil, func(eng *engine.Engine) error {
				if err := eng.Login(ctx); err != nil {
					return err
				}
				spaces, err := eng.Structure(ctx)
				if err != nil {
					return err
				}
				pages := 0
				for _, sp := range spaces {
					pages += len(sp.Documents)
				}
				fmt.Println(ui.StatusSuccess(fmt.Sprintf("Logged in to %s as %s", cfg.Server.URL, cfg.Server.Username)))
				fmt.Printf("  %d spaces, %d pages\n", len(spaces), pages)
				return nil
			})
			if err != nil {
				return err
			}
			if cmd.Bool("save") {
				saved := *cfg
				saved.Server.Password = ""
				if err := saved.Save(); err != nil {
					return err
				}
				fmt.Printf("  saved to %s\n", config.FilePath())
			}
			return nil
		},
	}
}

func treeCommand() *cli.Command {
	return &cli.Command{
		Name:  "tree",
		Usage: "List the wiki spaces and their pages",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "all",
				Aliases: []string{"a"},
				Usage:   "Include hidden spaces",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withEngine(ctx, nil, func(eng *engine.Engine) error {
				spaces, err := eng.Structure(ctx)
				if err != nil {
					return err
				}
				for _, sp := range spaces {
					if sp.Hidden && !cmd.Bool("all") {
						continue
					}
					fmt.Printf("%s %s\n", ui.Header(sp.Name), ui.Dim(fmt.Sprintf("(%d)", len(sp.Documents))))
					for _, doc := range sp.Documents {
						marker := ui.PageMarker(doc.Published, eng.IsProtected(doc.Identity()))
						fmt.Printf("  %s %s\n", marker, doc.Name)
					}
				}
				return nil
			})
		},
	}
}

func showCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Print the rendered content of a page",
		ArgsUsage: "<Space.Page>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "markdown",
				Aliases: []string{"m"},
				Usage:   "Print the page as Markdown",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := pageArg(cmd.Args().Slice(), 0)
			if err != nil {
				return err
			}
			return withEngine(ctx, nil, func(eng *engine.Engine) error {
				content, err := eng.Preview(ctx, id)
				if err != nil {
					return err
				}
				if cmd.Bool("markdown") {
					if content, err = convert.ToMarkdown(content); err != nil {
						return err
					}
				}
				fmt.Println(content)
				return nil
			})
		},
	}
}

func attachmentsCommand() *cli.Command {
	return &cli.Command{
		Name:      "attachments",
		Usage:     "List the attachments of a page",
		ArgsUsage: "<Space.Page>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := pageArg(cmd.Args().Slice(), 0)
			if err != nil {
				return err
			}
			return withEngine(ctx, nil, func(eng *engine.Engine) error {
				names, err := eng.ListAttachments(ctx, id)
				if err != nil {
					return err
				}
				if len(names) == 0 {
					fmt.Println(ui.Dim("No attachments"))
					return nil
				}
				for _, name := range names {
					fmt.Println(name)
				}
				return nil
			})
		},
	}
}

func downloadCommand() *cli.Command {
	return &cli.Command{
		Name:      "download",
		Usage:     "Download an attachment of a page",
		ArgsUsage: "<Space.Page> <name>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Destination file (default: a free name in the attachments folder)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args().Slice()
			id, err := pageArg(args, 0)
			if err != nil {
				return err
			}
			if len(args) < 2 {
				return errors.New("download requires an attachment name")
			}
			return withEngine(ctx, nil, func(eng *engine.Engine) error {
				fh, err := eng.DownloadAttachment(ctx, id, args[1], cmd.String("output"))
				if err != nil {
					return err
				}
				fmt.Println(ui.StatusSuccess(fmt.Sprintf("Downloaded %s (%d bytes) to %s", fh.Name, fh.Size, fh.Path)))
				return nil
			})
		},
	}
}

// readSource reads a local file given on the command line.
func readSource(path string) (string, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is given by the user
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}
