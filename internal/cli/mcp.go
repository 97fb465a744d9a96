package cli

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/klauern/wikisync/internal/engine"
	"github.com/klauern/wikisync/internal/logging"
	"github.com/klauern/wikisync/internal/mcpserver"
)

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the wiki as MCP tools over stdin and stdout",
		Action: func(ctx context.Context, _ *cli.Command) error {
			return withEngine(ctx, nil, func(eng *engine.Engine) error {
				s := mcpserver.NewServer(eng, Version)
				logging.Info("serving MCP on stdio")
				return mcpserver.ServeStdio(ctx, s, os.Stdin, os.Stdout)
			})
		},
	}
}
