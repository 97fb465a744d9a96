package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/klauern/wikisync/internal/config"
	"github.com/klauern/wikisync/internal/engine"
	"github.com/klauern/wikisync/internal/host"
	"github.com/klauern/wikisync/internal/logging"
	"github.com/klauern/wikisync/internal/model"
	"github.com/klauern/wikisync/internal/wiki"
)

// openEngine builds a sync engine for cfg. A nil editor leaves opened
// documents on disk.
func openEngine(cfg *config.Config, editor host.Editor) (*engine.Engine, error) {
	if err := cfg.Validate(); err != nil {
		if errors.Is(err, config.ErrNoServer) {
			return nil, fmt.Errorf("%w: run 'wikisync config init --server <url>' or set WIKISYNC_SERVER_URL", err)
		}
		return nil, err
	}

	password := cfg.Server.Password
	if password == "" && cfg.Server.Username != "" {
		p, err := promptPassword(cfg.Server.Username)
		if err != nil {
			return nil, err
		}
		password = p
	}

	protected, err := cfg.ProtectionPolicy()
	if err != nil {
		return nil, err
	}
	hidden, err := cfg.HiddenPolicy()
	if err != nil {
		return nil, err
	}
	pagesDir, err := filepath.Abs(cfg.PagesDir())
	if err != nil {
		return nil, fmt.Errorf("pages folder: %w", err)
	}

	client := wiki.NewHTTPClient(cfg.Server.URL, cfg.HTTPOptions())
	logging.Debug("engine configured",
		"server", client.BaseURL(),
		logging.Path(pagesDir),
	)

	return engine.New(engine.Options{
		Client:               client,
		Username:             cfg.Server.Username,
		Password:             password,
		ServerURL:            client.BaseURL(),
		PagesDir:             pagesDir,
		DownloadDir:          cfg.AttachmentsDir(),
		Syntax:               cfg.Editing.Syntax,
		Charset:              cfg.Server.Encoding,
		Protected:            protected,
		Hidden:               hidden,
		Editor:               editor,
		UploadLocalResources: cfg.Editing.UploadLocalResources,
		DownloadResources:    cfg.Editing.DownloadResources,
	}), nil
}

// promptPassword reads a password from the terminal. Without a terminal it
// returns an empty password and lets the server decide.
func promptPassword(username string) (string, error) {
	fd := int(os.Stdin.Fd()) // #nosec G115 - file descriptors fit in int
	if !term.IsTerminal(fd) {
		return "", nil
	}
	fmt.Fprintf(os.Stderr, "Password for %s: ", username)
	data, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(data), nil
}

// editorCommand returns the configured editor, falling back to VISUAL and
// EDITOR.
func editorCommand(cfg *config.Config) string {
	if cmd := strings.TrimSpace(cfg.Editing.Editor); cmd != "" {
		return cmd
	}
	return host.DefaultCommand()
}

// pageArg parses the Space.Page argument at index i.
func pageArg(args []string, i int) (model.Identity, error) {
	if len(args) <= i {
		return model.Identity{}, errors.New("missing page argument (Space.Page)")
	}
	return model.ParseIdentity(args[i])
}

// userError turns engine failures into the message shown to the user.
func userError(err error) error {
	if err == nil {
		return nil
	}
	var opErr *engine.OpError
	var partial *engine.PartialFailureError
	if errors.As(err, &opErr) || errors.As(err, &partial) {
		logging.Debug("operation failed", logging.Err(err))
		return errors.New(engine.UserMessage(err))
	}
	return err
}

// withEngine runs fn with an engine for the loaded configuration and closes
// it afterwards.
func withEngine(ctx context.Context, editor host.Editor, fn func(*engine.Engine) error) error {
	eng, err := openEngine(configFrom(ctx), editor)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()
	return userError(fn(eng))
}
