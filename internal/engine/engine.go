// Package engine keeps local documents and remote wiki pages in sync.
//
// The Engine is the only writer of the wiki structure, the document
// registry and the conversion cache. It logs in on demand, loads the page
// tree once per session, and implements the document lifecycle: create,
// open, save, attach and download.
package engine

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/klauern/wikisync/internal/convert"
	"github.com/klauern/wikisync/internal/host"
	"github.com/klauern/wikisync/internal/logging"
	"github.com/klauern/wikisync/internal/model"
	"github.com/klauern/wikisync/internal/protect"
	"github.com/klauern/wikisync/internal/registry"
	"github.com/klauern/wikisync/internal/wiki"
)

// listingConcurrency bounds parallel page listings during a structure load.
const listingConcurrency = 4

// Options configures an Engine.
type Options struct {
	Client   wiki.Client
	Username string
	Password string
	// ServerURL is used to recognize attachment links in page content.
	ServerURL string
	// PagesDir holds the local copies of pages.
	PagesDir string
	// DownloadDir receives attachments downloaded without a destination.
	DownloadDir string
	// Syntax is the markup syntax pages are saved with.
	Syntax string
	// Charset is the encoding the server stores pages in.
	Charset string
	// Protected rejects documents from editing and prunes them from the
	// structure. Nil protects nothing.
	Protected *protect.Policy
	// Hidden marks matching spaces hidden in the structure.
	Hidden *protect.Policy
	// Editor holds the documents open. Nil leaves them on disk.
	Editor host.Editor
	// UploadLocalResources uploads files referenced from a page's resource
	// folder when the page is saved.
	UploadLocalResources bool
	// DownloadResources fetches a page's attachments into its resource
	// folder when it is opened.
	DownloadResources bool
}

// Engine orchestrates document synchronization.
type Engine struct {
	opts      Options
	client    wiki.Client
	cache     *convert.Cache
	structure *model.WikiStructure
	registry  *registry.Registry
	locks     *keyedMutex

	mu        sync.RWMutex
	session   Session
	loading   *structureLoad

	login singleflight.Group

	listenersMu sync.RWMutex
	listeners   []subscription
	nextSub     int

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New returns an engine. The wiki is not contacted until an operation needs
// it.
func New(opts Options) *Engine {
	if opts.Syntax == "" {
		opts.Syntax = wiki.DefaultSyntax
	}
	if opts.Charset == "" {
		opts.Charset = convert.DefaultCharset
	}
	if opts.DownloadDir == "" {
		opts.DownloadDir = opts.PagesDir
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		opts:          opts,
		client:        opts.Client,
		cache:         convert.NewCache(opts.ServerURL),
		structure:     model.NewWikiStructure(),
		registry:      registry.New(),
		locks:         newKeyedMutex(),
		baseCtx:       ctx,
		cancel:        cancel,
	}
}

// Close cancels background work and waits for it to stop.
func (e *Engine) Close() error {
	e.cancel()
	e.wg.Wait()
	return nil
}

// Session returns a copy of the session state.
func (e *Engine) Session() Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.session
}

// CurrentIdentity returns the identity of the active document.
func (e *Engine) CurrentIdentity() (model.Identity, bool) {
	s := e.Session()
	return s.Identity, s.HasDocument()
}

// IsDocumentOpen reports whether id is bound to an open local file.
func (e *Engine) IsDocumentOpen(id model.Identity) bool {
	return e.registry.IsOpen(id)
}

// IsPublished reports whether id has been saved to, or opened from, the wiki
// during this session.
func (e *Engine) IsPublished(id model.Identity) bool {
	return e.registry.IsPublished(id)
}

// IsProtected reports whether id matches the protection policy.
func (e *Engine) IsProtected(id model.Identity) bool {
	return e.opts.Protected.IsProtected(id)
}

// OpenDocuments lists the open local documents in the order they were opened.
func (e *Engine) OpenDocuments() []registry.Entry {
	return e.registry.Entries()
}

// LocalPath returns where the local copy of id is written.
func (e *Engine) LocalPath(id model.Identity) string {
	return filepath.Join(e.opts.PagesDir, id.LocalFileName()+".html")
}

func (e *Engine) setState(s LoginState) {
	e.mu.Lock()
	e.session.State = s
	e.mu.Unlock()
}

// Login authenticates with the stored credentials if the session is not
// already logged in.
func (e *Engine) Login(ctx context.Context) error {
	return e.ensureLogin(ctx)
}

// ensureLogin joins the login in flight or starts one. The login itself runs
// on the engine's context, so a caller giving up does not fail it for the
// others.
func (e *Engine) ensureLogin(ctx context.Context) error {
	if e.Session().State == LoggedIn && e.client.LoggedIn() {
		return nil
	}
	ch := e.login.DoChan("login", func() (any, error) {
		return nil, e.authenticate(e.baseCtx)
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (e *Engine) authenticate(ctx context.Context) error {
	e.setState(Authenticating)
	log := logging.WithContext(ctx).With(logging.Operation("login"))
	log.Debug("authenticating", "user", e.opts.Username)

	if err := e.client.Login(ctx, e.opts.Username, e.opts.Password); err != nil {
		if ctx.Err() != nil {
			e.setState(LoggedOut)
			log.Debug("login abandoned", logging.Err(err))
			return ctx.Err()
		}
		e.setState(LoginFailed)
		log.Warn("login failed", logging.Err(err))
		e.notify(Event{Type: EventLoginFailed, Err: err})
		return opErr("login", model.Identity{}, ErrAuthenticationFailed, err)
	}

	e.setState(LoggedIn)
	log.Info("logged in", "user", e.opts.Username)
	e.notify(Event{Type: EventLoginSucceeded})
	e.startStructureLoad()
	return nil
}

// remote runs a wiki call after ensuring login. If the server reports that
// the session is gone, the engine logs in again and issues the call once
// more.
func remote[T any](ctx context.Context, e *Engine, call func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := e.ensureLogin(ctx); err != nil {
		return zero, err
	}
	v, err := call(ctx)
	if err == nil || !errors.Is(err, wiki.ErrNotLoggedIn) {
		return v, err
	}

	logging.WithContext(ctx).Info("session expired, logging in again")
	e.setState(LoggedOut)
	if err := e.ensureLogin(ctx); err != nil {
		return zero, err
	}
	return call(ctx)
}

func remoteDo(ctx context.Context, e *Engine, call func(context.Context) error) error {
	_, err := remote(ctx, e, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, call(ctx)
	})
	return err
}

// structureLoad is one attempt at fetching the page tree. err is set before
// done is closed.
type structureLoad struct {
	done chan struct{}
	err  error
}

// startStructureLoad returns the structure load in flight or already
// finished, starting one in the background if there is none. A failed load
// is forgotten so the next call tries again.
func (e *Engine) startStructureLoad() *structureLoad {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loading != nil {
		return e.loading
	}
	load := &structureLoad{done: make(chan struct{})}
	e.loading = load

	background(e.baseCtx, e, func(ctx context.Context) (struct{}, error) {
		err := e.loadStructure(ctx)
		e.mu.Lock()
		load.err = err
		if err != nil && e.loading == load {
			e.loading = nil
		}
		e.mu.Unlock()
		close(load.done)
		return struct{}{}, err
	})
	return load
}

func (e *Engine) loadStructure(ctx context.Context) error {
	defer logging.Timer("load structure")()

	spaces, err := remote(ctx, e, e.client.GetSpacesNames)
	if err != nil {
		err = remoteErr("load structure", model.Identity{}, err)
		logging.Error("failed to load spaces", logging.Err(err))
		e.notify(Event{Type: EventStructureLoaded, Err: err})
		return err
	}
	spaces = slices.Clone(spaces)
	slices.Sort(spaces)

	pages := make([][]string, len(spaces))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listingConcurrency)
	for i, space := range spaces {
		g.Go(func() error {
			names, err := remote(gctx, e, func(ctx context.Context) ([]string, error) {
				return e.client.GetPagesNames(ctx, space)
			})
			if err != nil {
				return err
			}
			pages[i] = names
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		err = remoteErr("load structure", model.Identity{}, err)
		logging.Error("failed to load pages", logging.Err(err))
		e.notify(Event{Type: EventStructureLoaded, Err: err})
		return err
	}

	e.structure.AddSpaces(spaces...)
	for i, space := range spaces {
		e.structure.AddDocuments(space, pages[i]...)
	}
	pruned := e.opts.Protected.Prune(e.structure)
	e.opts.Hidden.HideSpaces(e.structure)

	docs := len(e.structure.Documents())
	logging.Info("structure loaded", "spaces", len(spaces), logging.Count(docs), "pruned", pruned)
	e.notify(Event{Type: EventStructureLoaded, Documents: docs})
	return nil
}

// Structure logs in if needed, waits for the page tree and returns a copy
// of it.
func (e *Engine) Structure(ctx context.Context) ([]model.Space, error) {
	if err := e.ensureLogin(ctx); err != nil {
		return nil, err
	}
	load := e.startStructureLoad()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-load.done:
	}
	e.mu.RLock()
	err := load.err
	e.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return e.structure.Spaces(), nil
}
