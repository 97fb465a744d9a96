package engine

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/klauern/wikisync/internal/convert"
	"github.com/klauern/wikisync/internal/logging"
	"github.com/klauern/wikisync/internal/model"
	"github.com/klauern/wikisync/internal/wiki"
)

// Placeholder is the body of a newly created page.
const Placeholder = "Hi! This is your new page. Please put your content here and then share it with others by saving it on the wiki."

// resourceConcurrency bounds parallel resource downloads on open.
const resourceConcurrency = 4

// LocalHandle is a local file bound to a wiki document.
type LocalHandle struct {
	Path      string         `json:"path"`
	Identity  model.Identity `json:"identity"`
	Published bool           `json:"published"`
}

// Skeleton returns the local document written for a new page.
func Skeleton(title, body string) string {
	if body == "" {
		body = "<p>" + html.EscapeString(Placeholder) + "</p>"
	}
	return wrapDocument(title, "<h1>"+html.EscapeString(title)+"</h1>\n"+body)
}

// wrapDocument turns a body fragment into the standalone HTML file the user
// edits. The save pipeline strips everything but the body again.
func wrapDocument(title, body string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>")
	b.WriteString(html.EscapeString(title))
	b.WriteString("</title>\n</head>\n<body>")
	b.WriteString(body)
	b.WriteString("</body>\n</html>\n")
	return b.String()
}

// CreateDocument writes a new local page for space.name with title as its
// heading and opens it. Nothing is written to the wiki until the first save.
func (e *Engine) CreateDocument(ctx context.Context, space, name, title string) (LocalHandle, error) {
	return e.CreateDocumentWithBody(ctx, space, name, title, "")
}

// CreateDocumentWithBody is CreateDocument with the given HTML body in place
// of the placeholder paragraph.
func (e *Engine) CreateDocumentWithBody(ctx context.Context, space, name, title, body string) (LocalHandle, error) {
	const op = "create"
	id, err := model.NewIdentity(space, name)
	if err != nil {
		return LocalHandle{}, opErr(op, model.Identity{Space: space, Name: name}, ErrInvalidIdentity, err)
	}
	log := logging.WithContext(ctx).With(logging.Operation(op), logging.Identity(id.String()))

	if e.registry.IsOpen(id) {
		return LocalHandle{}, opErr(op, id, ErrAlreadyOpen, nil)
	}
	if e.IsProtected(id) {
		return LocalHandle{}, opErr(op, id, ErrProtectedDocument, nil)
	}
	if err := e.ensureLogin(ctx); err != nil {
		log.Warn("cannot create page without a session", logging.Err(err))
		return LocalHandle{}, opErr(op, id, ErrInvalidIdentity, err)
	}
	if title == "" {
		title = name
	}

	path := e.LocalPath(id)
	gen, err := e.registry.Track(path, id)
	if err != nil {
		return LocalHandle{}, opErr(op, id, ErrAlreadyOpen, err)
	}
	if err := writeFileAtomic(path, []byte(Skeleton(title, body)), 0o644); err != nil {
		e.untrackIf(path, gen)
		return LocalHandle{}, opErr(op, id, ErrTransport, fmt.Errorf("write %s: %w", path, err))
	}
	// A page saved earlier in the session stays published.
	if !e.registry.Known(id) {
		e.registry.SetPublished(id, false)
	}
	published := e.registry.IsPublished(id)
	e.structure.AddDocument(id, published)
	e.setCurrent(path, id, published)
	log.Info("created page", logging.Path(path))

	h := LocalHandle{Path: path, Identity: id, Published: published}
	return h, e.openInEditor(ctx, op, h)
}

// OpenDocument fetches id from the wiki, writes it locally and opens it.
func (e *Engine) OpenDocument(ctx context.Context, id model.Identity) (LocalHandle, error) {
	const op = "open"
	defer logging.Timer(op)()
	if err := id.Validate(); err != nil {
		return LocalHandle{}, opErr(op, id, ErrInvalidIdentity, err)
	}
	if e.registry.IsOpen(id) {
		return LocalHandle{}, opErr(op, id, ErrAlreadyOpen, nil)
	}
	if e.IsProtected(id) {
		return LocalHandle{}, opErr(op, id, ErrProtectedDocument, nil)
	}
	log := logging.WithContext(ctx).With(logging.Operation(op), logging.Identity(id.String()))

	unlock := e.locks.Lock(id)
	defer unlock()

	// The path is tracked for the duration of the fetch so a second open of
	// the same page is rejected, and so a close during the fetch is visible.
	path := e.LocalPath(id)
	gen, err := e.registry.Track(path, id)
	if err != nil {
		return LocalHandle{}, opErr(op, id, ErrAlreadyOpen, err)
	}
	fail := func(err error) (LocalHandle, error) {
		e.untrackIf(path, gen)
		log.Warn("open failed", logging.Err(err))
		return LocalHandle{}, err
	}

	content, err := remote(ctx, e, func(ctx context.Context) (string, error) {
		return e.client.GetRenderedPageContent(ctx, id)
	})
	if err != nil {
		return fail(remoteErr(op, id, err))
	}
	if serverErr := wiki.ClassifyResponse(content); serverErr != nil {
		return fail(opErr(op, id, ErrTransport, serverErr))
	}
	local, err := e.cache.ConvertRemoteToLocal(id, content)
	if err != nil {
		return fail(conversionErr(op, id, err))
	}

	if !e.registry.Tracked(path, gen) {
		log.Debug("document closed during open, discarding result")
		return LocalHandle{}, opErr(op, id, ErrDocumentClosed, nil)
	}
	if err := writeFileAtomic(path, []byte(wrapDocument(id.String(), local)), 0o644); err != nil {
		return fail(opErr(op, id, ErrTransport, fmt.Errorf("write %s: %w", path, err)))
	}
	if e.opts.DownloadResources {
		e.downloadResources(ctx, id, filepath.Dir(path))
	}
	if !e.registry.Tracked(path, gen) {
		log.Debug("document closed during open, discarding result")
		return LocalHandle{}, opErr(op, id, ErrDocumentClosed, nil)
	}

	e.registry.SetPublished(id, true)
	e.setCurrent(path, id, true)
	log.Info("opened page", logging.Path(path))

	h := LocalHandle{Path: path, Identity: id, Published: true}
	return h, e.openInEditor(ctx, op, h)
}

// Preview returns the rendered content of id without opening it.
func (e *Engine) Preview(ctx context.Context, id model.Identity) (string, error) {
	const op = "preview"
	if err := id.Validate(); err != nil {
		return "", opErr(op, id, ErrInvalidIdentity, err)
	}
	if e.IsProtected(id) {
		return "", opErr(op, id, ErrProtectedDocument, nil)
	}
	content, err := remote(ctx, e, func(ctx context.Context) (string, error) {
		return e.client.GetRenderedPageContent(ctx, id)
	})
	if err != nil {
		return "", remoteErr(op, id, err)
	}
	if serverErr := wiki.ClassifyResponse(content); serverErr != nil {
		return "", opErr(op, id, ErrTransport, serverErr)
	}
	return content, nil
}

// SaveCurrentDocument saves the active document to the wiki.
func (e *Engine) SaveCurrentDocument(ctx context.Context) error {
	s := e.Session()
	if !s.HasDocument() {
		return opErr("save", model.Identity{}, ErrNoCurrentDocument, nil)
	}
	return e.SaveDocument(ctx, s.LocalPath)
}

// SaveDocument saves the local document at path to the page it is bound to.
// Saves of the same page run one at a time. On failure no state changes.
func (e *Engine) SaveDocument(ctx context.Context, path string) error {
	const op = "save"
	defer logging.Timer(op)()
	entry, ok := e.registry.Lookup(path)
	if !ok {
		return opErr(op, model.Identity{}, ErrNoCurrentDocument, fmt.Errorf("%s is not a wiki page", path))
	}
	id := entry.Identity
	log := logging.WithContext(ctx).With(logging.Operation(op), logging.Identity(id.String()))

	unlock := e.locks.Lock(id)
	defer unlock()

	exported, err := e.export(ctx, path)
	if err != nil {
		return opErr(op, id, ErrSaveFailed, err)
	}
	content := convert.Apply(exported, convert.DefaultPipeline...)

	if e.opts.UploadLocalResources {
		if err := e.uploadLocalResources(ctx, id, filepath.Dir(path), content); err != nil {
			log.Warn("resource upload failed", logging.Err(err))
			return opErr(op, id, ErrSaveFailed, err)
		}
	}

	remoteContent, err := e.cache.ConvertLocalToRemote(id, content)
	if err != nil {
		return conversionErr(op, id, err)
	}
	remoteContent, err = convert.Reencode(remoteContent, e.opts.Charset)
	if err != nil {
		return conversionErr(op, id, err)
	}

	err = remoteDo(ctx, e, func(ctx context.Context) error {
		return e.client.SavePageContent(ctx, id, remoteContent, e.opts.Syntax)
	})
	if err != nil {
		log.Warn("save failed", logging.Err(err))
		return opErr(op, id, ErrSaveFailed, remoteErr(op, id, err))
	}

	if !e.registry.Tracked(path, entry.Generation) {
		log.Debug("document closed during save, discarding state update")
		return nil
	}
	e.registry.SetPublished(id, true)
	e.structure.MarkPublished(id)
	e.mu.Lock()
	if e.session.Identity == id {
		e.session.Published = true
	}
	e.mu.Unlock()
	log.Info("saved page", logging.Path(path))
	return nil
}

// export returns the content of the document at path as seen by the editor.
func (e *Engine) export(ctx context.Context, path string) (string, error) {
	if e.opts.Editor == nil {
		// #nosec G304 - path is a tracked document
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		return string(data), nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "_TempExport-*.html")
	if err != nil {
		return "", fmt.Errorf("create shadow copy: %w", err)
	}
	shadow := tmp.Name()
	_ = tmp.Close()
	// Best effort: a leftover shadow copy is harmless.
	defer func() { _ = os.Remove(shadow) }()

	if err := e.opts.Editor.ShadowCopy(ctx, path, shadow); err != nil {
		return "", opErr("export", model.Identity{}, ErrEditor, err)
	}
	// #nosec G304 - shadow is a temp file created above
	data, err := os.ReadFile(shadow)
	if err != nil {
		return "", fmt.Errorf("read shadow copy: %w", err)
	}
	return string(data), nil
}

func (e *Engine) uploadLocalResources(ctx context.Context, id model.Identity, dir, content string) error {
	resources, err := e.cache.Handle(id).LocalResources(content)
	if err != nil {
		return err
	}
	for _, r := range resources {
		local, err := url.PathUnescape(r.Local)
		if err != nil {
			return fmt.Errorf("resource %s: %w", r.Local, err)
		}
		file := filepath.Join(dir, filepath.FromSlash(local))
		err = remoteDo(ctx, e, func(ctx context.Context) error {
			return e.client.AddAttachment(ctx, id.Space, id.Name, file)
		})
		if err != nil {
			return remoteErr("upload resource", id, err)
		}
		logging.Debug("uploaded resource", logging.Identity(id.String()), logging.Attachment(r.Name))
	}
	return nil
}

// downloadResources fetches the attachments referenced by the page into its
// resource folder. Failures only leave broken images behind, so they are
// logged and not returned.
func (e *Engine) downloadResources(ctx context.Context, id model.Identity, dir string) {
	resources := e.cache.Handle(id).Resources()
	if len(resources) == 0 {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resourceConcurrency)
	for _, r := range resources {
		g.Go(func() error {
			local, err := url.PathUnescape(r.Local)
			if err != nil {
				logging.Warn("bad resource link", logging.Attachment(r.Name), logging.Err(err))
				return nil
			}
			data, err := remote(gctx, e, func(ctx context.Context) ([]byte, error) {
				return e.client.GetAttachmentContent(ctx, id, r.Name)
			})
			if err != nil {
				logging.Warn("resource download failed", logging.Attachment(r.Name), logging.Err(err))
				return nil
			}
			if err := writeFileAtomic(filepath.Join(dir, filepath.FromSlash(local)), data, 0o644); err != nil {
				logging.Warn("resource write failed", logging.Attachment(r.Name), logging.Err(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Activate records that the document at path became the active one. It
// returns the identity bound to path, if any.
func (e *Engine) Activate(path string) (model.Identity, bool) {
	id, ok := e.registry.Identity(path)
	if !ok {
		e.mu.Lock()
		e.session.Identity = model.Identity{}
		e.session.LocalPath = path
		e.session.Published = false
		e.mu.Unlock()
		return model.Identity{}, false
	}
	e.setCurrent(path, id, e.registry.IsPublished(id))
	return id, true
}

// CloseDocument forgets the local document at path. Work still in flight
// for it completes without touching the registry.
func (e *Engine) CloseDocument(path string) bool {
	id, ok := e.registry.Untrack(path)
	if !ok {
		return false
	}
	e.mu.Lock()
	if e.session.LocalPath == path {
		e.session.Identity = model.Identity{}
		e.session.LocalPath = ""
		e.session.Published = false
	}
	e.mu.Unlock()
	logging.Debug("closed document", logging.Identity(id.String()), logging.Path(path))
	return true
}

// SyncPublishedStatus marks id published when the wiki structure lists it,
// loading the structure if needed.
func (e *Engine) SyncPublishedStatus(ctx context.Context, id model.Identity) (bool, error) {
	if e.registry.IsPublished(id) {
		return true, nil
	}
	if _, err := e.Structure(ctx); err != nil {
		return false, err
	}
	if doc, ok := e.structure.Document(id); ok && doc.Published {
		e.registry.SetPublished(id, true)
		return true, nil
	}
	return false, nil
}

func (e *Engine) setCurrent(path string, id model.Identity, published bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Identity = id
	e.session.LocalPath = path
	e.session.Published = published
}

func (e *Engine) untrackIf(path string, gen uint64) {
	if e.registry.Tracked(path, gen) {
		e.registry.Untrack(path)
	}
}

func (e *Engine) openInEditor(ctx context.Context, op string, h LocalHandle) error {
	if e.opts.Editor == nil {
		return nil
	}
	if err := e.opts.Editor.Open(ctx, h.Path); err != nil {
		return opErr(op, h.Identity, ErrEditor, err)
	}
	return nil
}
