// Package registry tracks which local files are bound to which remote
// documents and which documents have been published during the session.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/klauern/wikisync/internal/model"
)

// ErrAlreadyOpen is returned by Track when the identity is already bound to a
// different local path.
var ErrAlreadyOpen = errors.New("document already open")

// ErrPathInUse is returned by Track when the path is already bound to a
// different identity.
var ErrPathInUse = errors.New("local path already in use")

// Entry is one open local file and the document it edits.
type Entry struct {
	Path     string         `json:"path"`
	Identity model.Identity `json:"identity"`
	// Generation changes every time the path is (re)tracked. Background work
	// captures it to detect that the document was closed in the meantime.
	Generation uint64 `json:"generation"`
}

// Registry holds the EditedPages mapping (local path to identity, insertion
// ordered) and the PublishedStatus mapping. It never performs I/O.
type Registry struct {
	mu        sync.RWMutex
	order     []string
	edited    map[string]Entry
	published map[model.Identity]bool
	nextGen   uint64
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		edited:    make(map[string]Entry),
		published: make(map[model.Identity]bool),
	}
}

// Track binds path to id and returns the generation of the new binding.
// Rebinding the same path to the same identity is allowed.
func (r *Registry) Track(path string, id model.Identity) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.edited[path]; ok && e.Identity != id {
		return 0, fmt.Errorf("%w: %s is edited as %s", ErrPathInUse, path, e.Identity)
	}
	for p, e := range r.edited {
		if e.Identity == id && p != path {
			return 0, fmt.Errorf("%w: %s is edited in %s", ErrAlreadyOpen, id, p)
		}
	}
	if _, exists := r.edited[path]; !exists {
		r.order = append(r.order, path)
	}
	r.nextGen++
	r.edited[path] = Entry{Path: path, Identity: id, Generation: r.nextGen}
	return r.nextGen, nil
}

// Untrack removes the binding for path. It reports whether one existed.
func (r *Registry) Untrack(path string) (model.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.edited[path]
	if !ok {
		return model.Identity{}, false
	}
	delete(r.edited, path)
	r.order = slices.DeleteFunc(r.order, func(p string) bool { return p == path })
	return e.Identity, true
}

// Tracked reports whether path is still bound with the given generation.
func (r *Registry) Tracked(path string, gen uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.edited[path]
	return ok && e.Generation == gen
}

// Lookup returns the entry bound to path.
func (r *Registry) Lookup(path string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.edited[path]
	return e, ok
}

// Identity returns the identity bound to path.
func (r *Registry) Identity(path string) (model.Identity, bool) {
	e, ok := r.Lookup(path)
	return e.Identity, ok
}

// PathOf returns the local path currently editing id.
func (r *Registry) PathOf(id model.Identity) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.order {
		if r.edited[p].Identity == id {
			return p, true
		}
	}
	return "", false
}

// IsOpen reports whether id appears as a value in EditedPages.
func (r *Registry) IsOpen(id model.Identity) bool {
	_, ok := r.PathOf(id)
	return ok
}

// Entries returns the open documents in the order they were opened.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.order))
	for _, p := range r.order {
		out = append(out, r.edited[p])
	}
	return out
}

// SetPublished records the publication state of id. Entries are never removed.
func (r *Registry) SetPublished(id model.Identity, published bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published[id] = published
}

// IsPublished reports the recorded publication state of id.
func (r *Registry) IsPublished(id model.Identity) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.published[id]
}

// Known reports whether a publication state was ever recorded for id.
func (r *Registry) Known(id model.Identity) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.published[id]
	return ok
}

// Published returns a copy of the PublishedStatus mapping.
func (r *Registry) Published() map[model.Identity]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[model.Identity]bool, len(r.published))
	for k, v := range r.published {
		out[k] = v
	}
	return out
}
