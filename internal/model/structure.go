package model

import (
	"slices"
	"sync"
)

// DocumentRef is a page entry of the wiki tree.
type DocumentRef struct {
	Name      string `json:"name"`
	Space     string `json:"space"`
	Published bool   `json:"published"`
}

// Identity returns the identity of the referenced document.
func (d DocumentRef) Identity() Identity {
	return Identity{Space: d.Space, Name: d.Name}
}

// Space is a wiki space and the pages known in it.
type Space struct {
	Name      string        `json:"name"`
	Hidden    bool          `json:"hidden"`
	Published bool          `json:"published"`
	Documents []DocumentRef `json:"documents"`
}

func (s *Space) indexOf(name string) int {
	return slices.IndexFunc(s.Documents, func(d DocumentRef) bool { return d.Name == name })
}

// WikiStructure mirrors the remote namespace: an ordered list of spaces, each
// with an ordered list of pages. It never performs I/O. All methods are safe
// for concurrent use.
type WikiStructure struct {
	mu     sync.RWMutex
	spaces []*Space
}

// NewWikiStructure returns an empty structure.
func NewWikiStructure() *WikiStructure {
	return &WikiStructure{}
}

func (w *WikiStructure) find(name string) *Space {
	for _, sp := range w.spaces {
		if sp.Name == name {
			return sp
		}
	}
	return nil
}

func (w *WikiStructure) ensureSpace(name string, published bool) *Space {
	if sp := w.find(name); sp != nil {
		return sp
	}
	sp := &Space{Name: name, Published: published}
	w.spaces = append(w.spaces, sp)
	return sp
}

// AddSpaces appends spaces fetched from the server, skipping names that are
// already present. Spaces fetched from the server are published.
func (w *WikiStructure) AddSpaces(names ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, name := range names {
		w.ensureSpace(name, true)
	}
}

// AddDocuments appends server pages to a space, creating the space when it is
// missing and skipping page names already present.
func (w *WikiStructure) AddDocuments(space string, names ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	sp := w.ensureSpace(space, true)
	for _, name := range names {
		if sp.indexOf(name) >= 0 {
			continue
		}
		sp.Documents = append(sp.Documents, DocumentRef{Name: name, Space: space, Published: true})
	}
}

// AddDocument inserts a single page with the given publication flag. A space
// created for it shares the flag. Returns false if the page already exists.
func (w *WikiStructure) AddDocument(id Identity, published bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	sp := w.ensureSpace(id.Space, published)
	if sp.indexOf(id.Name) >= 0 {
		return false
	}
	sp.Documents = append(sp.Documents, DocumentRef{Name: id.Name, Space: id.Space, Published: published})
	return true
}

// MarkPublished flags the page and its space as published, inserting either
// one if it is not in the tree yet.
func (w *WikiStructure) MarkPublished(id Identity) {
	w.mu.Lock()
	defer w.mu.Unlock()
	sp := w.ensureSpace(id.Space, true)
	sp.Published = true
	if i := sp.indexOf(id.Name); i >= 0 {
		sp.Documents[i].Published = true
		return
	}
	sp.Documents = append(sp.Documents, DocumentRef{Name: id.Name, Space: id.Space, Published: true})
}

// RemoveDocument removes the first page matching id from its owning space.
func (w *WikiStructure) RemoveDocument(id Identity) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	sp := w.find(id.Space)
	if sp == nil {
		return false
	}
	i := sp.indexOf(id.Name)
	if i < 0 {
		return false
	}
	sp.Documents = slices.Delete(sp.Documents, i, i+1)
	return true
}

// RemoveMatching removes every page for which match returns true and reports
// how many were removed.
func (w *WikiStructure) RemoveMatching(match func(Identity) bool) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	removed := 0
	for _, sp := range w.spaces {
		before := len(sp.Documents)
		sp.Documents = slices.DeleteFunc(sp.Documents, func(d DocumentRef) bool {
			return match(d.Identity())
		})
		removed += before - len(sp.Documents)
	}
	return removed
}

// SetHidden sets the hidden flag of every space for which match returns true.
func (w *WikiStructure) SetHidden(match func(space string) bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sp := range w.spaces {
		sp.Hidden = match(sp.Name)
	}
}

// Document looks up a page.
func (w *WikiStructure) Document(id Identity) (DocumentRef, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	sp := w.find(id.Space)
	if sp == nil {
		return DocumentRef{}, false
	}
	if i := sp.indexOf(id.Name); i >= 0 {
		return sp.Documents[i], true
	}
	return DocumentRef{}, false
}

// Contains reports whether the page is in the tree.
func (w *WikiStructure) Contains(id Identity) bool {
	_, ok := w.Document(id)
	return ok
}

// Spaces returns a deep copy of the tree, in order.
func (w *WikiStructure) Spaces() []Space {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Space, 0, len(w.spaces))
	for _, sp := range w.spaces {
		cp := *sp
		cp.Documents = slices.Clone(sp.Documents)
		out = append(out, cp)
	}
	return out
}

// SpaceNames returns the names of all spaces, in order.
func (w *WikiStructure) SpaceNames() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	names := make([]string, 0, len(w.spaces))
	for _, sp := range w.spaces {
		names = append(names, sp.Name)
	}
	return names
}

// Documents returns every page of every space.
func (w *WikiStructure) Documents() []DocumentRef {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var docs []DocumentRef
	for _, sp := range w.spaces {
		docs = append(docs, sp.Documents...)
	}
	return docs
}

// Len returns the number of spaces.
func (w *WikiStructure) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.spaces)
}
