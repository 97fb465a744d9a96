package registry

import (
	"errors"
	"testing"

	"github.com/klauern/wikisync/internal/model"
)

var (
	home = model.Identity{Space: "Main", Name: "WebHome"}
	post = model.Identity{Space: "Blog", Name: "Post1"}
)

func TestTrackRejectsSecondPathForSameIdentity(t *testing.T) {
	r := New()
	if _, err := r.Track("/tmp/a.html", home); err != nil {
		t.Fatalf("Track() unexpected error: %v", err)
	}

	_, err := r.Track("/tmp/b.html", home)
	if !errors.Is(err, ErrAlreadyOpen) {
		t.Fatalf("Track() error = %v, want ErrAlreadyOpen", err)
	}
	if !r.IsOpen(home) {
		t.Error("identity should be open")
	}
	if _, ok := r.Lookup("/tmp/b.html"); ok {
		t.Error("rejected path must not be tracked")
	}
}

func TestTrackRejectsSamePathForDifferentIdentity(t *testing.T) {
	r := New()
	gen, err := r.Track("/tmp/a.html", home)
	if err != nil {
		t.Fatalf("Track() unexpected error: %v", err)
	}

	_, err = r.Track("/tmp/a.html", post)
	if !errors.Is(err, ErrPathInUse) {
		t.Fatalf("Track() error = %v, want ErrPathInUse", err)
	}
	if id, _ := r.Identity("/tmp/a.html"); id != home {
		t.Errorf("path rebound to %s, want %s", id, home)
	}
	if !r.Tracked("/tmp/a.html", gen) {
		t.Error("original binding should keep its generation")
	}
	if r.IsOpen(post) {
		t.Error("rejected identity must not be open")
	}
}

func TestTrackSamePathBumpsGeneration(t *testing.T) {
	r := New()
	g1, _ := r.Track("/tmp/a.html", home)
	g2, err := r.Track("/tmp/a.html", home)
	if err != nil {
		t.Fatalf("retracking same path: %v", err)
	}
	if g2 == g1 {
		t.Error("generation should change on retrack")
	}
	if r.Tracked("/tmp/a.html", g1) {
		t.Error("stale generation should not be tracked")
	}
	if !r.Tracked("/tmp/a.html", g2) {
		t.Error("current generation should be tracked")
	}
	if n := len(r.Entries()); n != 1 {
		t.Errorf("expected 1 entry, got %d", n)
	}
}

func TestUntrack(t *testing.T) {
	r := New()
	gen, _ := r.Track("/tmp/a.html", home)
	_, _ = r.Track("/tmp/b.html", post)

	id, ok := r.Untrack("/tmp/a.html")
	if !ok || id != home {
		t.Fatalf("Untrack() = %v, %v", id, ok)
	}
	if r.IsOpen(home) || r.Tracked("/tmp/a.html", gen) {
		t.Error("untracked document should be gone")
	}
	if _, ok := r.Untrack("/tmp/a.html"); ok {
		t.Error("second Untrack should report false")
	}

	// A closed identity can be opened again from another path.
	if _, err := r.Track("/tmp/c.html", home); err != nil {
		t.Errorf("reopen after close: %v", err)
	}
}

func TestEntriesKeepInsertionOrder(t *testing.T) {
	r := New()
	_, _ = r.Track("/z.html", home)
	_, _ = r.Track("/a.html", post)

	entries := r.Entries()
	if len(entries) != 2 || entries[0].Path != "/z.html" || entries[1].Path != "/a.html" {
		t.Errorf("unexpected order: %+v", entries)
	}
	if p, ok := r.PathOf(post); !ok || p != "/a.html" {
		t.Errorf("PathOf(post) = %q, %v", p, ok)
	}
	if id, ok := r.Identity("/z.html"); !ok || id != home {
		t.Errorf("Identity(/z.html) = %v, %v", id, ok)
	}
}

func TestPublishedStatus(t *testing.T) {
	r := New()
	if r.IsPublished(home) || r.Known(home) {
		t.Error("unknown identity should be unpublished and unknown")
	}

	r.SetPublished(home, false)
	if !r.Known(home) || r.IsPublished(home) {
		t.Error("expected known and unpublished")
	}
	r.SetPublished(home, true)
	if !r.IsPublished(home) {
		t.Error("expected published")
	}

	// Closing the document keeps its publication state.
	_, _ = r.Track("/a.html", home)
	r.Untrack("/a.html")
	if !r.IsPublished(home) {
		t.Error("publication state must survive close")
	}

	snap := r.Published()
	snap[post] = true
	if r.Known(post) {
		t.Error("Published() must return a copy")
	}
}
