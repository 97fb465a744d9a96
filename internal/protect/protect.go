// Package protect decides which wiki documents must not be edited locally.
//
// A document is protected when its "Space.Page" full name matches one of a
// list of wildcard patterns. In a pattern "*" matches any run of characters
// and "?" matches exactly one character; every other character is literal.
// Patterns match the whole name, so a pattern without wildcards only
// protects the exact name it spells.
package protect

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/klauern/wikisync/internal/logging"
	"github.com/klauern/wikisync/internal/model"
)

// DefaultPatterns protects the spaces that carry server-side scripting.
var DefaultPatterns = []string{
	"XWiki.*",
	"Panels.*",
	"Scheduler.*",
	"Stats.*",
	"AnnotationCode.*",
	"ColorThemes.*",
}

// compile turns a wildcard pattern into a glob in which only "*" and "?" are
// special.
func compile(pattern string, caseSensitive bool) (glob.Glob, error) {
	if !caseSensitive {
		pattern = strings.ToLower(pattern)
	}
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*', '?':
			b.WriteRune(r)
		default:
			b.WriteString(glob.QuoteMeta(string(r)))
		}
	}
	g, err := glob.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}
	return g, nil
}

// IsProtectedPage reports whether fullName matches pattern. An invalid
// pattern never matches.
func IsProtectedPage(pattern, fullName string, caseSensitive bool) bool {
	g, err := compile(pattern, caseSensitive)
	if err != nil {
		return false
	}
	if !caseSensitive {
		fullName = strings.ToLower(fullName)
	}
	return g.Match(fullName)
}

// Policy is a compiled list of protection patterns.
type Policy struct {
	patterns      []string
	globs         []glob.Glob
	caseSensitive bool
}

// NewPolicy compiles patterns. Empty patterns are skipped.
func NewPolicy(patterns []string, caseSensitive bool) (*Policy, error) {
	p := &Policy{caseSensitive: caseSensitive}
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		g, err := compile(pattern, caseSensitive)
		if err != nil {
			return nil, err
		}
		p.patterns = append(p.patterns, pattern)
		p.globs = append(p.globs, g)
	}
	return p, nil
}

// Patterns returns the patterns the policy was built from.
func (p *Policy) Patterns() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.patterns...)
}

// Matches reports whether name matches any pattern of the policy.
func (p *Policy) Matches(name string) bool {
	if p == nil {
		return false
	}
	if !p.caseSensitive {
		name = strings.ToLower(name)
	}
	for _, g := range p.globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// IsProtected reports whether the document is protected. A nil policy
// protects nothing.
func (p *Policy) IsProtected(id model.Identity) bool {
	return p.Matches(id.String())
}

// Prune removes every protected document from the structure and returns the
// number removed.
func (p *Policy) Prune(w *model.WikiStructure) int {
	if p == nil || len(p.globs) == 0 {
		return 0
	}
	n := w.RemoveMatching(p.IsProtected)
	if n > 0 {
		logging.Debug("pruned protected pages", logging.Count(n))
	}
	return n
}

// HideSpaces marks every space whose name matches the policy as hidden.
func (p *Policy) HideSpaces(w *model.WikiStructure) {
	if p == nil {
		return
	}
	w.SetHidden(p.Matches)
}
