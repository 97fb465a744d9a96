package convert

import (
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Filter is a pure transform applied to exported local content before it is
// converted for the wiki.
type Filter func(string) string

// DefaultPipeline is the order in which exported content is cleaned.
var DefaultPipeline = []Filter{StripComments, StripHead, ExtractBody}

// Apply runs content through filters in order.
func Apply(content string, filters ...Filter) string {
	for _, f := range filters {
		content = f(content)
	}
	return content
}

// StripComments removes HTML comments, including conditional comments.
func StripComments(content string) string {
	return filterTokens(content, func(tt html.TokenType, _ atom.Atom) bool {
		return tt != html.CommentToken
	})
}

// StripHead removes the head element and everything inside it.
func StripHead(content string) string {
	depth := 0
	return filterTokens(content, func(tt html.TokenType, a atom.Atom) bool {
		switch {
		case tt == html.StartTagToken && a == atom.Head:
			depth++
			return false
		case tt == html.EndTagToken && a == atom.Head && depth > 0:
			depth--
			return false
		}
		return depth == 0
	})
}

// ExtractBody keeps only the content between the body tags. Content without
// a body element is returned unchanged.
func ExtractBody(content string) string {
	z := html.NewTokenizer(strings.NewReader(content))
	var b strings.Builder
	inBody, found := false, false
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := string(z.Raw())
		var a atom.Atom
		if tt == html.StartTagToken || tt == html.EndTagToken {
			name, _ := z.TagName()
			a = atom.Lookup(name)
		}
		switch {
		case tt == html.StartTagToken && a == atom.Body && !found:
			inBody, found = true, true
			continue
		case tt == html.EndTagToken && a == atom.Body && inBody:
			inBody = false
			continue
		}
		if inBody {
			b.WriteString(raw)
		}
	}
	if !found {
		return content
	}
	return b.String()
}

// filterTokens copies the raw text of every token for which keep returns
// true. Tokenizer errors other than EOF leave content unchanged.
func filterTokens(content string, keep func(html.TokenType, atom.Atom) bool) string {
	z := html.NewTokenizer(strings.NewReader(content))
	var b strings.Builder
	b.Grow(len(content))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); err != nil && !errors.Is(err, io.EOF) {
				return content
			}
			return b.String()
		}
		raw := string(z.Raw())
		var a atom.Atom
		if tt == html.StartTagToken || tt == html.EndTagToken || tt == html.SelfClosingTagToken {
			name, _ := z.TagName()
			a = atom.Lookup(name)
		}
		if keep(tt, a) {
			b.WriteString(raw)
		}
	}
}
