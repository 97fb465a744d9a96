// Package convert transforms page content between the form served by the
// wiki and the form edited locally.
//
// Each document gets its own Converter, which knows the document's
// attachment URLs and the folder its resources live in locally. A Cache
// holds one Converter per document for the lifetime of the process.
package convert

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/klauern/wikisync/internal/model"
)

// ErrConversion is returned when content cannot be tokenized.
var ErrConversion = errors.New("conversion failed")

// ResourceDirSuffix is appended to the local file base name to form the
// folder holding a page's resources.
const ResourceDirSuffix = "_files"

// linkAttrs are the attributes that may reference an attachment.
var linkAttrs = map[string]bool{"src": true, "href": true}

// Resource is an attachment referenced by a page.
type Resource struct {
	// Name is the attachment file name on the server.
	Name string `json:"name"`
	// Local is the link used in the local copy, relative to the page file.
	Local string `json:"local"`
}

// Converter rewrites the resource links of one document. It remembers every
// remote link it rewrote so the way back restores the exact original text.
type Converter struct {
	id          model.Identity
	remoteAbs   string
	remotePath  string
	localPrefix string

	mu        sync.Mutex
	toRemote  map[string]string
	resources []Resource
}

// NewConverter builds the handle for id. serverURL may be empty, in which
// case only path-only attachment links are recognized.
func NewConverter(id model.Identity, serverURL string) *Converter {
	segment := "/bin/download/" + url.PathEscape(id.Space) + "/" + url.PathEscape(id.Name) + "/"
	c := &Converter{
		id:          id,
		remotePath:  segment,
		localPrefix: id.LocalFileName() + ResourceDirSuffix + "/",
		toRemote:    make(map[string]string),
	}
	if base := strings.TrimRight(serverURL, "/"); base != "" {
		c.remoteAbs = base + segment
		if u, err := url.Parse(base); err == nil {
			c.remotePath = strings.TrimRight(u.Path, "/") + segment
		}
	}
	return c
}

// Identity returns the document the handle belongs to.
func (c *Converter) Identity() model.Identity {
	return c.id
}

// ResourceDir returns the folder name, relative to the page file, that holds
// local copies of the page's attachments.
func (c *Converter) ResourceDir() string {
	return strings.TrimSuffix(c.localPrefix, "/")
}

// Resources returns the attachments seen so far in remote content.
func (c *Converter) Resources() []Resource {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Resource(nil), c.resources...)
}

// RemoteToLocal rewrites attachment links to the local resource folder.
func (c *Converter) RemoteToLocal(content string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return rewriteLinks(content, func(val string) (string, bool) {
		return c.localize(val)
	})
}

// LocalToRemote restores the links rewritten by RemoteToLocal. Links into the
// resource folder that the server never served are pointed at the page's
// attachment URL, on the assumption that they are uploaded with the page.
func (c *Converter) LocalToRemote(content string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return rewriteLinks(content, func(val string) (string, bool) {
		if orig, ok := c.toRemote[val]; ok {
			return orig, true
		}
		if rest, ok := strings.CutPrefix(val, c.localPrefix); ok && rest != "" && !strings.Contains(rest, "/") {
			return c.remoteBase() + rest, true
		}
		return "", false
	})
}

// LocalResources lists the links into the resource folder that do not come
// from the server.
func (c *Converter) LocalResources(content string) ([]Resource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Resource
	seen := make(map[string]bool)
	_, err := rewriteLinks(content, func(val string) (string, bool) {
		if _, known := c.toRemote[val]; known || seen[val] {
			return "", false
		}
		rest, ok := strings.CutPrefix(val, c.localPrefix)
		if !ok || rest == "" || strings.Contains(rest, "/") {
			return "", false
		}
		name, err := url.PathUnescape(stripQuery(rest))
		if err != nil {
			return "", false
		}
		seen[val] = true
		out = append(out, Resource{Name: name, Local: val})
		return "", false
	})
	return out, err
}

func (c *Converter) remoteBase() string {
	if c.remoteAbs != "" {
		return c.remoteAbs
	}
	return c.remotePath
}

// localize maps a remote attachment link to its local form and records the
// mapping. Links that would collide with a different original are left alone.
func (c *Converter) localize(val string) (string, bool) {
	rest, ok := c.cutRemote(val)
	if !ok || rest == "" {
		return "", false
	}
	file := stripQuery(rest)
	if file == "" || strings.Contains(file, "/") {
		return "", false
	}
	name, err := url.PathUnescape(file)
	if err != nil {
		return "", false
	}

	for _, local := range []string{c.localPrefix + file, c.localPrefix + rest} {
		orig, exists := c.toRemote[local]
		if exists && orig != val {
			continue
		}
		if !exists {
			c.toRemote[local] = val
			c.addResource(Resource{Name: name, Local: c.localPrefix + file})
		}
		return local, true
	}
	return "", false
}

func (c *Converter) cutRemote(val string) (string, bool) {
	if c.remoteAbs != "" {
		if rest, ok := strings.CutPrefix(val, c.remoteAbs); ok {
			return rest, true
		}
	}
	return strings.CutPrefix(val, c.remotePath)
}

func (c *Converter) addResource(r Resource) {
	for _, existing := range c.resources {
		if existing.Name == r.Name {
			return
		}
	}
	c.resources = append(c.resources, r)
}

func stripQuery(s string) string {
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		return s[:i]
	}
	return s
}

// rewriteLinks copies content token by token, replacing the value of link
// attributes for which fn returns a replacement. Every other byte is copied
// from the tokenizer's raw text, so untouched content is preserved exactly.
func rewriteLinks(content string, fn func(val string) (string, bool)) (string, error) {
	z := html.NewTokenizer(strings.NewReader(content))
	var b strings.Builder
	b.Grow(len(content))

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); err != nil && !errors.Is(err, io.EOF) {
				return "", fmt.Errorf("%w: %w", ErrConversion, err)
			}
			return b.String(), nil
		}
		// Raw must be copied before Token, which lowercases and unescapes the
		// tokenizer buffer in place.
		raw := string(z.Raw())
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			b.WriteString(raw)
			continue
		}
		tok := z.Token()
		for _, attr := range tok.Attr {
			if !linkAttrs[attr.Key] {
				continue
			}
			i := attrValueIndex(raw, attr.Key, attr.Val)
			if i < 0 {
				continue
			}
			if replacement, ok := fn(attr.Val); ok {
				raw = raw[:i] + replacement + raw[i+len(attr.Val):]
			}
		}
		b.WriteString(raw)
	}
}

// attrValueIndex returns the position of the literal value of attribute key
// inside a raw tag, or -1. A value that only appears entity-escaped in raw is
// not found.
func attrValueIndex(raw, key, val string) int {
	if val == "" {
		return -1
	}
	from := 0
	for {
		i := strings.Index(raw[from:], val)
		if i < 0 {
			return -1
		}
		i += from
		if attrValueStartsAt(raw, key, i) {
			return i
		}
		from = i + 1
	}
}

// attrValueStartsAt reports whether position i of raw is the start of the
// value of attribute key, as in key="..", key='..' or key=...
func attrValueStartsAt(raw, key string, i int) bool {
	j := i
	if j > 0 && (raw[j-1] == '"' || raw[j-1] == '\'') {
		j--
	}
	j = skipSpaceBack(raw, j)
	if j == 0 || raw[j-1] != '=' {
		return false
	}
	j = skipSpaceBack(raw, j-1)
	if j < len(key) || !strings.EqualFold(raw[j-len(key):j], key) {
		return false
	}
	k := j - len(key)
	return k > 0 && isSpace(raw[k-1])
}

func skipSpaceBack(s string, j int) int {
	for j > 0 && isSpace(s[j-1]) {
		j--
	}
	return j
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}
