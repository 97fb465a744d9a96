package convert

import (
	"sync"

	"github.com/klauern/wikisync/internal/logging"
	"github.com/klauern/wikisync/internal/model"
)

// Cache owns one Converter per document. Handles are created on first use
// and kept until the process exits.
type Cache struct {
	serverURL string

	mu      sync.Mutex
	handles map[model.Identity]*Converter
}

// NewCache returns an empty cache whose converters recognize attachment
// links of the wiki at serverURL.
func NewCache(serverURL string) *Cache {
	return &Cache{
		serverURL: serverURL,
		handles:   make(map[model.Identity]*Converter),
	}
}

// Handle returns the converter for id, creating it on first request.
func (c *Cache) Handle(id model.Identity) *Converter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.handles[id]; ok {
		return h
	}
	h := NewConverter(id, c.serverURL)
	c.handles[id] = h
	logging.Debug("created converter", logging.Identity(id.String()))
	return h
}

// ConvertRemoteToLocal converts content served by the wiki for id.
func (c *Cache) ConvertRemoteToLocal(id model.Identity, content string) (string, error) {
	return c.Handle(id).RemoteToLocal(content)
}

// ConvertLocalToRemote converts locally edited content of id for the wiki.
func (c *Cache) ConvertLocalToRemote(id model.Identity, content string) (string, error) {
	return c.Handle(id).LocalToRemote(content)
}

// Len returns the number of cached handles.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}
