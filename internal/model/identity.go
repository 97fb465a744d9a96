package model

import (
	"errors"
	"fmt"
	"strings"
)

// Separator joins the space and page name of a full document name.
const Separator = "."

// ErrInvalidIdentity is returned when a document identity cannot be parsed or
// has an empty or malformed part.
var ErrInvalidIdentity = errors.New("invalid document identity")

// Identity names a remote wiki document by space and page name.
type Identity struct {
	Space string `json:"space" yaml:"space"`
	Name  string `json:"name" yaml:"name"`
}

// NewIdentity builds and validates an identity from its two parts.
func NewIdentity(space, name string) (Identity, error) {
	id := Identity{Space: strings.TrimSpace(space), Name: strings.TrimSpace(name)}
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// ParseIdentity parses a "Space.Page" full name. The string is split on the
// first separator only, once, at the boundary where it enters the system.
func ParseIdentity(fullName string) (Identity, error) {
	space, name, ok := strings.Cut(strings.TrimSpace(fullName), Separator)
	if !ok {
		return Identity{}, fmt.Errorf("%w: %q has no %q separator", ErrInvalidIdentity, fullName, Separator)
	}
	return NewIdentity(space, name)
}

// Validate reports whether both parts are non-empty and free of the separator.
func (id Identity) Validate() error {
	if id.Space == "" || id.Name == "" {
		return fmt.Errorf("%w: space and page name are required", ErrInvalidIdentity)
	}
	if strings.Contains(id.Space, Separator) {
		return fmt.Errorf("%w: space %q contains %q", ErrInvalidIdentity, id.Space, Separator)
	}
	if strings.Contains(id.Name, Separator) {
		return fmt.Errorf("%w: page %q contains %q", ErrInvalidIdentity, id.Name, Separator)
	}
	return nil
}

// IsZero reports whether the identity is unset.
func (id Identity) IsZero() bool {
	return id.Space == "" && id.Name == ""
}

// String returns the full "Space.Page" name.
func (id Identity) String() string {
	if id.IsZero() {
		return ""
	}
	return id.Space + Separator + id.Name
}

// LocalFileName returns the base file name (without extension) used for the
// local copy of the document. Neither part may contain the separator, so two
// identities never share a file name.
func (id Identity) LocalFileName() string {
	return id.Space + Separator + id.Name
}
