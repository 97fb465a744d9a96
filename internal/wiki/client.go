// Package wiki talks to the remote wiki server.
package wiki

import (
	"context"

	"github.com/klauern/wikisync/internal/model"
)

// DefaultSyntax is the markup syntax pages are saved with.
const DefaultSyntax = "xwiki/2.0"

// Client is the set of remote operations the sync engine depends on. Every
// I/O method may fail; failures are HTTPError, ServerError or a wrapped
// network error, and a rejected session matches ErrNotLoggedIn.
type Client interface {
	LoggedIn() bool
	Login(ctx context.Context, username, password string) error
	GetSpacesNames(ctx context.Context) ([]string, error)
	GetPagesNames(ctx context.Context, space string) ([]string, error)
	GetRenderedPageContent(ctx context.Context, id model.Identity) (string, error)
	SavePageContent(ctx context.Context, id model.Identity, content, syntax string) error
	GetDocumentAttachmentList(ctx context.Context, id model.Identity) ([]string, error)
	GetAttachmentContent(ctx context.Context, id model.Identity, name string) ([]byte, error)
	AddAttachment(ctx context.Context, space, page, localFilePath string) error
}
