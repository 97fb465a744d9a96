package engine

import (
	"errors"
	"fmt"

	"github.com/klauern/wikisync/internal/convert"
	"github.com/klauern/wikisync/internal/model"
	"github.com/klauern/wikisync/internal/wiki"
)

// Error kinds. Every error returned by an Engine operation matches exactly
// one of them with errors.Is (and may match more through its cause).
var (
	ErrAuthenticationFailed      = errors.New("authentication failed")
	ErrTransport                 = errors.New("transport error")
	ErrProtectedDocument         = errors.New("document is protected")
	ErrAlreadyOpen               = errors.New("document is already open")
	ErrNotPublished              = errors.New("document is not published")
	ErrInvalidIdentity           = errors.New("invalid document identity")
	ErrConversion                = errors.New("conversion failed")
	ErrAttachmentPartialFailure  = errors.New("attachment upload stopped")
	ErrNoCurrentDocument         = errors.New("no current document")
	ErrSaveFailed                = errors.New("save failed")
	ErrAttachmentListUnavailable = errors.New("attachment list unavailable")
	ErrDocumentClosed            = errors.New("document was closed")
	ErrEditor                    = errors.New("editor failed")
)

// OpError describes a failed engine operation.
type OpError struct {
	Op       string
	Identity model.Identity
	Kind     error
	Err      error
}

func (e *OpError) Error() string {
	msg := e.Op
	if !e.Identity.IsZero() {
		msg += " " + e.Identity.String()
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OpError) Is(target error) bool {
	return target == e.Kind
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func opErr(op string, id model.Identity, kind, cause error) *OpError {
	return &OpError{Op: op, Identity: id, Kind: kind, Err: cause}
}

// PartialFailureError reports an attachment batch that stopped at its first
// failing file.
type PartialFailureError struct {
	Identity model.Identity
	// Uploaded is the number of files uploaded before the failure.
	Uploaded int
	Total    int
	// File is the path that failed. Files after it were not attempted.
	File string
	Err  error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("attach to %s: uploaded %d of %d files, %s failed: %v",
		e.Identity, e.Uploaded, e.Total, e.File, e.Err)
}

func (e *PartialFailureError) Is(target error) bool {
	return target == ErrAttachmentPartialFailure
}

func (e *PartialFailureError) Unwrap() error {
	return e.Err
}

// remoteErr translates a failure of the wiki client into the taxonomy.
// Errors that already carry a kind are passed through.
func remoteErr(op string, id model.Identity, err error) error {
	if err == nil {
		return nil
	}
	var op2 *OpError
	if errors.As(err, &op2) {
		return err
	}
	if errors.Is(err, wiki.ErrNotLoggedIn) {
		return opErr(op, id, ErrAuthenticationFailed, err)
	}
	return opErr(op, id, ErrTransport, err)
}

func conversionErr(op string, id model.Identity, err error) error {
	if errors.Is(err, convert.ErrConversion) {
		return opErr(op, id, ErrConversion, err)
	}
	return opErr(op, id, ErrConversion, fmt.Errorf("%w: %w", convert.ErrConversion, err))
}

// UserMessage returns the one sentence shown to the user for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var partial *PartialFailureError
	if errors.As(err, &partial) {
		return fmt.Sprintf("Uploaded %d of %d attachments; %s could not be uploaded.", partial.Uploaded, partial.Total, partial.File)
	}
	var serverErr *wiki.ServerError
	if errors.As(err, &serverErr) {
		return serverErr.Message()
	}

	switch {
	case errors.Is(err, ErrNoCurrentDocument):
		return "The active document is not a wiki page."
	case errors.Is(err, ErrAlreadyOpen):
		return "This page is already open."
	case errors.Is(err, ErrProtectedDocument):
		return "This page is protected and cannot be edited locally."
	case errors.Is(err, ErrNotPublished):
		return "Save the page to the wiki before attaching files."
	case errors.Is(err, ErrDocumentClosed):
		return "The document was closed before the operation finished."
	case errors.Is(err, ErrAttachmentListUnavailable):
		return "The attachment list is unavailable; check that the page is published and the server is reachable."
	case errors.Is(err, ErrAuthenticationFailed):
		return "Login failed; check the server address and your credentials."
	case errors.Is(err, ErrInvalidIdentity):
		return "The page name is invalid."
	case errors.Is(err, ErrConversion):
		return "The page content could not be converted; the local file was left on disk."
	case errors.Is(err, ErrSaveFailed):
		return "The page could not be saved to the wiki; nothing was changed."
	case errors.Is(err, ErrTransport):
		return "The wiki server could not be reached."
	case errors.Is(err, ErrEditor):
		return "The editor could not be started."
	}
	return err.Error()
}
