package wiki

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNotLoggedIn matches any failure caused by missing or rejected
	// credentials.
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrNotFound matches a 404 from the server.
	ErrNotFound = errors.New("not found")
	// ErrServer matches every ServerError.
	ErrServer = errors.New("server reported an error")
)

// HTTPError is a non-2xx response.
type HTTPError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: http %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: http %d", e.Method, e.Path, e.StatusCode)
}

func (e *HTTPError) Is(target error) bool {
	switch target {
	case ErrNotLoggedIn:
		return e.StatusCode == http.StatusUnauthorized
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// ServerErrorKind names an error the server reports inside an otherwise
// successful response.
type ServerErrorKind string

const (
	NoProgrammingRights ServerErrorKind = "no programming rights"
	WrongRequest        ServerErrorKind = "wrong request"
	NoEditRights        ServerErrorKind = "no edit rights"
	NoGroovyRights      ServerErrorKind = "no groovy rights"
	InsufficientMemory  ServerErrorKind = "insufficient memory"
	VelocityParser      ServerErrorKind = "velocity parser error"
)

// serverMarkers are checked in order; the first one found wins.
var serverMarkers = []struct {
	marker string
	kind   ServerErrorKind
}{
	{"requires programming rights", NoProgrammingRights},
	{"Error number 11007", WrongRequest},
	{"You are not allowed to edit this page", NoEditRights},
	{"requires groovy rights", NoGroovyRights},
	{"java.lang.OutOfMemoryError", InsufficientMemory},
	{"org.apache.velocity.exception.ParseErrorException", VelocityParser},
}

// ServerError is an error page the server rendered in place of content.
type ServerError struct {
	Kind ServerErrorKind
}

func (e *ServerError) Error() string {
	return "server error: " + string(e.Kind)
}

func (e *ServerError) Is(target error) bool {
	return target == ErrServer
}

// Message returns the text shown to the user for the error.
func (e *ServerError) Message() string {
	switch e.Kind {
	case NoProgrammingRights:
		return "The server is missing programming rights for the page service."
	case WrongRequest:
		return "The server could not understand the request."
	case NoEditRights:
		return "You do not have the right to edit this page."
	case NoGroovyRights:
		return "The page uses scripting the server is not allowed to run."
	case InsufficientMemory:
		return "The server ran out of memory while rendering the page."
	case VelocityParser:
		return "The server could not parse the page."
	}
	return "The server reported an error."
}

// ClassifyResponse returns a ServerError when content carries one of the
// server's error markers, or nil.
func ClassifyResponse(content string) error {
	for _, m := range serverMarkers {
		if strings.Contains(content, m.marker) {
			return &ServerError{Kind: m.kind}
		}
	}
	return nil
}
