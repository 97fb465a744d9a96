package engine

import (
	"github.com/klauern/wikisync/internal/model"
)

// LoginState is the state of the session with the wiki.
type LoginState int

const (
	LoggedOut LoginState = iota
	Authenticating
	LoggedIn
	LoginFailed
)

func (s LoginState) String() string {
	switch s {
	case LoggedOut:
		return "logged out"
	case Authenticating:
		return "authenticating"
	case LoggedIn:
		return "logged in"
	case LoginFailed:
		return "login failed"
	}
	return "unknown"
}

// Session is the engine's view of what the user is doing.
type Session struct {
	State     LoginState
	Identity  model.Identity
	LocalPath string
	Published bool
}

// HasDocument reports whether the active local document is a wiki page.
func (s Session) HasDocument() bool {
	return !s.Identity.IsZero()
}

// EventType identifies a notification sent to listeners.
type EventType int

const (
	EventLoginSucceeded EventType = iota + 1
	EventLoginFailed
	EventStructureLoaded
)

func (t EventType) String() string {
	switch t {
	case EventLoginSucceeded:
		return "login succeeded"
	case EventLoginFailed:
		return "login failed"
	case EventStructureLoaded:
		return "structure loaded"
	}
	return "unknown"
}

// Event is delivered to listeners.
type Event struct {
	Type EventType
	// Err is set for EventLoginFailed and for a structure load that failed.
	Err error
	// Documents is the number of pages in the loaded structure.
	Documents int
}

// Listener receives engine events. It is called from the goroutine that
// produced the event and must not block.
type Listener func(Event)

type subscription struct {
	id int
	fn Listener
}

// Subscribe registers l and returns a function removing it.
func (e *Engine) Subscribe(l Listener) func() {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	e.nextSub++
	id := e.nextSub
	e.listeners = append(e.listeners, subscription{id: id, fn: l})
	return func() {
		e.listenersMu.Lock()
		defer e.listenersMu.Unlock()
		for i, s := range e.listeners {
			if s.id == id {
				e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
				return
			}
		}
	}
}

func (e *Engine) notify(ev Event) {
	e.listenersMu.RLock()
	subs := append([]subscription(nil), e.listeners...)
	e.listenersMu.RUnlock()
	for _, s := range subs {
		s.fn(ev)
	}
}
