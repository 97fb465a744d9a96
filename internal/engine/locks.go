package engine

import (
	"sync"

	"github.com/klauern/wikisync/internal/model"
)

// keyedMutex is a set of mutexes, one per document, created on demand and
// dropped when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[model.Identity]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[model.Identity]*refMutex)}
}

// Lock blocks until id is free and returns the unlock function.
func (k *keyedMutex) Lock(id model.Identity) func() {
	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &refMutex{}
		k.locks[id] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
