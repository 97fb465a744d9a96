package engine

import (
	"sync"
	"testing"

	"github.com/klauern/wikisync/internal/model"
)

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()
	a := model.Identity{Space: "Main", Name: "A"}
	b := model.Identity{Space: "Main", Name: "B"}

	unlockA := k.Lock(a)
	unlockB := k.Lock(b) // different key must not block
	if k.len() != 2 {
		t.Errorf("len() = %d, want 2", k.len())
	}
	unlockB()
	unlockA()
	if k.len() != 0 {
		t.Errorf("len() = %d after unlock, want 0", k.len())
	}

	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock(a)
			counter++
			unlock()
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
	if k.len() != 0 {
		t.Errorf("len() = %d, want 0", k.len())
	}
}
