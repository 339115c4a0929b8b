package store

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedLocks_MutualExclusion(t *testing.T) {
	k := newKeyedLocks()
	const goroutines = 16
	const increments = 200

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < increments; j++ {
				k.Lock(7)
				counter++
				k.Unlock(7)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, goroutines*increments, counter)
}

func TestKeyedLocks_EvictsReleasedEntries(t *testing.T) {
	k := newKeyedLocks()

	for id := int64(1); id <= 100; id++ {
		k.Lock(id)
		k.Unlock(id)
	}

	k.mu.Lock()
	assert.Empty(t, k.locks)
	k.mu.Unlock()

	// An entry stays while held and goes away on release.
	k.Lock(42)
	k.mu.Lock()
	assert.Len(t, k.locks, 1)
	k.mu.Unlock()
	k.Unlock(42)

	k.mu.Lock()
	assert.Empty(t, k.locks)
	k.mu.Unlock()
}
