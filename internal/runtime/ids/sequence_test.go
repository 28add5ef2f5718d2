package ids

import (
	"sync"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceStrictlyIncreasing(t *testing.T) {
	var seq Sequence

	prev := seq.Next()
	assert.Equal(t, uint64(1), prev)
	for i := 0; i < 50; i++ {
		next := seq.Next()
		require.Greater(t, next, prev)
		prev = next
	}
	assert.Equal(t, prev, seq.Last())
}

func TestSequenceStartOffset(t *testing.T) {
	seq := NewSequence(41)
	assert.Equal(t, uint64(41), seq.Last())
	assert.Equal(t, uint64(42), seq.Next())
}

func TestSequenceConcurrentUniqueness(t *testing.T) {
	const goroutines = 8
	const perGoroutine = 100

	var (
		seq  Sequence
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[uint64]struct{})
	)

	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				v := seq.Next()
				mu.Lock()
				seen[v] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*perGoroutine)
	assert.Equal(t, uint64(goroutines*perGoroutine), seq.Last())
}

func TestCreateULIDSortsByCreation(t *testing.T) {
	prev, err := ulid.ParseStrict(CreateULID())
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		next, err := ulid.ParseStrict(CreateULID())
		require.NoError(t, err)
		require.Equal(t, 1, next.Compare(prev), "%s not after %s", next, prev)
		assert.GreaterOrEqual(t, next.Time(), prev.Time())
		prev = next
	}
}

func TestCreateULIDConcurrentSuffixes(t *testing.T) {
	const sessions = 16

	var wg sync.WaitGroup
	suffixes := make([]string, sessions)
	wg.Add(sessions)
	for i := 0; i < sessions; i++ {
		go func(i int) {
			defer wg.Done()
			suffixes[i] = CreateULID()
		}(i)
	}
	wg.Wait()

	seen := make(map[string]struct{}, sessions)
	for _, id := range suffixes {
		assert.Len(t, id, ulid.EncodedSize)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, sessions)
}
