package occurrence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingleThreadedInsertOrAdd(t *testing.T) {
	m := NewSingleThreaded()
	m.InsertOrAdd("a;b", 1)
	m.InsertOrAdd("a;b", 2)
	m.InsertOrAdd("a;c", 5)

	entries := m.DrainSorted()
	require.Len(t, entries, 2)
	assert.Equal(t, "a;b", entries[0].Stack)
	assert.Equal(t, int64(3), entries[0].Count)
	assert.Equal(t, "a;c", entries[1].Stack)
	assert.Equal(t, int64(5), entries[1].Count)
}

func TestSingleThreadedDrainResets(t *testing.T) {
	m := NewSingleThreaded()
	m.InsertOrAdd("x", 1)
	_ = m.DrainSorted()
	assert.Empty(t, m.DrainSorted())
}

func TestConcurrentCommutativity(t *testing.T) {
	const workers = 8
	const perWorker = 500

	m := NewConcurrent(0)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				m.InsertOrAdd("stack;shared", 1)
			}
		}(w)
	}
	wg.Wait()

	entries := m.DrainSorted()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(workers*perWorker), entries[0].Count)
}

func TestNewSelectsImplementationByThreadCount(t *testing.T) {
	assert.False(t, New(1).IsConcurrent())
	assert.True(t, New(2).IsConcurrent())
	assert.True(t, New(16).IsConcurrent())
}

func TestDrainSortedOrdering(t *testing.T) {
	m := NewConcurrent(4)
	for _, k := range []string{"c", "a", "b", "aa"} {
		m.InsertOrAdd(k, 1)
	}
	entries := m.DrainSorted()
	got := make([]string, len(entries))
	for i, e := range entries {
		got[i] = e.Stack
	}
	assert.Equal(t, []string{"a", "aa", "b", "c"}, got)
}
