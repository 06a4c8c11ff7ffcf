package guess

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flamegraph/internal/occurrence"
)

func collapseAll(t *testing.T, input string) []occurrence.Entry {
	t.Helper()
	r := bufio.NewReader(strings.NewReader(input))
	occ := occurrence.NewSingleThreaded()
	folder := New(Options{})
	require.NoError(t, folder.PreProcess(r, occ))
	require.NoError(t, folder.CollapseSingleThreaded(r, occ))
	return occ.DrainSorted()
}

func TestGuessDelegatesToDtrace(t *testing.T) {
	input := "dtrace header text\n\n" +
		"a\n" +
		"b+0x1\n" +
		" 1\n\n"

	entries := collapseAll(t, input)
	require.Len(t, entries, 1)
	assert.Equal(t, "a;b", entries[0].Stack)
	assert.Equal(t, int64(1), entries[0].Count)
}

func TestGuessDelegatesToBpftrace(t *testing.T) {
	input := "@[\nmain\nwork\n]: 4\n"
	entries := collapseAll(t, input)
	require.Len(t, entries, 1)
	assert.Equal(t, "work;main", entries[0].Stack)
	assert.Equal(t, int64(4), entries[0].Count)
}

func TestGuessNoApplicableCollapserProducesNoOutput(t *testing.T) {
	input := strings.Repeat("nonsense line that matches nothing\n", 20)
	entries := collapseAll(t, input)
	assert.Len(t, entries, 0)
}
