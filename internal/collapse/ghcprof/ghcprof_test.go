package ghcprof

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flamegraph/internal/occurrence"
)

func collapseAll(t *testing.T, folder *Folder, input string) []occurrence.Entry {
	t.Helper()
	r := bufio.NewReader(strings.NewReader(input))
	occ := occurrence.NewSingleThreaded()
	require.NoError(t, folder.PreProcess(r, occ))
	require.NoError(t, folder.CollapseSingleThreaded(r, occ))
	return occ.DrainSorted()
}

// header and the data rows below have MODULE at rune offset 12 and the
// first %time column at rune offset 56, matching findCols' column search.
const header = "COST CENTRE MODULE                     SRC no. entries  %time %alloc   %time %alloc\n"
const separator = "\n"

func TestGhcprofBasicTree(t *testing.T) {
	input := header + separator +
		"MAIN        MAIN                                        100.0\n" +
		" CAF        Options.Applicative.Builder                 50.0\n" +
		"  defPrefs  Options.Applicative.Builder                 1.5\n" +
		"\n"

	entries := collapseAll(t, New(Options{Source: PercentTime}), input)
	require.Len(t, entries, 3)

	var haveRoot, haveCAF, haveLeaf bool
	for _, e := range entries {
		switch e.Stack {
		case "MAIN.MAIN":
			haveRoot = true
			assert.Equal(t, int64(1000), e.Count)
		case "MAIN.MAIN;Options.Applicative.Builder.CAF":
			haveCAF = true
			assert.Equal(t, int64(500), e.Count)
		case "MAIN.MAIN;Options.Applicative.Builder.CAF;Options.Applicative.Builder.defPrefs":
			haveLeaf = true
			assert.Equal(t, int64(15), e.Count)
		}
	}
	assert.True(t, haveRoot)
	assert.True(t, haveCAF)
	assert.True(t, haveLeaf)
}

func TestGhcprofIsApplicable(t *testing.T) {
	folder := New(Options{})
	res := folder.IsApplicable(header)
	require.NotNil(t, res)
	assert.True(t, *res)

	res = folder.IsApplicable("not a ghc prof report\n")
	assert.Nil(t, res)
}
