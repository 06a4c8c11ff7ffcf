package perf

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

func TestPerfMinimal(t *testing.T) {
	input := "java 1 10.0: cycles:\n" +
		"\tfoo (/lib/a.so)\n" +
		"\tmain (/lib/a.so)\n" +
		"\n"

	entries := collapseAll(t, New(Options{}), input)
	require.Len(t, entries, 1)
	assert.Equal(t, "java;main;foo", entries[0].Stack)
	assert.Equal(t, int64(1), entries[0].Count)
}

func TestPerfIncludePID(t *testing.T) {
	input := "java 1/2 10.0: cycles:\n" +
		"\tfoo (/lib/a.so)\n" +
		"\n"
	entries := collapseAll(t, New(Options{IncludeTID: true}), input)
	require.Len(t, entries, 1)
	assert.Equal(t, "java-1/2;foo", entries[0].Stack)
}

func TestPerfAnnotateKernel(t *testing.T) {
	input := "swapper 0 1.0: cycles:\n" +
		"\tffffffff8103ce3b native_safe_halt ([kernel.kallsyms])\n" +
		"\n"
	entries := collapseAll(t, New(Options{AnnotateKernel: true}), input)
	require.Len(t, entries, 1)
	assert.Equal(t, "swapper;native_safe_halt_[k]", entries[0].Stack)
}

func TestPerfUnknownSymbolFallback(t *testing.T) {
	input := "a 1 1.0: cycles:\n" +
		"\t7f53389994d0 [unknown] (/usr/lib/libfoo.so)\n" +
		"\n"
	entries := collapseAll(t, New(Options{}), input)
	require.Len(t, entries, 1)
	assert.Equal(t, "a;[libfoo.so]", entries[0].Stack)
}

func TestPerfEventFilterDefaultsToFirstEvent(t *testing.T) {
	input := "a 1 1.0: cycles:\n" +
		"\tfoo (/lib/a.so)\n" +
		"\n" +
		"a 1 2.0: instructions:\n" +
		"\tbar (/lib/a.so)\n" +
		"\n"
	entries := collapseAll(t, New(Options{}), input)
	require.Len(t, entries, 1)
	assert.Equal(t, "a;foo", entries[0].Stack)
}

func TestPerfIsApplicable(t *testing.T) {
	folder := New(Options{})
	sample := "java 1 10.0: cycles:\n\tfoo (/lib/a.so)\n"
	res := folder.IsApplicable(sample)
	require.NotNil(t, res)
	assert.True(t, *res)

	res = folder.IsApplicable("not a perf script\nnot event either\n")
	require.NotNil(t, res)
	assert.False(t, *res)
}
