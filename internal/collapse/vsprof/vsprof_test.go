package vsprof

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

func row(level int, fn string, calls int) string {
	return strings.Join([]string{
		itoa(level),
		"\"" + fn + "\"",
		itoa(calls),
		"0.00", "0.00", "0.00", "0.00", "\"app.exe\"", "",
	}, ",") + "\n"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}

func TestVsprofSubtractsChildCallsOnReturnToParent(t *testing.T) {
	input := startLine + "\n" +
		row(1, "A", 500) +
		row(2, "B", 300) +
		row(2, "C", 100) +
		row(1, "D", 200)

	entries := collapseAll(t, New(Options{}), input)
	byStack := map[string]int64{}
	for _, e := range entries {
		byStack[e.Stack] = e.Count
	}

	assert.Equal(t, int64(400), byStack["A"])
	assert.Equal(t, int64(300), byStack["A;B"])
	assert.Equal(t, int64(100), byStack["A;C"])
	assert.Equal(t, int64(200), byStack["D"])
}

func TestVsprofBOMStripped(t *testing.T) {
	input := "﻿" + startLine + "\n" + row(1, "Main", 10)
	entries := collapseAll(t, New(Options{}), input)
	require.Len(t, entries, 1)
	assert.Equal(t, "Main", entries[0].Stack)
	assert.Equal(t, int64(10), entries[0].Count)
}

func TestVsprofIsApplicable(t *testing.T) {
	folder := New(Options{})
	res := folder.IsApplicable(startLine + "\n")
	require.NotNil(t, res)
	assert.True(t, *res)

	res = folder.IsApplicable("not a vsprof export\n")
	require.NotNil(t, res)
	assert.False(t, *res)
}

func TestVsprofBadHeaderIsInvalidData(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("wrong header\n"))
	occ := occurrence.NewSingleThreaded()
	folder := New(Options{})
	require.NoError(t, folder.PreProcess(r, occ))
	err := folder.CollapseSingleThreaded(r, occ)
	require.Error(t, err)
}
