package xdebug

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

// Field layout (tab separated): level, funcNum, isExit, time, memory,
// funcName, funcType, filePath, ...
func entryLine(level, funcNum int, time float64, funcName, path string) string {
	return strings.Join([]string{
		itoa(level), itoa(funcNum), "0", ftoa(time), "0",
		funcName, "1", path,
	}, "\t") + "\n"
}

func exitLine(level, funcNum int, time float64) string {
	return strings.Join([]string{
		itoa(level), itoa(funcNum), "1", ftoa(time),
	}, "\t") + "\n"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func ftoa(f float64) string {
	whole := int(f)
	frac := int((f - float64(whole)) * 1000000)
	return itoa(whole) + "." + padLeft(itoa(frac), 6)
}

func padLeft(s string, n int) string {
	for len(s) < n {
		s = "0" + s
	}
	return s
}

func TestXdebugBasicTrace(t *testing.T) {
	input := "Version: 2.9.0\n" +
		"File format: 4\n" +
		"TRACE START [2021-01-01 00:00:00]\n" +
		entryLine(0, 1, 0.000000, "{main}", "/app/index.php") +
		entryLine(1, 2, 0.000100, "doWork", "/app/lib.php") +
		exitLine(1, 2, 0.000500) +
		exitLine(0, 1, 0.000600) +
		"TRACE END   [2021-01-01 00:00:01]\n"

	entries := collapseAll(t, New(Options{}), input)
	byStack := map[string]int64{}
	for _, e := range entries {
		byStack[e.Stack] = e.Count
	}

	// Only the include/require builtins are qualified with a file path, so
	// ordinary functions appear under their bare names.
	require.Contains(t, byStack, "{main}")
	require.Contains(t, byStack, "{main};doWork")

	// {main}'s self time accrues twice: once before doWork is entered (100)
	// and once after doWork returns but before {main} itself exits (100).
	assert.Equal(t, int64(200), byStack["{main}"])
	assert.Equal(t, int64(400), byStack["{main};doWork"])
}

func TestXdebugDiscardsUnmatchedExit(t *testing.T) {
	input := "TRACE START [x]\n" +
		exitLine(0, 1, 0.0) +
		"TRACE END [x]\n"

	entries := collapseAll(t, New(Options{}), input)
	assert.Len(t, entries, 0)
}

func TestXdebugIsApplicable(t *testing.T) {
	folder := New(Options{})
	res := folder.IsApplicable("Version: 2.9.0\nTRACE START [x]\n")
	require.NotNil(t, res)
	assert.True(t, *res)

	res = folder.IsApplicable("not an xdebug trace\n")
	assert.Nil(t, res)
}
