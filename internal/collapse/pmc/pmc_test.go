package pmc

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

func TestPmcSharedSubtree(t *testing.T) {
	input := "@ CLOCK.HARD [302186 samples]\n" +
		"01.17%  [173]      randomdev_encrypt @ /boot/kernel/kernel\n" +
		" 95.95%  [166]       random_fortuna_read\n" +
		"  100.0%  [166]        read_random_uio\n" +
		"   100.0%  [166]         devfs_read_f\n" +
		"    100.0%  [166]          kern_readv\n" +
		"     100.0%  [166]           sys_read\n" +
		"      100.0%  [166]            amd64_syscall\n" +
		" 04.05%  [7]         read_random_uio\n" +
		"  100.0%  [7]          devfs_read_f\n" +
		"   100.0%  [7]           kern_readv\n" +
		"    100.0%  [7]            sys_read\n" +
		"     100.0%  [7]             amd64_syscall\n" +
		"\n"

	entries := collapseAll(t, New(Options{}), input)
	require.Len(t, entries, 2)

	byCount := map[int64]string{}
	for _, e := range entries {
		byCount[e.Count] = e.Stack
	}
	assert.Equal(t,
		"amd64_syscall;sys_read;kern_readv;devfs_read_f;read_random_uio;random_fortuna_read;randomdev_encrypt",
		byCount[166])
	assert.Equal(t,
		"amd64_syscall;sys_read;kern_readv;devfs_read_f;read_random_uio;randomdev_encrypt",
		byCount[7])
}

func TestPmcIsApplicable(t *testing.T) {
	folder := New(Options{})
	res := folder.IsApplicable("@ CLOCK.HARD [302186 samples]\n")
	require.NotNil(t, res)
	assert.True(t, *res)

	res = folder.IsApplicable("not pmc output\n")
	require.NotNil(t, res)
	assert.False(t, *res)
}

func TestPmcWeirdLineWarnsAndSkips(t *testing.T) {
	input := "@ CLOCK.HARD [1 samples]\n" +
		"this line has no percent or count\n" +
		"100.0%  [1]  leafFn\n" +
		"\n"
	entries := collapseAll(t, New(Options{}), input)
	require.Len(t, entries, 1)
	assert.Equal(t, "leafFn", entries[0].Stack)
}
