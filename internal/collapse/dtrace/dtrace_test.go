package dtrace

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

func TestDtraceCountedSharedPrefix(t *testing.T) {
	input := "\n" +
		"libc`a+0x1\n" +
		"libc`b+0x2\n" +
		"          3\n" +
		"\n" +
		"libc`a+0x1\n" +
		"libc`b+0x2\n" +
		"libc`c+0x3\n" +
		"          5\n"

	entries := collapseAll(t, New(Options{}), input)
	require.Len(t, entries, 2)
	assert.Equal(t, "a;b", entries[0].Stack)
	assert.Equal(t, int64(3), entries[0].Count)
	assert.Equal(t, "a;b;c", entries[1].Stack)
	assert.Equal(t, int64(5), entries[1].Count)
}

func TestUncpp(t *testing.T) {
	cases := []struct{ in, want string }{
		{"TestClass::TestClass2(const char*)[__1cJTestClass2t6Mpkc_v_]", "TestClass::TestClass2"},
		{"TestClass::TestClass2::TestClass3(const char*)[__1cJTestClass2t6Mpkc_v_]", "TestClass::TestClass2::TestClass3"},
		{"TestClass::TestClass2<blargh>(const char*)[__1cJTestClass2t6Mpkc_v_]", "TestClass::TestClass2<blargh>"},
		{"TestClass::TestClass2::TestClass3<blargh>(const char*)[__1cJTestClass2t6Mpkc_v_]", "TestClass::TestClass2::TestClass3<blargh>"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, uncpp(c.in))
	}
}

func TestIncludeOffsetKeepsNonLeafOffsets(t *testing.T) {
	input := "\n" + "a+0x1\n" + "b+0x2\n" + "1\n"
	entries := collapseAll(t, New(Options{IncludeOffset: true}), input)
	require.Len(t, entries, 1)
	assert.Equal(t, "a+0x1;b", entries[0].Stack)
}
