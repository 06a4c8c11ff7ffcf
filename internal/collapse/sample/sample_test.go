package sample

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

func TestSampleBasic(t *testing.T) {
	input := "Some header junk\n" +
		"Call graph:\n" +
		"    5130 Thread_8749954\n" +
		"    + 5130 start_wqthread  (in libsystem_pthread.dylib) + 1\n" +
		"    +   4282 _pthread_wqthread  (in libsystem_pthread.dylib) + 2\n" +
		"    +     4282 main_entry  (in myapp) + 3\n" +
		"    +   848 other_work  (in libsystem_pthread.dylib) + 2\n" +
		"\n" +
		"Total number in stack:\n"

	entries := collapseAll(t, New(Options{}), input)
	require.Len(t, entries, 2)

	var found4282, found848 bool
	for _, e := range entries {
		switch e.Stack {
		case "Thread_8749954;libsystem_pthread`start_wqthread;libsystem_pthread`_pthread_wqthread;myapp`main_entry":
			assert.Equal(t, int64(4282), e.Count)
			found4282 = true
		case "Thread_8749954;libsystem_pthread`start_wqthread;libsystem_pthread`other_work":
			assert.Equal(t, int64(848), e.Count)
			found848 = true
		}
	}
	assert.True(t, found4282)
	assert.True(t, found848)
}

func TestSampleIgnoresWaitingThreads(t *testing.T) {
	input := "Call graph:\n" +
		"    100 Thread_1\n" +
		"    + 100 mach_msg_trap  (in libsystem_kernel.dylib) + 1\n" +
		"\n" +
		"Total number in stack:\n"

	entries := collapseAll(t, New(Options{}), input)
	assert.Len(t, entries, 0)
}

func TestSampleNoModules(t *testing.T) {
	input := "Call graph:\n" +
		"    10 Thread_1\n" +
		"    + 10 doWork  (in myapp) + 1\n" +
		"\n" +
		"Total number in stack:\n"

	entries := collapseAll(t, New(Options{NoModules: true}), input)
	require.Len(t, entries, 1)
	assert.Equal(t, "Thread_1;doWork", entries[0].Stack)
}

func TestSampleIsApplicable(t *testing.T) {
	folder := New(Options{})
	res := folder.IsApplicable("Call graph:\nstuff\nTotal number in stack:\n")
	require.NotNil(t, res)
	assert.True(t, *res)

	res = folder.IsApplicable("nothing relevant here\n")
	assert.Nil(t, res)
}
