package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFramesSharedPrefix is the merger shared-prefix worked example: two
// sorted folded stacks sharing the "a" prefix must merge "a" into a single
// rectangle spanning both samples, while "b" and "c" get disjoint intervals
// under it.
func TestFramesSharedPrefix(t *testing.T) {
	frames, total, ignored := Frames("a;b 2\na;c 3\n")
	require.Equal(t, 0, ignored)
	assert.Equal(t, 5, total)

	byKey := make(map[Frame]TimedFrame)
	for _, f := range frames {
		byKey[f.Location] = f
	}

	root, ok := byKey[Frame{Function: "", Depth: 0}]
	require.True(t, ok)
	assert.Equal(t, 0, root.StartTime)
	assert.Equal(t, 5, root.EndTime)

	a, ok := byKey[Frame{Function: "a", Depth: 1}]
	require.True(t, ok)
	assert.Equal(t, 0, a.StartTime)
	assert.Equal(t, 5, a.EndTime)

	b, ok := byKey[Frame{Function: "b", Depth: 2}]
	require.True(t, ok)
	assert.Equal(t, 0, b.StartTime)
	assert.Equal(t, 2, b.EndTime)

	c, ok := byKey[Frame{Function: "c", Depth: 2}]
	require.True(t, ok)
	assert.Equal(t, 2, c.StartTime)
	assert.Equal(t, 5, c.EndTime)

	assert.Len(t, frames, 4)
}

func TestFramesIgnoresMalformedLines(t *testing.T) {
	frames, total, ignored := Frames("a 1\nnotanumber\na;b notanumber\n\nc 2\n")
	assert.Equal(t, 2, ignored)
	assert.Equal(t, 3, total)
	assert.NotEmpty(t, frames)
}

func TestFramesStripsFractionalCount(t *testing.T) {
	_, total, ignored := Frames("a 10.5\n")
	assert.Equal(t, 0, ignored)
	assert.Equal(t, 10, total)
}

func TestFramesDisjointAtEachDepth(t *testing.T) {
	frames, _, _ := Frames("a;b 2\na;c 3\nd 4\n")
	byDepth := make(map[int][]TimedFrame)
	for _, f := range frames {
		byDepth[f.Location.Depth] = append(byDepth[f.Location.Depth], f)
	}
	for depth, fs := range byDepth {
		for i := range fs {
			for j := range fs {
				if i == j {
					continue
				}
				overlap := fs[i].StartTime < fs[j].EndTime && fs[j].StartTime < fs[i].EndTime
				assert.False(t, overlap, "depth %d: %+v overlaps %+v", depth, fs[i], fs[j])
			}
		}
	}
}
