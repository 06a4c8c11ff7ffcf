package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramesDiffTracksBothProfiles(t *testing.T) {
	frames, totalBefore, totalAfter, ignored := FramesDiff("main;a 5 10\nmain;b 5 0\n")
	require.Equal(t, 0, ignored)
	assert.Equal(t, 10, totalBefore)
	assert.Equal(t, 10, totalAfter)

	byKey := make(map[Frame]TimedFrameDiff)
	for _, f := range frames {
		byKey[f.Location] = f
	}

	a, ok := byKey[Frame{Function: "a", Depth: 2}]
	require.True(t, ok)
	assert.Equal(t, 0, a.StartBefore)
	assert.Equal(t, 5, a.EndBefore)
	assert.Equal(t, 0, a.StartAfter)
	assert.Equal(t, 10, a.EndAfter)

	b, ok := byKey[Frame{Function: "b", Depth: 2}]
	require.True(t, ok)
	assert.Equal(t, 5, b.StartBefore)
	assert.Equal(t, 10, b.EndBefore)
	assert.Equal(t, 10, b.StartAfter)
	assert.Equal(t, 10, b.EndAfter)
}

func TestFramesDiffIgnoresMalformedLines(t *testing.T) {
	_, _, _, ignored := FramesDiff("bad line\nmain 1 2\n")
	assert.Equal(t, 1, ignored)
}
