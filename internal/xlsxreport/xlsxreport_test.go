package xlsxreport

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"flamegraph/internal/merge"
)

func TestTopFramesAggregatesAndRanks(t *testing.T) {
	frames, total, ignored := merge.Frames("a;b 2\na;c 3\na;b 1\n")
	require.Equal(t, 0, ignored)

	top := TopFrames(frames, total, 0)
	require.NotEmpty(t, top)
	assert.Equal(t, "a", top[0].Function)
	assert.Equal(t, int64(6), top[0].Time)
	assert.InDelta(t, 100.0, top[0].Percent, 0.0001)
}

func TestTopFramesRespectsLimit(t *testing.T) {
	frames, total, _ := merge.Frames("a;b 2\na;c 3\na;d 1\n")
	top := TopFrames(frames, total, 2)
	assert.Len(t, top, 2)
}

func TestRenderProducesReadableWorkbook(t *testing.T) {
	rows := []TopFrame{
		{Function: "main", Time: 100, Percent: 100},
		{Function: "a", Time: 60, Percent: 60},
	}
	out, err := Render(rows, "samples")
	require.NoError(t, err)
	require.NotEmpty(t, out)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	header, err := f.GetCellValue(SheetName, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Function", header)

	name, err := f.GetCellValue(SheetName, "A2")
	require.NoError(t, err)
	assert.Equal(t, "main", name)

	pct, err := f.GetCellValue(SheetName, "C2")
	require.NoError(t, err)
	assert.Equal(t, "100.00%", pct)
}
