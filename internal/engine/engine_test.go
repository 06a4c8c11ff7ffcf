package engine

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flamegraph/internal/collapse"
	"flamegraph/internal/metrics"
	"flamegraph/internal/occurrence"
)

// lineFolder is a minimal Collapser used only to exercise the engine's
// driving logic: each input line is already a folded "stack count" pair.
// Every line is a complete stack, so WouldEndStack is unconditionally true.
type lineFolder struct{}

func (lineFolder) PreProcess(r *bufio.Reader, occ occurrence.Map) error { return nil }

func (lineFolder) CollapseSingleThreaded(r *bufio.Reader, occ occurrence.Map) error {
	for {
		line, err := collapse.ReadLine(r)
		if err != nil {
			return nil
		}
		line = strings.TrimRight(line, "\n")
		if line == "" {
			continue
		}
		idx := strings.LastIndexByte(line, ' ')
		if idx < 0 {
			return collapse.ErrInvalidData
		}
		count, perr := strconv.ParseInt(line[idx+1:], 10, 64)
		if perr != nil {
			return collapse.ErrInvalidData
		}
		occ.InsertOrAdd(line[:idx], count)
	}
}

func (lineFolder) WouldEndStack(line []byte) bool { return true }

func (lineFolder) IsApplicable(sample string) *bool {
	res := true
	return &res
}

func (lineFolder) CloneAndResetStackContext() collapse.Collapser { return lineFolder{} }

// failingFolder returns an error from every worker's CollapseSingleThreaded
// call, used to exercise error propagation and cancellation.
type failingFolder struct{ lineFolder }

func (failingFolder) CollapseSingleThreaded(r *bufio.Reader, occ occurrence.Map) error {
	return collapse.ErrInvalidData
}

func (failingFolder) CloneAndResetStackContext() collapse.Collapser { return failingFolder{} }

func genInput(nstacks int) string {
	var b strings.Builder
	for i := 0; i < nstacks; i++ {
		fmt.Fprintf(&b, "frame%d %d\n", i%7, i+1)
	}
	return b.String()
}

func expectedTotals(nstacks int) map[string]int64 {
	totals := make(map[string]int64)
	for i := 0; i < nstacks; i++ {
		totals[fmt.Sprintf("frame%d", i%7)] += int64(i + 1)
	}
	return totals
}

// TestCollapseThreadEquivalence verifies that the parallel pipeline produces
// exactly the same aggregated totals as the single-threaded path, across a
// range of worker counts and chunk sizes small enough to force many chunks.
func TestCollapseThreadEquivalence(t *testing.T) {
	input := genInput(953)
	want := expectedTotals(953)

	for _, nthreads := range []int{1, 2, 3, 4, 8, 16} {
		t.Run(fmt.Sprintf("nthreads=%d", nthreads), func(t *testing.T) {
			var out bytes.Buffer
			err := Collapse(context.Background(), lineFolder{}, strings.NewReader(input), &out, Options{
				Nthreads:      nthreads,
				NstacksPerJob: 17,
			})
			require.NoError(t, err)

			got := make(map[string]int64)
			for _, line := range strings.Split(strings.TrimRight(out.String(), "\n"), "\n") {
				if line == "" {
					continue
				}
				idx := strings.LastIndexByte(line, ' ')
				require.GreaterOrEqual(t, idx, 0)
				n, perr := strconv.ParseInt(line[idx+1:], 10, 64)
				require.NoError(t, perr)
				got[line[:idx]] = n
			}
			assert.Equal(t, want, got)
		})
	}
}

func TestCollapseSingleThreadedPathBypassesConcurrentMap(t *testing.T) {
	var out bytes.Buffer
	err := Collapse(context.Background(), lineFolder{}, strings.NewReader("a 1\nb 2\na 3\n"), &out, Options{Nthreads: 1})
	require.NoError(t, err)
	assert.Equal(t, "a 4\nb 2\n", out.String())
}

func TestCollapseParallelUpdatesMetrics(t *testing.T) {
	var out bytes.Buffer
	mtx := metrics.NewCollector()
	err := Collapse(context.Background(), lineFolder{}, strings.NewReader(genInput(200)), &out, Options{
		Nthreads:      4,
		NstacksPerJob: 10,
		Metrics:       mtx,
	})
	require.NoError(t, err)

	var m dto.Metric
	require.NoError(t, mtx.StacksProcessed.Write(&m))
	assert.Equal(t, float64(200), m.GetCounter().GetValue())

	require.NoError(t, mtx.ActiveWorkers.Write(&m))
	assert.Equal(t, float64(0), m.GetGauge().GetValue())
}

func TestCollapseParallelPropagatesWorkerError(t *testing.T) {
	var out bytes.Buffer
	err := Collapse(context.Background(), failingFolder{}, strings.NewReader(genInput(500)), &out, Options{
		Nthreads:      4,
		NstacksPerJob: 5,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, collapse.ErrInvalidData)
}
