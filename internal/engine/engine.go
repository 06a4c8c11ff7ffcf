// Package engine drives a Collapser over an input stream, either directly
// on the calling goroutine or fanned out across a worker pool. Grounded on
// _examples/original_source/src/collapse/common.rs's CollapsePrivate trait,
// with crossbeam's scoped threads and channels replaced by goroutines,
// buffered channels, and context cancellation.
package engine

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"sync"

	"flamegraph/internal/collapse"
	"flamegraph/internal/metrics"
	"flamegraph/internal/occurrence"
)

// defaultNstacksPerJob is how many complete stacks are bundled into one
// chunk handed to a worker goroutine. Mirrors DEFAULT_NSTACKS_PER_JOB from
// the ported source.
const defaultNstacksPerJob = 100

// readerBufferSize matches the buffered reader capacity the teacher's own
// I/O-heavy commands use for large file reads.
const readerBufferSize = 128 * 1024

// Options configures one invocation of Collapse.
type Options struct {
	// Nthreads selects the single-threaded path when <= 1, otherwise the
	// parallel pipeline with this many worker goroutines.
	Nthreads int
	// NstacksPerJob overrides the chunk size sent to each worker. Zero
	// selects defaultNstacksPerJob.
	NstacksPerJob int
	// Metrics, if non-nil, is updated with pipeline gauges as the parallel
	// path runs. Left nil by callers that don't run a metrics-server.
	Metrics *metrics.Collector
}

// Collapse runs folder over r, writing sorted "stack count" lines to w.
func Collapse(ctx context.Context, folder collapse.Collapser, r io.Reader, w io.Writer, opt Options) error {
	nthreads := opt.Nthreads
	if nthreads < 1 {
		nthreads = 1
	}

	br := bufio.NewReaderSize(r, readerBufferSize)
	occ := occurrence.New(nthreads)

	if err := folder.PreProcess(br, occ); err != nil {
		return err
	}

	var err error
	if occ.IsConcurrent() {
		nstacksPerJob := opt.NstacksPerJob
		if nstacksPerJob <= 0 {
			nstacksPerJob = defaultNstacksPerJob
		}
		err = collapseParallel(ctx, folder, br, occ, nthreads, nstacksPerJob, opt.Metrics)
	} else {
		err = folder.CollapseSingleThreaded(br, occ)
	}
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	for _, e := range occ.DrainSorted() {
		if _, err := bw.WriteString(e.Stack); err != nil {
			return err
		}
		if err := bw.WriteByte(' '); err != nil {
			return err
		}
		if err := writeInt(bw, e.Count); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeInt(w *bufio.Writer, n int64) error {
	if n == 0 {
		return w.WriteByte('0')
	}
	if n < 0 {
		if err := w.WriteByte('-'); err != nil {
			return err
		}
		n = -n
	}
	var digits [20]byte
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	_, err := w.Write(digits[i:])
	return err
}

// collapseParallel implements the producer/worker pipeline: the calling
// goroutine reads chunks bounded at stack boundaries (per WouldEndStack)
// and feeds them to a fixed pool of worker goroutines, each running its own
// CloneAndResetStackContext'd Collapser against the shared concurrent
// occurrence map. A worker error cancels every other worker and the
// producer via ctx; the first error observed is returned.
func collapseParallel(ctx context.Context, folder collapse.Collapser, r *bufio.Reader, occ occurrence.Map, nthreads, nstacksPerJob int, mtx *metrics.Collector) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan []byte, 2*nthreads)

	var (
		errOnce sync.Once
		firstErr error
	)
	recordErr := func(err error) {
		if err == nil {
			return
		}
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	var wg sync.WaitGroup
	wg.Add(nthreads)
	for i := 0; i < nthreads; i++ {
		worker := folder.CloneAndResetStackContext()
		go func(worker collapse.Collapser) {
			defer wg.Done()
			for chunk := range jobs {
				if mtx != nil {
					mtx.ActiveWorkers.Inc()
				}
				chunkReader := bufio.NewReader(bytes.NewReader(chunk))
				err := worker.CollapseSingleThreaded(chunkReader, occ)
				if mtx != nil {
					mtx.ActiveWorkers.Dec()
				}
				if err != nil {
					recordErr(err)
					return
				}
			}
		}(worker)
	}

	// Producer: read line-by-line, accumulate a chunk until nstacksPerJob
	// stack boundaries have been seen (per WouldEndStack), then hand the
	// chunk to a worker. Stops early if a worker has already failed.
	func() {
		defer close(jobs)
		var buf []byte
		nstacks := 0

		send := func() bool {
			if len(buf) == 0 {
				return true
			}
			chunk := buf
			buf = nil
			select {
			case jobs <- chunk:
				if mtx != nil {
					mtx.JobQueueDepth.Set(float64(len(jobs)))
				}
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line, err := r.ReadBytes('\n')
			if len(line) > 0 {
				buf = append(buf, line...)
				if folder.WouldEndStack(line) {
					nstacks++
					if mtx != nil {
						mtx.StacksProcessed.Inc()
					}
					if nstacks >= nstacksPerJob {
						if !send() {
							return
						}
						nstacks = 0
					}
				}
			}
			if err != nil {
				if err != io.EOF {
					recordErr(err)
				}
				send()
				return
			}
		}
	}()

	wg.Wait()
	return firstErr
}
