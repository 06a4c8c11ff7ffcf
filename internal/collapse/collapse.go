// Package collapse defines the Collapser contract shared by every
// profiler-format parser and by the generic engine that drives them.
package collapse

import (
	"bufio"
	"io"

	"github.com/pkg/errors"

	"flamegraph/internal/occurrence"
)

// ErrInvalidData is the sentinel wrapped by structural parse failures: a
// missing header, a skipped indentation level, an invalid numeric field, or
// an unpaired XML tag. Use errors.Cause or errors.Is against this value to
// distinguish structural failures from I/O errors.
var ErrInvalidData = errors.New("invalid profiler data")

// ErrEmptyInput is the sentinel wrapped when a parser or the renderer is
// given input that yields no stacks at all.
var ErrEmptyInput = errors.New("empty input")

// Collapser turns profiler-specific input into folded stacks accumulated
// into an occurrence.Map. Implementations are small state machines; all
// mutable state must be reset at the end of CollapseSingleThreaded so the
// instance is reusable, and CloneAndResetStackContext must produce a fresh
// instance that shares only immutable options.
type Collapser interface {
	// PreProcess consumes any header on the main goroutine. It may also
	// read a small amount of stack data when the first stack determines a
	// later decision (e.g. the perf event filter default).
	PreProcess(r *bufio.Reader, occ occurrence.Map) error

	// CollapseSingleThreaded parses stacks from r and emits them into occ.
	CollapseSingleThreaded(r *bufio.Reader, occ occurrence.Map) error

	// WouldEndStack reports whether line is a safe chunk boundary for the
	// parallel pipeline: the engine never splits a chunk in the middle of
	// a stack.
	WouldEndStack(line []byte) bool

	// IsApplicable inspects a sample of the input and reports whether this
	// parser recognizes the format. nil means "need more input".
	IsApplicable(sample string) *bool

	// CloneAndResetStackContext returns a fresh per-worker instance sharing
	// only this instance's immutable options.
	CloneAndResetStackContext() Collapser
}

// ReadLine reads one line from r, including its trailing newline if present,
// returning io.EOF only when no bytes were read.
func ReadLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	if err == io.EOF && line == "" {
		return "", io.EOF
	}
	return line, nil
}
