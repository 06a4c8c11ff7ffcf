// Package bpftrace collapses bpftrace's map output (an "@[" line, one frame
// per line, leaf first, then "]: count") into folded stacks. Grounded on
// _examples/original_source/src/collapse/bpftrace.rs.
package bpftrace

import (
	"bufio"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"flamegraph/internal/collapse"
	"flamegraph/internal/occurrence"
)

// Options configures the bpftrace collapser. There are currently no options.
type Options struct{}

// Folder is a stack collapser for bpftrace map output.
type Folder struct {
	opt Options
}

// New constructs a Folder.
func New(opt Options) *Folder { return &Folder{opt: opt} }

func (f *Folder) PreProcess(r *bufio.Reader, occ occurrence.Map) error {
	return nil
}

// state tracks whether the scanner is between `@[...]` blocks or currently
// accumulating the frames inside one.
type state int

const (
	notInStack state = iota
	inStack
)

func (f *Folder) CollapseSingleThreaded(r *bufio.Reader, occ occurrence.Map) error {
	st := notInStack
	var stack []string

	for {
		line, err := collapse.ReadLine(r)
		if err != nil {
			break
		}
		line = strings.TrimRight(line, "\r\n")

		chars := []rune(line)
		i := 0
		beginningOfLine := true
		for i < len(chars) {
			c := chars[i]
			switch st {
			case notInStack:
				if c == '@' && i+1 < len(chars) && chars[i+1] == '[' {
					i++ // consume '['
					st = inStack
					stack = stack[:0]
				}
				i++

			case inStack:
				if c == ']' && i+1 < len(chars) && chars[i+1] == ':' {
					i++ // consume ':'
					count, consumed, err := consumeUnsignedInteger(chars[i+1:])
					if err != nil {
						return err
					}
					i += 1 + consumed

					// The accumulated frame vector is always replaced with
					// a fresh one here, regardless of emptiness. Matches a
					// latent bug in the ported source: the state machine
					// itself only resets to notInStack inside the
					// non-empty branch below, so a block that parses to
					// zero frames leaves the scanner stuck "in a stack"
					// with an empty accumulator, so every line up to the
					// next "]:" (including any "@[" that would otherwise
					// start a new block) is taken as frame text of the
					// next stack.
					wasNonEmpty := len(stack) > 0
					if wasNonEmpty {
						var b strings.Builder
						for j := len(stack) - 1; j >= 0; j-- {
							if j != len(stack)-1 {
								b.WriteByte(';')
							}
							b.WriteString(stack[j])
						}
						occ.InsertOrAdd(b.String(), count)
					}
					stack = stack[:0]
					if wasNonEmpty {
						st = notInStack
					}
				} else {
					if beginningOfLine {
						stack = append(stack, "")
					}
					stack[len(stack)-1] += string(c)
					i++
				}
			}
			beginningOfLine = false
		}
	}

	return nil
}

// consumeUnsignedInteger skips leading whitespace then reads a run of ASCII
// digits, returning the parsed value and how many runes were consumed.
func consumeUnsignedInteger(chars []rune) (int64, int, error) {
	i := 0
	for i < len(chars) && unicode.IsSpace(chars[i]) {
		i++
	}
	if i >= len(chars) {
		return 0, 0, errors.Wrap(collapse.ErrInvalidData, "expected a number, found end of line")
	}

	start := i
	for i < len(chars) && unicode.IsDigit(chars[i]) {
		i++
	}
	if i == start {
		return 0, 0, errors.Wrap(collapse.ErrInvalidData, "expected a number, found non-digit")
	}

	n, err := strconv.ParseInt(string(chars[start:i]), 10, 64)
	if err != nil {
		return 0, 0, errors.Wrapf(collapse.ErrInvalidData, "invalid count: %v", err)
	}
	return n, i, nil
}

func (f *Folder) WouldEndStack(line []byte) bool {
	return false
}

// IsApplicable reports whether the sample contains a bpftrace map block
// (`@[` ... `]:`).
func (f *Folder) IsApplicable(sample string) *bool {
	if strings.Contains(sample, "@[") && strings.Contains(sample, "]:") {
		res := true
		return &res
	}
	if strings.Contains(sample, "\n") {
		res := false
		return &res
	}
	return nil
}

func (f *Folder) CloneAndResetStackContext() collapse.Collapser {
	return New(f.opt)
}
