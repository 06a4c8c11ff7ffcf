// Package vsprof collapses CSV exports of the Visual Studio built-in
// profiler into folded stacks. Grounded on
// _examples/original_source/src/collapse/vsprof.rs.
package vsprof

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"flamegraph/internal/collapse"
	"flamegraph/internal/occurrence"
)

const startLine = "Level,Function Name,Number of Calls,Elapsed Inclusive Time %,Elapsed Exclusive Time %,Avg Elapsed Inclusive Time,Avg Elapsed Exclusive Time,Module Name,"

// Options configures the vsprof collapser. There are currently no options.
type Options struct{}

type stackFrame struct {
	name          string
	numberOfCalls int64
}

// Folder is a stack collapser for Visual Studio profiler CSV exports.
type Folder struct {
	stack []stackFrame
	opt   Options
}

// New constructs a Folder.
func New(opt Options) *Folder { return &Folder{opt: opt} }

// stripBOM removes a leading UTF-8 byte-order mark, if present, without
// disturbing the rest of the (already UTF-8) line.
func stripBOM(s string) string {
	out, _, err := transform.String(unicode.BOMOverride(encoding.Nop.NewDecoder()), s)
	if err != nil {
		return s
	}
	return out
}

func lineMatchesStartLine(line string) bool {
	return strings.TrimSpace(stripBOM(line)) == startLine
}

func (f *Folder) PreProcess(r *bufio.Reader, occ occurrence.Map) error {
	return nil
}

func (f *Folder) CollapseSingleThreaded(r *bufio.Reader, occ occurrence.Map) error {
	header, err := collapse.ReadLine(r)
	if err != nil {
		return nil
	}
	if !lineMatchesStartLine(header) {
		return errors.Wrapf(collapse.ErrInvalidData, "incorrect header:\n%s", header)
	}

	for {
		raw, err := collapse.ReadLine(r)
		if err != nil {
			break
		}
		line := strings.TrimRight(raw, "\r\n")
		if line == "" {
			continue
		}
		if err := f.onLine(line, occ); err != nil {
			return err
		}
	}

	f.writeStack(occ)
	f.stack = nil
	return nil
}

func (f *Folder) WouldEndStack(line []byte) bool {
	return len(strings.TrimRight(string(line), "\r\n")) == 0
}

func (f *Folder) IsApplicable(sample string) *bool {
	sc := bufio.NewScanner(strings.NewReader(sample))
	if !sc.Scan() {
		res := false
		return &res
	}
	res := lineMatchesStartLine(sc.Text())
	return &res
}

func (f *Folder) CloneAndResetStackContext() collapse.Collapser {
	return New(f.opt)
}

// getNextNumber reads the number at the start of line, which may or may not
// be double-quoted (Visual Studio quotes numbers >= 1000 since they contain
// a thousands-separator comma), and returns it plus the remainder of the
// line after the number and its following comma.
func getNextNumber(line string) (int64, string, error) {
	line = strings.TrimPrefix(line, ",")

	var numStr, remainder string
	removeLeadingComma := false

	if rest := strings.TrimPrefix(line, "\""); rest != line {
		removeLeadingComma = true
		idx := strings.IndexByte(rest, '"')
		if idx < 0 {
			return 0, "", errors.Wrapf(collapse.ErrInvalidData, "invalid number in line:\n%s", line)
		}
		numStr, remainder = rest[:idx], rest[idx+1:]
	} else {
		idx := strings.IndexByte(line, ',')
		if idx < 0 {
			return 0, "", errors.Wrapf(collapse.ErrInvalidData, "invalid number in line:\n%s", line)
		}
		numStr, remainder = line[:idx], line[idx+1:]
	}

	numStr = strings.ReplaceAll(numStr, ",", "")
	n, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, "", errors.Wrapf(collapse.ErrInvalidData, "invalid number in line:\n%s", line)
	}

	if removeLeadingComma {
		remainder = strings.TrimPrefix(remainder, ",")
	}

	return n, remainder, nil
}

// onLine parses lines like:
//
//	Level,Function Name,Number of Calls,...
//	6,"System.String.IsNullOrEmpty(string)",4,0.00,0.00,0.00,0.00,"mscorlib.dll",
func (f *Folder) onLine(line string, occ occurrence.Map) error {
	depth, remainder, err := getNextNumber(line)
	if err != nil {
		return err
	}

	rest, ok := strings.CutPrefix(remainder, "\"")
	if !ok {
		return errors.Wrapf(collapse.ErrInvalidData, "unable to parse function name from line:\n%s", line)
	}
	closeIdx := strings.IndexByte(rest, '"')
	if closeIdx < 0 {
		return errors.Wrapf(collapse.ErrInvalidData, "unable to parse function name from line:\n%s", line)
	}
	functionName, rest := rest[:closeIdx], rest[closeIdx+1:]

	numberOfCalls, _, err := getNextNumber(rest)
	if err != nil {
		return err
	}

	prevDepth := int64(len(f.stack))

	switch {
	case prevDepth < depth:
		// Case 1: a new function is called.
		f.stack = append(f.stack, stackFrame{functionName, numberOfCalls})

	case prevDepth == depth:
		// Case 2: the previous call was a leaf; save it and replace the top.
		f.writeStack(occ)
		if len(f.stack) > 0 {
			f.stack = f.stack[:len(f.stack)-1]
		}
		f.stack = append(f.stack, stackFrame{functionName, numberOfCalls})

	default:
		// Case 3: the previous call was a leaf; save it, then pop until the
		// top node is our parent. Subtract callee call counts from the
		// parent so inclusive counts aren't double-attributed to it.
		var prevNumberOfCalls int64
		for i := int64(0); i < prevDepth-depth+1; i++ {
			if len(f.stack) == 0 {
				break
			}
			if prevNumberOfCalls != f.stack[len(f.stack)-1].numberOfCalls {
				f.writeStack(occ)
			}
			prevNumberOfCalls = f.stack[len(f.stack)-1].numberOfCalls
			f.stack = f.stack[:len(f.stack)-1]

			if len(f.stack) == 0 {
				break
			}
			last := len(f.stack) - 1
			if prevNumberOfCalls < f.stack[last].numberOfCalls {
				f.stack[last].numberOfCalls -= prevNumberOfCalls
			}
		}
		f.stack = append(f.stack, stackFrame{functionName, numberOfCalls})
	}

	return nil
}

func (f *Folder) writeStack(occ occurrence.Map) {
	if len(f.stack) == 0 {
		return
	}
	n := f.stack[len(f.stack)-1].numberOfCalls
	if n <= 0 {
		return
	}
	names := make([]string, len(f.stack))
	for i, s := range f.stack {
		names[i] = s.name
	}
	// Matches Occurrences::insert in the ported source: the key's count is
	// set or replaced, so identical stacks within one report are not summed.
	occ.Insert(strings.Join(names, ";"), n)
}
