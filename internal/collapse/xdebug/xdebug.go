// Package xdebug collapses Xdebug function trace files into folded stacks.
// Grounded on _examples/original_source/src/collapse/xdebug.rs.
//
// Function names repeat across the vast majority of rows in a real trace, so
// this parser interns strings and call combinations into small integer
// indices and accumulates durations keyed by the index vector, rendering the
// final folded-stack string for each distinct call stack only once.
package xdebug

import (
	"bufio"
	"encoding/binary"
	"math"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"flamegraph/internal/collapse"
	"flamegraph/internal/occurrence"
)

// scaleFactor converts Xdebug's timestamps, in seconds, to the microsecond
// counts folded stacks elsewhere in this toolchain expect.
const scaleFactor = 1_000_000.0

const traceStart = "TRACE START"
const traceEnd = "TRACE END"

// calls lists the builtin names xdebug traces specially, qualifying them
// with the invoked path so that e.g. two different included files both
// named via `require` are told apart.
var calls = []string{"require", "require_once", "include", "include_once"}

// Options configures the xdebug collapser. There are currently no options.
type Options struct{}

type callKey struct {
	hasPath bool
	name    int
	path    int
}

// callStack interns function names and name/path call combinations into
// small integer indices, and tracks the current call stack as a slice of
// those indices.
type callStack struct {
	strings        map[string]int
	internedString []string

	calls     map[callKey]int
	interned  []callKey
	callStack []int
}

func newCallStack() *callStack {
	cs := &callStack{
		strings: make(map[string]int, len(calls)),
		calls:   make(map[callKey]int),
	}
	for i, name := range calls {
		cs.strings[name] = i
		cs.internedString = append(cs.internedString, name)
	}
	return cs
}

func (cs *callStack) internStr(s string) (idx int, wasOld bool) {
	if idx, ok := cs.strings[s]; ok {
		return idx, true
	}
	idx = len(cs.internedString)
	cs.internedString = append(cs.internedString, s)
	cs.strings[s] = idx
	return idx, false
}

// call pushes a call frame. Only names that were already known (the four
// builtins above, or any name already seen earlier in this trace with
// index <= 4) carry their invoking path; this mirrors the range the ported
// source checks, rather than every builtin the set could in principle hold.
func (cs *callStack) call(name, path string) {
	nameIdx, nameWasOld := cs.internStr(name)

	var key callKey
	if nameWasOld && nameIdx <= 4 {
		pathIdx, _ := cs.internStr(path)
		key = callKey{hasPath: true, name: nameIdx, path: pathIdx}
	} else {
		key = callKey{hasPath: false, name: nameIdx}
	}

	idx, ok := cs.calls[key]
	if !ok {
		idx = len(cs.interned)
		cs.interned = append(cs.interned, key)
		cs.calls[key] = idx
	}
	cs.callStack = append(cs.callStack, idx)
}

func (cs *callStack) pop() {
	if len(cs.callStack) > 0 {
		cs.callStack = cs.callStack[:len(cs.callStack)-1]
	}
}

func (cs *callStack) isEmpty() bool { return len(cs.callStack) == 0 }

func (cs *callStack) current() []int { return cs.callStack }

func (cs *callStack) frameName(idx int) string {
	c := cs.interned[idx]
	if c.hasPath {
		return cs.internedString[c.name] + "(" + cs.internedString[c.path] + ")"
	}
	return cs.internedString[c.name]
}

func (cs *callStack) render(indices []int) string {
	var b strings.Builder
	for i, idx := range indices {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(cs.frameName(idx))
	}
	return b.String()
}

func stackKey(indices []int) string {
	buf := make([]byte, len(indices)*8)
	for i, v := range indices {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(v))
	}
	return string(buf)
}

type accum struct {
	indices  []int
	duration float64
}

// Folder is a stack collapser for Xdebug trace files.
type Folder struct {
	opt Options
}

// New constructs a Folder.
func New(opt Options) *Folder { return &Folder{opt: opt} }

func (f *Folder) PreProcess(r *bufio.Reader, occ occurrence.Map) error {
	return nil
}

// fields splits a tab-separated line into non-empty tab-delimited tokens.
func fields(line string) []string {
	var out []string
	for _, part := range strings.Split(line, "\t") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (f *Folder) CollapseSingleThreaded(r *bufio.Reader, occ occurrence.Map) error {
	for {
		line, err := collapse.ReadLine(r)
		if err != nil {
			return nil
		}
		if strings.HasPrefix(line, traceStart) {
			break
		}
	}

	stacks := make(map[string]*accum)
	cs := newCallStack()
	var prevStartTime float64

	for {
		line, err := collapse.ReadLine(r)
		if err != nil {
			break
		}
		if strings.HasPrefix(line, traceEnd) {
			break
		}

		parts := fields(line)
		if len(parts) < 4 {
			continue
		}
		// parts[0] and parts[1] (level, function number) are not used.
		isExitField, timeField := parts[2], parts[3]

		var isExit bool
		switch isExitField {
		case "1":
			isExit = true
		case "0":
			isExit = false
		default:
			log.Warnf("Unexpected entry/exit marker %q, discarding line", isExitField)
			continue
		}

		t, err := strconv.ParseFloat(timeField, 64)
		if err != nil {
			log.Warnf("Invalid timestamp field %q, discarding line", timeField)
			continue
		}

		if isExit && cs.isEmpty() {
			log.Warn("Found function exit without corresponding entrance. Discarding line.")
			continue
		}

		current := cs.current()
		duration := scaleFactor * (t - prevStartTime)
		key := stackKey(current)
		if a, ok := stacks[key]; ok {
			a.duration += duration
		} else {
			indices := append([]int(nil), current...)
			stacks[key] = &accum{indices: indices, duration: duration}
		}

		if isExit {
			cs.pop()
		} else if len(parts) >= 6 {
			funcName := parts[5]
			var pathName string
			if len(parts) >= 8 {
				pathName = parts[7]
			}
			cs.call(funcName, pathName)
		}

		prevStartTime = t
	}

	for _, a := range stacks {
		occ.InsertOrAdd(cs.render(a.indices), int64(math.Round(a.duration)))
	}
	return nil
}

func (f *Folder) WouldEndStack(line []byte) bool {
	return strings.HasPrefix(string(line), traceEnd)
}

// IsApplicable scans for a TRACE START header line anywhere in the sample.
// (The ported source's equivalent check returns false on the very first
// line read regardless of its content — an apparent bug in the code this
// was ported from, not a documented behavior this toolchain's spec asks to
// preserve, so this scans properly instead; see DESIGN.md.)
func (f *Folder) IsApplicable(sample string) *bool {
	sc := bufio.NewScanner(strings.NewReader(sample))
	for sc.Scan() {
		if strings.HasPrefix(sc.Text(), traceStart) {
			res := true
			return &res
		}
	}
	return nil
}

func (f *Folder) CloneAndResetStackContext() collapse.Collapser {
	return New(f.opt)
}
