// Package sample collapses the output of macOS `sample` into folded stacks.
// Grounded on _examples/original_source/src/collapse/sample.rs.
package sample

import (
	"bufio"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	log "github.com/sirupsen/logrus"

	"flamegraph/internal/collapse"
	"flamegraph/internal/occurrence"
	"flamegraph/internal/symbolfix"
)

// ignoreSymbols hides waiting threads from the view so the flame graph shows
// only what's actually running in the sample.
var ignoreSymbols = mapset.NewSet(
	"__psynch_cvwait",
	"__select",
	"__semwait_signal",
	"__ulock_wait",
	"__wait4",
	"__workq_kernreturn",
	"kevent",
	"mach_msg_trap",
	"read",
	"semaphore_wait_trap",
)

const startLine = "Call graph:"
const endLine = "Total number in stack"

// Options configures how frames are named from incoming sample stack traces.
// All options default to off.
type Options struct {
	// NoModules omits module names with function names.
	NoModules bool
}

// Folder is a stack collapser for the output of `sample` on macOS.
type Folder struct {
	stack          []string
	currentSamples int64
	opt            Options
}

// New constructs a Folder.
func New(opt Options) *Folder { return &Folder{opt: opt} }

func (f *Folder) PreProcess(r *bufio.Reader, occ occurrence.Map) error {
	for {
		line, err := collapse.ReadLine(r)
		if err != nil {
			log.Warn("File ended before start of call graph")
			return nil
		}
		if strings.HasPrefix(line, startLine) {
			return nil
		}
	}
}

func (f *Folder) CollapseSingleThreaded(r *bufio.Reader, occ occurrence.Map) error {
	for {
		raw, err := collapse.ReadLine(r)
		if err != nil {
			log.Warn("File ended before end of call graph")
			f.writeStack(occ)
			return nil
		}

		line := strings.TrimRight(raw, "\r\n")

		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "    "):
			f.onLine(line, occ)
		case strings.HasPrefix(line, endLine):
			f.writeStack(occ)
			return nil
		default:
			log.Errorf("Stack line doesn't start with 4 spaces:\n%s", line)
		}
	}
}

func (f *Folder) WouldEndStack(line []byte) bool {
	return strings.HasPrefix(string(line), endLine)
}

func (f *Folder) IsApplicable(sample string) *bool {
	foundStart := false
	sc := bufio.NewScanner(strings.NewReader(sample))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, startLine):
			foundStart = true
		case strings.HasPrefix(line, endLine):
			res := foundStart
			return &res
		}
	}
	return nil
}

func (f *Folder) CloneAndResetStackContext() collapse.Collapser {
	return New(f.opt)
}

func isIndentChar(c byte) bool {
	return c == ' ' || c == '+' || c == '|' || c == ':' || c == '!'
}

// lineParts splits a stack line's tail (after leading indentation) into
// (samples, func, module).
func (f *Folder) lineParts(line string) (samples, fn, module string, ok bool) {
	line = strings.TrimLeft(line, " \t")
	sp := strings.IndexByte(line, ' ')
	if sp < 0 {
		return "", "", "", false
	}
	samples = strings.TrimRight(line[:sp], " \t")
	rest := line[sp+1:]

	fn = rest
	if open := strings.IndexByte(rest, '('); open >= 0 {
		fn = rest[:open]
	}
	fn = strings.TrimRight(fn, " \t")

	if !f.opt.NoModules {
		if idx := strings.LastIndex(rest, "(in "); idx >= 0 {
			tail := rest[idx+len("(in "):]
			if close := strings.IndexByte(tail, ')'); close >= 0 {
				module = tail[:close]
			}
			module = strings.TrimSuffix(module, ".dylib")
		}
	}

	return samples, fn, module, true
}

// onLine handles call graph lines of the form:
//
//	5130 Thread_8749954
//	   + 5130 start_wqthread  (in libsystem_pthread.dylib) ...
//	   +   4282 _pthread_wqthread  (in libsystem_pthread.dylib) ...
//	   +   ! 4282 __doworkq_kernreturn  (in libsystem_kernel.dylib) ...
func (f *Folder) onLine(line string, occ occurrence.Map) {
	rest := line[4:]
	indentChars := 0
	for indentChars < len(rest) && isIndentChar(rest[indentChars]) {
		indentChars++
	}
	if indentChars == len(rest) {
		log.Errorf("Found stack line with only indent characters:\n%s", line)
		return
	}

	if indentChars%2 != 0 {
		log.Errorf("Odd number of indentation characters for line:\n%s", line)
	}

	prevDepth := len(f.stack)
	depth := indentChars/2 + 1

	if depth <= prevDepth {
		f.writeStack(occ)
		for i := 0; i <= prevDepth-depth; i++ {
			if len(f.stack) > 0 {
				f.stack = f.stack[:len(f.stack)-1]
			}
		}
	} else if depth > prevDepth+1 {
		log.Errorf("Skipped indentation level at line:\n%s", line)
	}

	samples, fn, module, ok := f.lineParts(rest[indentChars:])
	if !ok {
		log.Errorf("Unable to parse stack line:\n%s", line)
		return
	}

	n, err := strconv.ParseInt(samples, 10, 64)
	if err != nil {
		log.Errorf("Invalid samples field: %s", samples)
		return
	}
	f.currentSamples = n

	fn = symbolfix.Fix(fn)
	if module == "" {
		f.stack = append(f.stack, fn)
	} else {
		f.stack = append(f.stack, module+"`"+fn)
	}
}

func (f *Folder) writeStack(occ occurrence.Map) {
	if len(f.stack) > 0 {
		leaf := f.stack[len(f.stack)-1]
		for _, sym := range ignoreSymbols.ToSlice() {
			if strings.HasSuffix(leaf, sym) {
				return
			}
		}
	}
	occ.InsertOrAdd(strings.Join(f.stack, ";"), f.currentSamples)
}
