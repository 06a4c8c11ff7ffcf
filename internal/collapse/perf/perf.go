// Package perf collapses the output of `perf script` into folded stacks.
//
// Grounded on the teacher's standalone stackcollapse-perf tool (read for its
// regex idiom, then removed as an unwired duplicate of this package), and on
// _examples/original_source/src/collapse/perf.rs for the exact algorithm.
package perf

import (
	"bufio"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	log "github.com/sirupsen/logrus"

	"flamegraph/internal/collapse"
	"flamegraph/internal/occurrence"
)

const tidyGeneric = true
const tidyJava = true

// Options configures how frames are named from incoming perf stack traces.
// All options default to off.
type Options struct {
	// IncludePID includes the PID in the root frame.
	IncludePID bool
	// IncludeTID includes TID and PID in the root frame. Implies IncludePID.
	IncludeTID bool
	// IncludeAddrs includes raw addresses where symbols can't be found.
	IncludeAddrs bool
	// AnnotateJIT annotates JIT functions with a `_[j]` suffix.
	AnnotateJIT bool
	// AnnotateKernel annotates kernel functions with a `_[k]` suffix.
	AnnotateKernel bool
	// EventFilter restricts collapsing to samples whose event type is a
	// member of this set. When nil or empty, the first encountered event
	// type is used as a single-element default filter.
	EventFilter mapset.Set[string]
}

type eventFilterState int

const (
	filterNone eventFilterState = iota
	filterDefaulted
	filterWarned
)

// Folder is a stack collapser for `perf script` output.
type Folder struct {
	inEvent   bool
	skipStack bool
	stack     []string
	cacheLine []string
	pname     string

	eventFiltering eventFilterState

	opt Options
}

// New constructs a Folder. IncludeTID implies IncludePID.
func New(opt Options) *Folder {
	if opt.IncludeTID {
		opt.IncludePID = true
	}
	return &Folder{opt: opt}
}

func (f *Folder) PreProcess(r *bufio.Reader, occ occurrence.Map) error {
	return nil
}

func (f *Folder) CollapseSingleThreaded(r *bufio.Reader, occ occurrence.Map) error {
	for {
		line, err := collapse.ReadLine(r)
		if err != nil {
			break
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			f.afterEvent(occ)
		} else {
			f.onLine(trimmed)
		}
	}
	return nil
}

func (f *Folder) WouldEndStack(line []byte) bool {
	return len(strings.TrimRight(string(line), "\r\n")) == 0
}

func (f *Folder) IsApplicable(sample string) *bool {
	lastWasEvent := false
	sc := bufio.NewScanner(strings.NewReader(sample))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		if line == "" {
			lastWasEvent = false
			continue
		}
		if lastWasEvent {
			_, _, _, ok := stackLineParts(line)
			res := ok
			return &res
		}
		if _, _, _, ok := eventLineParts(line); !ok {
			res := false
			return &res
		}
		lastWasEvent = true
	}
	return nil
}

func (f *Folder) CloneAndResetStackContext() collapse.Collapser {
	return New(f.opt)
}

func (f *Folder) onLine(line string) {
	if !f.inEvent {
		f.onEventLine(line)
	} else {
		f.onStackLine(line)
	}
}

// eventLineParts parses an event line like "java 25607 4794564.109216: cycles:"
// returning (comm, pid, tid, ok). pid is "?" when the line carries only a tid.
func eventLineParts(line string) (comm, pid, tid string, ok bool) {
	wordStart := 0
	allDigits := false
	lastWasSpace := false
	slashAt := -1

	runes := []rune(line)
	for idx, c := range runes {
		if c == ' ' {
			if allDigits && !lastWasSpace {
				if slashAt >= 0 {
					pid = string(runes[wordStart:slashAt])
					tid = string(runes[slashAt+1 : idx])
				} else {
					pid = "?"
					tid = string(runes[wordStart:idx])
				}
				comm = strings.TrimSpace(string(runes[:wordStart-1]))
				return comm, pid, tid, true
			}
			wordStart = idx + 1
			allDigits = true
		} else if c == '/' {
			if allDigits {
				slashAt = idx
			}
		} else if c >= '0' && c <= '9' {
			// still all digits
		} else {
			allDigits = false
			slashAt = -1
		}
		lastWasSpace = c == ' '
	}
	return "", "", "", false
}

func (f *Folder) onEventLine(line string) {
	f.inEvent = true

	comm, pid, tid, ok := eventLineParts(line)
	if !ok {
		log.Warnf("weird event line: %s", line)
		f.inEvent = false
		return
	}

	if idx := strings.LastIndex(line, " "); idx >= 0 {
		event := line[idx+1:]
		if strings.HasSuffix(event, ":") {
			event = event[:len(event)-1]
			if f.opt.EventFilter != nil && f.opt.EventFilter.Cardinality() > 0 {
				if !f.opt.EventFilter.Contains(event) {
					if f.eventFiltering == filterDefaulted {
						log.Warnf("Filtering for events of type: %s", strings.Join(f.opt.EventFilter.ToSlice(), ","))
						f.eventFiltering = filterWarned
					}
					f.skipStack = true
					return
				}
			} else {
				f.opt.EventFilter = mapset.NewSet(event)
				f.eventFiltering = filterDefaulted
			}
		}
	}

	f.pname = strings.ReplaceAll(comm, " ", "_")
	if f.opt.IncludeTID {
		f.pname += "-" + pid + "/" + tid
	} else if f.opt.IncludePID {
		f.pname += "-" + pid
	}
}

// stackLineParts parses a stack line like
// "ffffffff8103ce3b native_safe_halt ([kernel.kallsyms])" into
// (pc, rawfunc, module, ok). A line with no pc column, like
// "foo (/lib/a.so)", yields an empty pc and "foo" as rawfunc.
func stackLineParts(line string) (pc, rawfunc, module string, ok bool) {
	line = strings.TrimLeft(line, " \t")
	sp := strings.IndexByte(line, ' ')
	if sp < 0 {
		return "", "", "", false
	}
	pc = strings.TrimRight(line[:sp], " \t")
	rest := line[sp+1:]

	lastOpen := strings.LastIndexByte(rest, '(')
	if lastOpen < 0 {
		return "", "", "", false
	}
	// module is wrapped in (), strip them
	moduleRaw := rest[lastOpen:]
	if len(moduleRaw) < 2 || moduleRaw[0] != '(' || moduleRaw[len(moduleRaw)-1] != ')' {
		return "", "", "", false
	}
	module = moduleRaw[1 : len(moduleRaw)-1]

	rawfunc = strings.TrimSpace(rest[:lastOpen])
	if lastOpen == 0 {
		rawfunc, pc = pc, ""
	}
	if rawfunc == "" {
		rawfunc = " "
	}
	return pc, rawfunc, module, true
}

func withModuleFallback(module, fn, pc string, includeAddrs bool) string {
	if fn != "[unknown]" {
		return fn
	}
	var base string
	if module == "[unknown]" {
		if includeAddrs {
			base = "unknown"
		} else {
			return fn
		}
	} else {
		if idx := strings.LastIndexByte(module, '/'); idx >= 0 {
			base = module[idx+1:]
		} else {
			base = module
		}
	}
	if includeAddrs {
		return "[" + base + " <" + pc + ">]"
	}
	return "[" + base + "]"
}

func tidyGenericFn(fn string) string {
	fn = strings.ReplaceAll(fn, ";", ":")
	firstParen := strings.IndexByte(fn, '(')
	if firstParen < 0 {
		return fn
	}
	if strings.HasPrefix(fn[firstParen:], "anonymous namespace)") {
		return fn
	}
	isGo := firstParen > 0 && fn[firstParen-1] == '.'
	if isGo {
		return fn
	}
	return fn[:firstParen]
}

func tidyJavaFn(fn string) string {
	if strings.HasPrefix(fn, "L") && strings.Contains(fn, "/") {
		return fn[1:]
	}
	return fn
}

func (f *Folder) onStackLine(line string) {
	if f.skipStack {
		return
	}

	pc, rawfunc, module, ok := stackLineParts(line)
	if !ok {
		log.Warnf("weird stack line: %s", line)
		return
	}

	if offset := strings.LastIndex(rawfunc, "+0x"); offset >= 0 {
		end := rawfunc[offset+3:]
		if isAllHex(end) {
			rawfunc = rawfunc[:offset]
		}
	}

	if strings.HasPrefix(rawfunc, "(") {
		return
	}

	for _, part := range strings.Split(rawfunc, "->") {
		fn := withModuleFallback(module, part, pc, f.opt.IncludeAddrs)
		if tidyGeneric {
			fn = tidyGenericFn(fn)
		}
		if tidyJava && f.pname == "java" {
			fn = tidyJavaFn(fn)
		}

		switch {
		case len(f.cacheLine) != 0:
			fn += "_[i]"
		case f.opt.AnnotateKernel && (strings.HasPrefix(module, "[") || strings.HasSuffix(module, "vmlinux")) && module != "[unknown]":
			fn += "_[k]"
		case f.opt.AnnotateJIT && strings.HasPrefix(module, "/tmp/perf-") && strings.HasSuffix(module, ".map"):
			fn += "_[j]"
		}

		f.cacheLine = append(f.cacheLine, fn)
	}

	for i := len(f.cacheLine) - 1; i >= 0; i-- {
		f.stack = append([]string{f.cacheLine[i]}, f.stack...)
	}
	f.cacheLine = f.cacheLine[:0]
}

func isAllHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

func (f *Folder) afterEvent(occ occurrence.Map) {
	if !f.skipStack {
		var b strings.Builder
		b.WriteString(f.pname)
		for _, e := range f.stack {
			b.WriteByte(';')
			b.WriteString(e)
		}
		occ.InsertOrAdd(b.String(), 1)
	}

	f.inEvent = false
	f.skipStack = false
	f.stack = f.stack[:0]
}

// ParseEventFilter splits the --event-filter CLI flag (comma-separated
// event names) into a set suitable for Options.EventFilter.
func ParseEventFilter(flag string) mapset.Set[string] {
	if flag == "" {
		return nil
	}
	return mapset.NewSet(strings.Split(flag, ",")...)
}
