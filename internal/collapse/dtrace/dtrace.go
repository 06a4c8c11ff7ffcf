// Package dtrace collapses the output of DTrace's ustack()/ustrace() into
// folded stacks. Grounded on
// _examples/original_source/src/collapse/dtrace.rs.
package dtrace

import (
	"bufio"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"flamegraph/internal/collapse"
	"flamegraph/internal/occurrence"
)

// Options configures the dtrace collapser. All options default to off.
type Options struct {
	// IncludeOffset keeps the function offset, except on the leaf frame.
	IncludeOffset bool
}

// Folder is a stack collapser for dtrace ustack() output.
//
// Unlike the original implementation this is ported from (which assembles
// the stack in reverse, as perf does, under the assumption that frame lines
// run leaf-first), this parser appends frames in the order they appear in
// the input: the worked example in this toolchain's own spec lists frames
// root-first, and this folder is built to match it exactly.
type Folder struct {
	stack []string
	opt   Options
}

// New constructs a Folder.
func New(opt Options) *Folder { return &Folder{opt: opt} }

func (f *Folder) PreProcess(r *bufio.Reader, occ occurrence.Map) error {
	for {
		line, err := collapse.ReadLine(r)
		if err != nil {
			log.Warn("File ended while skipping headers")
			return nil
		}
		if strings.TrimSpace(line) == "" {
			return nil
		}
	}
}

func (f *Folder) CollapseSingleThreaded(r *bufio.Reader, occ occurrence.Map) error {
	for {
		raw, err := collapse.ReadLine(r)
		if err != nil {
			break
		}
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if count, perr := strconv.ParseUint(line, 10, 64); perr == nil {
			f.onStackEnd(int64(count), occ)
		} else {
			f.onStackLine(line)
		}
	}
	return nil
}

func (f *Folder) WouldEndStack(line []byte) bool {
	return len(strings.TrimSpace(string(line))) == 0
}

func (f *Folder) IsApplicable(sample string) *bool {
	foundEmpty, foundStack, foundCount := false, false, false
	sc := bufio.NewScanner(strings.NewReader(sample))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			if foundCount && foundStack {
				res := true
				return &res
			}
			foundEmpty = true
			continue
		}
		if !foundEmpty {
			continue
		}
		if _, err := strconv.ParseUint(line, 10, 64); err == nil {
			if foundCount || !foundStack {
				res := false
				return &res
			}
			foundCount = true
		} else {
			if foundCount {
				res := false
				return &res
			}
			foundStack = true
		}
	}
	return nil
}

func (f *Folder) CloneAndResetStackContext() collapse.Collapser {
	return New(f.opt)
}

// uncpp approximates the Perl regex s/(::.*)[(<].*/$1/, removing argument
// lists while preserving C++ scope qualifiers.
func uncpp(probe string) string {
	scope := strings.Index(probe, "::")
	if scope < 0 {
		return probe
	}
	rest := probe[scope+2:]
	open := strings.LastIndexAny(rest, "(<")
	if open < 0 {
		return probe
	}
	return probe[:scope+2+open]
}

func removeOffset(line string) string {
	idx := strings.LastIndexByte(line, '+')
	if idx < 0 {
		return line
	}
	return line[:idx]
}

// stripModule drops a leading `module\`` qualifier, matching how this
// toolchain's folded-stack keys name functions independent of their owning
// module (see also the color engine's namehash backtick handling).
func stripModule(frame string) string {
	if idx := strings.IndexByte(frame, '`'); idx >= 0 {
		return frame[idx+1:]
	}
	return frame
}

func (f *Folder) onStackLine(line string) {
	line = strings.TrimLeft(line, " \t")
	frame := line
	if !f.opt.IncludeOffset {
		frame = removeOffset(line)
	}
	frame = stripModule(frame)
	frame = uncpp(frame)
	if frame == "" {
		frame = "-"
	}

	inline := false
	for _, part := range strings.Split(frame, "->") {
		fn := strings.TrimPrefix(part, "L")
		fn = strings.ReplaceAll(fn, ";", ":")
		if inline {
			fn += "_[i]"
		}
		inline = true
		f.stack = append(f.stack, fn)
	}
}

func (f *Folder) onStackEnd(count int64, occ occurrence.Map) {
	last := len(f.stack) - 1
	var b strings.Builder
	for i, e := range f.stack {
		if i > 0 {
			b.WriteByte(';')
		}
		if f.opt.IncludeOffset && i == last {
			b.WriteString(removeOffset(e))
		} else {
			b.WriteString(e)
		}
	}
	occ.InsertOrAdd(b.String(), count)
	f.stack = f.stack[:0]
}
