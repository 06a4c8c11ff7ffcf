// Package pmc collapses the output of FreeBSD `pmcstat -G` (callchain mode)
// into folded stacks. Grounded on
// _examples/original_source/src/collapse/pmc.rs.
package pmc

import (
	"bufio"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"flamegraph/internal/collapse"
	"flamegraph/internal/occurrence"
)

// Options configures the pmc collapser.
type Options struct{}

// Folder is a stack collapser for `pmcstat -G` output.
type Folder struct {
	// stack holds function entries on the stack seen so far, front = the
	// most-recently-parsed (deepest-indent, root-ward) entry.
	stack []string
	// indent is the leading-space count found on the last stack line.
	indent *int
	// count is the sample count found on the last stack line.
	count *int64

	opt Options
}

// New constructs a Folder.
func New(opt Options) *Folder { return &Folder{opt: opt} }

func (f *Folder) PreProcess(r *bufio.Reader, occ occurrence.Map) error {
	return nil
}

func (f *Folder) CollapseSingleThreaded(r *bufio.Reader, occ occurrence.Map) error {
	for {
		done, err := f.processSingleStack(r, occ)
		if err != nil {
			return err
		}
		if done {
			break
		}
	}
	f.stack = nil
	f.indent = nil
	f.count = nil
	return nil
}

// processSingleStack reads one event's worth of stack lines. Returns
// (done, err) where done indicates the reader is exhausted.
func (f *Folder) processSingleStack(r *bufio.Reader, occ occurrence.Map) (bool, error) {
	for {
		raw, err := collapse.ReadLine(r)
		if err != nil {
			if len(f.stack) > 0 {
				f.afterStack(occ)
			}
			return true, nil
		}
		if strings.HasPrefix(raw, "@") {
			continue
		}
		line := strings.TrimRight(raw, "\r\n")
		if line == "" {
			f.afterStack(occ)
			return false, nil
		}
		f.onStackLine(line, occ)
	}
}

func (f *Folder) WouldEndStack(line []byte) bool {
	return len(line) == 0
}

func (f *Folder) IsApplicable(sample string) *bool {
	sc := bufio.NewScanner(strings.NewReader(sample))
	if !sc.Scan() {
		return nil
	}
	line := strings.TrimSpace(sc.Text())
	res := strings.HasPrefix(line, "@ ") && strings.HasSuffix(line, " samples]")
	return &res
}

func (f *Folder) CloneAndResetStackContext() collapse.Collapser {
	return New(f.opt)
}

// stackLineParts extracts (indent, percent, count, function) from a stack
// line. The module suffix ("@ module") is ignored.
//
// Ex: "08.91%  [1318]     acpi_cpu_c1 @ /boot/kernel/kernel"
func stackLineParts(line string) (indent int, percent string, count int64, function string, ok bool) {
	trimmed := strings.TrimLeft(line, " \t")
	indent = len(line) - len(trimmed)

	fields := strings.Fields(trimmed)
	if len(fields) < 3 {
		return 0, "", 0, "", false
	}
	pctField, countField, fnField := fields[0], fields[1], fields[2]

	if len(pctField) < 2 || !strings.HasSuffix(pctField, "%") {
		return 0, "", 0, "", false
	}
	if len(countField) < 3 || !strings.HasPrefix(countField, "[") || !strings.HasSuffix(countField, "]") {
		return 0, "", 0, "", false
	}
	n, err := strconv.ParseInt(countField[1:len(countField)-1], 10, 64)
	if err != nil {
		return 0, "", 0, "", false
	}
	return indent, pctField[:len(pctField)-1], n, fnField, true
}

func (f *Folder) onStackLine(line string, occ occurrence.Map) {
	indent, _, count, function, ok := stackLineParts(line)
	if !ok {
		log.Warnf("Weird stack line: %s", line)
		return
	}

	// Detect shared subtrees: an indent at or below the previous indent
	// means this line starts a new branch sharing a common leaf-side
	// prefix with the one just emitted.
	if f.indent != nil && indent <= *f.indent {
		var b strings.Builder
		for i, e := range f.stack {
			if i > 0 {
				b.WriteByte(';')
			}
			b.WriteString(e)
		}
		occ.InsertOrAdd(b.String(), *f.count)

		// Keep only the last `indent` entries (the shared leaf-side part);
		// drop the diverged root-ward prefix.
		if drop := len(f.stack) - indent; drop > 0 {
			f.stack = f.stack[drop:]
		}
	}

	f.indent = &indent
	f.count = &count

	f.stack = append([]string{function}, f.stack...)
}

func (f *Folder) afterStack(occ occurrence.Map) {
	if len(f.stack) == 0 {
		return
	}
	var b strings.Builder
	for i, e := range f.stack {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(e)
	}
	occ.InsertOrAdd(b.String(), *f.count)

	f.stack = nil
	f.indent = nil
	f.count = nil
}
