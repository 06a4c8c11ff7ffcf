// Package xctrace collapses the XML export of Instruments' Time Profiler
// (`xctrace export`) into folded stacks. Grounded on
// _examples/original_source/src/collapse/xctrace.rs.
package xctrace

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"flamegraph/internal/collapse"
	"flamegraph/internal/occurrence"
	"flamegraph/internal/symbolfix"
)

// Options configures the xctrace collapser. There are currently no options.
type Options struct{}

// Folder is a stack collapser for xctrace's XML export format.
type Folder struct {
	opt Options
}

// New constructs a Folder.
func New(opt Options) *Folder { return &Folder{opt: opt} }

func (f *Folder) PreProcess(r *bufio.Reader, occ occurrence.Map) error {
	return nil
}

// frame is a single named stack frame, referenceable later in the document
// via its id.
type frame struct {
	id   uint64
	name string
}

// backtrace is an ordered list of frames (top-to-bottom as xctrace emits
// them, i.e. leaf first), referenceable later in the document via its id.
type backtrace struct {
	id     uint64
	frames []*frame
}

// toFolded renders a backtrace as a folded-stack segment, reversing frame
// order since xctrace lists frames leaf-first.
func (b *backtrace) toFolded() string {
	parts := make([]string, len(b.frames))
	for i, fr := range b.frames {
		parts[len(b.frames)-1-i] = symbolfix.Fix(fr.name)
	}
	return strings.Join(parts, ";")
}

// tagKind identifies which of the tags this parser interprets a given open
// element as; tagOther covers every element xctrace emits that carries no
// data this parser needs (plist metadata, run info, and so on).
type tagKind int

const (
	tagOther tagKind = iota
	tagTraceQueryResult
	tagNode
	tagRow
	tagBacktrace
	tagFrame
)

// tagState is the state pushed for one open XML element, holding whatever
// partial data its children have contributed, or (for a self-closing
// `ref=".."` element) the already-resolved value it stands for.
type tagState struct {
	kind tagKind
	name string // populated only when kind == tagOther

	row             *backtrace // accumulated/resolved on a tagRow element
	backtraceID     uint64     // accumulated on a tagBacktrace element being built
	backtraceFrames []*frame   // accumulated on a tagBacktrace element being built
	resolvedBt      *backtrace // set instead of the above when this is a ref
	resolvedOrNewFr *frame     // set on a tagFrame element, built or resolved
}

func attrValue(attrs []xml.Attr, local string) (string, bool) {
	for _, a := range attrs {
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

func attrUint64(attrs []xml.Attr, local string) (uint64, bool) {
	v, ok := attrValue(attrs, local)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// context threads the per-document scan stack, the rows collected so far
// (every <row> seen, in order — which <node> a row lives under doesn't
// matter to the folded output), and the forward/backward reference caches
// a <backtrace ref=".."/> or <frame ref=".."/> resolves against. Cleared on
// every invocation, never shared across documents.
type context struct {
	stack      []*tagState
	rows       []*backtrace
	backtraces map[uint64]*backtrace
	frames     map[uint64]*frame
}

func (c *context) top() *tagState {
	if len(c.stack) == 0 {
		return nil
	}
	return c.stack[len(c.stack)-1]
}

func (c *context) newTagFor(name string, attrs []xml.Attr) (*tagState, error) {
	top := c.top()
	switch {
	case top == nil && name == "trace-query-result":
		return &tagState{kind: tagTraceQueryResult}, nil

	case top != nil && top.kind == tagTraceQueryResult && name == "node":
		return &tagState{kind: tagNode}, nil

	case top != nil && top.kind == tagNode && name == "row":
		return &tagState{kind: tagRow}, nil

	case top != nil && top.kind == tagRow && name == "backtrace":
		if refID, ok := attrUint64(attrs, "ref"); ok {
			bt, ok := c.backtraces[refID]
			if !ok {
				return nil, errors.Wrapf(collapse.ErrInvalidData, "invalid backtrace ref id: %d", refID)
			}
			return &tagState{kind: tagBacktrace, resolvedBt: bt}, nil
		}
		id, ok := attrUint64(attrs, "id")
		if !ok {
			return nil, errors.Wrap(collapse.ErrInvalidData, "backtrace element missing both ref and id")
		}
		return &tagState{kind: tagBacktrace, backtraceID: id}, nil

	case top != nil && top.kind == tagBacktrace && name == "frame":
		if refID, ok := attrUint64(attrs, "ref"); ok {
			fr, ok := c.frames[refID]
			if !ok {
				return nil, errors.Wrapf(collapse.ErrInvalidData, "invalid frame ref id: %d", refID)
			}
			return &tagState{kind: tagFrame, resolvedOrNewFr: fr}, nil
		}
		id, ok := attrUint64(attrs, "id")
		if !ok {
			return nil, errors.Wrap(collapse.ErrInvalidData, "frame element missing id")
		}
		fname, ok := attrValue(attrs, "name")
		if !ok {
			return nil, errors.Wrap(collapse.ErrInvalidData, "frame element missing name")
		}
		return &tagState{kind: tagFrame, resolvedOrNewFr: &frame{id: id, name: fname}}, nil

	default:
		return &tagState{kind: tagOther, name: name}, nil
	}
}

func (s *tagState) matches(name string) bool {
	switch s.kind {
	case tagTraceQueryResult:
		return name == "trace-query-result"
	case tagNode:
		return name == "node"
	case tagRow:
		return name == "row"
	case tagBacktrace:
		return name == "backtrace"
	case tagFrame:
		return name == "frame"
	default:
		return s.name == name
	}
}

// scan walks the XML document, returning every row's backtrace in document
// order once the outer <trace-query-result> element closes.
func scan(dec *xml.Decoder) ([]*backtrace, error) {
	ctx := &context{
		backtraces: make(map[uint64]*backtrace),
		frames:     make(map[uint64]*frame),
	}

	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				return nil, errors.Wrap(collapse.ErrInvalidData, "unexpected EOF")
			}
			return nil, errors.Wrapf(collapse.ErrInvalidData, "read xml token failed: %v", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			state, err := ctx.newTagFor(t.Name.Local, t.Attr)
			if err != nil {
				return nil, err
			}
			ctx.stack = append(ctx.stack, state)

		case xml.EndElement:
			name := t.Name.Local
			if len(ctx.stack) == 0 || !ctx.top().matches(name) {
				return nil, errors.Wrapf(collapse.ErrInvalidData, "unpaired tag: %s", name)
			}
			closed := ctx.stack[len(ctx.stack)-1]
			ctx.stack = ctx.stack[:len(ctx.stack)-1]
			parent := ctx.top()

			switch {
			case parent == nil && closed.kind == tagTraceQueryResult:
				return ctx.rows, nil

			case parent != nil && parent.kind == tagNode && closed.kind == tagRow:
				// <backtrace/> in some rows is a plain sentinel tag instead
				// of an actual backtrace; such rows are dropped.
				if closed.row != nil {
					ctx.rows = append(ctx.rows, closed.row)
				}

			case parent != nil && parent.kind == tagRow && closed.kind == tagBacktrace:
				var bt *backtrace
				if closed.resolvedBt != nil {
					bt = closed.resolvedBt
				} else {
					bt = &backtrace{id: closed.backtraceID, frames: closed.backtraceFrames}
					ctx.backtraces[bt.id] = bt
				}
				parent.row = bt

			case parent != nil && parent.kind == tagBacktrace && closed.kind == tagFrame:
				fr := closed.resolvedOrNewFr
				ctx.frames[fr.id] = fr
				parent.backtraceFrames = append(parent.backtraceFrames, fr)
			}

		default:
			// CharData, Comment, ProcInst, Directive: ignored.
		}
	}
}

func (f *Folder) CollapseSingleThreaded(r *bufio.Reader, occ occurrence.Map) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}

	dec := xml.NewDecoder(bytes.NewReader(buf.Bytes()))
	rows, err := scan(dec)
	if err != nil {
		return err
	}

	type counted struct {
		num       int64
		backtrace *backtrace
	}
	seen := make(map[uint64]*counted)
	var order []uint64
	for _, bt := range rows {
		c, ok := seen[bt.id]
		if !ok {
			c = &counted{backtrace: bt}
			seen[bt.id] = c
			order = append(order, bt.id)
		}
		c.num++
	}

	for _, id := range order {
		c := seen[id]
		occ.InsertOrAdd(c.backtrace.toFolded(), c.num)
	}
	return nil
}

func (f *Folder) WouldEndStack(line []byte) bool {
	return false
}

// IsApplicable reports whether the sample's first non-blank line is the
// xctrace XML declaration.
func (f *Folder) IsApplicable(sample string) *bool {
	sc := bufio.NewScanner(strings.NewReader(sample))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		res := strings.Contains(line, `<?xml version="1.0"?>`)
		return &res
	}
	return nil
}

func (f *Folder) CloneAndResetStackContext() collapse.Collapser {
	return New(f.opt)
}
