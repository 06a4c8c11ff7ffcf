package svg

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// attr is one XML attribute, kept as a slice of pairs (not a map) since
// emission order matters for the golden-file comparisons downstream tooling
// runs against this renderer's output.
type attr struct {
	name, value string
}

// xmlWriter emits a stream of SVG elements with manual escaping. Grounded on
// the element-by-element write calls in
// _examples/original_source/src/flamegraph/{mod,svg}.rs's quick_xml usage;
// there is no XML-writing library anywhere in the example pack suited to
// this raw, streaming, self-closing-tag-aware style, so this is a deliberate
// stdlib (bufio + manual escaping) choice.
type xmlWriter struct {
	w   *bufio.Writer
	err error
}

func newXMLWriter(w io.Writer) *xmlWriter {
	return &xmlWriter{w: bufio.NewWriter(w)}
}

func (x *xmlWriter) raw(s string) {
	if x.err != nil {
		return
	}
	_, x.err = x.w.WriteString(s)
}

func (x *xmlWriter) startTag(name string, attrs []attr) {
	x.raw("<" + name)
	x.attrs(attrs)
	x.raw(">")
}

func (x *xmlWriter) selfClosing(name string, attrs []attr) {
	x.raw("<" + name)
	x.attrs(attrs)
	x.raw("/>")
}

func (x *xmlWriter) endTag(name string) {
	x.raw("</" + name + ">")
}

func (x *xmlWriter) attrs(attrs []attr) {
	for _, a := range attrs {
		x.raw(" " + a.name + `="` + escapeAttr(a.value) + `"`)
	}
}

func (x *xmlWriter) text(s string) {
	x.raw(escapeText(s))
}

func (x *xmlWriter) comment(s string) {
	x.raw("<!--" + s + "-->")
}

func (x *xmlWriter) cdata(s string) {
	x.raw("<![CDATA[" + s + "]]>")
}

func (x *xmlWriter) flush() error {
	if x.err != nil {
		return x.err
	}
	return x.w.Flush()
}

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeText(s string) string {
	return textEscaper.Replace(s)
}

var attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

func escapeAttr(s string) string {
	return attrEscaper.Replace(s)
}

func itoa(n int) string { return strconv.Itoa(n) }

func ftoa2(f float64) string { return strconv.FormatFloat(f, 'f', 2, 64) }
