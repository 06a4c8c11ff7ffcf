package svg

import (
	"bytes"
	"encoding/xml"
	"math/rand"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flamegraph/internal/attrs"
	"flamegraph/internal/collapse"
)

// assertWellFormedXML parses the document with encoding/xml's tokenizer,
// which is enough to catch unbalanced start/end tags like the x.endTag("a")
// ordering bug this package once had.
func assertWellFormedXML(t *testing.T, doc string) {
	t.Helper()
	dec := xml.NewDecoder(strings.NewReader(doc))
	dec.Strict = false
	for {
		_, err := dec.Token()
		if err != nil {
			if err.Error() == "EOF" {
				return
			}
			require.NoError(t, err, "document:\n%s", doc)
			return
		}
	}
}

func TestFromFoldedLinesEmptyInputProducesErrorSVG(t *testing.T) {
	var buf bytes.Buffer
	err := FromFoldedLines(nil, &buf, DefaultOptions())

	require.Error(t, err)
	assert.True(t, errors.Is(err, collapse.ErrEmptyInput))
	assert.Contains(t, buf.String(), "ERROR: No valid input provided to flamegraph")
	assertWellFormedXML(t, buf.String())
}

func TestFromFoldedLinesWellFormed(t *testing.T) {
	var buf bytes.Buffer
	opt := DefaultOptions()
	err := FromFoldedLines([]string{"a;b 2", "a;c 3"}, &buf, opt)
	require.NoError(t, err)

	doc := buf.String()
	assertWellFormedXML(t, doc)
	assert.Contains(t, doc, `<svg`)
	assert.Contains(t, doc, `</svg>`)
	assert.Contains(t, doc, "a")
	assert.Contains(t, doc, "b")
	assert.Contains(t, doc, "c")
}

func TestFromDiffLinesWellFormed(t *testing.T) {
	var buf bytes.Buffer
	opt := DefaultOptions()
	err := FromDiffLines([]string{"main;a 5 10", "main;b 5 0"}, &buf, opt)
	require.NoError(t, err)

	doc := buf.String()
	assertWellFormedXML(t, doc)
	assert.Contains(t, doc, "before")
	assert.Contains(t, doc, "after")
}

func TestFrameYNormalPutsRootAtBottom(t *testing.T) {
	imageHeight := 200
	fontSize := 12
	rootY1, rootY2 := frameY(Normal, 0, imageHeight, fontSize)
	childY1, _ := frameY(Normal, 1, imageHeight, fontSize)

	assert.Less(t, childY1, rootY1, "a deeper frame should sit above (smaller y) its parent in Normal direction")
	assert.Equal(t, rootY2-rootY1, frameHeight-framePad)
}

func TestFrameYInvertedPutsRootAtTop(t *testing.T) {
	imageHeight := 200
	fontSize := 12
	rootY1, _ := frameY(Inverted, 0, imageHeight, fontSize)
	childY1, _ := frameY(Inverted, 1, imageHeight, fontSize)

	assert.Less(t, rootY1, childY1, "a deeper frame should sit below (larger y) its parent in Inverted direction")
}

func TestDeannotateStripsKnownSuffixes(t *testing.T) {
	assert.Equal(t, "foo", deannotate("foo_[k]"))
	assert.Equal(t, "foo", deannotate("foo_[w]"))
	assert.Equal(t, "foo", deannotate("foo_[i]"))
	assert.Equal(t, "foo", deannotate("foo_[j]"))
	assert.Equal(t, "foo_[x]", deannotate("foo_[x]"))
	assert.Equal(t, "foo", deannotate("foo"))
}

func TestThousandsSep(t *testing.T) {
	assert.Equal(t, "1,234,567", thousandsSep(1234567))
	assert.Equal(t, "123", thousandsSep(123))
	assert.Equal(t, "-1,000", thousandsSep(-1000))
}

func TestWriteFrameLabelTruncation(t *testing.T) {
	var buf bytes.Buffer
	x := newXMLWriter(&buf)
	f := renderFrame{
		function: "a_very_long_function_name_that_will_not_fit_in_the_box",
		depth:    1,
		x1:       0, x2: 50, y1: 0, y2: 16,
		count: 10,
	}
	writeFrame(x, f, 100, defaultFontSize, defaultFontWidth, rand.New(rand.NewSource(1)), DefaultOptions())
	require.NoError(t, x.flush())

	assertWellFormedXML(t, "<root>"+buf.String()+"</root>")
	assert.Contains(t, buf.String(), "..")
	// The <title> tooltip keeps the full name; the visible label must not.
	assert.NotContains(t, buf.String(), ">"+f.function+"<")
}

func TestWriteFrameHonorsHrefAttr(t *testing.T) {
	var buf bytes.Buffer
	x := newXMLWriter(&buf)
	m, err := attrs.FromReader(strings.NewReader("foo\thref=https://example.com/foo\n"))
	require.NoError(t, err)

	opt := DefaultOptions()
	opt.NameAttrs = m
	f := renderFrame{function: "foo", depth: 0, x1: 0, x2: 200, y1: 0, y2: 16, count: 10}
	writeFrame(x, f, 100, defaultFontSize, defaultFontWidth, rand.New(rand.NewSource(1)), opt)
	require.NoError(t, x.flush())

	doc := "<root xmlns:xlink=\"http://www.w3.org/1999/xlink\">" + buf.String() + "</root>"
	assertWellFormedXML(t, doc)
	assert.Contains(t, doc, `<a xlink:href="https://example.com/foo">`)
	// The </a> close must appear before the outer </g> close.
	aClose := strings.Index(doc, "</a>")
	gClose := strings.LastIndex(doc, "</g>")
	require.NotEqual(t, -1, aClose)
	require.NotEqual(t, -1, gClose)
	assert.Less(t, aClose, gClose)
}

func TestDiffColorIncreaseIsRed(t *testing.T) {
	c := diffColor(10, 20, false)
	assert.Equal(t, uint8(255), c.R)
	assert.Less(t, c.G, uint8(255))
	assert.Equal(t, c.G, c.B)
}

func TestDiffColorDecreaseIsBlue(t *testing.T) {
	c := diffColor(20, 10, false)
	assert.Equal(t, uint8(255), c.B)
	assert.Less(t, c.R, uint8(255))
	assert.Equal(t, c.R, c.G)
}

func TestDiffColorNegateFlipsDirection(t *testing.T) {
	increase := diffColor(10, 20, false)
	negatedIncrease := diffColor(10, 20, true)
	assert.Equal(t, uint8(255), increase.R)
	assert.Equal(t, uint8(255), negatedIncrease.B)
}

func TestDiffColorNoChangeIsWhite(t *testing.T) {
	c := diffColor(10, 10, false)
	assert.Equal(t, uint8(255), c.R)
	assert.Equal(t, uint8(255), c.G)
	assert.Equal(t, uint8(255), c.B)
}
