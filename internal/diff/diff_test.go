package diff

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFromReadersNormalize is the differential-normalize worked example:
// file1 "main 10", file2 "main 20\nother 20", normalize=true scales the
// first profile's count ×2 (total2/total1 == 2) so "main" reads "20 20".
func TestFromReadersNormalize(t *testing.T) {
	var out bytes.Buffer
	err := FromReaders(Options{Normalize: true},
		strings.NewReader("main 10\n"),
		strings.NewReader("main 20\nother 20\n"),
		&out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "main 20 20\n")
	assert.Contains(t, out.String(), "other 0 20\n")
}

func TestFromReadersWithoutNormalize(t *testing.T) {
	var out bytes.Buffer
	err := FromReaders(Options{},
		strings.NewReader("main 10\n"),
		strings.NewReader("main 20\nother 20\n"),
		&out)
	require.NoError(t, err)
	assert.Equal(t, "main 10 20\nother 0 20\n", out.String())
}

func TestFromReadersStripHex(t *testing.T) {
	var out bytes.Buffer
	err := FromReaders(Options{StripHex: true},
		strings.NewReader("main;foo+0x45ef2173 5\n"),
		strings.NewReader(""),
		&out)
	require.NoError(t, err)
	assert.Equal(t, "main;foo+0x... 5 0\n", out.String())
}

func TestFromReadersIgnoresUnparsableLines(t *testing.T) {
	var out bytes.Buffer
	err := FromReaders(Options{},
		strings.NewReader("not a valid line\nmain 1\n"),
		strings.NewReader(""),
		&out)
	require.NoError(t, err)
	assert.Equal(t, "main 1 0\n", out.String())
}
