package main

import (
	"strings"
	"testing"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTable_ColoredCellsStayAligned(t *testing.T) {
	rows := [][]string{
		{"a.mp3", "mp3", "image/png", "1024"},
		{"notes.txt", "\x1b[33munsupported\x1b[0m", "none", "-"},
		{"short"},
	}
	out := renderTable([]string{"File", "Format", "Artwork", "Bytes"}, rows, 3)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 7)
	width := text.StringWidthWithoutEscSequences(lines[0])
	for _, line := range lines[1:] {
		assert.Equal(t, width, text.StringWidthWithoutEscSequences(line), "line %q", line)
	}
	assert.Contains(t, out, "\x1b[33munsupported\x1b[0m")
	assert.Contains(t, lines[3], " 1024 │")
}

func TestRenderTable_NoHeaders(t *testing.T) {
	assert.Empty(t, renderTable(nil, [][]string{{"x"}}))
}
