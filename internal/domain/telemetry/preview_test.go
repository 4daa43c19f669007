package telemetry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePreviewComma(t *testing.T) {
	p := ParsePreview("a,b,c\n1,2,3\n4,5,6")

	assert.Equal(t, ",", p.Delimiter)
	assert.Equal(t, []string{"a", "b", "c"}, p.Headers)
	assert.Len(t, p.Rows, 2)
	assert.Equal(t, []string{"1", "2", "3"}, p.Rows[0])
	assert.Equal(t, []string{"4", "5", "6"}, p.Rows[1])
	assert.Equal(t, "a,b,c\n1,2,3\n4,5,6", p.RawSample)
	assert.False(t, p.Truncated)
}

func TestParsePreviewDelimiterPriority(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"comma wins over tab", "a,b\tc\n1,2\t3", ","},
		{"tab when no comma", "a\tb\tc\n1\t2\t3", "\t"},
		{"space as last resort", "a b c\n1 2 3", " "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePreview(tt.input).Delimiter)
		})
	}
}

func TestParsePreviewEmpty(t *testing.T) {
	p := ParsePreview("")

	assert.Empty(t, p.Headers)
	assert.Empty(t, p.Rows)
	assert.Equal(t, "", p.RawSample)
	assert.False(t, p.Truncated)
}

func TestParsePreviewWhitespaceOnly(t *testing.T) {
	p := ParsePreview("\n\r\n   \n")

	assert.Empty(t, p.Headers)
	assert.Empty(t, p.Rows)
	assert.False(t, p.Truncated)
}

func TestParsePreviewRowCap(t *testing.T) {
	lines := []string{"lap,speed"}
	for i := 0; i < 25; i++ {
		lines = append(lines, "1,200")
	}
	p := ParsePreview(strings.Join(lines, "\n"))

	assert.Len(t, p.Rows, 20)
	assert.True(t, p.Truncated)
}

func TestParsePreviewRowCapExact(t *testing.T) {
	lines := []string{"lap,speed"}
	for i := 0; i < 20; i++ {
		lines = append(lines, "1,200")
	}
	p := ParsePreview(strings.Join(lines, "\n"))

	assert.Len(t, p.Rows, 20)
	assert.False(t, p.Truncated)
}

func TestParsePreviewCharBudget(t *testing.T) {
	// one long line, no newline before the cap
	input := "h1,h2\n" + strings.Repeat("x", maxPreviewChars)
	p := ParsePreview(input)

	assert.True(t, p.Truncated)
	assert.Equal(t, []string{"h1", "h2"}, p.Headers)
}

func TestParsePreviewCRLFAndBlankLines(t *testing.T) {
	p := ParsePreview("a,b\r\n\r\n1,2\r\n")

	assert.Equal(t, []string{"a", "b"}, p.Headers)
	assert.Len(t, p.Rows, 1)
	assert.Equal(t, []string{"1", "2"}, p.Rows[0])
}

func TestParsePreviewTrimsFields(t *testing.T) {
	p := ParsePreview(" a , b \n 1 , 2 ")

	assert.Equal(t, []string{"a", "b"}, p.Headers)
	assert.Equal(t, []string{"1", "2"}, p.Rows[0])
}
