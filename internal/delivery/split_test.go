package delivery

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rivo/uniseg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_Short(t *testing.T) {
	assert.Nil(t, Split("", 10))
	assert.Equal(t, []string{"hello"}, Split("hello", 10))
	assert.Equal(t, []string{"0123456789"}, Split("0123456789", 10))
}

func TestSplit_Cases(t *testing.T) {
	tests := []struct {
		name    string
		content string
		max     int
		want    []string
	}{
		{
			name:    "hard split without newlines",
			content: "abcdefghij",
			max:     4,
			want:    []string{"abcd", "efgh", "ij"},
		},
		{
			name:    "prefers newline in second half",
			content: "abc\ndefgh",
			max:     5,
			want:    []string{"abc\n", "defgh"},
		},
		{
			name:    "ignores newline too early in chunk",
			content: "a\nbcdefghij",
			max:     8,
			want:    []string{"a\nbcdefg", "hij"},
		},
		{
			name:    "multibyte runes counted once",
			content: "ééééé",
			max:     2,
			want:    []string{"éé", "éé", "é"},
		},
		{
			name:    "crlf stays together",
			content: "abc\r\ndef",
			max:     5,
			want:    []string{"abc\r\n", "def"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Split(tt.content, tt.max))
		})
	}
}

func TestSplit_DoesNotBreakGraphemes(t *testing.T) {
	// Family emoji: five runes joined into one grapheme cluster.
	family := "\U0001F468\u200D\U0001F469\u200D\U0001F467"
	content := "xxx" + family + "yy"

	assert.Equal(t, []string{"xxx", family, "yy"}, Split(content, 5))
}

func TestSplit_OversizedGrapheme(t *testing.T) {
	family := "\U0001F468\u200D\U0001F469\u200D\U0001F467"
	chunks := Split("a"+family+"b", 3)
	assert.Equal(t, []string{"a", family, "b"}, chunks)
}

func TestSplit_DefaultMax(t *testing.T) {
	content := strings.Repeat("z", DefaultMaxLength*2+1)
	chunks := Split(content, 0)
	require.Len(t, chunks, 3)
	assert.Equal(t, DefaultMaxLength, utf8.RuneCountInString(chunks[0]))
	assert.Equal(t, 1, utf8.RuneCountInString(chunks[2]))
}

func TestSplit_Properties(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 300; i++ {
		b.WriteString("line ")
		b.WriteString(strings.Repeat("é", i%17))
		if i%7 == 0 {
			b.WriteString("🇯🇵")
		}
		b.WriteString("\n")
	}
	content := b.String()

	for _, max := range []int{7, 50, 333, 2000} {
		chunks := Split(content, max)
		assert.Equal(t, content, strings.Join(chunks, ""), "max=%d", max)
		for _, c := range chunks {
			assert.LessOrEqual(t, utf8.RuneCountInString(c), max, "max=%d", max)
		}
		assert.Equal(t, uniseg.GraphemeClusterCount(content), graphemeTotal(chunks),
			"max=%d: a grapheme cluster was split across chunks", max)
	}
}

func graphemeTotal(chunks []string) int {
	n := 0
	for _, c := range chunks {
		n += uniseg.GraphemeClusterCount(c)
	}
	return n
}
