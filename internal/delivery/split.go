// Package delivery routes session events to a chat surface.
package delivery

import (
	"strings"
	"unicode/utf8"

	"github.com/rivo/uniseg"
)

// DefaultMaxLength is the longest message, in runes, a chat surface accepts.
const DefaultMaxLength = 2000

// Split breaks content into chunks of at most max runes, in order.
//
// Chunks never split a grapheme cluster and end after a newline when one
// falls in the second half of the chunk. Concatenating the chunks yields
// content unchanged. A single grapheme cluster longer than max is emitted
// as its own oversized chunk.
func Split(content string, max int) []string {
	if max <= 0 {
		max = DefaultMaxLength
	}
	if content == "" {
		return nil
	}
	if utf8.RuneCountInString(content) <= max {
		return []string{content}
	}

	var chunks []string
	start := 0      // byte offset where the current chunk begins
	runes := 0      // runes in the current chunk
	lastBreak := -1 // byte offset just past the last newline in the chunk
	breakRunes := 0 // runes up to lastBreak

	g := uniseg.NewGraphemes(content)
	for g.Next() {
		from, to := g.Positions()
		n := len(g.Runes())

		if runes > 0 && runes+n > max {
			if lastBreak > start && breakRunes >= max/2 {
				chunks = append(chunks, content[start:lastBreak])
				runes -= breakRunes
				start = lastBreak
			}
			if runes > 0 && runes+n > max {
				chunks = append(chunks, content[start:from])
				runes = 0
				start = from
			}
			lastBreak = -1
		}

		runes += n
		if strings.ContainsRune(content[from:to], '\n') {
			lastBreak = to
			breakRunes = runes
		}
	}

	if start < len(content) {
		chunks = append(chunks, content[start:])
	}
	return chunks
}
