package console

import (
	"bytes"
	"regexp"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/mattn/go-runewidth"

	"github.com/zhubert/plural-bridge/internal/claude"
)

var inlineCodePattern = regexp.MustCompile("`([^`\n]+)`")

// highlightCode applies syntax highlighting to code using chroma
func highlightCode(code, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get("monokai")
	if style == nil {
		style = styles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}

	return strings.TrimRight(buf.String(), "\n")
}

// segment is either prose or a fenced code block.
type segment struct {
	code     bool
	language string
	text     string
}

// splitFences separates ``` fenced blocks from prose. An unterminated fence
// runs to the end of the content.
func splitFences(content string) []segment {
	var segments []segment
	var cur strings.Builder
	inCode := false
	language := ""

	flush := func() {
		if cur.Len() == 0 && !inCode {
			return
		}
		segments = append(segments, segment{
			code:     inCode,
			language: language,
			text:     strings.TrimSuffix(cur.String(), "\n"),
		})
		cur.Reset()
	}

	for line := range strings.SplitSeq(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if fence, ok := strings.CutPrefix(trimmed, "```"); ok {
			if inCode {
				flush()
				inCode = false
				language = ""
			} else {
				flush()
				inCode = true
				language = strings.TrimSpace(fence)
			}
			continue
		}
		cur.WriteString(line)
		cur.WriteString("\n")
	}
	flush()
	return segments
}

// renderProse wraps text to width and colors inline code spans.
func renderProse(text string, style lipgloss.Style, width int) string {
	if width > 0 {
		style = style.Width(width)
	}
	rendered := style.Render(text)
	return inlineCodePattern.ReplaceAllStringFunc(rendered, func(match string) string {
		return InlineCodeStyle.Render(strings.Trim(match, "`"))
	})
}

// renderBody renders one transcript entry's content for the given kind.
func renderBody(kind claude.MessageKind, content string, width int) string {
	switch kind {
	case claude.KindError:
		return renderProse(content, ErrorTextStyle, width)
	case claude.KindSystem:
		return renderProse(content, SystemTextStyle, width)
	}

	var parts []string
	for _, seg := range splitFences(content) {
		if seg.code {
			parts = append(parts, highlightCode(seg.text, seg.language))
			continue
		}
		parts = append(parts, renderProse(seg.text, MessageStyle, width))
	}
	return strings.Join(parts, "\n")
}

// truncate shortens s to fit width terminal cells.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(s, width, "…")
}
