package claude

import (
	"encoding/json"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// extractRule pulls display text out of one decoded JSON value.
type extractRule struct {
	name    string
	extract func(v any) (string, bool)
}

// extractRules are evaluated in order; the first rule that yields text wins.
var extractRules = []extractRule{
	{name: "result", extract: objectField("result")},
	{name: "content", extract: objectField("content")},
	{name: "message", extract: objectField("message")},
	{name: "string", extract: bareString},
}

func objectField(key string) func(v any) (string, bool) {
	return func(v any) (string, bool) {
		obj, ok := v.(map[string]any)
		if !ok {
			return "", false
		}
		return displayValue(obj[key])
	}
}

func bareString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// displayValue renders a field value as text. Empty, zero, false and null
// values do not count as present; non-string values are rendered as JSON.
func displayValue(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, x != ""
	case bool:
		if !x {
			return "", false
		}
		return "true", true
	case float64:
		if x == 0 {
			return "", false
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	return string(b), true
}

// ExtractContent turns raw one-shot subprocess output into display text.
//
// Structured output is tried first and the extract rules applied in order.
// A structured value with no recognized field yields nothing. Output that
// is not valid JSON is returned trimmed, unless it is blank.
func ExtractContent(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}

	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return trimmed, true
	}

	for _, rule := range extractRules {
		if s, ok := rule.extract(v); ok {
			return s, true
		}
	}
	return "", false
}

// streamRecord is one line of --output-format stream-json output.
type streamRecord struct {
	Type  string `json:"type"`
	Delta *struct {
		Text string `json:"text"`
	} `json:"delta,omitempty"`
	Error json.RawMessage `json:"error,omitempty"`
}

// errorText reads error.message from a stream error record. Any other
// shape yields "".
func errorText(raw json.RawMessage) string {
	var body struct {
		Message any `json:"message"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &body) != nil {
		return ""
	}
	msg, _ := body.Message.(string)
	return msg
}

// parseStreamLine converts one complete stream-json line into a message.
// Unparseable and unrecognized lines are logged and yield nothing.
func parseStreamLine(channelID, line string, log *slog.Logger) (Message, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Message{}, false
	}

	var rec streamRecord
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		log.Debug("discarding unparseable stream line", "error", err, "line", truncateForLog(line))
		return Message{}, false
	}

	switch rec.Type {
	case "content":
		// Whitespace-only deltas are real tokens of the reply.
		if rec.Delta == nil || rec.Delta.Text == "" {
			return Message{}, false
		}
		return Message{ChannelID: channelID, Content: rec.Delta.Text, Kind: KindMessage}, true
	case "error":
		msg := errorText(rec.Error)
		if strings.TrimSpace(msg) == "" {
			msg = "Unknown error"
		}
		return newErrorMessage(channelID, msg)
	default:
		log.Debug("ignoring stream record", "type", rec.Type)
		return Message{}, false
	}
}

// truncateForLog truncates long strings for log output, never inside a rune
func truncateForLog(s string) string {
	const maxLen = 200
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
