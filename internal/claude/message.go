package claude

import "strings"

// MessageKind tags a normalized message for presentation.
type MessageKind int

const (
	// KindMessage is ordinary assistant output.
	KindMessage MessageKind = iota
	// KindError is subprocess error output or a reported failure.
	KindError
	// KindSystem is a bridge-generated notice (session ended, started, ...).
	KindSystem
)

func (k MessageKind) String() string {
	switch k {
	case KindError:
		return "error"
	case KindSystem:
		return "system"
	default:
		return "message"
	}
}

// Message is one unit of output destined for a chat channel.
// Messages are values and are never mutated once constructed.
type Message struct {
	ChannelID string
	Content   string
	Kind      MessageKind
}

// NewMessage builds a Message, reporting false when content is blank.
// Callers drop blank messages rather than delivering them.
func NewMessage(channelID, content string, kind MessageKind) (Message, bool) {
	if strings.TrimSpace(content) == "" {
		return Message{}, false
	}
	return Message{ChannelID: channelID, Content: content, Kind: kind}, true
}

// errorPrefix is prepended to every error message surfaced from a subprocess.
const errorPrefix = "Error: "

func newErrorMessage(channelID, text string) (Message, bool) {
	if strings.TrimSpace(text) == "" {
		return Message{}, false
	}
	return NewMessage(channelID, errorPrefix+text, KindError)
}
