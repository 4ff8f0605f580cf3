package mqtt

import "strings"

// Command is the normalized form of an inbound relay payload.
type Command int

const (
	CommandUnknown Command = iota
	CommandOpen
	CommandClose
	CommandStatus
)

func (c Command) String() string {
	switch c {
	case CommandOpen:
		return "open"
	case CommandClose:
		return "close"
	case CommandStatus:
		return "status"
	default:
		return "unknown"
	}
}

// ParseCommand classifies a raw payload. Matching is case-insensitive and
// whitespace-tolerant; English and Chinese vocabulary are accepted.
func ParseCommand(payload string) Command {
	p := strings.ToLower(strings.TrimSpace(payload))
	switch p {
	case "open", "on", "打开":
		return CommandOpen
	case "close", "off", "关闭":
		return CommandClose
	case "status", "状态":
		return CommandStatus
	}
	// Phrases like "请打开门" still count as an open request.
	if strings.Contains(p, "打开") {
		return CommandOpen
	}
	return CommandUnknown
}

// ResponseTopic derives the topic status responses are published on.
func ResponseTopic(topic string) string {
	return topic + "/status"
}
