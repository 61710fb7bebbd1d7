package event

import "time"

// Source identifies which AI provider produced an event.
type Source string

const (
	SourceChatGPT Source = "chatgpt"
	SourceClaude  Source = "claude"
	SourceGemini  Source = "gemini"
)

// DisplayName returns the human-facing label for a source. Unknown
// sources pass through unchanged so new providers render sanely.
func (s Source) DisplayName() string {
	switch s {
	case SourceChatGPT:
		return "ChatGPT"
	case SourceClaude:
		return "Claude"
	case SourceGemini:
		return "Gemini"
	default:
		return string(s)
	}
}

// NormalizedEvent is one provider answer (or provider failure) reduced
// to a single loggable line. Timestamp is RFC 3339 and always parses.
type NormalizedEvent struct {
	Source         Source `json:"source"`
	Timestamp      string `json:"timestamp"`
	Topic          string `json:"topic"`
	OneLineSummary string `json:"oneLineSummary"`
	RawRef         string `json:"rawRef"`
}

// Time parses the event timestamp. A zero time is returned for a
// malformed timestamp; producers are expected to stamp valid instants.
func (e NormalizedEvent) Time() time.Time {
	t, err := time.Parse(time.RFC3339, e.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// TopicGroup is a run of events from the same source and topic that
// occurred within a sliding time window of each other.
type TopicGroup struct {
	Source    Source            `json:"source"`
	Topic     string            `json:"topic"`
	StartedAt string            `json:"startedAt"`
	Entries   []NormalizedEvent `json:"entries"`
	Summary   string            `json:"summary"`
}
