package domain

import "encoding/json"

// MaxQueryLength is the upper bound on a single query's length, in runes
const MaxQueryLength = 500

// Chat roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatTurn is a single turn in a conversation
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// QueryRequest is the request to ask a question about Oura data
type QueryRequest struct {
	Query               string     `json:"query" binding:"required"`
	ConversationHistory []ChatTurn `json:"conversationHistory,omitempty"`
}

// Stream event types
const (
	EventContent = "content"
	EventDone    = "done"
	EventError   = "error"
)

// StreamEvent is a single event pushed to the client over SSE
type StreamEvent struct {
	Type     string      `json:"-"`
	Content  string      `json:"content,omitempty"`
	OuraData *HealthData `json:"ouraData,omitempty"`
	Done     bool        `json:"done,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// MarshalJSON shapes the payload per event type. The terminal frame
// always carries the ouraData key, explicitly null when no data backed
// the answer, so clients can rely on its presence.
func (e StreamEvent) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventDone:
		return json.Marshal(struct {
			OuraData *HealthData `json:"ouraData"`
			Done     bool        `json:"done"`
		}{e.OuraData, e.Done})
	case EventError:
		return json.Marshal(struct {
			Error string `json:"error"`
		}{e.Error})
	default:
		return json.Marshal(struct {
			Content string `json:"content"`
		}{e.Content})
	}
}

// ContentEvent builds a partial-answer event
func ContentEvent(text string) StreamEvent {
	return StreamEvent{Type: EventContent, Content: text}
}

// DoneEvent builds the terminal event carrying the grounding data used
func DoneEvent(data *HealthData) StreamEvent {
	return StreamEvent{Type: EventDone, OuraData: data, Done: true}
}

// ErrorEvent builds a terminal failure event
func ErrorEvent(msg string) StreamEvent {
	return StreamEvent{Type: EventError, Error: msg}
}
