package domain

// ChatEventType discriminates frames on the streaming chat surfaces.
type ChatEventType string

const (
	ChatEventStatus   ChatEventType = "status"
	ChatEventResponse ChatEventType = "response"
	ChatEventError    ChatEventType = "error"
)

// ChatEvent is one progress frame emitted while an agent works on a message.
type ChatEvent struct {
	Type      ChatEventType `json:"type"`
	Message   string        `json:"message,omitempty"`
	Response  string        `json:"response,omitempty"`
	AgentUsed string        `json:"agent_used,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// StatusEvent builds a status frame.
func StatusEvent(msg string) ChatEvent {
	return ChatEvent{Type: ChatEventStatus, Message: msg}
}

// ErrorEvent builds an error frame.
func ErrorEvent(err error) ChatEvent {
	return ChatEvent{Type: ChatEventError, Error: err.Error()}
}

// ChatResult is the final answer of one chat request.
type ChatResult struct {
	Response  string `json:"response"`
	AgentUsed string `json:"agent_used"`
}

// ExampleQuery is a canned prompt offered to users.
type ExampleQuery struct {
	Title string  `json:"title"`
	Query string  `json:"query"`
	Agent *string `json:"agent"`
}

// AgentProgress is one observable step of a running agent: a tool call or a
// hand-off to another agent.
type AgentProgress struct {
	Agent      string
	ToolCall   string
	TransferTo string
}
