// Chat data model: sessions, messages and transient streaming state
package models

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage is one immutable entry in a session's message log.
// Ordering is append order; messages are never mutated or re-sorted.
type ChatMessage struct {
	ID        string   `json:"id"`
	Role      string   `json:"role"` // user, assistant
	Content   string   `json:"content"`
	Timestamp int64    `json:"timestamp"`          // Unix ms, display/ordering only
	Provider  Provider `json:"provider,omitempty"` // set iff role = assistant
}

// ChatSession is one persisted conversation thread.
type ChatSession struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Messages     []ChatMessage `json:"messages"`
	ActiveModels ActiveSet     `json:"activeModels"` // provider selection snapshot
	CreatedAt    int64         `json:"createdAt"`    // Unix ms
	UpdatedAt    int64         `json:"updatedAt"`    // Unix ms
}

// DefaultSessionTitle is the title of a session before its first user message.
const DefaultSessionTitle = "New Chat"

// StreamingResponse is the transient per-provider record for one in-flight
// request. It is never persisted; it exists for the duration of one request
// plus a short display grace period.
type StreamingResponse struct {
	Provider Provider `json:"provider"`
	Content  string   `json:"content"`
	Loading  bool     `json:"loading"`
	Error    string   `json:"error,omitempty"`
	Finished bool     `json:"finished"`
}

// ResponseItem is one completed response in the runtime-lifetime feed.
// The session message log, not this feed, is the durable record.
type ResponseItem struct {
	ID        string   `json:"id"`
	Prompt    string   `json:"prompt"`
	Provider  Provider `json:"provider"`
	Content   string   `json:"content"`
	CreatedAt int64    `json:"createdAt"` // Unix ms
}
