package event

// ============================================================================
// Event Names (constants)
// ============================================================================

const (
	SessionsChanged = "chat.sessionsChanged"
	MessageAppended = "chat.messageAppended"
	StreamUpdated   = "stream.updated"
	StreamFinished  = "stream.finished"
	KeysChanged     = "keys.changed"
)

// ============================================================================
// Chat Session Events
// ============================================================================

// SessionsChangedEvent is emitted when the session list or the current
// session pointer changes (create, select, delete, title update).
type SessionsChangedEvent struct {
	SessionID string `json:"session_id,omitempty"`
}

func (e SessionsChangedEvent) EventName() string { return SessionsChanged }

// MessageAppendedEvent is emitted when a message is committed to a session log.
type MessageAppendedEvent struct {
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
}

func (e MessageAppendedEvent) EventName() string { return MessageAppended }

// ============================================================================
// Streaming Events
// ============================================================================

// StreamUpdatedEvent is emitted whenever a provider's transient streaming
// record changes (loading, new chunk, error, removal).
type StreamUpdatedEvent struct {
	Provider string `json:"provider"`
}

func (e StreamUpdatedEvent) EventName() string { return StreamUpdated }

// StreamFinishedEvent is emitted when a provider's stream reaches a terminal
// state.
type StreamFinishedEvent struct {
	Provider string `json:"provider"`
	Errored  bool   `json:"errored"`
}

func (e StreamFinishedEvent) EventName() string { return StreamFinished }

// ============================================================================
// Registry Events
// ============================================================================

// KeysChangedEvent is emitted when a credential is stored or an active flag
// toggled.
type KeysChangedEvent struct {
	Provider string `json:"provider,omitempty"`
}

func (e KeysChangedEvent) EventName() string { return KeysChanged }
