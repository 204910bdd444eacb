// Session service - the durable chat session store
package service

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prismchat/prismchat/pkg/event"
	"github.com/prismchat/prismchat/pkg/models"
	"github.com/prismchat/prismchat/pkg/utils"
)

var ErrNoCurrentSession = errors.New("no current session")

// titleWordLimit caps how many words of the first user message become the
// session title.
const titleWordLimit = 6

// SessionService owns the session list, the current-session pointer and the
// append-only message logs. It is the only writer of persisted chat state;
// every mutation is written through to disk immediately.
type SessionService struct {
	mu        sync.RWMutex
	sessions  []*models.ChatSession // most-recent-first
	currentID string
	keys      *KeyService
	logger    *slog.Logger
}

// NewSessionService creates a store backed by the home-directory session file.
// A corrupt or unreadable blob is logged and treated as an empty list; startup
// never fails on bad chat history.
func NewSessionService(keys *KeyService) *SessionService {
	s := &SessionService{
		keys:   keys,
		logger: utils.GetLogger(),
	}

	sessions, err := models.LoadSessions()
	if err != nil {
		s.logger.Error("Failed to load chat sessions, starting empty", "error", err)
		sessions = []*models.ChatSession{}
	}
	s.sessions = sessions
	return s
}

// Create allocates a new empty session, snapshots the registry's live active
// set into it, makes it current and inserts it at the head of the list.
func (s *SessionService) Create() (*models.ChatSession, error) {
	now := time.Now().UnixMilli()
	sess := &models.ChatSession{
		ID:           uuid.New().String(),
		Title:        models.DefaultSessionTitle,
		Messages:     []models.ChatMessage{},
		ActiveModels: s.keys.ActiveSet(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.mu.Lock()
	s.sessions = append([]*models.ChatSession{sess}, s.sessions...)
	s.currentID = sess.ID
	err := s.persistLocked()
	s.mu.Unlock()

	event.Emit(event.SessionsChangedEvent{SessionID: sess.ID})
	return cloneSession(sess), err
}

// Select makes the named session current and restores its provider snapshot
// as the live active set. An unknown id leaves all state unchanged.
func (s *SessionService) Select(id string) bool {
	s.mu.Lock()
	sess := s.findLocked(id)
	if sess == nil {
		s.mu.Unlock()
		return false
	}
	s.currentID = id
	snapshot := sess.ActiveModels.Clone()
	s.mu.Unlock()

	s.keys.RestoreActiveSet(snapshot)
	event.Emit(event.SessionsChangedEvent{SessionID: id})
	return true
}

// Delete removes the named session. Deleting the current session clears the
// current pointer; no other session is auto-selected.
func (s *SessionService) Delete(id string) error {
	s.mu.Lock()
	idx := -1
	for i, sess := range s.sessions {
		if sess.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		s.mu.Unlock()
		return nil
	}
	s.sessions = append(s.sessions[:idx], s.sessions[idx+1:]...)
	if s.currentID == id {
		s.currentID = ""
	}
	err := s.persistLocked()
	s.mu.Unlock()

	event.Emit(event.SessionsChangedEvent{SessionID: id})
	return err
}

// AppendMessage appends to the named session's log and bumps its updatedAt.
// Appending to a nonexistent session is a no-op; logically concurrent appends
// from different providers serialize under the store lock, so none is lost.
func (s *SessionService) AppendMessage(sessionID string, msg models.ChatMessage) error {
	s.mu.Lock()
	sess := s.findLocked(sessionID)
	if sess == nil {
		s.mu.Unlock()
		return nil
	}
	sess.Messages = append(sess.Messages, msg)
	bumpUpdated(sess)
	err := s.persistLocked()
	s.mu.Unlock()

	event.Emit(event.MessageAppendedEvent{SessionID: sessionID, Role: msg.Role})
	return err
}

// AddUserMessage appends a user message to the current session. The first
// message of a session also derives the session title. Without a current
// session this is a no-op.
func (s *SessionService) AddUserMessage(content string) error {
	s.mu.Lock()
	sess := s.findLocked(s.currentID)
	if sess == nil {
		s.mu.Unlock()
		return ErrNoCurrentSession
	}

	sess.Messages = append(sess.Messages, models.ChatMessage{
		ID:        uuid.New().String(),
		Role:      models.RoleUser,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	})
	bumpUpdated(sess)

	if len(sess.Messages) == 1 && sess.Title == models.DefaultSessionTitle {
		sess.Title = deriveTitle(content)
	}

	err := s.persistLocked()
	id := sess.ID
	s.mu.Unlock()

	event.Emit(event.MessageAppendedEvent{SessionID: id, Role: models.RoleUser})
	return err
}

// AddAssistantMessage appends a provider-tagged assistant message to the
// current session. Without a current session this is a no-op.
func (s *SessionService) AddAssistantMessage(content string, p models.Provider) error {
	s.mu.RLock()
	id := s.currentID
	s.mu.RUnlock()
	if id == "" {
		return ErrNoCurrentSession
	}
	return s.AppendMessage(id, models.ChatMessage{
		ID:        uuid.New().String(),
		Role:      models.RoleAssistant,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
		Provider:  p,
	})
}

// Current returns a copy of the current session, or nil.
func (s *SessionService) Current() *models.ChatSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSession(s.findLocked(s.currentID))
}

// CurrentID returns the current session id ("" if none).
func (s *SessionService) CurrentID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentID
}

// Get returns a copy of the named session, or nil.
func (s *SessionService) Get(id string) *models.ChatSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSession(s.findLocked(id))
}

// List returns copies of all sessions, most recent first.
func (s *SessionService) List() []*models.ChatSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ChatSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, cloneSession(sess))
	}
	return out
}

func (s *SessionService) findLocked(id string) *models.ChatSession {
	if id == "" {
		return nil
	}
	for _, sess := range s.sessions {
		if sess.ID == id {
			return sess
		}
	}
	return nil
}

func (s *SessionService) persistLocked() error {
	if err := models.SaveSessions(s.sessions); err != nil {
		s.logger.Error("Failed to persist chat sessions", "error", err)
		return err
	}
	return nil
}

// bumpUpdated advances UpdatedAt strictly, so back-to-back mutations within
// the same millisecond still order.
func bumpUpdated(sess *models.ChatSession) {
	now := time.Now().UnixMilli()
	if now <= sess.UpdatedAt {
		now = sess.UpdatedAt + 1
	}
	sess.UpdatedAt = now
}

// deriveTitle builds a session title from the first user message: the first
// six words, with an ellipsis marker when the message carries at least that
// many.
func deriveTitle(firstMessage string) string {
	words := strings.Fields(firstMessage)
	if len(words) < titleWordLimit {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:titleWordLimit], " ") + "..."
}

func cloneSession(sess *models.ChatSession) *models.ChatSession {
	if sess == nil {
		return nil
	}
	cp := *sess
	cp.Messages = append([]models.ChatMessage(nil), sess.Messages...)
	cp.ActiveModels = sess.ActiveModels.Clone()
	return &cp
}
