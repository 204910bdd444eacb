// Stream service - fans one prompt out to every active provider and manages
// the concurrent per-provider streaming lifecycles
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/prismchat/prismchat/pkg/event"
	"github.com/prismchat/prismchat/pkg/models"
	"github.com/prismchat/prismchat/pkg/utils"
)

var ErrEmptyPrompt = errors.New("empty prompt")

// genericStreamError is shown when a provider fails without a usable message.
const genericStreamError = "Unknown error"

// StreamService is the streaming orchestrator. One Submit launches one
// independent streaming task per active, credentialed provider; each task
// accumulates chunks into a transient per-provider record and, on success,
// commits the final text into the session store. Per-provider failures stay
// contained in their own task.
//
// Transient records are keyed by provider under one mutex, so concurrent
// updates from different providers never clobber each other. A generation
// counter marks records from a superseded round: tasks still in flight after
// a session switch keep running (requests are abandoned, not cancelled) but
// their record updates are dropped.
type StreamService struct {
	keys     *KeyService
	sessions *SessionService
	builder  ChatModelBuilder
	logger   *slog.Logger
	grace    time.Duration

	mu         sync.Mutex
	streaming  map[models.Provider]*models.StreamingResponse
	feed       []models.ResponseItem // most-recent-first, runtime lifetime only
	lastPrompt string
	generation uint64
}

// NewStreamService wires the orchestrator. grace is how long a terminal
// per-provider record stays visible before removal; it is a display tunable,
// not a correctness contract.
func NewStreamService(keys *KeyService, sessions *SessionService, builder ChatModelBuilder, grace time.Duration) *StreamService {
	return &StreamService{
		keys:      keys,
		sessions:  sessions,
		builder:   builder,
		logger:    utils.GetLogger(),
		grace:     grace,
		streaming: make(map[models.Provider]*models.StreamingResponse),
	}
}

// Submit fans the prompt out. It activates only when the prompt is non-empty,
// a current session exists, and the prompt differs from the last one already
// processed; a duplicate submission is a silent no-op. On activation it
// appends the user message, freezes the session history, clears all transient
// records and launches one streaming task per eligible provider. The frozen
// history is never re-read as the session mutates underneath the tasks.
func (o *StreamService) Submit(ctx context.Context, prompt string) ([]models.Provider, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	sessionID := o.sessions.CurrentID()
	if sessionID == "" {
		return nil, ErrNoCurrentSession
	}

	// Duplicate-prompt guard; claim the prompt before doing anything.
	o.mu.Lock()
	if prompt == o.lastPrompt {
		o.mu.Unlock()
		o.logger.Debug("Ignoring duplicate prompt", "session", sessionID)
		return nil, nil
	}
	o.lastPrompt = prompt
	o.mu.Unlock()

	if err := o.sessions.AddUserMessage(prompt); err != nil {
		return nil, err
	}

	current := o.sessions.Get(sessionID)
	if current == nil {
		return nil, ErrNoCurrentSession
	}
	history := toSchemaMessages(current.Messages)

	// Requests outlive the triggering HTTP request; there is no cancellation,
	// only abandonment.
	taskCtx := context.WithoutCancel(ctx)

	o.mu.Lock()
	o.streaming = make(map[models.Provider]*models.StreamingResponse)
	o.generation++
	gen := o.generation

	var launched []models.Provider
	for _, p := range models.AllProviders {
		// Active flag alone is not enough: a provider without a credential is
		// never launched, whatever the toggle says.
		if !o.keys.IsActive(p) || !o.keys.HasCredential(p) {
			continue
		}
		o.streaming[p] = &models.StreamingResponse{Provider: p, Loading: true}
		launched = append(launched, p)
	}
	o.mu.Unlock()

	for _, p := range launched {
		event.Emit(event.StreamUpdatedEvent{Provider: string(p)})
		go o.streamOne(taskCtx, gen, sessionID, prompt, p, o.keys.Credential(p), history)
	}

	if len(launched) == 0 {
		o.logger.Warn("Prompt submitted with no eligible providers", "session", sessionID)
	}
	return launched, nil
}

// Reset discards all transient records and the last-prompt marker. Called on
// session switch so the same literal prompt can be resubmitted in the new
// session. In-flight requests are not cancelled; their later record updates
// fail the generation check and vanish.
func (o *StreamService) Reset() {
	o.mu.Lock()
	o.streaming = make(map[models.Provider]*models.StreamingResponse)
	o.lastPrompt = ""
	o.generation++
	o.mu.Unlock()

	event.Emit(event.StreamUpdatedEvent{})
}

// Snapshot returns a copy of the live transient records.
func (o *StreamService) Snapshot() map[models.Provider]models.StreamingResponse {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[models.Provider]models.StreamingResponse, len(o.streaming))
	for p, rec := range o.streaming {
		out[p] = *rec
	}
	return out
}

// Feed returns the completed-response feed, most recent first.
func (o *StreamService) Feed() []models.ResponseItem {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.ResponseItem(nil), o.feed...)
}

// ClearFeed empties the completed-response feed.
func (o *StreamService) ClearFeed() {
	o.mu.Lock()
	o.feed = nil
	o.mu.Unlock()
}

// streamOne runs one provider's full streaming lifecycle:
// loading -> chunk accumulation -> finished | errored.
func (o *StreamService) streamOne(ctx context.Context, gen uint64, sessionID, prompt string, p models.Provider, apiKey string, history []*schema.Message) {
	chatModel, err := o.builder.BuildChatModel(ctx, p, apiKey)
	if err != nil {
		o.failStream(gen, p, err)
		return
	}

	reader, err := chatModel.Stream(ctx, history)
	if err != nil {
		o.failStream(gen, p, err)
		return
	}
	defer reader.Close()

	var content strings.Builder
	for {
		chunk, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			o.failStream(gen, p, err)
			return
		}
		if chunk.Content == "" {
			continue
		}
		content.WriteString(chunk.Content)
		o.updateRecord(gen, p, func(rec *models.StreamingResponse) {
			rec.Content = content.String()
		})
	}

	full := content.String()
	o.updateRecord(gen, p, func(rec *models.StreamingResponse) {
		rec.Content = full
		rec.Loading = false
		rec.Finished = true
	})
	event.Emit(event.StreamFinishedEvent{Provider: string(p)})

	// Commit to the session the round was started in, never the one that may
	// be current by now. An unknown id (session deleted meanwhile) is a no-op
	// inside the store.
	if err := o.sessions.AppendMessage(sessionID, models.ChatMessage{
		ID:        uuid.New().String(),
		Role:      models.RoleAssistant,
		Content:   full,
		Timestamp: time.Now().UnixMilli(),
		Provider:  p,
	}); err != nil {
		o.logger.Error("Failed to commit assistant message", "provider", p, "error", err)
	}

	o.mu.Lock()
	o.feed = append([]models.ResponseItem{{
		ID:        uuid.New().String(),
		Prompt:    prompt,
		Provider:  p,
		Content:   full,
		CreatedAt: time.Now().UnixMilli(),
	}}, o.feed...)
	o.mu.Unlock()

	o.scheduleRemoval(gen, p)
}

// failStream moves a provider's record to the errored terminal state. No
// assistant message is committed and nothing is retried.
func (o *StreamService) failStream(gen uint64, p models.Provider, err error) {
	msg := genericStreamError
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	o.logger.Error("Provider stream failed", "provider", p, "error", err)

	o.updateRecord(gen, p, func(rec *models.StreamingResponse) {
		rec.Content = ""
		rec.Loading = false
		rec.Error = msg
		rec.Finished = true
	})
	event.Emit(event.StreamFinishedEvent{Provider: string(p), Errored: true})

	o.scheduleRemoval(gen, p)
}

// updateRecord applies fn to p's record iff the round is still current.
func (o *StreamService) updateRecord(gen uint64, p models.Provider, fn func(*models.StreamingResponse)) {
	o.mu.Lock()
	if o.generation != gen {
		o.mu.Unlock()
		return
	}
	rec := o.streaming[p]
	if rec == nil {
		rec = &models.StreamingResponse{Provider: p}
		o.streaming[p] = rec
	}
	fn(rec)
	o.mu.Unlock()

	event.Emit(event.StreamUpdatedEvent{Provider: string(p)})
}

// scheduleRemoval drops the transient record after the grace period, keeping
// the terminal state briefly visible.
func (o *StreamService) scheduleRemoval(gen uint64, p models.Provider) {
	time.AfterFunc(o.grace, func() {
		o.mu.Lock()
		if o.generation == gen {
			delete(o.streaming, p)
		}
		o.mu.Unlock()
		event.Emit(event.StreamUpdatedEvent{Provider: string(p)})
	})
}

// toSchemaMessages maps a session log into the provider-agnostic message
// sequence sent to every back-end. Roles are coerced to user/assistant/system;
// anything else defaults to user.
func toSchemaMessages(msgs []models.ChatMessage) []*schema.Message {
	out := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		role := schema.User
		switch m.Role {
		case models.RoleAssistant:
			role = schema.Assistant
		case models.RoleSystem:
			role = schema.System
		case models.RoleUser:
			role = schema.User
		}
		out = append(out, &schema.Message{Role: role, Content: m.Content})
	}
	return out
}
