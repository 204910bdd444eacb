package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/prismchat/prismchat/pkg/models"
)

// scriptedModel streams a fixed chunk sequence, optionally failing afterwards.
// An optional gate channel holds the stream open until the test releases it.
type scriptedModel struct {
	chunks []string
	err    error
	gate   chan struct{}

	history []*schema.Message
}

func (m *scriptedModel) Generate(ctx context.Context, input []*schema.Message, opts ...einoModel.Option) (*schema.Message, error) {
	return nil, errors.New("generate not supported")
}

func (m *scriptedModel) Stream(ctx context.Context, input []*schema.Message, opts ...einoModel.Option) (*schema.StreamReader[*schema.Message], error) {
	m.history = input
	sr, sw := schema.Pipe[*schema.Message](len(m.chunks) + 1)
	go func() {
		defer sw.Close()
		if m.gate != nil {
			<-m.gate
		}
		for _, c := range m.chunks {
			sw.Send(&schema.Message{Role: schema.Assistant, Content: c}, nil)
		}
		if m.err != nil {
			sw.Send(nil, m.err)
		}
	}()
	return sr, nil
}

// fakeBuilder hands out scripted models per provider.
type fakeBuilder struct {
	models    map[models.Provider]*scriptedModel
	buildErrs map[models.Provider]error
}

func (b *fakeBuilder) BuildChatModel(ctx context.Context, p models.Provider, apiKey string) (einoModel.BaseChatModel, error) {
	if err := b.buildErrs[p]; err != nil {
		return nil, err
	}
	m, ok := b.models[p]
	if !ok {
		return nil, fmt.Errorf("no scripted model for %s", p)
	}
	return m, nil
}

func newStreamFixture(t *testing.T, builder *fakeBuilder, grace time.Duration) (*KeyService, *SessionService, *StreamService) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	keys := NewKeyService()
	sessions := NewSessionService(keys)
	for p := range builder.models {
		if err := keys.SetCredential(p, "sk-test-"+string(p)); err != nil {
			t.Fatalf("SetCredential(%s): %v", p, err)
		}
	}
	for p := range builder.buildErrs {
		if err := keys.SetCredential(p, "sk-test-"+string(p)); err != nil {
			t.Fatalf("SetCredential(%s): %v", p, err)
		}
	}
	return keys, sessions, NewStreamService(keys, sessions, builder, grace)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSubmitFansOutToActiveProviders(t *testing.T) {
	builder := &fakeBuilder{models: map[models.Provider]*scriptedModel{
		models.ProviderOpenAI:    {chunks: []string{"The sky ", "is blue."}},
		models.ProviderGemini:    {chunks: []string{"Blue, ", "mostly."}},
		models.ProviderAnthropic: {chunks: []string{"It depends ", "on the weather."}},
	}}
	_, sessions, stream := newStreamFixture(t, builder, time.Hour)

	sess, err := sessions.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	launched, err := stream.Submit(context.Background(), "Why is the sky blue?")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(launched) != 3 {
		t.Fatalf("launched %d providers, want 3", len(launched))
	}

	waitFor(t, "all assistant messages committed", func() bool {
		return len(sessions.Get(sess.ID).Messages) == 4 && len(stream.Feed()) == 3
	})

	got := sessions.Get(sess.ID)
	if got.Messages[0].Role != models.RoleUser || got.Messages[0].Content != "Why is the sky blue?" {
		t.Fatalf("first message = %+v, want the user prompt", got.Messages[0])
	}
	byProvider := map[models.Provider]string{}
	for _, m := range got.Messages[1:] {
		if m.Role != models.RoleAssistant {
			t.Fatalf("message role = %q, want assistant", m.Role)
		}
		byProvider[m.Provider] = m.Content
	}
	if byProvider[models.ProviderOpenAI] != "The sky is blue." {
		t.Fatalf("openai content = %q", byProvider[models.ProviderOpenAI])
	}
	if byProvider[models.ProviderGemini] != "Blue, mostly." {
		t.Fatalf("gemini content = %q", byProvider[models.ProviderGemini])
	}
	if byProvider[models.ProviderAnthropic] != "It depends on the weather." {
		t.Fatalf("anthropic content = %q", byProvider[models.ProviderAnthropic])
	}

	// Each back-end saw the same frozen history: just the user prompt.
	for p, m := range builder.models {
		if len(m.history) != 1 || m.history[0].Content != "Why is the sky blue?" {
			t.Fatalf("%s history = %+v, want the single user prompt", p, m.history)
		}
	}

	// With a generous grace period the finished records are still visible.
	snap := stream.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("snapshot has %d records, want 3", len(snap))
	}
	for p, rec := range snap {
		if !rec.Finished || rec.Loading || rec.Error != "" {
			t.Fatalf("%s record = %+v, want finished", p, rec)
		}
	}

	feed := stream.Feed()
	if len(feed) != 3 {
		t.Fatalf("feed has %d items, want 3", len(feed))
	}
	for _, item := range feed {
		if item.Prompt != "Why is the sky blue?" || item.Content == "" {
			t.Fatalf("feed item = %+v", item)
		}
	}
}

func TestSubmitGuards(t *testing.T) {
	builder := &fakeBuilder{models: map[models.Provider]*scriptedModel{
		models.ProviderOpenAI: {chunks: []string{"ok"}},
	}}
	_, sessions, stream := newStreamFixture(t, builder, time.Hour)

	if _, err := stream.Submit(context.Background(), "   "); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("blank prompt error = %v, want ErrEmptyPrompt", err)
	}
	if _, err := stream.Submit(context.Background(), "hello"); !errors.Is(err, ErrNoCurrentSession) {
		t.Fatalf("no-session error = %v, want ErrNoCurrentSession", err)
	}

	sess, err := sessions.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := stream.Submit(context.Background(), "hello"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitFor(t, "first round to finish", func() bool {
		return len(sessions.Get(sess.ID).Messages) == 2
	})

	// Same prompt again: silent no-op, nothing launched, no new user message.
	launched, err := stream.Submit(context.Background(), "hello")
	if err != nil {
		t.Fatalf("duplicate Submit: %v", err)
	}
	if launched != nil {
		t.Fatalf("duplicate Submit launched %v, want nothing", launched)
	}
	if n := len(sessions.Get(sess.ID).Messages); n != 2 {
		t.Fatalf("message count after duplicate = %d, want 2", n)
	}

	// Reset clears the guard; the same literal prompt goes through again.
	stream.Reset()
	if launched, err = stream.Submit(context.Background(), "hello"); err != nil || len(launched) != 1 {
		t.Fatalf("Submit after Reset = (%v, %v), want one launch", launched, err)
	}
	waitFor(t, "second round to finish", func() bool {
		return len(sessions.Get(sess.ID).Messages) == 4
	})
}

func TestProviderFailureIsContained(t *testing.T) {
	builder := &fakeBuilder{
		models: map[models.Provider]*scriptedModel{
			models.ProviderOpenAI: {chunks: []string{"fine"}},
			models.ProviderGroq:   {chunks: []string{"partial "}, err: errors.New("rate limited")},
		},
	}
	_, sessions, stream := newStreamFixture(t, builder, time.Hour)

	sess, err := sessions.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := stream.Submit(context.Background(), "ping"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	waitFor(t, "both terminal outcomes", func() bool {
		snap := stream.Snapshot()
		return snap[models.ProviderOpenAI].Finished && snap[models.ProviderGroq].Finished &&
			len(stream.Feed()) == 1
	})

	snap := stream.Snapshot()
	if rec := snap[models.ProviderGroq]; rec.Error != "rate limited" || rec.Content != "" || rec.Loading {
		t.Fatalf("groq record = %+v, want errored with empty content", rec)
	}
	if rec := snap[models.ProviderOpenAI]; rec.Error != "" || rec.Content != "fine" {
		t.Fatalf("openai record = %+v, want clean finish", rec)
	}

	// Only the successful provider commits; the failure leaves no message.
	got := sessions.Get(sess.ID)
	if len(got.Messages) != 2 {
		t.Fatalf("message count = %d, want user + one assistant", len(got.Messages))
	}
	if got.Messages[1].Provider != models.ProviderOpenAI {
		t.Fatalf("committed provider = %s, want openai", got.Messages[1].Provider)
	}
	if len(stream.Feed()) != 1 {
		t.Fatalf("feed has %d items, want 1", len(stream.Feed()))
	}
}

func TestBuildFailureProducesErroredRecord(t *testing.T) {
	builder := &fakeBuilder{
		models:    map[models.Provider]*scriptedModel{},
		buildErrs: map[models.Provider]error{models.ProviderDeepSeek: errors.New("bad api key")},
	}
	_, sessions, stream := newStreamFixture(t, builder, time.Hour)

	if _, err := sessions.Create(); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := stream.Submit(context.Background(), "ping"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	waitFor(t, "errored record", func() bool {
		return stream.Snapshot()[models.ProviderDeepSeek].Finished
	})
	if rec := stream.Snapshot()[models.ProviderDeepSeek]; rec.Error != "bad api key" {
		t.Fatalf("record = %+v, want build error surfaced", rec)
	}
}

func TestSessionSwitchIsolation(t *testing.T) {
	gate := make(chan struct{})
	builder := &fakeBuilder{models: map[models.Provider]*scriptedModel{
		models.ProviderOpenAI: {chunks: []string{"slow answer"}, gate: gate},
	}}
	_, sessions, stream := newStreamFixture(t, builder, time.Hour)

	first, err := sessions.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := stream.Submit(context.Background(), "take your time"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Switch away while the request is still in flight.
	second, err := sessions.Create()
	if err != nil {
		t.Fatalf("Create second: %v", err)
	}
	stream.Reset()
	close(gate)

	waitFor(t, "late commit to the originating session", func() bool {
		return len(sessions.Get(first.ID).Messages) == 2
	})

	got := sessions.Get(first.ID)
	if got.Messages[1].Content != "slow answer" {
		t.Fatalf("late commit content = %q", got.Messages[1].Content)
	}
	// The new session never sees the stale round, transient or durable.
	if n := len(sessions.Get(second.ID).Messages); n != 0 {
		t.Fatalf("second session has %d messages, want 0", n)
	}
	if snap := stream.Snapshot(); len(snap) != 0 {
		t.Fatalf("snapshot after switch = %+v, want empty", snap)
	}
}

func TestTerminalRecordsExpireAfterGrace(t *testing.T) {
	builder := &fakeBuilder{models: map[models.Provider]*scriptedModel{
		models.ProviderOpenAI: {chunks: []string{"done"}},
	}}
	_, sessions, stream := newStreamFixture(t, builder, 20*time.Millisecond)

	if _, err := sessions.Create(); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := stream.Submit(context.Background(), "ping"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	waitFor(t, "record removal after grace period", func() bool {
		return len(stream.Snapshot()) == 0
	})
	// The durable record survives the transient's removal.
	if len(stream.Feed()) != 1 {
		t.Fatalf("feed has %d items, want 1", len(stream.Feed()))
	}
}

func TestInactiveAndUncredentialedProvidersSkipped(t *testing.T) {
	builder := &fakeBuilder{models: map[models.Provider]*scriptedModel{
		models.ProviderOpenAI: {chunks: []string{"only me"}},
		models.ProviderGemini: {chunks: []string{"never sent"}},
	}}
	keys, sessions, stream := newStreamFixture(t, builder, time.Hour)

	// Deactivated provider with a key, and an active-toggled provider
	// without a key: neither may launch.
	keys.ToggleActive(models.ProviderGemini, false)
	keys.ToggleActive(models.ProviderGroq, true)

	if _, err := sessions.Create(); err != nil {
		t.Fatalf("Create: %v", err)
	}
	launched, err := stream.Submit(context.Background(), "ping")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(launched) != 1 || launched[0] != models.ProviderOpenAI {
		t.Fatalf("launched = %v, want only openai", launched)
	}
}

func TestClearFeed(t *testing.T) {
	builder := &fakeBuilder{models: map[models.Provider]*scriptedModel{
		models.ProviderOpenAI: {chunks: []string{"a"}},
	}}
	_, sessions, stream := newStreamFixture(t, builder, time.Hour)

	if _, err := sessions.Create(); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := stream.Submit(context.Background(), "ping"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitFor(t, "feed item", func() bool { return len(stream.Feed()) == 1 })

	stream.ClearFeed()
	if len(stream.Feed()) != 0 {
		t.Fatalf("feed not empty after clear")
	}
}

func TestHistoryIncludesPriorTurns(t *testing.T) {
	m := &scriptedModel{chunks: []string{"second answer"}}
	builder := &fakeBuilder{models: map[models.Provider]*scriptedModel{
		models.ProviderOpenAI: m,
	}}
	_, sessions, stream := newStreamFixture(t, builder, time.Hour)

	sess, err := sessions.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := stream.Submit(context.Background(), "first question"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitFor(t, "first answer committed", func() bool {
		return len(sessions.Get(sess.ID).Messages) == 2
	})

	if _, err := stream.Submit(context.Background(), "second question"); err != nil {
		t.Fatalf("Submit second: %v", err)
	}
	waitFor(t, "second answer committed", func() bool {
		return len(sessions.Get(sess.ID).Messages) == 4
	})

	// The second round's history carries the full prior conversation.
	if len(m.history) != 3 {
		t.Fatalf("history length = %d, want 3", len(m.history))
	}
	if m.history[0].Role != schema.User || m.history[1].Role != schema.Assistant || m.history[2].Role != schema.User {
		t.Fatalf("history roles = %v %v %v", m.history[0].Role, m.history[1].Role, m.history[2].Role)
	}
	if !strings.Contains(m.history[2].Content, "second question") {
		t.Fatalf("last history entry = %q", m.history[2].Content)
	}
}
