package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/user/toolchat/internal/gateway"
	"github.com/user/toolchat/internal/runtime/tools"
	"github.com/user/toolchat/internal/types"
	"github.com/user/toolchat/pkg/llm"
)

// mockProvider returns pre-configured responses and records what it was sent.
type mockProvider struct {
	mu        sync.Mutex
	responses []*llm.Response
	err       error
	callCount int
	lastTools []llm.Tool
}

func (m *mockProvider) Complete(_ context.Context, messages []llm.Message, tools []llm.Tool) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastTools = tools
	if m.err != nil {
		return nil, m.err
	}
	idx := m.callCount
	m.callCount++
	if idx < len(m.responses) {
		return m.responses[idx], nil
	}
	return &llm.Response{Content: "fallback"}, nil
}

// plainBuilder passes turns through without token budgeting.
type plainBuilder struct{}

func (plainBuilder) BuildMessages(system string, turns []types.Turn) []llm.Message {
	msgs := []llm.Message{{Role: llm.RoleSystem, Content: system}}
	for _, t := range turns {
		msgs = append(msgs, llm.Message{Role: string(t.Role), Content: t.Content})
	}
	return msgs
}

func fixedRegistry() *Registry {
	clock := tools.NewClockAt(func() time.Time {
		return time.Date(2025, 3, 14, 15, 9, 26, 0, time.Local)
	})
	return NewRegistry(clock, tools.NewCalculator())
}

func newRun(key, text string, onComplete func(string)) *gateway.Run {
	run := gateway.NewRun(&types.InboundEvent{
		Source:     "test",
		SessionKey: types.SessionKey(key),
		UserID:     "user1",
		Text:       text,
	})
	run.OnComplete = onComplete
	return run
}

func TestProcessRunSimpleResponse(t *testing.T) {
	provider := &mockProvider{
		responses: []*llm.Response{{Content: "Hello! How can I help?"}},
	}
	rt := New(Options{Provider: provider, Messages: plainBuilder{}, Registry: fixedRegistry()})

	var got string
	run := newRun("test:user1:1", "hi", func(resp string) { got = resp })
	if err := rt.ProcessRun(run); err != nil {
		t.Fatal(err)
	}
	if got != "Hello! How can I help?" {
		t.Errorf("expected callback result, got %q", got)
	}

	sess, err := rt.Sessions().Get(context.Background(), run.SessionKey)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Len() != 2 {
		t.Errorf("expected 2 turns, got %d", sess.Len())
	}
}

func TestProcessRunWithToolCall(t *testing.T) {
	provider := &mockProvider{
		responses: []*llm.Response{{
			Content: "Let me work that out.",
			ToolCalls: []llm.ToolCall{{
				ID:   "tc1",
				Type: "function",
				Function: llm.FunctionCall{
					Name:      "calculate",
					Arguments: json.RawMessage(`"{\"operation\":\"add\",\"numbers\":[1,2]}"`),
				},
			}},
		}},
	}
	rt := New(Options{Provider: provider, Messages: plainBuilder{}, Registry: fixedRegistry(), DeclareTools: true})

	var got string
	if err := rt.ProcessRun(newRun("test:user1:1", "add 1 and 2", func(resp string) { got = resp })); err != nil {
		t.Fatal(err)
	}

	want := "Let me work that out.\n\n**Tool Result:** 3"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	if len(provider.lastTools) != 2 {
		t.Errorf("expected 2 declared tools, got %d", len(provider.lastTools))
	}
}

func TestProcessRunTextTag(t *testing.T) {
	provider := &mockProvider{
		responses: []*llm.Response{{Content: "[CALL:get_time]"}},
	}
	rt := New(Options{Provider: provider, Messages: plainBuilder{}, Registry: fixedRegistry()})

	var got string
	if err := rt.ProcessRun(newRun("k", "what time is it?", func(resp string) { got = resp })); err != nil {
		t.Fatal(err)
	}
	if got != "2025-03-14 15:09:26" {
		t.Errorf("unexpected reply %q", got)
	}
	if provider.lastTools != nil {
		t.Errorf("expected no declared tools, got %d", len(provider.lastTools))
	}
}

func TestProcessRunProviderError(t *testing.T) {
	provider := &mockProvider{err: errors.New("503 service unavailable")}
	rt := New(Options{Provider: provider, Messages: plainBuilder{}, Greeting: "Hello! How can I assist you today?"})

	called := false
	run := newRun("k", "hi", func(string) { called = true })
	err := rt.ProcessRun(run)
	if err == nil {
		t.Fatal("expected error")
	}
	if called {
		t.Error("callback should not run on failure")
	}

	sess, _ := rt.Sessions().Get(context.Background(), run.SessionKey)
	if sess.Len() != 1 {
		t.Errorf("expected only the greeting, got %d turns", sess.Len())
	}
}

func TestProcessRunEmptyMessage(t *testing.T) {
	provider := &mockProvider{}
	rt := New(Options{Provider: provider, Messages: plainBuilder{}})

	if err := rt.ProcessRun(newRun("k", "   ", func(string) { t.Error("unexpected callback") })); err != nil {
		t.Fatal(err)
	}
	if provider.callCount != 0 {
		t.Errorf("provider should not be called, got %d calls", provider.callCount)
	}
}

func TestProcessRunSessionsAreIsolated(t *testing.T) {
	provider := &mockProvider{}
	rt := New(Options{Provider: provider, Messages: plainBuilder{}})

	for _, key := range []string{"a", "a", "b"} {
		if err := rt.ProcessRun(newRun(key, "hi", nil)); err != nil {
			t.Fatal(err)
		}
	}

	ctx := context.Background()
	a, _ := rt.Sessions().Get(ctx, "a")
	b, _ := rt.Sessions().Get(ctx, "b")
	if a.Len() != 4 || b.Len() != 2 {
		t.Errorf("expected 4 and 2 turns, got %d and %d", a.Len(), b.Len())
	}
}

func TestProcessRunThroughQueue(t *testing.T) {
	provider := &mockProvider{
		responses: []*llm.Response{{Content: "first"}, {Content: "second"}},
	}
	rt := New(Options{Provider: provider, Messages: plainBuilder{}})

	gw := gateway.New(rt.Sessions(), 1)
	gw.Queue.SetProcessor(rt.ProcessRun)
	ctx := context.Background()
	gw.Start(ctx)
	defer gw.Stop()

	replies := make(chan string, 2)
	for _, text := range []string{"one", "two"} {
		event := &types.InboundEvent{Source: "test", SessionKey: "test:u:1", Text: text}
		if err := gw.HandleInbound(ctx, event, gateway.WithOnComplete(func(s string) { replies <- s })); err != nil {
			t.Fatal(err)
		}
	}

	for _, want := range []string{"first", "second"} {
		select {
		case got := <-replies:
			if got != want {
				t.Errorf("expected %q, got %q", want, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for reply")
		}
	}
}
