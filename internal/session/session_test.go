package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/toolchat/internal/interpret"
	"github.com/user/toolchat/internal/runtime"
	"github.com/user/toolchat/internal/session"
	"github.com/user/toolchat/internal/types"
	"github.com/user/toolchat/pkg/llm"
)

type passthroughBuilder struct{}

func (passthroughBuilder) BuildMessages(system string, turns []types.Turn) []llm.Message {
	out := []llm.Message{{Role: llm.RoleSystem, Content: system}}
	for _, t := range turns {
		out = append(out, llm.Message{Role: string(t.Role), Content: t.Content})
	}
	return out
}

// mockProvider returns pre-configured responses and records requests.
type mockProvider struct {
	mu        sync.Mutex
	responses []*llm.Response
	err       error
	block     chan struct{}
	started   chan struct{}
	requests  [][]llm.Message
	tools     [][]llm.Tool
}

func (m *mockProvider) Complete(_ context.Context, messages []llm.Message, tools []llm.Tool) (*llm.Response, error) {
	if m.started != nil {
		close(m.started)
	}
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, messages)
	m.tools = append(m.tools, tools)
	if m.err != nil {
		return nil, m.err
	}
	idx := len(m.requests) - 1
	if idx < len(m.responses) {
		return m.responses[idx], nil
	}
	return &llm.Response{Content: "fallback"}, nil
}

func newSession(p llm.Provider, tools []llm.Tool) *session.Session {
	return session.New(session.Options{
		Provider:     p,
		Messages:     passthroughBuilder{},
		Interpreter:  interpret.New(runtime.DefaultRegistry()),
		SystemPrompt: "system prompt",
		Tools:        tools,
		Greeting:     "Hello! How can I assist you today?",
	})
}

func TestNewSessionGreeting(t *testing.T) {
	s := newSession(&mockProvider{}, nil)
	require.Len(t, s.ID(), 36)
	turns := s.Snapshot()
	require.Len(t, turns, 1)
	assert.Equal(t, types.RoleAssistant, turns[0].Role)

	bare := session.New(session.Options{})
	assert.Equal(t, 0, bare.Len())
	assert.NotEqual(t, s.ID(), bare.ID())
}

func TestSendPlainReply(t *testing.T) {
	p := &mockProvider{responses: []*llm.Response{{Content: "I only do time and math."}}}
	s := newSession(p, nil)

	got, err := s.Send(context.Background(), "tell me a joke")
	require.NoError(t, err)
	assert.Equal(t, "I only do time and math.", got)

	turns := s.Snapshot()
	require.Len(t, turns, 3)
	assert.Equal(t, types.Turn{Role: types.RoleUser, Content: "tell me a joke"}, turns[1])
	assert.Equal(t, types.Turn{Role: types.RoleAssistant, Content: "I only do time and math."}, turns[2])

	require.Len(t, p.requests, 1)
	sent := p.requests[0]
	assert.Equal(t, llm.RoleSystem, sent[0].Role)
	assert.Equal(t, "system prompt", sent[0].Content)
	assert.Equal(t, "tell me a joke", sent[len(sent)-1].Content)
}

func TestSendTextTagReplacesReply(t *testing.T) {
	p := &mockProvider{responses: []*llm.Response{{Content: `[CALL:calculate] {"operation":"add","numbers":[1,2]}`}}}
	s := newSession(p, nil)

	got, err := s.Send(context.Background(), "1+2?")
	require.NoError(t, err)
	assert.Equal(t, "3", got)
	assert.Equal(t, "3", s.Snapshot()[2].Content)
	assert.Nil(t, p.tools[0])
}

func TestSendStructuredCallAppends(t *testing.T) {
	registry := runtime.DefaultRegistry()
	p := &mockProvider{responses: []*llm.Response{{
		Content: "Sure:",
		ToolCalls: []llm.ToolCall{{
			ID:   "call_1",
			Type: "function",
			Function: llm.FunctionCall{
				Name:      "calculate",
				Arguments: json.RawMessage(`"{\"operation\":\"multiply\",\"numbers\":[2,3,4]}"`),
			},
		}},
	}}}
	s := newSession(p, registry.AsLLMTools())

	got, err := s.Send(context.Background(), "2*3*4")
	require.NoError(t, err)
	assert.Equal(t, "Sure:\n\n**Tool Result:** 24", got)
	assert.Len(t, p.tools[0], 2)
}

func TestSendMalformedPayloadKeepsSession(t *testing.T) {
	p := &mockProvider{responses: []*llm.Response{
		{Content: "[CALL:calculate] not-json"},
		{Content: "ok"},
	}}
	s := newSession(p, nil)

	got, err := s.Send(context.Background(), "bad")
	require.NoError(t, err)
	assert.Contains(t, got, "Error processing calculation request")

	got, err = s.Send(context.Background(), "again")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 5, s.Len())
}

func TestSendProviderFailureAppendsNothing(t *testing.T) {
	boom := errors.New("connection refused")
	s := newSession(&mockProvider{err: boom}, nil)
	before := s.Len()

	_, err := s.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, before, s.Len())
}

func TestSendEmptyMessage(t *testing.T) {
	p := &mockProvider{}
	s := newSession(p, nil)
	_, err := s.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, session.ErrEmptyMessage)
	assert.Empty(t, p.requests)
}

func TestSendRejectsOverlappingTurn(t *testing.T) {
	p := &mockProvider{block: make(chan struct{}), started: make(chan struct{})}
	s := newSession(p, nil)

	done := make(chan error, 1)
	go func() {
		_, err := s.Send(context.Background(), "first")
		done <- err
	}()

	select {
	case <-p.started:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for first turn to start")
	}

	_, err := s.Send(context.Background(), "second")
	assert.ErrorIs(t, err, session.ErrTurnInFlight)

	close(p.block)
	require.NoError(t, <-done)
	assert.Equal(t, 3, s.Len())
}

func TestSnapshotIsACopy(t *testing.T) {
	s := newSession(&mockProvider{}, nil)
	snap := s.Snapshot()
	snap[0].Content = "mutated"
	assert.Equal(t, "Hello! How can I assist you today?", s.Snapshot()[0].Content)
}

func TestAppendRejectsInvalidTurns(t *testing.T) {
	s := newSession(&mockProvider{}, nil)
	err := s.Append(
		types.Turn{Role: types.RoleAssistant, Content: "fine"},
		types.Turn{Role: types.RoleUser, Content: ""},
	)
	require.Error(t, err)
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.Append(types.Turn{Role: types.RoleSystem}))
	assert.Equal(t, 2, s.Len())
}
