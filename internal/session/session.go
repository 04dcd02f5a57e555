// Package session owns one conversation: its transcript and the turn cycle
// that sends it to a model and records the interpreted reply.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/toolchat/internal/interpret"
	"github.com/user/toolchat/internal/types"
	"github.com/user/toolchat/pkg/llm"
)

var (
	// ErrEmptyMessage is returned by Send for blank user text.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrTurnInFlight is returned by Send while another turn is running.
	ErrTurnInFlight = errors.New("a turn is already in progress")
)

// MessageBuilder converts a system instruction and turns into provider
// messages.
type MessageBuilder interface {
	BuildMessages(system string, turns []types.Turn) []llm.Message
}

// Options configures a Session.
type Options struct {
	Provider    llm.Provider
	Messages    MessageBuilder
	Interpreter *interpret.Interpreter
	// SystemPrompt is sent ahead of the transcript on every call.
	SystemPrompt string
	// Tools are declared to the provider. Leave nil for backends that use
	// text-tagged tool requests.
	Tools []llm.Tool
	// Greeting, when set, becomes the first assistant turn.
	Greeting string
}

// Session is a single conversation.
type Session struct {
	id        types.SessionID
	createdAt time.Time
	opts      Options

	transcript Transcript
	inflight   *semaphore.Weighted
}

// New creates a session with a fresh ID.
func New(opts Options) *Session {
	s := &Session{
		id:        types.NewSessionID(),
		createdAt: time.Now(),
		opts:      opts,
		inflight:  semaphore.NewWeighted(1),
	}
	if opts.Greeting != "" {
		// A non-empty assistant turn always validates.
		_ = s.transcript.Append(types.Turn{Role: types.RoleAssistant, Content: opts.Greeting})
	}
	return s
}

func (s *Session) ID() types.SessionID  { return s.id }
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Append adds turns to the transcript.
func (s *Session) Append(turns ...types.Turn) error {
	return s.transcript.Append(turns...)
}

// Snapshot returns a copy of the transcript.
func (s *Session) Snapshot() []types.Turn {
	return s.transcript.Snapshot()
}

// Len returns the number of turns in the transcript.
func (s *Session) Len() int {
	return s.transcript.Len()
}

// Send runs one turn: the user text and the transcript go to the model, the
// reply is interpreted, and both turns are appended. On error nothing is
// appended. Only one turn may run at a time.
func (s *Session) Send(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyMessage
	}
	if !s.inflight.TryAcquire(1) {
		return "", ErrTurnInFlight
	}
	defer s.inflight.Release(1)

	user := types.Turn{Role: types.RoleUser, Content: text}
	history := append(s.transcript.Snapshot(), user)
	messages := s.opts.Messages.BuildMessages(s.opts.SystemPrompt, history)

	start := time.Now()
	resp, err := s.opts.Provider.Complete(ctx, messages, s.opts.Tools)
	if err != nil {
		return "", fmt.Errorf("model call: %w", err)
	}

	reply := interpret.Reply{Text: resp.Content}
	for _, tc := range resp.ToolCalls {
		reply.Calls = append(reply.Calls, interpret.Call{
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	display := s.opts.Interpreter.Resolve(ctx, reply)

	if err := s.transcript.Append(user, types.Turn{Role: types.RoleAssistant, Content: display}); err != nil {
		return "", fmt.Errorf("record turn: %w", err)
	}

	slog.Info("turn complete",
		"session_id", string(s.id),
		"messages_sent", len(messages),
		"tool_calls", len(reply.Calls),
		"elapsed", time.Since(start),
	)
	return display, nil
}
