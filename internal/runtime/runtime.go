package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/user/toolchat/internal/gateway"
	"github.com/user/toolchat/internal/interpret"
	"github.com/user/toolchat/internal/session"
	"github.com/user/toolchat/internal/state"
	"github.com/user/toolchat/pkg/llm"
)

// Options configures a Runtime.
type Options struct {
	Provider llm.Provider
	Messages session.MessageBuilder
	Registry *Registry
	// SystemPrompt is the rendered instruction sent with every turn.
	SystemPrompt string
	// DeclareTools sends the registry's schemas with each model call. Set it
	// for backends that return structured tool calls.
	DeclareTools bool
	Greeting     string
}

// Runtime builds sessions that share one provider and tool registry, and
// processes queued runs against them.
type Runtime struct {
	opts        Options
	interpreter *interpret.Interpreter
	sessions    *state.SessionStore
}

// New creates a Runtime. If opts.Registry is nil the default tools are used.
func New(opts Options) *Runtime {
	if opts.Registry == nil {
		opts.Registry = DefaultRegistry()
	}
	rt := &Runtime{
		opts:        opts,
		interpreter: interpret.New(opts.Registry),
	}
	rt.sessions = state.NewSessionStore(rt.NewSession)
	return rt
}

// Registry returns the runtime's tool registry.
func (rt *Runtime) Registry() *Registry { return rt.opts.Registry }

// Sessions returns the store of sessions keyed by chat.
func (rt *Runtime) Sessions() *state.SessionStore { return rt.sessions }

// NewSession creates a fresh session wired to the runtime's provider,
// prompt engine and interpreter.
func (rt *Runtime) NewSession() *session.Session {
	var declared []llm.Tool
	if rt.opts.DeclareTools {
		declared = rt.opts.Registry.AsLLMTools()
	}
	return session.New(session.Options{
		Provider:     rt.opts.Provider,
		Messages:     rt.opts.Messages,
		Interpreter:  rt.interpreter,
		SystemPrompt: rt.opts.SystemPrompt,
		Tools:        declared,
		Greeting:     rt.opts.Greeting,
	})
}

// ProcessRun executes one turn for a queued run and hands the reply to the
// run's callback. This is the function passed to Queue.SetProcessor.
func (rt *Runtime) ProcessRun(run *gateway.Run) error {
	ctx := run.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	sess, err := rt.sessions.ResolveOrCreate(ctx, run.SessionKey)
	if err != nil {
		return fmt.Errorf("resolve session: %w", err)
	}

	reply, err := sess.Send(ctx, run.Event.Text)
	if errors.Is(err, session.ErrEmptyMessage) {
		slog.Debug("ignoring empty message", "run_id", string(run.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("session %s: %w", sess.ID(), err)
	}

	if run.OnComplete != nil {
		run.OnComplete(reply)
	}
	return nil
}
