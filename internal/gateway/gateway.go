package gateway

import (
	"context"
	"fmt"

	"github.com/user/toolchat/internal/state"
	"github.com/user/toolchat/internal/types"
)

// Gateway turns inbound chat messages into queued runs. It makes sure the
// chat has a session, wraps the event in a Run and enqueues it on the
// chat's lane.
type Gateway struct {
	sessions *state.SessionStore
	Queue    *Queue

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Gateway over the session store with the given concurrency
// limit for simultaneous turns across chats.
func New(sessions *state.SessionStore, maxConcurrent ...int64) *Gateway {
	var concurrency int64 = 2
	if len(maxConcurrent) > 0 && maxConcurrent[0] > 0 {
		concurrency = maxConcurrent[0]
	}
	return &Gateway{
		sessions: sessions,
		Queue:    NewQueue(concurrency),
	}
}

// Start initialises the gateway's context and starts the internal queue.
func (g *Gateway) Start(ctx context.Context) {
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.Queue.Start(g.ctx)
}

// Stop cancels the gateway context and waits for the queue to drain its
// in-flight runs.
func (g *Gateway) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	g.Queue.Stop()
}

// RunOption configures optional behavior on a Run.
type RunOption func(*Run)

// WithOnComplete sets a callback invoked when the run produces a final response.
func WithOnComplete(fn func(string)) RunOption {
	return func(r *Run) { r.OnComplete = fn }
}

// HandleInbound resolves or creates a session for the event, wraps it in a
// Run, and enqueues it for processing.
func (g *Gateway) HandleInbound(ctx context.Context, event *types.InboundEvent, opts ...RunOption) error {
	if _, err := g.sessions.ResolveOrCreate(ctx, event.SessionKey); err != nil {
		return fmt.Errorf("resolve session: %w", err)
	}
	run := NewRun(event)
	for _, opt := range opts {
		opt(run)
	}
	return g.Queue.Enqueue(run)
}

// Ask enqueues event and waits for its reply. It returns the processor's
// error if the turn fails, or ctx's error if ctx ends first.
func (g *Gateway) Ask(ctx context.Context, event *types.InboundEvent) (string, error) {
	replies := make(chan string, 1)
	errs := make(chan error, 1)
	err := g.HandleInbound(ctx, event,
		WithOnComplete(func(s string) { replies <- s }),
		func(r *Run) { r.OnError = func(err error) { errs <- err } },
	)
	if err != nil {
		return "", err
	}
	select {
	case reply := <-replies:
		return reply, nil
	case err := <-errs:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
