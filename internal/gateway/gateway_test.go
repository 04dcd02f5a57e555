package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/user/toolchat/internal/session"
	"github.com/user/toolchat/internal/state"
	"github.com/user/toolchat/internal/types"
)

func newStore() *state.SessionStore {
	return state.NewSessionStore(func() *session.Session {
		return session.New(session.Options{})
	})
}

func TestGatewayHandleInbound(t *testing.T) {
	sessions := newStore()

	gw := New(sessions)
	ctx := context.Background()
	gw.Start(ctx)
	defer gw.Stop()

	inbound := &types.InboundEvent{
		Source:     "test",
		SessionKey: types.NewSessionKey("test", "123"),
		UserID:     "user1",
		Text:       "hello",
	}

	if err := gw.HandleInbound(ctx, inbound); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)

	if n := len(sessions.List(ctx)); n != 1 {
		t.Errorf("expected 1 session, got %d", n)
	}
}

func TestGatewayMultipleEvents(t *testing.T) {
	sessions := newStore()

	gw := New(sessions)
	ctx := context.Background()
	gw.Start(ctx)
	defer gw.Stop()

	// Two events with the same session key should share one session
	for i := 0; i < 2; i++ {
		inbound := &types.InboundEvent{
			Source:     "test",
			SessionKey: types.NewSessionKey("test", "same-key"),
			UserID:     "user1",
			Text:       "msg",
		}
		if err := gw.HandleInbound(ctx, inbound); err != nil {
			t.Fatal(err)
		}
	}

	time.Sleep(100 * time.Millisecond)

	if n := len(sessions.List(ctx)); n != 1 {
		t.Errorf("expected 1 session (same key), got %d", n)
	}
}

func TestGatewayDifferentSessions(t *testing.T) {
	sessions := newStore()

	gw := New(sessions)
	ctx := context.Background()
	gw.Start(ctx)
	defer gw.Stop()

	for _, chat := range []string{"111", "222"} {
		inbound := &types.InboundEvent{
			Source:     "test",
			SessionKey: types.NewSessionKey("test", chat),
			UserID:     "user1",
			Text:       "hello",
		}
		if err := gw.HandleInbound(ctx, inbound); err != nil {
			t.Fatal(err)
		}
	}

	time.Sleep(100 * time.Millisecond)

	if n := len(sessions.List(ctx)); n != 2 {
		t.Errorf("expected 2 sessions, got %d", n)
	}
}

func TestGatewayOnCompleteOption(t *testing.T) {
	sessions := newStore()

	gw := New(sessions, 1)
	ctx := context.Background()
	gw.Start(ctx)
	defer gw.Stop()

	gw.Queue.SetProcessor(func(run *Run) error {
		run.OnComplete("echo: " + run.Event.Text)
		return nil
	})

	got := make(chan string, 1)
	inbound := &types.InboundEvent{
		Source:     "test",
		SessionKey: types.NewSessionKey("test", "cb"),
		Text:       "ping",
	}
	if err := gw.HandleInbound(ctx, inbound, WithOnComplete(func(s string) { got <- s })); err != nil {
		t.Fatal(err)
	}

	select {
	case resp := <-got:
		if resp != "echo: ping" {
			t.Errorf("unexpected response %q", resp)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
}

func TestGatewayAsk(t *testing.T) {
	gw := New(newStore(), 1)
	ctx := context.Background()
	gw.Start(ctx)
	defer gw.Stop()

	gw.Queue.SetProcessor(func(run *Run) error {
		if run.Event.Text == "fail" {
			return errors.New("model call: boom")
		}
		run.OnComplete("echo: " + run.Event.Text)
		return nil
	})

	reply, err := gw.Ask(ctx, &types.InboundEvent{SessionKey: "http:1", Text: "ping"})
	if err != nil {
		t.Fatal(err)
	}
	if reply != "echo: ping" {
		t.Errorf("unexpected reply %q", reply)
	}

	_, err = gw.Ask(ctx, &types.InboundEvent{SessionKey: "http:1", Text: "fail"})
	if err == nil || err.Error() != "model call: boom" {
		t.Errorf("expected processor error, got %v", err)
	}
}

func TestGatewayAskContextDone(t *testing.T) {
	gw := New(newStore(), 1)
	gw.Start(context.Background())
	defer gw.Stop()

	release := make(chan struct{})
	gw.Queue.SetProcessor(func(run *Run) error {
		<-release
		return nil
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := gw.Ask(ctx, &types.InboundEvent{SessionKey: "http:2", Text: "slow"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
