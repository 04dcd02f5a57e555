package gateway

import (
	"context"
	"time"

	"github.com/user/toolchat/internal/types"
)

// RunStatus represents the lifecycle state of a Run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run tracks one inbound message waiting for, or undergoing, a session turn.
type Run struct {
	ID         types.RunID
	SessionKey types.SessionKey
	Event      *types.InboundEvent
	Status     RunStatus
	Seq        int64
	CreatedAt  time.Time
	StartedAt  *time.Time
	EndedAt    *time.Time
	Error      error
	Ctx        context.Context
	OnComplete func(response string)
	// OnError, when set, receives the processor's error instead of
	// OnComplete being called with FailureReply.
	OnError func(err error)
}

// NewRun creates a Run in the Queued state for the given event.
func NewRun(event *types.InboundEvent) *Run {
	return &Run{
		ID:         types.NewRunID(),
		SessionKey: event.SessionKey,
		Event:      event,
		Status:     RunStatusQueued,
		CreatedAt:  time.Now(),
	}
}
