package tools

import (
	"context"
	"encoding/json"
	"time"
)

// TimeLayout is YYYY-MM-DD HH:MM:SS.
const TimeLayout = "2006-01-02 15:04:05"

// Clock is the "get_time" tool.
type Clock struct {
	now func() time.Time
}

// NewClock creates a clock reading the local wall time.
func NewClock() *Clock { return &Clock{now: time.Now} }

// NewClockAt creates a clock with a fixed time source.
func NewClockAt(now func() time.Time) *Clock { return &Clock{now: now} }

func (c *Clock) Name() string        { return "get_time" }
func (c *Clock) Description() string { return "Fetch the current date and time" }
func (c *Clock) Parameters() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

// Execute ignores its arguments.
func (c *Clock) Execute(_ context.Context, _ map[string]any) (string, error) {
	return c.Now(), nil
}

// Now returns the current time formatted with TimeLayout.
func (c *Clock) Now() string {
	return c.now().Format(TimeLayout)
}
