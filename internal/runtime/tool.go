package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/toolchat/internal/runtime/tools"
	"github.com/user/toolchat/pkg/llm"
)

// UnknownToolResult is what Dispatch returns for a name it does not know.
const UnknownToolResult = "Unknown tool called."

// Tool defines the interface for an executable tool.
type Tool interface {
	Name() string
	Description() string
	Parameters() json.RawMessage
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Registry holds the tools available to a model. It is fixed at construction
// and safe for concurrent use.
type Registry struct {
	order []string
	tools map[string]Tool
}

// NewRegistry creates a registry holding the given tools. Registering two
// tools under one name is a programming error and panics.
func NewRegistry(ts ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(ts))}
	for _, t := range ts {
		if _, dup := r.tools[t.Name()]; dup {
			panic(fmt.Sprintf("runtime: duplicate tool %q", t.Name()))
		}
		r.order = append(r.order, t.Name())
		r.tools[t.Name()] = t
	}
	return r
}

// DefaultRegistry returns the get_time and calculate tools.
func DefaultRegistry() *Registry {
	return NewRegistry(tools.NewClock(), tools.NewCalculator())
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// All returns all registered tools in registration order.
func (r *Registry) All() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// AsLLMTools converts registered tools to the LLM provider format.
func (r *Registry) AsLLMTools() []llm.Tool {
	out := make([]llm.Tool, 0, len(r.order))
	for _, t := range r.All() {
		out = append(out, llm.Tool{
			Type: "function",
			Function: llm.Function{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return out
}

// Dispatch runs the named tool and returns its result as display text. It
// never fails: unknown names, tool errors and panics all become strings.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (result string) {
	t, ok := r.tools[name]
	if !ok {
		slog.Warn("unknown tool requested", "tool", name)
		return UnknownToolResult
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			slog.Error("tool panicked", "tool", name, "panic", p)
			result = fmt.Sprintf("Error: %v", p)
		}
		slog.Debug("tool dispatched", "tool", name, "elapsed", time.Since(start))
	}()

	out, err := t.Execute(ctx, args)
	if err != nil {
		return "Error: " + err.Error()
	}
	return out
}
