// Package interpret turns a raw model reply into the text shown to the user,
// running any local tool the reply asks for.
//
// Two request protocols are understood. Backends with native tool calling
// attach structured calls; each result is appended to the reply text under a
// "**Tool Result:**" label. Backends prompted to emit text tags start the
// reply with a marker such as "[CALL:get_time]"; the tool result then
// replaces the whole reply.
package interpret

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"
)

// Markers recognised at the start of a text-tagged reply.
const (
	MarkerGetTime   = "[CALL:get_time]"
	MarkerCalculate = "[CALL:calculate]"
)

// ToolResultLabel precedes every structured-call result appended to a reply.
const ToolResultLabel = "**Tool Result:** "

// Dispatcher runs a named tool. Implementations must not fail: every outcome,
// including unknown names, is reported as text.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, args map[string]any) string
}

// Call is a structured tool-call descriptor supplied by the model API.
type Call struct {
	Name      string
	Arguments json.RawMessage
}

// Reply is one raw model reply.
type Reply struct {
	Text  string
	Calls []Call
}

// Kind names the protocol state a reply falls into.
type Kind int

const (
	KindPlain Kind = iota
	KindTextTag
	KindStructured
)

func (k Kind) String() string {
	switch k {
	case KindTextTag:
		return "text_tag"
	case KindStructured:
		return "structured"
	default:
		return "plain"
	}
}

// Classify reports which protocol applies. Structured calls take precedence
// over markers in the text.
func Classify(r Reply) Kind {
	if len(r.Calls) > 0 {
		return KindStructured
	}
	if strings.HasPrefix(r.Text, MarkerGetTime) || strings.HasPrefix(r.Text, MarkerCalculate) {
		return KindTextTag
	}
	return KindPlain
}

// Interpreter resolves replies against a dispatcher. It holds no state of its
// own and may be shared between sessions.
type Interpreter struct {
	dispatcher Dispatcher
}

// New creates an Interpreter.
func New(d Dispatcher) *Interpreter {
	return &Interpreter{dispatcher: d}
}

// Resolve returns the text to display for r.
func (in *Interpreter) Resolve(ctx context.Context, r Reply) string {
	kind := Classify(r)
	slog.Debug("reply classified", "kind", kind.String(), "calls", len(r.Calls))

	switch kind {
	case KindStructured:
		return in.resolveStructured(ctx, r)
	case KindTextTag:
		return in.resolveTextTag(ctx, r.Text)
	default:
		return r.Text
	}
}

// resolveStructured runs calls in the order supplied and appends each result
// to the reply text, separated by a blank line. When the reply text is empty
// the first result starts the output with no separator before it.
func (in *Interpreter) resolveStructured(ctx context.Context, r Reply) string {
	var b strings.Builder
	b.WriteString(r.Text)
	for _, call := range r.Calls {
		var result string
		args, err := decodeArguments(call.Arguments)
		if err != nil {
			slog.Warn("undecodable tool arguments", "tool", call.Name, "error", err)
			result = fmt.Sprintf("Error: invalid arguments for %s: %v", call.Name, err)
		} else {
			result = in.dispatcher.Dispatch(ctx, call.Name, args)
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(ToolResultLabel)
		b.WriteString(result)
	}
	return b.String()
}

// resolveTextTag replaces the reply with the tagged tool's result.
func (in *Interpreter) resolveTextTag(ctx context.Context, text string) string {
	if strings.HasPrefix(text, MarkerGetTime) {
		return in.dispatcher.Dispatch(ctx, "get_time", nil)
	}

	payload := strings.TrimSpace(text[len(MarkerCalculate):])
	args, err := parsePayload(payload)
	if err != nil {
		slog.Warn("malformed calculation request", "payload", payload, "error", err)
		return "Error processing calculation request: " + err.Error()
	}
	return in.dispatcher.Dispatch(ctx, "calculate", args)
}

var errNotObject = errors.New("payload must be a JSON object")

// parsePayload parses the JSON object that follows a text-tag marker.
func parsePayload(payload string) (map[string]any, error) {
	if payload == "" {
		return nil, errors.New("missing JSON payload")
	}
	if !gjson.Valid(payload) {
		return nil, fmt.Errorf("invalid JSON payload %q", payload)
	}
	return objectValue(gjson.Parse(payload))
}

// decodeArguments accepts a JSON object, or a JSON string holding one as
// OpenAI-compatible APIs send. Empty and null arguments decode to no
// arguments.
func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return map[string]any{}, nil
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("invalid JSON %q", string(raw))
	}

	res := gjson.ParseBytes(raw)
	if res.Type == gjson.String {
		inner := strings.TrimSpace(res.Str)
		if inner == "" {
			return map[string]any{}, nil
		}
		if !gjson.Valid(inner) {
			return nil, fmt.Errorf("invalid JSON %q", inner)
		}
		res = gjson.Parse(inner)
	}
	if res.Type == gjson.Null {
		return map[string]any{}, nil
	}
	return objectValue(res)
}

func objectValue(res gjson.Result) (map[string]any, error) {
	if !res.IsObject() {
		return nil, errNotObject
	}
	m, ok := res.Value().(map[string]any)
	if !ok {
		return nil, errNotObject
	}
	return m, nil
}
