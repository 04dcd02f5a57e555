// Package prompt assembles the messages sent to a model: a rendered system
// instruction followed by as much of the transcript as fits the token budget.
package prompt

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/toolchat/internal/types"
	"github.com/user/toolchat/pkg/llm"
)

// Engine assembles token-budgeted prompts for the LLM.
type Engine struct {
	tokenizer *tiktoken.Tiktoken
	maxTokens int
	reserve   int
}

// New creates an engine with the specified token budget.
// model selects the tokenizer; unknown models fall back to cl100k_base.
// maxTokens is the model's context window and reserve is held back for the
// reply.
func New(model string, maxTokens, reserve int) (*Engine, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Engine{
		tokenizer: enc,
		maxTokens: maxTokens,
		reserve:   reserve,
	}, nil
}

// CountTokens returns the token count for a string.
func (e *Engine) CountTokens(text string) int {
	return len(e.tokenizer.Encode(text, nil, nil))
}

// BuildMessages returns the system message followed by turns. When the
// budget is exceeded the oldest turns are left out of the request; the newest
// turn is always sent. turns itself is not modified.
func (e *Engine) BuildMessages(system string, turns []types.Turn) []llm.Message {
	budget := e.maxTokens - e.reserve - e.CountTokens(system)

	start := len(turns)
	used := 0
	for i := len(turns) - 1; i >= 0; i-- {
		n := e.CountTokens(turns[i].Content)
		if i < len(turns)-1 && used+n > budget {
			break
		}
		used += n
		start = i
	}

	messages := make([]llm.Message, 0, 1+len(turns)-start)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	for _, turn := range turns[start:] {
		messages = append(messages, llm.Message{Role: string(turn.Role), Content: turn.Content})
	}
	return messages
}
