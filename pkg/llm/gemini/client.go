// Package gemini implements llm.Provider on top of Google's generative AI SDK.
// Gemini has no native tool declarations here: tool requests arrive as
// text-tagged replies that the interpreter recognises.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/user/toolchat/pkg/llm"
)

// DefaultModel is the model the chat page was built against.
const DefaultModel = "gemini-1.5-pro"

const roleModel = "model"

// Client implements llm.Provider for Gemini models.
type Client struct {
	config *llm.Config
	client *genai.Client
}

// New creates a Gemini client. The caller must Close it.
func New(ctx context.Context, config *llm.Config) (*Client, error) {
	opts := []option.ClientOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(config.BaseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{config: config, client: client}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Complete sends the conversation through a chat session whose history is
// every message but the last. tools is ignored.
func (c *Client) Complete(ctx context.Context, messages []llm.Message, _ []llm.Tool) (*llm.Response, error) {
	system, history, last, err := toContents(messages)
	if err != nil {
		return nil, err
	}

	model := c.client.GenerativeModel(c.config.Model)
	model.SystemInstruction = system
	if c.config.Temperature != 0 {
		model.SetTemperature(c.config.Temperature)
	}
	if c.config.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(c.config.MaxTokens))
	}

	cs := model.StartChat()
	cs.History = history

	start := time.Now()
	resp, err := cs.SendMessage(ctx, last...)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	out := &llm.Response{Content: responseText(resp)}
	if resp.UsageMetadata != nil {
		out.Usage = llm.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	slog.Debug("gemini completion", "model", c.config.Model, "total_tokens", out.Usage.TotalTokens, "elapsed", time.Since(start))
	return out, nil
}

// toContents splits provider-neutral messages into Gemini's shape: system
// messages join into the system instruction, the final user message becomes
// the parts to send, everything before it is chat history.
func toContents(messages []llm.Message) (*genai.Content, []*genai.Content, []genai.Part, error) {
	var systemParts []genai.Part
	var turns []*genai.Content
	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			if msg.Content != "" {
				systemParts = append(systemParts, genai.Text(msg.Content))
			}
		case llm.RoleUser:
			turns = append(turns, &genai.Content{Role: llm.RoleUser, Parts: []genai.Part{genai.Text(msg.Content)}})
		case llm.RoleAssistant:
			turns = append(turns, &genai.Content{Role: roleModel, Parts: []genai.Part{genai.Text(msg.Content)}})
		default:
			return nil, nil, nil, fmt.Errorf("unsupported role %q", msg.Role)
		}
	}

	if len(turns) == 0 || turns[len(turns)-1].Role != llm.RoleUser {
		return nil, nil, nil, errors.New("conversation must end with a user message")
	}

	var system *genai.Content
	if len(systemParts) > 0 {
		system = &genai.Content{Parts: systemParts}
	}
	last := turns[len(turns)-1]
	return system, turns[:len(turns)-1], last.Parts, nil
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return strings.TrimSpace(b.String())
}
