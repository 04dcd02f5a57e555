package gemini

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/toolchat/pkg/llm"
)

func TestToContents(t *testing.T) {
	system, history, last, err := toContents([]llm.Message{
		{Role: llm.RoleSystem, Content: "be brief"},
		{Role: llm.RoleAssistant, Content: "Hello! How can I assist you today?"},
		{Role: llm.RoleUser, Content: "what time is it"},
		{Role: llm.RoleAssistant, Content: "2024-01-01 10:00:00"},
		{Role: llm.RoleUser, Content: "add 1 and 2"},
	})
	require.NoError(t, err)

	require.NotNil(t, system)
	assert.Equal(t, []genai.Part{genai.Text("be brief")}, system.Parts)

	require.Len(t, history, 3)
	assert.Equal(t, "model", history[0].Role)
	assert.Equal(t, "user", history[1].Role)
	assert.Equal(t, "model", history[2].Role)
	assert.Equal(t, []genai.Part{genai.Text("add 1 and 2")}, last)
}

func TestToContentsEmptySystem(t *testing.T) {
	system, history, _, err := toContents([]llm.Message{
		{Role: llm.RoleSystem, Content: ""},
		{Role: llm.RoleUser, Content: "hi"},
	})
	require.NoError(t, err)
	assert.Nil(t, system)
	assert.Empty(t, history)
}

func TestToContentsRequiresTrailingUser(t *testing.T) {
	_, _, _, err := toContents([]llm.Message{
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "hello"},
	})
	assert.Error(t, err)

	_, _, _, err = toContents([]llm.Message{{Role: "tool", Content: "x"}})
	assert.Error(t, err)
}

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Role:  "model",
				Parts: []genai.Part{genai.Text("  [CALL:get_time]"), genai.Text("\n")},
			},
		}},
	}
	assert.Equal(t, "[CALL:get_time]", responseText(resp))
	assert.Equal(t, "", responseText(nil))
	assert.Equal(t, "", responseText(&genai.GenerateContentResponse{}))
}
