package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/user/toolchat/internal/config"
	"github.com/user/toolchat/internal/prompt"
	"github.com/user/toolchat/internal/runtime"
	"github.com/user/toolchat/pkg/llm"
	"github.com/user/toolchat/pkg/llm/gemini"
	"github.com/user/toolchat/pkg/llm/openai"
)

// backendOptions are the per-invocation overrides shared by chat and
// telegram.
type backendOptions struct {
	backend          string
	systemPromptFile string
}

// resolve returns the backend to use: the flag if set, else the config.
func (o backendOptions) resolve(cfg *config.Config) string {
	if o.backend != "" {
		return strings.ToLower(o.backend)
	}
	return strings.ToLower(cfg.Backend)
}

// newRuntime resolves the backend's credential, builds its provider and
// returns a runtime over the default tools. The returned close function
// releases the provider.
func newRuntime(ctx context.Context, cfg *config.Config, opts backendOptions) (*runtime.Runtime, func(), error) {
	backend := opts.resolve(cfg)

	apiKey, err := config.ResolveCredential(cfg, backend)
	if err != nil {
		return nil, nil, err
	}

	var (
		provider    llm.Provider
		model       string
		defaultTmpl string
		closer      = func() {}
	)
	switch backend {
	case config.BackendGemini:
		model = cfg.Gemini.Model
		client, err := gemini.New(ctx, &llm.Config{
			APIKey:      apiKey,
			Model:       model,
			Temperature: cfg.Gemini.Temperature,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create gemini client: %w", err)
		}
		provider = client
		closer = func() { client.Close() }
		defaultTmpl = prompt.DefaultTextTagPrompt
	case config.BackendGroq:
		model = cfg.Groq.Model
		provider = openai.New(&llm.Config{
			BaseURL:     cfg.Groq.BaseURL,
			APIKey:      apiKey,
			Model:       model,
			MaxTokens:   cfg.Groq.MaxTokens,
			Temperature: cfg.Groq.Temperature,
		})
		defaultTmpl = prompt.DefaultStructuredPrompt
	}

	engine, err := prompt.New(model, cfg.Chat.MaxContextTokens, cfg.Chat.OutputReserve)
	if err != nil {
		closer()
		return nil, nil, fmt.Errorf("create prompt engine: %w", err)
	}

	tmpl := defaultTmpl
	if cfg.Chat.SystemPrompt != "" {
		tmpl = cfg.Chat.SystemPrompt
	}
	if opts.systemPromptFile != "" {
		data, err := os.ReadFile(opts.systemPromptFile)
		if err != nil {
			closer()
			return nil, nil, fmt.Errorf("read system prompt: %w", err)
		}
		tmpl = string(data)
	}

	registry := runtime.DefaultRegistry()
	system, err := prompt.RenderSystemPrompt(tmpl, registry.Names())
	if err != nil {
		closer()
		return nil, nil, err
	}

	rt := runtime.New(runtime.Options{
		Provider:     provider,
		Messages:     engine,
		Registry:     registry,
		SystemPrompt: system,
		DeclareTools: backend == config.BackendGroq,
		Greeting:     cfg.Chat.Greeting,
	})
	return rt, closer, nil
}
