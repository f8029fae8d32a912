package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/kalambet/slotbot/internal/proxy"
)

// OpenRouterEngine runs reasoning on a remote model through OpenRouter.
// Structured output is requested with the JSON object response format; the
// schema itself is carried by the prompt.
type OpenRouterEngine struct {
	client *proxy.Client
}

// NewOpenRouterEngine creates an engine authenticated with apiKey.
func NewOpenRouterEngine(apiKey string) *OpenRouterEngine {
	return &OpenRouterEngine{client: proxy.NewClient(apiKey)}
}

// NewOpenRouterEngineWithClient wraps an existing client (for testing).
func NewOpenRouterEngineWithClient(c *proxy.Client) *OpenRouterEngine {
	return &OpenRouterEngine{client: c}
}

func (e *OpenRouterEngine) Name() string { return "openrouter" }

func (e *OpenRouterEngine) Chat(ctx context.Context, model string, messages []Message, jsonSchema *Schema) (string, error) {
	msgs := make([]proxy.Message, len(messages))
	for i, m := range messages {
		msgs[i] = proxy.Message{Role: m.Role, Content: m.Content}
	}
	return e.client.Complete(ctx, model, msgs, jsonSchema != nil)
}

func (e *OpenRouterEngine) IsRunning(ctx context.Context) bool {
	_, err := e.client.ListModels(ctx)
	return err == nil
}

func (e *OpenRouterEngine) ListModels(ctx context.Context) ([]string, error) {
	models, err := e.client.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(models))
	for i, m := range models {
		names[i] = m.ID
	}
	return names, nil
}

func (e *OpenRouterEngine) HasModel(ctx context.Context, name string) bool {
	names, err := e.ListModels(ctx)
	if err != nil {
		return false
	}
	for _, n := range names {
		if n == name || strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

func (e *OpenRouterEngine) PullModel(_ context.Context, name string, _ func(PullProgress)) error {
	return fmt.Errorf("openrouter: model %s is not available and cannot be pulled", name)
}
