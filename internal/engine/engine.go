package engine

import "context"

// Engine abstracts the inference backend the reasoner talks to: a local
// Ollama server or the remote OpenRouter API. The reasoner depends on this
// interface instead of a concrete client.
type Engine interface {
	// Name identifies the backend in status output and logs.
	Name() string

	// Chat sends messages to the given model and returns the assistant's response.
	// When jsonSchema is non-nil, structured JSON output is requested.
	Chat(ctx context.Context, model string, messages []Message, jsonSchema *Schema) (string, error)

	// IsRunning reports whether the inference backend is reachable.
	IsRunning(ctx context.Context) bool

	// ListModels returns the names of the models the backend can serve.
	ListModels(ctx context.Context) ([]string, error)

	// HasModel reports whether the given model name is available.
	HasModel(ctx context.Context, name string) bool

	// PullModel downloads a model. The optional callback receives progress
	// updates. Remote backends that cannot pull return an error.
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}
