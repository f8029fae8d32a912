package engine

import "fmt"

// Backend names accepted by Detect.
const (
	BackendOllama     = "ollama"
	BackendOpenRouter = "openrouter"
)

// DetectConfig holds parameters for backend selection.
type DetectConfig struct {
	Backend          string
	OllamaBaseURL    string
	OpenRouterAPIKey string
}

// Detect returns the engine for the configured backend. An empty backend
// selects Ollama.
func Detect(cfg DetectConfig) (Engine, error) {
	switch cfg.Backend {
	case "", BackendOllama:
		return NewOllamaEngine(cfg.OllamaBaseURL), nil
	case BackendOpenRouter:
		if cfg.OpenRouterAPIKey == "" {
			return nil, fmt.Errorf("reasoner backend %q requires an OpenRouter API key", cfg.Backend)
		}
		return NewOpenRouterEngine(cfg.OpenRouterAPIKey), nil
	default:
		return nil, fmt.Errorf("unknown reasoner backend %q", cfg.Backend)
	}
}
