//go:build integration

package reasoner

import (
	"context"
	"testing"
	"time"

	"github.com/kalambet/slotbot/internal/calendar"
	"github.com/kalambet/slotbot/internal/engine"
	"github.com/kalambet/slotbot/internal/registry"
	"github.com/kalambet/slotbot/internal/timeparse"
)

func TestReason_RealOllama(t *testing.T) {
	eng := engine.NewOllamaEngine("http://localhost:11434")
	if !eng.IsRunning(context.Background()) {
		t.Skip("Ollama is not running, skipping integration test")
	}
	if !eng.HasModel(context.Background(), "llama3.1") {
		t.Skip("llama3.1 model not available, skipping integration test")
	}

	l := New(eng, "llama3.1", registry.New(), timeparse.New(time.UTC), calendar.DefaultCatalog())

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	dec, err := l.Reason(ctx, userTurn("What slots are free on 2024-06-10?"))
	if err != nil {
		t.Fatalf("Reason: %v", err)
	}
	if dec.Operation == nil {
		t.Fatalf("expected an operation request, got answer %q", dec.Answer)
	}
	if dec.Operation.Name != registry.CheckAvailability {
		t.Errorf("operation = %q, want %q", dec.Operation.Name, registry.CheckAvailability)
	}
}
