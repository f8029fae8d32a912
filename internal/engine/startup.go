package engine

import (
	"context"
	"fmt"
	"io"
	"time"
)

// warmUpTimeout bounds the warm-up chat sent after the model is available.
const warmUpTimeout = 30 * time.Second

// EnsureReady checks that the Engine is reachable and the reasoning model is
// available. A missing model is pulled with progress output written to w.
// The model is then warmed up so the first request does not pay the load
// penalty; a failed warm-up is reported but not fatal.
func EnsureReady(ctx context.Context, e Engine, model string, w io.Writer) error {
	if !e.IsRunning(ctx) {
		return fmt.Errorf("%s inference backend is not reachable; please ensure it is started", e.Name())
	}
	if model == "" {
		return fmt.Errorf("no reasoning model configured")
	}

	if e.HasModel(ctx, model) {
		fmt.Fprintf(w, "model %s: ready\n", model)
	} else {
		fmt.Fprintf(w, "model %s: pulling...\n", model)
		err := e.PullModel(ctx, model, func(p PullProgress) {
			if p.Total > 0 {
				pct := float64(p.Completed) / float64(p.Total) * 100
				fmt.Fprintf(w, "  %s %.0f%%\n", p.Status, pct)
			} else {
				fmt.Fprintf(w, "  %s\n", p.Status)
			}
		})
		if err != nil {
			return fmt.Errorf("pulling model %s: %w", model, err)
		}
		fmt.Fprintf(w, "model %s: ready\n", model)
	}

	fmt.Fprintf(w, "model %s: warming up...\n", model)
	warmCtx, cancel := context.WithTimeout(ctx, warmUpTimeout)
	defer cancel()
	if _, err := e.Chat(warmCtx, model, []Message{{Role: "user", Content: "ping"}}, nil); err != nil {
		fmt.Fprintf(w, "model %s: warm-up failed (non-fatal): %v\n", model, err)
	}
	return nil
}
