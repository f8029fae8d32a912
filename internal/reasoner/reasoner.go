// Package reasoner implements dispatch.Reasoner on top of a chat model. Each
// turn renders the full transcript into a prompt, asks the model for a
// schema-constrained JSON decision and parses it into either a final answer
// or one operation request.
package reasoner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/kalambet/slotbot/internal/calendar"
	"github.com/kalambet/slotbot/internal/dispatch"
	"github.com/kalambet/slotbot/internal/engine"
	"github.com/kalambet/slotbot/internal/registry"
	"github.com/kalambet/slotbot/internal/timeparse"
	"github.com/kalambet/slotbot/internal/transcript"
)

// ErrMalformedDecision is returned when the model output is JSON that does
// not describe a usable decision.
var ErrMalformedDecision = errors.New("malformed reasoner decision")

const (
	actionAnswer    = "answer"
	actionOperation = "operation"
)

// Chatter is the chat completion capability the reasoner needs.
// engine.Engine satisfies it.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message, jsonSchema *engine.Schema) (string, error)
}

// LLM is a dispatch.Reasoner backed by a chat model.
type LLM struct {
	client     Chatter
	model      string
	registry   *registry.Registry
	normalizer *timeparse.Normalizer
	catalog    calendar.Catalog
}

// New creates an LLM reasoner.
func New(client Chatter, model string, reg *registry.Registry, norm *timeparse.Normalizer, catalog calendar.Catalog) *LLM {
	return &LLM{client: client, model: model, registry: reg, normalizer: norm, catalog: catalog}
}

// Reason asks the model for the next step given the full transcript.
func (l *LLM) Reason(ctx context.Context, entries []transcript.Entry) (dispatch.Decision, error) {
	messages := BuildPrompt(PromptContext{
		Today:    l.normalizer.Today(),
		Zone:     l.normalizer.Location().String(),
		Slots:    l.catalog.Slots(),
		Registry: l.registry,
	}, entries)

	raw, err := l.client.Chat(ctx, l.model, messages, decisionSchema(l.registry))
	if err != nil {
		return dispatch.Decision{}, fmt.Errorf("reasoner chat: %w", err)
	}

	dec, err := parseDecision(raw)
	if err != nil {
		slog.Warn("failed to parse reasoner decision", "error", err, "response", raw)
		return dispatch.Decision{}, err
	}
	return dec, nil
}

// rawDecision mirrors decisionSchema.
type rawDecision struct {
	Action    string         `json:"action"`
	Answer    string         `json:"answer"`
	Operation string         `json:"operation"`
	Arguments map[string]any `json:"arguments"`
}

// parseDecision turns model output into a Decision. Output that is not JSON
// at all is taken as a plain final answer.
func parseDecision(raw string) (dispatch.Decision, error) {
	text := stripFences(raw)
	if text == "" {
		return dispatch.Decision{}, fmt.Errorf("%w: empty response", ErrMalformedDecision)
	}
	if !strings.HasPrefix(text, "{") {
		return dispatch.Decision{Answer: text}, nil
	}

	var rd rawDecision
	if err := json.Unmarshal([]byte(text), &rd); err != nil {
		return dispatch.Decision{}, fmt.Errorf("%w: %v", ErrMalformedDecision, err)
	}

	action := strings.ToLower(strings.TrimSpace(rd.Action))
	if action == "" {
		if rd.Operation != "" {
			action = actionOperation
		} else {
			action = actionAnswer
		}
	}

	switch action {
	case actionAnswer:
		if strings.TrimSpace(rd.Answer) == "" {
			return dispatch.Decision{}, fmt.Errorf("%w: answer is empty", ErrMalformedDecision)
		}
		return dispatch.Decision{Answer: strings.TrimSpace(rd.Answer)}, nil
	case actionOperation:
		if strings.TrimSpace(rd.Operation) == "" {
			return dispatch.Decision{}, fmt.Errorf("%w: operation name is empty", ErrMalformedDecision)
		}
		args := make(map[string]string, len(rd.Arguments))
		for k, v := range rd.Arguments {
			if s, ok := stringify(v); ok {
				args[k] = s
			}
		}
		return dispatch.Decision{Operation: &dispatch.OperationRequest{
			Name:      strings.TrimSpace(rd.Operation),
			Arguments: args,
		}}, nil
	default:
		return dispatch.Decision{}, fmt.Errorf("%w: unknown action %q", ErrMalformedDecision, rd.Action)
	}
}

// stringify renders a JSON scalar as an argument string. Nulls are dropped
// so that optional arguments fall back to their defaults.
func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// decisionSchema returns the JSON schema that constrains model output.
func decisionSchema(reg *registry.Registry) *engine.Schema {
	ops := reg.List()
	names := make([]string, len(ops))
	for i, d := range ops {
		names[i] = d.Name
	}
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"action": {
				Type:        "string",
				Description: "answer to reply to the user, operation to run one calendar operation",
				Enum:        []string{actionAnswer, actionOperation},
			},
			"answer": {Type: "string", Description: "Reply to the user when action is answer"},
			"operation": {
				Type:        "string",
				Description: "Operation name when action is operation",
				Enum:        names,
			},
			"arguments": {
				Type:                 "object",
				Description:          "Operation arguments as strings",
				AdditionalProperties: &engine.SchemaProperty{Type: "string"},
			},
		},
		Required: []string{"action"},
	}
}
