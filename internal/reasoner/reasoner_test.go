package reasoner

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/slotbot/internal/calendar"
	"github.com/kalambet/slotbot/internal/dispatch"
	"github.com/kalambet/slotbot/internal/engine"
	"github.com/kalambet/slotbot/internal/registry"
	"github.com/kalambet/slotbot/internal/timeparse"
	"github.com/kalambet/slotbot/internal/transcript"
)

// mockChatter implements Chatter for testing.
type mockChatter struct {
	response string
	err      error
	delay    time.Duration

	gotMessages []engine.Message
	gotSchema   *engine.Schema
}

func (m *mockChatter) Chat(ctx context.Context, model string, messages []engine.Message, jsonSchema *engine.Schema) (string, error) {
	m.gotMessages = messages
	m.gotSchema = jsonSchema
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.response, m.err
}

func newLLM(m *mockChatter) *LLM {
	ref := time.Date(2024, 6, 12, 9, 0, 0, 0, time.UTC)
	norm := timeparse.NewWithClock(time.UTC, func() time.Time { return ref })
	return New(m, "llama3.1", registry.New(), norm, calendar.DefaultCatalog())
}

func userTurn(text string) []transcript.Entry {
	return []transcript.Entry{{Kind: transcript.UserMessage, Text: text}}
}

func TestReason_Operation(t *testing.T) {
	m := &mockChatter{response: `{"action":"operation","operation":"book","arguments":{"date":"tomorrow","time":"2pm","title":"Design review"}}`}
	dec, err := newLLM(m).Reason(context.Background(), userTurn("book a design review tomorrow at 2pm"))
	if err != nil {
		t.Fatalf("Reason: %v", err)
	}
	if dec.Operation == nil {
		t.Fatalf("expected operation, got answer %q", dec.Answer)
	}
	if dec.Operation.Name != "book" || dec.Operation.Arguments["time"] != "2pm" || dec.Operation.Arguments["title"] != "Design review" {
		t.Errorf("operation = %+v", dec.Operation)
	}
	if m.gotSchema == nil || m.gotSchema.Properties["operation"].Enum[1] != "book" {
		t.Errorf("schema not sent or missing operation enum: %+v", m.gotSchema)
	}
}

func TestReason_Answer(t *testing.T) {
	m := &mockChatter{response: `{"action":"answer","answer":"  You're all set.  "}`}
	dec, err := newLLM(m).Reason(context.Background(), userTurn("thanks"))
	if err != nil {
		t.Fatalf("Reason: %v", err)
	}
	if dec.Operation != nil || dec.Answer != "You're all set." {
		t.Errorf("decision = %+v", dec)
	}
}

func TestReason_ChatError(t *testing.T) {
	m := &mockChatter{err: errors.New("connection refused")}
	_, err := newLLM(m).Reason(context.Background(), userTurn("hi"))
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("error = %v", err)
	}
}

func TestReason_HonoursContext(t *testing.T) {
	m := &mockChatter{response: `{"action":"answer","answer":"late"}`, delay: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := newLLM(m).Reason(ctx, userTurn("hi")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    dispatch.Decision
		wantErr bool
	}{
		{
			name: "plain text is an answer",
			raw:  "Sure, which day?",
			want: dispatch.Decision{Answer: "Sure, which day?"},
		},
		{
			name: "fenced json",
			raw:  "```json\n{\"action\":\"answer\",\"answer\":\"ok\"}\n```",
			want: dispatch.Decision{Answer: "ok"},
		},
		{
			name: "action inferred from operation",
			raw:  `{"operation":"view_day","arguments":{"date":"2024-06-10"}}`,
			want: dispatch.Decision{Operation: &dispatch.OperationRequest{Name: "view_day", Arguments: map[string]string{"date": "2024-06-10"}}},
		},
		{
			name: "non-string arguments are stringified and nulls dropped",
			raw:  `{"action":"operation","operation":"book","arguments":{"date":"2024-06-10","time":14,"title":null}}`,
			want: dispatch.Decision{Operation: &dispatch.OperationRequest{Name: "book", Arguments: map[string]string{"date": "2024-06-10", "time": "14"}}},
		},
		{name: "broken json", raw: `{"action": "answer", `, wantErr: true},
		{name: "empty answer", raw: `{"action":"answer","answer":""}`, wantErr: true},
		{name: "operation without name", raw: `{"action":"operation","arguments":{}}`, wantErr: true},
		{name: "unknown action", raw: `{"action":"dance"}`, wantErr: true},
		{name: "empty", raw: "   ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDecision(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedDecision) {
					t.Fatalf("error = %v, want ErrMalformedDecision", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseDecision: %v", err)
			}
			if got.Answer != tt.want.Answer {
				t.Errorf("answer = %q, want %q", got.Answer, tt.want.Answer)
			}
			if (got.Operation == nil) != (tt.want.Operation == nil) {
				t.Fatalf("operation = %+v, want %+v", got.Operation, tt.want.Operation)
			}
			if got.Operation != nil {
				if got.Operation.Name != tt.want.Operation.Name {
					t.Errorf("name = %q, want %q", got.Operation.Name, tt.want.Operation.Name)
				}
				if len(got.Operation.Arguments) != len(tt.want.Operation.Arguments) {
					t.Errorf("arguments = %v, want %v", got.Operation.Arguments, tt.want.Operation.Arguments)
				}
				for k, v := range tt.want.Operation.Arguments {
					if got.Operation.Arguments[k] != v {
						t.Errorf("arguments[%s] = %q, want %q", k, got.Operation.Arguments[k], v)
					}
				}
			}
		})
	}
}
