// Package transcript records the ordered exchange of a single request:
// user input, reasoner answers, operation requests and operation results.
package transcript

import (
	"encoding/json"
	"maps"
	"sync"
)

// Kind tags a transcript entry.
type Kind string

const (
	UserMessage      Kind = "user_message"
	ReasonerAnswer   Kind = "reasoner_answer"
	OperationRequest Kind = "operation_request"
	OperationResult  Kind = "operation_result"
)

// Entry is one turn. Text holds the message for UserMessage and
// ReasonerAnswer and the outcome description for OperationResult.
type Entry struct {
	Kind      Kind              `json:"kind"`
	Text      string            `json:"text,omitempty"`
	Operation string            `json:"operation,omitempty"`
	Arguments map[string]string `json:"arguments,omitempty"`
	Outcome   string            `json:"outcome,omitempty"`
}

func (e Entry) clone() Entry {
	if e.Arguments != nil {
		e.Arguments = maps.Clone(e.Arguments)
	}
	return e
}

// Transcript is append-only. It is safe for concurrent use so that a
// session transcript can be read while a request appends to it.
type Transcript struct {
	mu      sync.RWMutex
	entries []Entry
}

// New creates an empty transcript.
func New() *Transcript {
	return &Transcript{}
}

func (t *Transcript) add(e Entry) {
	t.mu.Lock()
	t.entries = append(t.entries, e.clone())
	t.mu.Unlock()
}

func (t *Transcript) AppendUser(text string) {
	t.add(Entry{Kind: UserMessage, Text: text})
}

func (t *Transcript) AppendAnswer(text string) {
	t.add(Entry{Kind: ReasonerAnswer, Text: text})
}

func (t *Transcript) AppendRequest(operation string, args map[string]string) {
	t.add(Entry{Kind: OperationRequest, Operation: operation, Arguments: args})
}

func (t *Transcript) AppendResult(operation string, args map[string]string, outcome, text string) {
	t.add(Entry{Kind: OperationResult, Operation: operation, Arguments: args, Outcome: outcome, Text: text})
}

// Entries returns a copy of all entries in exchange order.
func (t *Transcript) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.clone()
	}
	return out
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Last returns the most recent entry.
func (t *Transcript) Last() (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.entries) == 0 {
		return Entry{}, false
	}
	return t.entries[len(t.entries)-1].clone(), true
}

// LastAnswer returns the text of the most recent ReasonerAnswer.
func (t *Transcript) LastAnswer() (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.entries[i].Kind == ReasonerAnswer {
			return t.entries[i].Text, true
		}
	}
	return "", false
}

func (t *Transcript) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Entries())
}

func (t *Transcript) UnmarshalJSON(data []byte) error {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	t.mu.Lock()
	t.entries = entries
	t.mu.Unlock()
	return nil
}
