package reasoner

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/slotbot/internal/engine"
	"github.com/kalambet/slotbot/internal/registry"
	"github.com/kalambet/slotbot/internal/timeparse"
	"github.com/kalambet/slotbot/internal/transcript"
)

const systemPromptTemplate = `You are a calendar assistant that books, moves and deletes meetings for a single person. Your output must be ONLY a single valid JSON object that conforms to the provided schema. Do not include any other text, prose, or markdown.

Today is %s (%s). All times are in %s.
Meetings can only be booked at these times each day: %s.

Operations:
%s
Reply with {"action":"operation","operation":"<name>","arguments":{...}} to run exactly one operation, or {"action":"answer","answer":"<text>"} to reply to the user.

Rules:
- Run one operation at a time and wait for its result before deciding the next step.
- Pass dates and times as the user said them or as YYYY-MM-DD and "2:00 PM"; they are normalized for you.
- Never assume a date or time the user did not give. If something is missing or an operation reports a normalization error, ask the user to clarify.
- If a slot is taken, say who holds it and offer the free slots.
- Answer only from operation results; never invent events.
- Keep answers short and friendly.`

// resultPrefix marks operation results fed back to the model as user turns.
const resultPrefix = "[operation result]"

// PromptContext holds the values rendered into the system prompt.
type PromptContext struct {
	Today    string
	Zone     string
	Slots    []string
	Registry *registry.Registry
}

// BuildPrompt constructs the chat messages for one reasoning turn: the system
// prompt followed by every transcript entry in exchange order.
func BuildPrompt(pc PromptContext, entries []transcript.Entry) []engine.Message {
	system := fmt.Sprintf(systemPromptTemplate,
		pc.Today, weekday(pc.Today), pc.Zone,
		strings.Join(pc.Slots, ", "),
		pc.Registry.Describe(),
	)

	messages := make([]engine.Message, 0, len(entries)+1)
	messages = append(messages, engine.Message{Role: "system", Content: system})

	for _, e := range entries {
		switch e.Kind {
		case transcript.UserMessage:
			messages = append(messages, engine.Message{Role: "user", Content: e.Text})
		case transcript.ReasonerAnswer:
			b, _ := json.Marshal(map[string]string{"action": actionAnswer, "answer": e.Text})
			messages = append(messages, engine.Message{Role: "assistant", Content: string(b)})
		case transcript.OperationRequest:
			b, _ := json.Marshal(struct {
				Action    string            `json:"action"`
				Operation string            `json:"operation"`
				Arguments map[string]string `json:"arguments"`
			}{actionOperation, e.Operation, e.Arguments})
			messages = append(messages, engine.Message{Role: "assistant", Content: string(b)})
		case transcript.OperationResult:
			messages = append(messages, engine.Message{
				Role:    "user",
				Content: fmt.Sprintf("%s %s (%s): %s", resultPrefix, e.Operation, e.Outcome, e.Text),
			})
		}
	}
	return messages
}

func weekday(date string) string {
	t, err := time.Parse(timeparse.DateLayout, date)
	if err != nil {
		return "unknown weekday"
	}
	return t.Weekday().String()
}
