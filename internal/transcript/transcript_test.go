package transcript

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendOrder(t *testing.T) {
	tr := New()
	tr.AppendUser("book standup tomorrow at 10am")
	tr.AppendRequest("book", map[string]string{"date": "tomorrow", "time": "10am"})
	tr.AppendResult("book", map[string]string{"date": "2024-06-11", "time": "10:00 AM"}, "ok", `Booked "Standup" on 2024-06-11 at 10:00 AM.`)
	tr.AppendAnswer("Done!")

	entries := tr.Entries()
	require.Len(t, entries, 4)
	kinds := []Kind{entries[0].Kind, entries[1].Kind, entries[2].Kind, entries[3].Kind}
	assert.Equal(t, []Kind{UserMessage, OperationRequest, OperationResult, ReasonerAnswer}, kinds)
	assert.Equal(t, "ok", entries[2].Outcome)

	answer, ok := tr.LastAnswer()
	require.True(t, ok)
	assert.Equal(t, "Done!", answer)
}

func TestEntriesAreCopies(t *testing.T) {
	args := map[string]string{"date": "today"}
	tr := New()
	tr.AppendRequest("view_day", args)
	args["date"] = "changed"

	entries := tr.Entries()
	assert.Equal(t, "today", entries[0].Arguments["date"])

	entries[0].Arguments["date"] = "mutated"
	last, _ := tr.Last()
	assert.Equal(t, "today", last.Arguments["date"])
}

func TestLastAnswer_Empty(t *testing.T) {
	tr := New()
	_, ok := tr.LastAnswer()
	assert.False(t, ok)
	_, ok = tr.Last()
	assert.False(t, ok)
	tr.AppendUser("hi")
	_, ok = tr.LastAnswer()
	assert.False(t, ok)
}

func TestJSONRoundTrip(t *testing.T) {
	tr := New()
	tr.AppendUser("hello")
	tr.AppendAnswer("hi there")

	data, err := json.Marshal(tr)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"kind":"user_message","text":"hello"},{"kind":"reasoner_answer","text":"hi there"}]`, string(data))

	var back Transcript
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, tr.Entries(), back.Entries())
}
