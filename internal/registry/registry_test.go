package registry

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList(t *testing.T) {
	r := New()
	ops := r.List()
	names := make([]string, len(ops))
	for i, d := range ops {
		names[i] = d.Name
	}
	assert.Equal(t, []string{CheckAvailability, Book, Delete, Move, ViewDay, ViewWeek}, names)

	move, ok := r.Lookup(Move)
	require.True(t, ok)
	require.Len(t, move.Arguments, 3)
	assert.Equal(t, "old_time", move.Arguments[1].Name)
	assert.Equal(t, TypeTime, move.Arguments[1].Type)
}

func TestList_ReturnsCopies(t *testing.T) {
	r := New()
	ops := r.List()
	ops[0].Arguments[0].Name = "mutated"
	assert.Equal(t, "date", r.List()[0].Arguments[0].Name)
}

func TestValidate_OK(t *testing.T) {
	r := New()
	call, err := r.Validate(Book, map[string]string{"date": "tomorrow", "time": " 2pm ", "title": "Sync"})
	require.NoError(t, err)
	assert.Equal(t, Book, call.Operation)
	assert.Equal(t, "2pm", call.Arg("time"))
	assert.Equal(t, "Sync", call.Arg("title"))
}

func TestValidate_DefaultTitle(t *testing.T) {
	call, err := New().Validate(Book, map[string]string{"date": "2024-06-10", "time": "10:00 AM"})
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, call.Arg("title"))
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		op   string
		args map[string]string
		arg  string
	}{
		{"unknown op", "cancel_all", map[string]string{}, ""},
		{"missing required", Move, map[string]string{"date": "2024-06-10", "old_time": "10am"}, "new_time"},
		{"unknown argument", ViewDay, map[string]string{"date": "today", "zone": "UTC"}, "zone"},
		{"empty title", Book, map[string]string{"date": "today", "time": "2pm", "title": "  "}, "title"},
		{"empty date", CheckAvailability, map[string]string{"date": ""}, "date"},
		{"implausible time", Delete, map[string]string{"date": "today", "time": "?!"}, "time"},
		{"control chars", Book, map[string]string{"date": "today", "time": "2pm", "title": "a\x00b"}, "title"},
		{"too long", Book, map[string]string{"date": "today", "time": "2pm", "title": strings.Repeat("x", 201)}, "title"},
	}
	r := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Validate(tt.op, tt.args)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSchema))
			var se *SchemaError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.arg, se.Argument)
		})
	}
}

func TestDescribe(t *testing.T) {
	text := New().Describe()
	assert.Contains(t, text, "- book(date: date, time: time, title?: text)")
	assert.Contains(t, text, "- view_week(date: date)")
	assert.Equal(t, 6, strings.Count(text, "\n"))
}
