package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/slotbot/internal/calendar"
	"github.com/kalambet/slotbot/internal/config"
	"github.com/kalambet/slotbot/internal/storage"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

// useServer points the CLI commands at ts for the duration of the test.
func useServer(t *testing.T, ts *testServer) {
	t.Helper()
	orig := newAPIClient
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	t.Cleanup(func() { newAPIClient = orig })
}

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

var ctx = context.Background()

func TestAskCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /chat": `{"response":"Booked Sync on 2024-06-13 at 2:00 PM.","session_id":"5f1c2d8e-0000-4000-8000-000000000000","stop_reason":"answered","iterations":2}`,
	})
	useServer(t, ts)

	out, err := execute(t, "ask", "book", "a", "sync", "tomorrow", "at", "2pm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Booked Sync") {
		t.Errorf("output = %q, want the assistant answer", out)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}
	var body map[string]string
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["question"] != "book a sync tomorrow at 2pm" {
		t.Errorf("question = %q", body["question"])
	}
}

func TestAskCommand_Session(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /chat": `{"response":"Moved.","session_id":"abc","stop_reason":"answered","iterations":2}`,
	})

	reply, err := ask(ctx, ts.client(), "abc", "move it to 4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.StopReason != "answered" || reply.Iterations != 2 {
		t.Errorf("reply = %+v", reply)
	}

	var body map[string]string
	json.Unmarshal([]byte(ts.requests[0].Body), &body)
	if body["session_id"] != "abc" {
		t.Errorf("session_id = %q, want abc", body["session_id"])
	}
}

func TestAskCommand_MissingArgs(t *testing.T) {
	if _, err := execute(t, "ask"); err == nil {
		t.Fatal("expected error for missing message")
	}
}

func TestCalendarAvailability(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /calendar/availability/friday": `{"date":"2024-06-14","available":["10:00 AM","4:00 PM"],"message":"Free slots on 2024-06-14: 10:00 AM, 4:00 PM."}`,
	})
	useServer(t, ts)

	old := noColor
	noColor = true
	defer func() { noColor = old }()

	out, err := execute(t, "calendar", "availability", "friday")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "2024-06-14: 10:00 AM, 4:00 PM" {
		t.Errorf("output = %q", out)
	}
}

func TestCalendarDay_Empty(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /calendar/day/2024-06-12": `{"date":"2024-06-12","events":[],"message":"Nothing booked."}`,
	})
	useServer(t, ts)

	out, err := execute(t, "calendar", "day", "2024-06-12")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "nothing booked") {
		t.Errorf("output = %q", out)
	}
}

func TestCalendarWeek(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /calendar/week/2024-06-12": `{"week_start":"2024-06-10","days":[{"date":"2024-06-11","entries":[{"time":"10:00 AM","title":"Standup"}]},{"date":"2024-06-13","entries":[{"time":"2:00 PM","title":"Review"}]}]}`,
	})
	useServer(t, ts)

	out, err := execute(t, "calendar", "week", "2024-06-12")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"2024-06-11", "Standup", "2024-06-13", "Review"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}
}

func TestCalendarWeek_ICS(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /calendar/week/2024-06-12/ics": "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n",
	})
	useServer(t, ts)

	t.Cleanup(func() { calendarWeekCmd.Flags().Set("ics", "false") })

	out, err := execute(t, "calendar", "week", "2024-06-12", "--ics")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out, "BEGIN:VCALENDAR") {
		t.Errorf("output = %q", out)
	}
}

func TestCalendarBook(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /calendar/events": `{"date":"2024-06-13","time":"2:00 PM","title":"Sync","message":"Booked."}`,
	})
	useServer(t, ts)

	if _, err := execute(t, "calendar", "book", "tomorrow", "2pm", "Sync"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := ts.requests[0]
	var body map[string]string
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["date"] != "tomorrow" || body["time"] != "2pm" || body["title"] != "Sync" {
		t.Errorf("body = %v", body)
	}
}

func TestCalendarBook_Conflict(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":{"message":"2:00 PM on 2024-06-13 is already booked","type":"conflict"}}`))
	}))
	defer ts.Close()

	orig := newAPIClient
	newAPIClient = func() (*apiClient, error) {
		return &apiClient{baseURL: ts.URL, token: "t", httpClient: ts.Client()}, nil
	}
	defer func() { newAPIClient = orig }()

	_, err := execute(t, "calendar", "book", "2024-06-13", "2:00 PM")
	if err == nil {
		t.Fatal("expected conflict error")
	}
	if !strings.Contains(err.Error(), "409") || !strings.Contains(err.Error(), "already booked") {
		t.Errorf("error = %q", err)
	}
}

func TestCalendarDelete_EscapesPath(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"DELETE /calendar/events/2024-06-13/2:00 PM": `{"title":"Sync","message":"Deleted."}`,
	})
	useServer(t, ts)

	if _, err := execute(t, "calendar", "delete", "2024-06-13", "2:00 PM"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.requests[0].Method != http.MethodDelete {
		t.Errorf("method = %q", ts.requests[0].Method)
	}
}

func TestCalendarMove(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /calendar/events/move": `{"title":"Sync","message":"Moved."}`,
	})
	useServer(t, ts)

	if _, err := execute(t, "calendar", "move", "2024-06-13", "2pm", "4pm"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]string
	json.Unmarshal([]byte(ts.requests[0].Body), &body)
	if body["old_time"] != "2pm" || body["new_time"] != "4pm" {
		t.Errorf("body = %v", body)
	}
}

func TestInteractionsList(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /interactions": `[{"id":"ix-00000001-abcd","created_at":"2024-06-12T09:00:00Z","user_query":"hello","stop_reason":"answered"}]`,
	})
	useServer(t, ts)

	out, err := execute(t, "interactions", "list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "ix-00000") || !strings.Contains(out, "hello") {
		t.Errorf("output = %q", out)
	}
	if ts.requests[0].Query != "limit=20" {
		t.Errorf("query = %q, want limit=20", ts.requests[0].Query)
	}
}

func TestInteractionsShow_ExpandsTranscript(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /interactions/ix-1": `{"id":"ix-1","user_query":"hi","transcript":"[{\"kind\":\"user\",\"text\":\"hi\"}]"}`,
	})
	useServer(t, ts)

	out, err := execute(t, "interactions", "show", "ix-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var shown map[string]any
	if err := json.Unmarshal([]byte(out), &shown); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if _, ok := shown["transcript"].([]any); !ok {
		t.Errorf("transcript = %T, want expanded array", shown["transcript"])
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	_, err := ts.client().get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestDecodeJSON_ErrorEnvelope(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"auth_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{baseURL: ts.URL, token: "bad-token", httpClient: ts.Client()}
	resp, err := client.get(ctx, "/interactions")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") || !strings.Contains(err.Error(), "auth_error") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	if got := colorize(colorGreen, "test message"); got != "test message" {
		t.Errorf("result = %q, want plain text", got)
	}

	noColor = false
	if got := colorize(colorGreen, "test message"); !strings.Contains(got, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", got)
	}
}

func TestCountLabel(t *testing.T) {
	tests := []struct {
		count, limit int
		want         string
	}{
		{5, 100, "5"},
		{0, 100, "0"},
		{100, 100, "100+"},
		{150, 100, "150+"},
	}
	for _, tt := range tests {
		if got := countLabel(tt.count, tt.limit); got != tt.want {
			t.Errorf("countLabel(%d, %d) = %q, want %q", tt.count, tt.limit, got, tt.want)
		}
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("1234567890"); got != "12345678" {
		t.Errorf("shortID = %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID = %q", got)
	}
}

func TestLogLevel(t *testing.T) {
	for in, want := range map[string]string{"debug": "DEBUG", "WARN": "WARN", "error": "ERROR", "": "INFO", "loud": "INFO"} {
		if got := logLevel(in).String(); got != want {
			t.Errorf("logLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestPIDFile(t *testing.T) {
	path := pidFilePath(filepath.Join(t.TempDir(), "nested"))
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("readPIDFile: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}
	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("expected error after removal")
	}
}

func TestReasonerModel(t *testing.T) {
	var cfg config.Config
	cfg.Ollama.Model = "llama3.1"
	cfg.Proxy.Model = "openai/gpt-4o-mini"

	cfg.Reasoner.Backend = config.ReasonerOllama
	if got := reasonerModel(cfg); got != "llama3.1" {
		t.Errorf("ollama model = %q", got)
	}
	cfg.Reasoner.Backend = config.ReasonerOpenRouter
	if got := reasonerModel(cfg); got != "openai/gpt-4o-mini" {
		t.Errorf("openrouter model = %q", got)
	}
}

func TestOpenCalendar(t *testing.T) {
	store, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	defer store.Close()

	catalog := calendar.DefaultCatalog()

	var cfg config.Config
	cfg.Calendar.Backend = config.CalendarMemory
	mem, err := openCalendar(ctx, cfg, store, catalog, time.UTC)
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := mem.(*calendar.MemoryStore); !ok {
		t.Errorf("memory backend = %T", mem)
	}

	cfg.Calendar.Backend = config.CalendarSQLite
	sq, err := openCalendar(ctx, cfg, store, catalog, time.UTC)
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	if _, err := sq.Book(ctx, "2024-06-12", "2:00 PM", "Sync"); err != nil {
		t.Fatalf("Book through sqlite backend: %v", err)
	}

	cfg.Calendar.Backend = config.CalendarGoogle
	if _, err := openCalendar(ctx, cfg, store, catalog, time.UTC); err == nil {
		t.Error("expected error for google backend without credentials")
	}

	cfg.Calendar.Backend = "outlook"
	if _, err := openCalendar(ctx, cfg, store, catalog, time.UTC); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4100

	found := false
	for _, k := range config.ShowAll(cfg) {
		if k.Key == "server.port" && k.Value == "4100" {
			found = true
		}
	}
	if !found {
		t.Error("expected to find server.port=4100 in ShowAll output")
	}
}
