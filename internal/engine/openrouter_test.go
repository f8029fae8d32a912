package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kalambet/slotbot/internal/proxy"
)

func TestOpenRouterEngine(t *testing.T) {
	var sawJSONMode bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/models":
			json.NewEncoder(w).Encode(proxy.ModelList{Object: "list", Data: []proxy.Model{{ID: "openai/gpt-4o-mini"}}})
		case "/chat/completions":
			var body map[string]json.RawMessage
			json.NewDecoder(r.Body).Decode(&body)
			_, sawJSONMode = body["response_format"]
			fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"remote says hi"}}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	e := NewOpenRouterEngineWithClient(proxy.NewClientWithBaseURL("k", srv.URL))
	ctx := context.Background()

	if !e.IsRunning(ctx) {
		t.Error("IsRunning() = false, want true")
	}
	if !e.HasModel(ctx, "openai/gpt-4o-mini") {
		t.Error("HasModel = false, want true")
	}
	if e.HasModel(ctx, "other/model") {
		t.Error("HasModel(other) = true, want false")
	}
	if err := e.PullModel(ctx, "other/model", nil); err == nil {
		t.Error("PullModel should fail for a remote backend")
	}

	out, err := e.Chat(ctx, "openai/gpt-4o-mini", []Message{{Role: "user", Content: "hi"}}, &Schema{Type: "object"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != "remote says hi" {
		t.Errorf("Chat = %q", out)
	}
	if !sawJSONMode {
		t.Error("schema should request JSON response format")
	}
}
