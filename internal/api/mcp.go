package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/slotbot/internal/assistant"
	"github.com/kalambet/slotbot/internal/calendar"
	"github.com/kalambet/slotbot/internal/dispatch"
	"github.com/kalambet/slotbot/internal/registry"
	"github.com/kalambet/slotbot/internal/session"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Executor     *dispatch.Executor
	Assistant    *assistant.Service // optional; the chat tool is not registered when nil
	Interactions InteractionStore   // optional; interactions://recent is not registered when nil
	Version      string
}

// NewMCPServer creates an MCP server exposing one tool per calendar
// operation, generated from the operation registry, plus the chat tool and
// read-only calendar resources.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"slotbot",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("slotbot: book, move, delete and view meetings in fixed daily slots."),
		server.WithRecovery(),
	)

	for _, d := range deps.Executor.Registry().List() {
		s.AddTool(toolFor(d), mcpOperation(deps, d.Name))
	}

	if deps.Assistant != nil {
		s.AddTool(
			mcp.NewTool("chat",
				mcp.WithDescription("Ask the booking assistant in natural language. It may run several calendar operations before answering."),
				mcp.WithString("message", mcp.Description("What to do, e.g. 'book a sync tomorrow at 2pm'"), mcp.Required()),
				mcp.WithString("session_id", mcp.Description("Session to continue; omit to start a new one")),
			),
			mcpChat(deps),
		)
	}

	s.AddResource(
		mcp.NewResource(
			"calendar://week",
			"This Week",
			mcp.WithResourceDescription("Meetings of the current week as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceWeek(deps),
	)

	if deps.Interactions != nil {
		s.AddResource(
			mcp.NewResource(
				"interactions://recent",
				"Recent Interactions",
				mcp.WithResourceDescription("Last 10 handled requests (query, answer and stop reason)"),
				mcp.WithMIMEType("application/json"),
			),
			mcpResourceRecent(deps),
		)
	}

	return s
}

func toolFor(d registry.Descriptor) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(d.Description)}
	for _, a := range d.Arguments {
		desc := a.Description
		switch a.Type {
		case registry.TypeDate:
			desc += " Accepts YYYY-MM-DD or phrases like 'tomorrow'."
		case registry.TypeTime:
			desc += " Accepts '2:00 PM', '2pm' or '14:00'."
		}
		props := []mcp.PropertyOption{mcp.Description(desc)}
		if a.Required {
			props = append(props, mcp.Required())
		}
		if a.Default != "" {
			props = append(props, mcp.DefaultString(a.Default))
		}
		opts = append(opts, mcp.WithString(a.Name, props...))
	}
	return mcp.NewTool(d.Name, opts...)
}

// stringArgs converts tool arguments to the raw strings operations take.
// Non-string values are rendered with fmt so that validation reports them.
func stringArgs(req mcp.CallToolRequest) map[string]string {
	raw := req.GetArguments()
	args := make(map[string]string, len(raw))
	for k, v := range raw {
		switch x := v.(type) {
		case nil:
		case string:
			args[k] = x
		default:
			args[k] = fmt.Sprint(x)
		}
	}
	return args
}

func mcpOperation(deps MCPDeps, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out := deps.Executor.Execute(ctx, name, stringArgs(req))
		if out.Kind != dispatch.OutcomeOK {
			return mcpError(out.Text), nil
		}
		return mcpText(out.Text), nil
	}
}

func mcpChat(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}
		reply, err := deps.Assistant.Handle(ctx, req.GetString("session_id", ""), message)
		if errors.Is(err, session.ErrInvalidID) {
			return mcpError(err.Error()), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("chat failed: %v", err)), nil
		}
		b, err := json.Marshal(reply)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal reply: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceWeek(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		today := deps.Executor.Normalizer().Today()
		out := deps.Executor.Execute(ctx, registry.ViewWeek, map[string]string{"date": today})
		if out.Kind != dispatch.OutcomeOK {
			return nil, fmt.Errorf("reading week: %s", out.Text)
		}
		days, _ := out.Value.([]calendar.Day)
		if days == nil {
			days = []calendar.Day{}
		}
		b, err := json.Marshal(days)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal week: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		interactions, err := deps.Interactions.ListInteractions(ctx, 10, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent interactions: %w", err)
		}

		type interactionSummary struct {
			ID         string `json:"id"`
			CreatedAt  string `json:"created_at"`
			Query      string `json:"query"`
			Answer     string `json:"answer"`
			StopReason string `json:"stop_reason"`
		}

		summaries := make([]interactionSummary, len(interactions))
		for i, ix := range interactions {
			summaries[i] = interactionSummary{
				ID:         ix.ID,
				CreatedAt:  ix.CreatedAt.Format(time.RFC3339),
				Query:      truncate(ix.UserQuery, 200),
				Answer:     truncate(ix.Answer, 200),
				StopReason: ix.StopReason,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal interactions: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
