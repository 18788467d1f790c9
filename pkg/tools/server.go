package tools

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sentinelops/alertbridge/pkg/version"
)

// TagAlertInput is the advertised schema for tag_alert.
type TagAlertInput struct {
	AlertID string   `json:"alert_id" jsonschema:"The ID of the alert to tag."`
	Tags    []string `json:"tags" jsonschema:"Tags to add to the alert."`
}

// AdjustSeverityInput is the advertised schema for adjust_alert_severity.
type AdjustSeverityInput struct {
	AlertID     string `json:"alert_id" jsonschema:"The ID of the alert."`
	NewSeverity string `json:"new_severity" jsonschema:"The new severity level: informational, low, medium, high, or critical."`
}

// GetAlertsInput is the advertised schema for get_alerts.
type GetAlertsInput struct {
	Limit      int    `json:"limit,omitempty" jsonschema:"Maximum number of alerts to return. Defaults to 20."`
	SearchText string `json:"search_text,omitempty" jsonschema:"Query string filter. Defaults to * (all alerts)."`
}

// NewServer builds the MCP server advertising the registered tools. Every
// handler routes through the dispatcher and always reports failures as
// tool results, never as protocol errors, so the transport always receives
// a well-formed reply.
func NewServer(d *Dispatcher) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    version.AppName,
		Version: version.GitCommit,
	}, &mcp.ServerOptions{
		Instructions: "Security-alert triage bridge. Exposes the alerting backend's " +
			"tag, severity-change, and listing operations for alert triage.",
	})

	mcp.AddTool(srv, &mcp.Tool{
		Name:        ToolTagAlert,
		Description: mustLookup(ToolTagAlert).Description,
		Annotations: &mcp.ToolAnnotations{IdempotentHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in TagAlertInput) (*mcp.CallToolResult, any, error) {
		res := d.Dispatch(ctx, Invocation{Name: ToolTagAlert, Args: map[string]any{
			"alert_id": in.AlertID,
			"tags":     in.Tags,
		}})
		return callResult(res), nil, nil
	})

	mcp.AddTool(srv, &mcp.Tool{
		Name:        ToolAdjustSeverity,
		Description: mustLookup(ToolAdjustSeverity).Description,
		Annotations: &mcp.ToolAnnotations{IdempotentHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in AdjustSeverityInput) (*mcp.CallToolResult, any, error) {
		res := d.Dispatch(ctx, Invocation{Name: ToolAdjustSeverity, Args: map[string]any{
			"alert_id":     in.AlertID,
			"new_severity": in.NewSeverity,
		}})
		return callResult(res), nil, nil
	})

	mcp.AddTool(srv, &mcp.Tool{
		Name:        ToolGetAlerts,
		Description: mustLookup(ToolGetAlerts).Description,
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in GetAlertsInput) (*mcp.CallToolResult, any, error) {
		args := map[string]any{}
		if in.Limit != 0 {
			args["limit"] = in.Limit
		}
		if in.SearchText != "" {
			args["search_text"] = in.SearchText
		}
		res := d.Dispatch(ctx, Invocation{Name: ToolGetAlerts, Args: args})
		return callResult(res), nil, nil
	})

	return srv
}

// RunStdio serves the tool surface over stdio until the context is
// canceled or the client disconnects.
func RunStdio(ctx context.Context, d *Dispatcher) error {
	srv := NewServer(d)
	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("run mcp stdio server: %w", err)
	}
	return nil
}

// NewHTTPHandler returns an http.Handler serving the tool surface over SSE.
func NewHTTPHandler(d *Dispatcher) http.Handler {
	srv := NewServer(d)
	return mcp.NewSSEHandler(func(_ *http.Request) *mcp.Server {
		return srv
	}, nil)
}

// callResult renders a ToolResult as the protocol reply. Failures become
// IsError results carrying "kind: message" text.
func callResult(res ToolResult) *mcp.CallToolResult {
	if res.Err != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{
				Text: fmt.Sprintf("%s: %s", res.Err.Kind, res.Err.Message),
			}},
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: res.Text}},
	}
}

// mustLookup fetches a registry entry that is known to exist.
func mustLookup(name string) ToolSpec {
	spec, ok := Lookup(name)
	if !ok {
		panic(fmt.Sprintf("tool %q is not registered", name))
	}
	return spec
}
