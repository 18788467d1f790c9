// Package tools exposes the bridge's alert operations as MCP tools:
// a declarative registry of the supported operations, a dispatcher that
// validates and executes invocations, and the MCP server wiring.
package tools

import "github.com/sentinelops/alertbridge/pkg/kibana"

// Registered tool names.
const (
	ToolTagAlert       = "tag_alert"
	ToolAdjustSeverity = "adjust_alert_severity"
	ToolGetAlerts      = "get_alerts"
)

// ArgType is the expected shape of a tool argument.
type ArgType string

const (
	ArgString     ArgType = "string"
	ArgStringList ArgType = "string_list"
	ArgInteger    ArgType = "integer"
)

// ArgSpec describes one argument of a registered tool.
type ArgSpec struct {
	Name        string
	Type        ArgType
	Required    bool
	Enum        []string // allowed values, empty means unconstrained
	Description string
}

// ToolSpec describes one registered tool. Purely declarative: consulted by
// the server wiring to advertise capabilities and by the dispatcher to
// validate incoming invocations.
type ToolSpec struct {
	Name        string
	Description string
	Args        []ArgSpec
}

var registry = []ToolSpec{
	{
		Name:        ToolTagAlert,
		Description: "Adds one or more tags to a specific security alert. Existing tags are preserved; duplicates are collapsed.",
		Args: []ArgSpec{
			{Name: "alert_id", Type: ArgString, Required: true, Description: "The ID of the alert to tag."},
			{Name: "tags", Type: ArgStringList, Required: true, Description: "Tags to add to the alert."},
		},
	},
	{
		Name:        ToolAdjustSeverity,
		Description: "Changes the severity of a specific security alert. Tags and other fields are left untouched.",
		Args: []ArgSpec{
			{Name: "alert_id", Type: ArgString, Required: true, Description: "The ID of the alert."},
			{Name: "new_severity", Type: ArgString, Required: true, Enum: kibana.SeverityNames(),
				Description: "The new severity level."},
		},
	},
	{
		Name:        ToolGetAlerts,
		Description: "Fetches recent security alerts, optionally filtering by a query string and limiting quantity.",
		Args: []ArgSpec{
			{Name: "limit", Type: ArgInteger, Description: "Maximum number of alerts to return. Defaults to 20; capped at the backend page size."},
			{Name: "search_text", Type: ArgString, Description: "Query string filter. Defaults to \"*\" (all alerts)."},
		},
	},
}

// Registry returns the full tool catalog.
func Registry() []ToolSpec {
	out := make([]ToolSpec, len(registry))
	copy(out, registry)
	return out
}

// Lookup finds a tool by name.
func Lookup(name string) (ToolSpec, bool) {
	for _, spec := range registry {
		if spec.Name == name {
			return spec, true
		}
	}
	return ToolSpec{}, false
}
