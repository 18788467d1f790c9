package tools

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/sentinelops/alertbridge/pkg/kibana"
)

// AlertAPI is the slice of the backend client the dispatcher needs.
type AlertAPI interface {
	FetchAlert(ctx context.Context, id string) (*kibana.Alert, error)
	UpdateAlert(ctx context.Context, id string, patch kibana.UpdatePatch, version kibana.VersionToken) error
	SearchAlerts(ctx context.Context, limit int, searchText string) ([]*kibana.Alert, error)
}

// Invocation is one named tool request with its raw argument mapping.
type Invocation struct {
	Name string
	Args map[string]any
}

// Failure is the structured error branch of a ToolResult.
type Failure struct {
	Kind    kibana.Kind
	Message string
}

// ToolResult is the normalized outcome of one invocation. Exactly one
// branch is populated: Text on success, Err on failure.
type ToolResult struct {
	Text string
	Err  *Failure
}

// OK reports whether the invocation succeeded.
func (r ToolResult) OK() bool {
	return r.Err == nil
}

// Dispatcher is the single entry point translating invocations into
// results. It never lets an error escape: every invocation yields a
// ToolResult, success or structured failure.
type Dispatcher struct {
	backend AlertAPI
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher over the given backend client.
func NewDispatcher(backend AlertAPI) *Dispatcher {
	return &Dispatcher{
		backend: backend,
		logger:  slog.Default(),
	}
}

// Dispatch validates an invocation against the registry and executes it.
func (d *Dispatcher) Dispatch(ctx context.Context, inv Invocation) (result ToolResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Tool invocation panicked",
				"tool", inv.Name, "panic", r)
			result = failure(kibana.KindBackend, "internal error handling tool %s", inv.Name)
		}
		outcome := "success"
		if result.Err != nil {
			outcome = string(result.Err.Kind)
		}
		d.logger.Info("Tool invocation finished",
			"tool", inv.Name,
			"outcome", outcome,
			"duration_ms", time.Since(start).Milliseconds())
	}()

	spec, ok := Lookup(inv.Name)
	if !ok {
		return failure(kibana.KindUnknownTool, "unknown tool %q", inv.Name)
	}
	if err := validateArgs(spec, inv.Args); err != nil {
		return failureFrom(err)
	}

	switch spec.Name {
	case ToolTagAlert:
		return d.tagAlert(ctx, inv.Args)
	case ToolAdjustSeverity:
		return d.adjustSeverity(ctx, inv.Args)
	case ToolGetAlerts:
		return d.getAlerts(ctx, inv.Args)
	default:
		// Registered but unrouted: a registry/dispatcher mismatch.
		return failure(kibana.KindUnknownTool, "tool %q has no handler", inv.Name)
	}
}

// tagAlert fetches the alert, merges the requested tags with the existing
// set, and writes the union back with the fetched version token. The union,
// not the raw requested list, is what gets written.
func (d *Dispatcher) tagAlert(ctx context.Context, args map[string]any) ToolResult {
	id := stringArg(args, "alert_id")
	tags := stringListArg(args, "tags")

	alert, err := d.backend.FetchAlert(ctx, id)
	if err != nil {
		return failureFrom(err)
	}

	merged := kibana.MergeTags(alert.Tags, tags)
	patch := kibana.UpdatePatch{Tags: &merged}
	if err := d.backend.UpdateAlert(ctx, id, patch, alert.Version); err != nil {
		return failureFrom(err)
	}

	return success("Tagged alert %s; tags are now: %s", id, strings.Join(merged, ", "))
}

// adjustSeverity fetches the alert for its version token and writes the new
// severity. Tags are untouched.
func (d *Dispatcher) adjustSeverity(ctx context.Context, args map[string]any) ToolResult {
	id := stringArg(args, "alert_id")
	severity := kibana.Severity(stringArg(args, "new_severity"))

	alert, err := d.backend.FetchAlert(ctx, id)
	if err != nil {
		return failureFrom(err)
	}

	patch := kibana.UpdatePatch{Severity: &severity}
	if err := d.backend.UpdateAlert(ctx, id, patch, alert.Version); err != nil {
		return failureFrom(err)
	}

	return success("Changed severity of alert %s to %s", id, severity)
}

// getAlerts queries recent alerts and renders one summary line per alert.
func (d *Dispatcher) getAlerts(ctx context.Context, args map[string]any) ToolResult {
	limit := intArg(args, "limit")
	searchText := stringArg(args, "search_text")

	alerts, err := d.backend.SearchAlerts(ctx, limit, searchText)
	if err != nil {
		return failureFrom(err)
	}
	if len(alerts) == 0 {
		return success("No alerts matched.")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d alert(s):", len(alerts))
	for _, a := range alerts {
		severity := string(a.Severity)
		if severity == "" {
			severity = "unknown"
		}
		fmt.Fprintf(&b, "\n- %s [%s]", a.ID, severity)
		if a.RuleName != "" {
			fmt.Fprintf(&b, " %s", a.RuleName)
		}
		if len(a.Tags) > 0 {
			fmt.Fprintf(&b, " (tags: %s)", strings.Join(a.Tags, ", "))
		}
		if a.Timestamp != "" {
			fmt.Fprintf(&b, " @ %s", a.Timestamp)
		}
	}
	return ToolResult{Text: b.String()}
}

// validateArgs checks an argument mapping against a tool spec: required
// keys present, types match, enum values within the allowed set. Any
// violation is a validation failure and no backend call is issued.
func validateArgs(spec ToolSpec, args map[string]any) error {
	for _, a := range spec.Args {
		v, present := args[a.Name]
		if !present || v == nil {
			if a.Required {
				return kibana.NewError(kibana.KindValidation,
					"missing required argument %q", a.Name)
			}
			continue
		}

		switch a.Type {
		case ArgString:
			s, ok := v.(string)
			if !ok {
				return kibana.NewError(kibana.KindValidation,
					"argument %q must be a string", a.Name)
			}
			if a.Required && strings.TrimSpace(s) == "" {
				return kibana.NewError(kibana.KindValidation,
					"argument %q must not be empty", a.Name)
			}
			if len(a.Enum) > 0 && !slices.Contains(a.Enum, s) {
				return kibana.NewError(kibana.KindValidation,
					"invalid value %q for argument %q: must be one of %s",
					s, a.Name, strings.Join(a.Enum, ", "))
			}
		case ArgStringList:
			list, ok := coerceStringList(v)
			if !ok {
				return kibana.NewError(kibana.KindValidation,
					"argument %q must be a list of strings", a.Name)
			}
			if a.Required && len(list) == 0 {
				return kibana.NewError(kibana.KindValidation,
					"argument %q must not be empty", a.Name)
			}
		case ArgInteger:
			if _, ok := coerceInt(v); !ok {
				return kibana.NewError(kibana.KindValidation,
					"argument %q must be an integer", a.Name)
			}
		}
	}
	return nil
}

// coerceStringList accepts []string directly or a JSON-decoded []any whose
// elements are all strings.
func coerceStringList(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// coerceInt accepts native ints and whole JSON numbers (float64).
func coerceInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

// Argument accessors. Only called after validateArgs has accepted the
// invocation, so type assertions here are lenient rather than fatal.

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

func stringListArg(args map[string]any, name string) []string {
	list, _ := coerceStringList(args[name])
	return list
}

func intArg(args map[string]any, name string) int {
	n, _ := coerceInt(args[name])
	return n
}

func success(format string, args ...any) ToolResult {
	return ToolResult{Text: fmt.Sprintf(format, args...)}
}

func failure(kind kibana.Kind, format string, args ...any) ToolResult {
	return ToolResult{Err: &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}}
}

// failureFrom maps a backend error to the failure branch using the
// normalized taxonomy. Unclassified errors surface as backend faults with
// a generic message so internals never leak into the result.
func failureFrom(err error) ToolResult {
	kind, message := kibana.Describe(err)
	return ToolResult{Err: &Failure{Kind: kind, Message: message}}
}
