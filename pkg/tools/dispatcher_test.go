package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelops/alertbridge/pkg/kibana"
)

// fakeBackend serves the three backend endpoints for a single in-memory
// alert and counts every request, so tests can assert "no I/O happened".
type fakeBackend struct {
	requests atomic.Int64

	alertID     string
	tags        []string
	severity    string
	seqNo       int64
	primaryTerm int64

	// failUpdateWith forces the update endpoint to answer with a status.
	failUpdateWith int
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/alerting/alert/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		if r.PathValue("id") != f.alertID {
			http.Error(w, `{"error":"no such document"}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            f.alertID,
			"tags":          f.tags,
			"severity":      f.severity,
			"rule_name":     "Test rule",
			"@timestamp":    "2026-08-25T10:00:00Z",
			"_seq_no":       f.seqNo,
			"_primary_term": f.primaryTerm,
		})
	})
	mux.HandleFunc("POST /api/alerting/alert/{id}/_update", func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		if r.PathValue("id") != f.alertID {
			http.Error(w, `{"error":"no such document"}`, http.StatusNotFound)
			return
		}
		if f.failUpdateWith != 0 {
			http.Error(w, `{"error":"forced failure"}`, f.failUpdateWith)
			return
		}
		if r.URL.Query().Get("if_seq_no") != fmt.Sprint(f.seqNo) {
			http.Error(w, `{"error":"version conflict"}`, http.StatusConflict)
			return
		}
		var patch struct {
			Tags     *[]string `json:"tags"`
			Severity *string   `json:"severity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if patch.Tags != nil {
			f.tags = *patch.Tags
		}
		if patch.Severity != nil {
			f.severity = *patch.Severity
		}
		f.seqNo++ // every accepted write bumps the version
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /api/alerting/alerts/_search", func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		var req struct {
			Size int `json:"size"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		n := req.Size
		if n > 3 {
			n = 3 // pretend only three alerts exist
		}
		hits := make([]map[string]any, 0, n)
		for i := 0; i < n; i++ {
			hits = append(hits, map[string]any{
				"_id":           fmt.Sprintf("a%d", i+1),
				"_seq_no":       int64(i),
				"_primary_term": int64(1),
				"_source": map[string]any{
					"tags":                   []string{"seed"},
					"kibana.alert.severity":  "medium",
					"kibana.alert.rule.name": "Test rule",
					"@timestamp":             "2026-08-25T10:00:00Z",
				},
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"hits": map[string]any{"hits": hits}})
	})
	return mux
}

func newTestDispatcher(t *testing.T, backend *fakeBackend) *Dispatcher {
	t.Helper()
	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)

	session, err := kibana.NewSession(kibana.SessionConfig{URL: server.URL, APIKey: "test-key"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	return NewDispatcher(kibana.NewClient(session))
}

func defaultBackend() *fakeBackend {
	return &fakeBackend{
		alertID:     "a1",
		tags:        []string{"p1"},
		severity:    "medium",
		seqNo:       3,
		primaryTerm: 1,
	}
}

func TestDispatch_UnknownTool(t *testing.T) {
	backend := defaultBackend()
	d := newTestDispatcher(t, backend)

	res := d.Dispatch(context.Background(), Invocation{Name: "delete_everything"})
	require.False(t, res.OK())
	assert.Equal(t, kibana.KindUnknownTool, res.Err.Kind)
	assert.Contains(t, res.Err.Message, "delete_everything")
	assert.Zero(t, backend.requests.Load())
}

func TestDispatch_TagAlert(t *testing.T) {
	t.Run("writes the union and reports the final tag list", func(t *testing.T) {
		backend := defaultBackend()
		d := newTestDispatcher(t, backend)

		res := d.Dispatch(context.Background(), Invocation{
			Name: ToolTagAlert,
			Args: map[string]any{"alert_id": "a1", "tags": []any{"p1", "urgent"}},
		})
		require.True(t, res.OK(), "unexpected failure: %+v", res.Err)
		assert.Contains(t, res.Text, "a1")
		assert.Contains(t, res.Text, "p1, urgent")
		assert.Equal(t, []string{"p1", "urgent"}, backend.tags)
	})

	t.Run("re-invoking with the same tags changes nothing", func(t *testing.T) {
		backend := defaultBackend()
		d := newTestDispatcher(t, backend)

		inv := Invocation{
			Name: ToolTagAlert,
			Args: map[string]any{"alert_id": "a1", "tags": []any{"urgent"}},
		}
		require.True(t, d.Dispatch(context.Background(), inv).OK())
		require.True(t, d.Dispatch(context.Background(), inv).OK())
		assert.Equal(t, []string{"p1", "urgent"}, backend.tags)
	})

	t.Run("missing alert is a not_found failure with no write", func(t *testing.T) {
		backend := defaultBackend()
		d := newTestDispatcher(t, backend)

		res := d.Dispatch(context.Background(), Invocation{
			Name: ToolTagAlert,
			Args: map[string]any{"alert_id": "ghost", "tags": []any{"x"}},
		})
		require.False(t, res.OK())
		assert.Equal(t, kibana.KindNotFound, res.Err.Kind)
		assert.Equal(t, []string{"p1"}, backend.tags)
	})

	t.Run("missing tags argument is a validation failure with no I/O", func(t *testing.T) {
		backend := defaultBackend()
		d := newTestDispatcher(t, backend)

		res := d.Dispatch(context.Background(), Invocation{
			Name: ToolTagAlert,
			Args: map[string]any{"alert_id": "a1"},
		})
		require.False(t, res.OK())
		assert.Equal(t, kibana.KindValidation, res.Err.Kind)
		assert.Zero(t, backend.requests.Load())
	})

	t.Run("empty tag list is a validation failure with no I/O", func(t *testing.T) {
		backend := defaultBackend()
		d := newTestDispatcher(t, backend)

		res := d.Dispatch(context.Background(), Invocation{
			Name: ToolTagAlert,
			Args: map[string]any{"alert_id": "a1", "tags": []any{}},
		})
		require.False(t, res.OK())
		assert.Equal(t, kibana.KindValidation, res.Err.Kind)
		assert.Zero(t, backend.requests.Load())
	})

	t.Run("non-string tag is a validation failure with no I/O", func(t *testing.T) {
		backend := defaultBackend()
		d := newTestDispatcher(t, backend)

		res := d.Dispatch(context.Background(), Invocation{
			Name: ToolTagAlert,
			Args: map[string]any{"alert_id": "a1", "tags": []any{"ok", 42}},
		})
		require.False(t, res.OK())
		assert.Equal(t, kibana.KindValidation, res.Err.Kind)
		assert.Zero(t, backend.requests.Load())
	})

	t.Run("stale version surfaces as a conflict", func(t *testing.T) {
		backend := defaultBackend()
		backend.failUpdateWith = http.StatusConflict
		d := newTestDispatcher(t, backend)

		res := d.Dispatch(context.Background(), Invocation{
			Name: ToolTagAlert,
			Args: map[string]any{"alert_id": "a1", "tags": []any{"x"}},
		})
		require.False(t, res.OK())
		assert.Equal(t, kibana.KindConflict, res.Err.Kind)
	})
}

func TestDispatch_AdjustSeverity(t *testing.T) {
	t.Run("writes the new severity and leaves tags untouched", func(t *testing.T) {
		backend := defaultBackend()
		d := newTestDispatcher(t, backend)

		res := d.Dispatch(context.Background(), Invocation{
			Name: ToolAdjustSeverity,
			Args: map[string]any{"alert_id": "a1", "new_severity": "critical"},
		})
		require.True(t, res.OK(), "unexpected failure: %+v", res.Err)
		assert.Contains(t, res.Text, "a1")
		assert.Contains(t, res.Text, "critical")
		assert.Equal(t, "critical", backend.severity)
		assert.Equal(t, []string{"p1"}, backend.tags)
	})

	t.Run("bogus severity is a validation failure with no network call", func(t *testing.T) {
		backend := defaultBackend()
		d := newTestDispatcher(t, backend)

		res := d.Dispatch(context.Background(), Invocation{
			Name: ToolAdjustSeverity,
			Args: map[string]any{"alert_id": "a1", "new_severity": "bogus"},
		})
		require.False(t, res.OK())
		assert.Equal(t, kibana.KindValidation, res.Err.Kind)
		assert.Contains(t, res.Err.Message, "bogus")
		assert.Zero(t, backend.requests.Load())
		assert.Equal(t, "medium", backend.severity)
	})

	t.Run("severity matching is case-sensitive", func(t *testing.T) {
		backend := defaultBackend()
		d := newTestDispatcher(t, backend)

		res := d.Dispatch(context.Background(), Invocation{
			Name: ToolAdjustSeverity,
			Args: map[string]any{"alert_id": "a1", "new_severity": "High"},
		})
		require.False(t, res.OK())
		assert.Equal(t, kibana.KindValidation, res.Err.Kind)
		assert.Zero(t, backend.requests.Load())
	})

	t.Run("missing alert is a not_found failure", func(t *testing.T) {
		backend := defaultBackend()
		d := newTestDispatcher(t, backend)

		res := d.Dispatch(context.Background(), Invocation{
			Name: ToolAdjustSeverity,
			Args: map[string]any{"alert_id": "ghost", "new_severity": "low"},
		})
		require.False(t, res.OK())
		assert.Equal(t, kibana.KindNotFound, res.Err.Kind)
	})
}

func TestDispatch_GetAlerts(t *testing.T) {
	t.Run("lists alerts with summaries", func(t *testing.T) {
		d := newTestDispatcher(t, defaultBackend())

		res := d.Dispatch(context.Background(), Invocation{
			Name: ToolGetAlerts,
			Args: map[string]any{"limit": float64(2)}, // JSON numbers decode as float64
		})
		require.True(t, res.OK(), "unexpected failure: %+v", res.Err)
		assert.Contains(t, res.Text, "Found 2 alert(s):")
		assert.Contains(t, res.Text, "a1 [medium]")
		assert.Contains(t, res.Text, "Test rule")
	})

	t.Run("omitted limit uses the default", func(t *testing.T) {
		d := newTestDispatcher(t, defaultBackend())

		res := d.Dispatch(context.Background(), Invocation{Name: ToolGetAlerts, Args: map[string]any{}})
		require.True(t, res.OK())
		// fake backend holds three alerts; the default limit (20) covers them all
		assert.True(t, strings.HasPrefix(res.Text, "Found 3 alert(s):"), res.Text)
	})

	t.Run("fractional limit is a validation failure", func(t *testing.T) {
		backend := defaultBackend()
		d := newTestDispatcher(t, backend)

		res := d.Dispatch(context.Background(), Invocation{
			Name: ToolGetAlerts,
			Args: map[string]any{"limit": 2.5},
		})
		require.False(t, res.OK())
		assert.Equal(t, kibana.KindValidation, res.Err.Kind)
		assert.Zero(t, backend.requests.Load())
	})

	t.Run("no matches yields a defined message", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"hits":{"hits":[]}}`)
		}))
		t.Cleanup(server.Close)
		session, err := kibana.NewSession(kibana.SessionConfig{URL: server.URL, APIKey: "k"})
		require.NoError(t, err)
		t.Cleanup(func() { _ = session.Close() })

		res := NewDispatcher(kibana.NewClient(session)).Dispatch(context.Background(),
			Invocation{Name: ToolGetAlerts, Args: map[string]any{}})
		require.True(t, res.OK())
		assert.Equal(t, "No alerts matched.", res.Text)
	})
}

func TestDispatch_NeverEscapes(t *testing.T) {
	// A backend that breaks mid-flight must still produce a ToolResult.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "garbage")
	}))
	t.Cleanup(server.Close)
	session, err := kibana.NewSession(kibana.SessionConfig{URL: server.URL, APIKey: "k"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	d := NewDispatcher(kibana.NewClient(session))

	for _, inv := range []Invocation{
		{Name: ToolTagAlert, Args: map[string]any{"alert_id": "a1", "tags": []any{"x"}}},
		{Name: ToolAdjustSeverity, Args: map[string]any{"alert_id": "a1", "new_severity": "low"}},
		{Name: ToolGetAlerts, Args: map[string]any{}},
	} {
		res := d.Dispatch(context.Background(), inv)
		require.False(t, res.OK())
		require.NotNil(t, res.Err)
		assert.Equal(t, kibana.KindBackend, res.Err.Kind)
		assert.NotEmpty(t, res.Err.Message)
	}
}
