package kibana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

const (
	// DefaultSearchLimit is used when a search requests no explicit limit.
	DefaultSearchLimit = 20
	// MaxPageSize is the backend's maximum search page size. Requests above
	// it are clamped, not rejected.
	MaxPageSize = 100

	// maxErrorBodyBytes caps how much of an error response body is kept
	// for the normalized message.
	maxErrorBodyBytes = 256
)

// Client translates alert operations into backend REST calls and normalizes
// every response and failure. Stateless apart from the shared session; safe
// for concurrent use.
type Client struct {
	session *Session

	defaultLimit int
	maxPageSize  int

	logger *slog.Logger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithSearchLimits overrides the default and maximum search page sizes.
// Non-positive values keep the package defaults.
func WithSearchLimits(defaultLimit, maxPageSize int) ClientOption {
	return func(c *Client) {
		if defaultLimit > 0 {
			c.defaultLimit = defaultLimit
		}
		if maxPageSize > 0 {
			c.maxPageSize = maxPageSize
		}
	}
}

// NewClient creates a backend client on top of the shared session.
func NewClient(session *Session, opts ...ClientOption) *Client {
	c := &Client{
		session:      session,
		defaultLimit: DefaultSearchLimit,
		maxPageSize:  MaxPageSize,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// alertDocument is the wire shape of GET /api/alerting/alert/{id}.
// SeqNo/PrimaryTerm are pointers so a response missing the concurrency
// token is detectable as a malformed shape rather than silently zero.
type alertDocument struct {
	ID          string   `json:"id"`
	Tags        []string `json:"tags"`
	Severity    string   `json:"severity"`
	RuleName    string   `json:"rule_name"`
	Timestamp   string   `json:"@timestamp"`
	SeqNo       *int64   `json:"_seq_no"`
	PrimaryTerm *int64   `json:"_primary_term"`
}

// FetchAlert reads the current state of one alert.
func (c *Client) FetchAlert(ctx context.Context, id string) (*Alert, error) {
	u := c.session.endpoint("api", "alerting", "alert", id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, WrapError(KindBackend, err, "build fetch request for alert %s", id)
	}

	resp, err := c.session.httpClient.Do(req)
	if err != nil {
		return nil, WrapError(KindBackend, err, "fetch alert %s", id)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError("fetch alert "+id, resp)
	}

	var doc alertDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, WrapError(KindBackend, err, "decode alert %s", id)
	}
	if doc.SeqNo == nil || doc.PrimaryTerm == nil {
		return nil, NewError(KindBackend, "alert %s response is missing its concurrency token", id)
	}

	alert := &Alert{
		ID:        doc.ID,
		Tags:      doc.Tags,
		Severity:  Severity(doc.Severity),
		RuleName:  doc.RuleName,
		Timestamp: doc.Timestamp,
		Version:   VersionToken{SeqNo: *doc.SeqNo, PrimaryTerm: *doc.PrimaryTerm},
	}
	if alert.ID == "" {
		alert.ID = id
	}
	return alert, nil
}

// updatePayload is the wire shape of the conditional-write body.
type updatePayload struct {
	Tags     *[]string `json:"tags,omitempty"`
	Severity *Severity `json:"severity,omitempty"`
}

// UpdateAlert applies a partial patch to an alert as a conditional write.
// The supplied version must come from a fetch issued immediately before;
// the backend rejects a stale token with a conflict, which this layer
// surfaces without retrying.
func (c *Client) UpdateAlert(ctx context.Context, id string, patch UpdatePatch, version VersionToken) error {
	if patch.isEmpty() {
		return NewError(KindValidation, "update for alert %s changes no fields", id)
	}
	if patch.Severity != nil && !patch.Severity.IsValid() {
		return NewError(KindValidation,
			"invalid severity %q: must be one of %s", *patch.Severity, severityList())
	}

	body, err := json.Marshal(updatePayload{Tags: patch.Tags, Severity: patch.Severity})
	if err != nil {
		return WrapError(KindBackend, err, "encode update for alert %s", id)
	}

	u := c.session.endpoint("api", "alerting", "alert", id, "_update")
	q := u.Query()
	q.Set("if_seq_no", strconv.FormatInt(version.SeqNo, 10))
	q.Set("if_primary_term", strconv.FormatInt(version.PrimaryTerm, 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return WrapError(KindBackend, err, "build update request for alert %s", id)
	}

	resp, err := c.session.httpClient.Do(req)
	if err != nil {
		return WrapError(KindBackend, err, "update alert %s", id)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError("update alert "+id, resp)
	}
	return nil
}

// searchRequest is the wire shape of POST /api/alerting/alerts/_search.
type searchRequest struct {
	Query searchQuery  `json:"query"`
	Size  int          `json:"size"`
	Sort  []searchSort `json:"sort"`
}

type searchQuery struct {
	QueryString queryString `json:"query_string"`
}

type queryString struct {
	Query string `json:"query"`
}

type searchSort map[string]sortOrder

type sortOrder struct {
	Order string `json:"order"`
}

// searchResponse is the signals-index page shape the backend returns.
type searchResponse struct {
	Hits struct {
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
}

type searchHit struct {
	ID          string       `json:"_id"`
	SeqNo       *int64       `json:"_seq_no"`
	PrimaryTerm *int64       `json:"_primary_term"`
	Source      signalSource `json:"_source"`
}

type signalSource struct {
	Tags      []string `json:"tags"`
	Severity  string   `json:"kibana.alert.severity"`
	RuleName  string   `json:"kibana.alert.rule.name"`
	Timestamp string   `json:"@timestamp"`
}

// SearchAlerts queries recent alerts, newest first. A non-positive limit
// uses the default; a limit above the backend's maximum page size is
// clamped. The result reflects a single response page; there is no pagination.
func (c *Client) SearchAlerts(ctx context.Context, limit int, searchText string) ([]*Alert, error) {
	if limit <= 0 {
		limit = c.defaultLimit
	}
	if limit > c.maxPageSize {
		c.logger.Debug("Clamping search limit to backend page size",
			"requested", limit, "max", c.maxPageSize)
		limit = c.maxPageSize
	}
	if strings.TrimSpace(searchText) == "" {
		searchText = "*"
	}

	body, err := json.Marshal(searchRequest{
		Query: searchQuery{QueryString: queryString{Query: searchText}},
		Size:  limit,
		Sort:  []searchSort{{"@timestamp": {Order: "desc"}}},
	})
	if err != nil {
		return nil, WrapError(KindBackend, err, "encode alert search")
	}

	u := c.session.endpoint("api", "alerting", "alerts", "_search")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(KindBackend, err, "build search request")
	}

	resp, err := c.session.httpClient.Do(req)
	if err != nil {
		return nil, WrapError(KindBackend, err, "search alerts")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError("search alerts", resp)
	}

	var page searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, WrapError(KindBackend, err, "decode alert search response")
	}

	alerts := make([]*Alert, 0, len(page.Hits.Hits))
	for _, hit := range page.Hits.Hits {
		a := &Alert{
			ID:        hit.ID,
			Tags:      hit.Source.Tags,
			Severity:  Severity(hit.Source.Severity),
			RuleName:  hit.Source.RuleName,
			Timestamp: hit.Source.Timestamp,
		}
		if hit.SeqNo != nil && hit.PrimaryTerm != nil {
			a.Version = VersionToken{SeqNo: *hit.SeqNo, PrimaryTerm: *hit.PrimaryTerm}
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// Ping checks backend reachability for the readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	u := c.session.endpoint("api", "status")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return WrapError(KindBackend, err, "build status request")
	}
	resp, err := c.session.httpClient.Do(req)
	if err != nil {
		return WrapError(KindBackend, err, "backend status check")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError("backend status check", resp)
	}
	return nil
}

// statusError maps a non-success response to the normalized taxonomy.
func (c *Client) statusError(op string, resp *http.Response) error {
	snippet := readErrorSnippet(resp.Body)

	var kind Kind
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = KindAuth
	case http.StatusNotFound:
		kind = KindNotFound
	case http.StatusConflict:
		kind = KindConflict
	default:
		kind = KindBackend
	}

	c.logger.Warn("Backend returned error status",
		"op", op, "status", resp.StatusCode, "kind", string(kind))

	if snippet != "" {
		return NewError(kind, "%s: backend returned HTTP %d: %s", op, resp.StatusCode, snippet)
	}
	return NewError(kind, "%s: backend returned HTTP %d", op, resp.StatusCode)
}

// readErrorSnippet extracts a short, single-line excerpt of an error body.
func readErrorSnippet(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, maxErrorBodyBytes))
	if err != nil {
		return ""
	}
	snippet := strings.TrimSpace(string(raw))
	snippet = strings.Join(strings.Fields(snippet), " ")
	if len(snippet) > maxErrorBodyBytes {
		snippet = snippet[:maxErrorBodyBytes]
	}
	return snippet
}

// String implements fmt.Stringer for logging.
func (v VersionToken) String() string {
	return fmt.Sprintf("seq_no=%d primary_term=%d", v.SeqNo, v.PrimaryTerm)
}
