package cohortctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/okian/boostcalc/internal/domain/types"
)

// ErrAPI is returned for any non-2xx response.
var ErrAPI = errors.New("api error")

// APIError carries the status and decoded error body of a failed call.
type APIError struct {
	Status   int    `json:"-"`
	Message  string `json:"error"`
	Code     string `json:"code"`
	Enrolled *bool  `json:"enrolled,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return ErrAPI }

// adminTokenHeader must match the header the service checks on /api/admin.
const adminTokenHeader = "X-Admin-Token"

// Client wraps http.Client with the service base URL.
type Client struct {
	baseURL    string
	adminToken string
	client     *http.Client
}

// ClientOption applies a configuration option to the Client.
type ClientOption func(*Client)

// WithAdminToken sets the token sent on administrative calls only.
func WithAdminToken(token string) ClientOption {
	return func(c *Client) {
		c.adminToken = strings.TrimSpace(token)
	}
}

// NewClient creates a client with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddRequest is the admin enrollment body.
type AddRequest struct {
	ProfileURL     string `json:"profileUrl"`
	Email          string `json:"email,omitempty"`
	Name           string `json:"name,omitempty"`
	Batch          string `json:"batch,omitempty"`
	EnrollmentDate string `json:"enrollmentDate,omitempty"`
}

// AddResponse reports whether the registry changed.
type AddResponse struct {
	Success   bool   `json:"success"`
	Added     bool   `json:"added"`
	ProfileID string `json:"profileId"`
	Message   string `json:"message"`
}

// Calculate scores one participant.
func (c *Client) Calculate(ctx context.Context, req types.CalculateRequest) (types.CalculateResponse, error) {
	var out types.CalculateResponse
	err := c.do(ctx, http.MethodPost, "/api/calculate-points", req, &out)
	return out, err
}

// Participants lists the cohort.
func (c *Client) Participants(ctx context.Context, testMode bool) (types.ParticipantsResponse, error) {
	var out types.ParticipantsResponse
	err := c.do(ctx, http.MethodGet, "/api/participants"+testQuery(testMode, ""), nil, &out)
	return out, err
}

// Report runs a cohort pass and decodes the JSON report.
func (c *Client) Report(ctx context.Context, testMode bool) (types.CohortReport, error) {
	var out struct {
		Report types.CohortReport `json:"report"`
	}
	err := c.do(ctx, http.MethodGet, "/api/analytics"+testQuery(testMode, "json"), nil, &out)
	return out.Report, err
}

// ReportCSV runs a cohort pass and copies the CSV export to w.
func (c *Client) ReportCSV(ctx context.Context, testMode bool, w io.Writer) error {
	resp, err := c.send(ctx, http.MethodGet, "/api/analytics"+testQuery(testMode, "csv"), nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("copy csv: %w", err)
	}
	return nil
}

// Add enrolls a participant.
func (c *Client) Add(ctx context.Context, req AddRequest) (AddResponse, error) {
	var out AddResponse
	err := c.do(ctx, http.MethodPost, "/api/admin/participants", req, &out)
	return out, err
}

// Reload asks the service to re-read its registry and returns the new size.
func (c *Client) Reload(ctx context.Context) (int, error) {
	var out struct {
		TotalParticipants int `json:"totalParticipants"`
	}
	err := c.do(ctx, http.MethodPost, "/api/admin/reload", nil, &out)
	return out.TotalParticipants, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// send performs the request and turns non-2xx responses into *APIError.
func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.adminToken != "" && strings.HasPrefix(path, "/api/admin/") {
		req.Header.Set(adminTokenHeader, c.adminToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		defer func() { _ = resp.Body.Close() }()
		apiErr := &APIError{Status: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return nil, apiErr
	}
	return resp, nil
}

func testQuery(testMode bool, format string) string {
	q := url.Values{}
	if testMode {
		q.Set("test", "true")
	}
	if format != "" {
		q.Set("format", format)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}
