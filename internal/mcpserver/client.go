package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mbd888/homeescrow/internal/escrow"
	"github.com/mbd888/homeescrow/internal/pagination"
)

// Config holds the configuration for connecting to the escrow API.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
	Token  string // Bearer JWT of the user the assistant acts for
}

// Client is a thin HTTP client for the escrow API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a new API client.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is an error response from the escrow API.
type APIError struct {
	StatusCode int             `json:"-"`
	Code       string          `json:"error"`
	Message    string          `json:"message"`
	Allowed    []escrow.Status `json:"allowed,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API error (%d)", e.StatusCode)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// do sends a request and decodes a successful JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(respBody, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = string(respBody)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type transactionEnvelope struct {
	Transaction *escrow.Transaction `json:"transaction"`
}

// GetTransaction fetches one transaction.
func (c *Client) GetTransaction(ctx context.Context, id string) (*escrow.Transaction, error) {
	var env transactionEnvelope
	if err := c.do(ctx, http.MethodGet, "/v1/escrow/"+url.PathEscape(id), nil, nil, &env); err != nil {
		return nil, err
	}
	return env.Transaction, nil
}

// ListFilter narrows ListTransactions.
type ListFilter struct {
	Status string
	Role   string
	Page   int
	Limit  int
}

// ListTransactions returns one page of the caller's transactions.
func (c *Client) ListTransactions(ctx context.Context, f ListFilter) (pagination.Result[*escrow.Transaction], error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.Role != "" {
		q.Set("role", f.Role)
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	var res pagination.Result[*escrow.Transaction]
	err := c.do(ctx, http.MethodGet, "/v1/escrow", q, nil, &res)
	return res, err
}

// UpdateStatus requests a status change.
func (c *Client) UpdateStatus(ctx context.Context, id, status, notes string) (*escrow.Transaction, error) {
	var env transactionEnvelope
	body := escrow.StatusRequest{Status: escrow.Status(status), Notes: notes}
	if err := c.do(ctx, http.MethodPost, "/v1/escrow/"+url.PathEscape(id)+"/status", nil, body, &env); err != nil {
		return nil, err
	}
	return env.Transaction, nil
}

// FileDispute opens a dispute.
func (c *Client) FileDispute(ctx context.Context, id, reason, description string) (*escrow.Transaction, error) {
	var env transactionEnvelope
	body := escrow.DisputeRequest{Reason: reason, Description: description}
	if err := c.do(ctx, http.MethodPost, "/v1/escrow/"+url.PathEscape(id)+"/dispute", nil, body, &env); err != nil {
		return nil, err
	}
	return env.Transaction, nil
}

// Timeline is the audit trail plus the replayed status sequence.
type Timeline struct {
	Events   []escrow.TimelineEvent `json:"timeline"`
	Statuses []escrow.Status        `json:"statuses"`
}

// GetTimeline fetches a transaction's audit trail.
func (c *Client) GetTimeline(ctx context.Context, id string) (*Timeline, error) {
	var tl Timeline
	if err := c.do(ctx, http.MethodGet, "/v1/escrow/"+url.PathEscape(id)+"/timeline", nil, nil, &tl); err != nil {
		return nil, err
	}
	return &tl, nil
}

// GetStatistics returns platform statistics. Admin tokens only.
func (c *Client) GetStatistics(ctx context.Context) (*escrow.Statistics, error) {
	var env struct {
		Statistics *escrow.Statistics `json:"statistics"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/escrow/stats", nil, nil, &env); err != nil {
		return nil, err
	}
	return env.Statistics, nil
}
