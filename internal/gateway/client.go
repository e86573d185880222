package gateway

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

	"birthdayadmin/internal/birthday"
	"birthdayadmin/internal/metrics"
)

// ErrStatus is wrapped by every error caused by a non-2xx response.
var ErrStatus = errors.New("birthdays api returned failure status")

// StatusError carries the failing status of a birthdays API response.
type StatusError struct {
	Op     string
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("birthdays api %s: %s", e.Op, e.Status)
	}
	return fmt.Sprintf("birthdays api %s: %s: %s", e.Op, e.Status, e.Body)
}

// Unwrap lets callers match any status failure with errors.Is(err, ErrStatus).
func (e *StatusError) Unwrap() error { return ErrStatus }

// Client calls the remote birthdays REST API. No credentials are attached.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New creates a client. A zero timeout leaves the transport default in place.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) collection() string {
	return c.BaseURL + "/api/birthdays"
}

// List returns the complete record collection in backend order.
func (c *Client) List(ctx context.Context) ([]birthday.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.collection(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do("list", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out []birthday.Record
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("birthdays api list: decode response: %w", err)
	}
	if out == nil {
		out = []birthday.Record{}
	}
	return out, nil
}

// Create posts a draft. The response body is not consumed beyond its status.
func (c *Client) Create(ctx context.Context, d birthday.Draft) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("birthdays api create: encode draft: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.collection(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do("create", req)
	if err != nil {
		return err
	}
	drain(resp)
	return nil
}

// Delete removes the record with the given identifier.
func (c *Client) Delete(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.collection()+"/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}

	resp, err := c.do("delete", req)
	if err != nil {
		return err
	}
	drain(resp)
	return nil
}

// Health checks that the API answers the listing endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.collection(), nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("birthdays api unavailable: %w", err)
	}
	drain(resp)
	if resp.StatusCode >= 500 {
		return fmt.Errorf("birthdays api unhealthy: %s", resp.Status)
	}
	return nil
}

// do executes req and records metrics. On success the caller owns resp.Body.
func (c *Client) do(op string, req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.HTTP.Do(req)
	metrics.GatewayDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GatewayRequests.WithLabelValues(op, "error").Inc()
		return nil, fmt.Errorf("birthdays api %s request failed: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.GatewayRequests.WithLabelValues(op, "status").Inc()
		return nil, &StatusError{Op: op, Code: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(bodyBytes))}
	}
	metrics.GatewayRequests.WithLabelValues(op, "ok").Inc()
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
