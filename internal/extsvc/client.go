// Package extsvc forwards activities to an optional companion service
// over HTTP, retrying transient failures.
package extsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/deskpulse/deskpulse/internal/classifier"
	"github.com/deskpulse/deskpulse/internal/resilience"
)

// Client talks to the companion service. A nil Client (no URL
// configured) is valid and turns every call into a no-op.
type Client struct {
	baseURL string
	http    *http.Client
	retry   resilience.RetryConfig
}

// New builds a client for baseURL. Returns nil when baseURL is empty.
func New(baseURL string, timeout time.Duration, retries int, retryDelay time.Duration) *Client {
	if baseURL == "" {
		return nil
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		retry: resilience.RetryConfig{
			MaxRetries: retries,
			Delay:      retryDelay,
		},
	}
}

// SendActivity posts one classification result.
func (c *Client) SendActivity(ctx context.Context, result classifier.Result) error {
	if c == nil {
		return nil
	}
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode activity: %w", err)
	}

	return resilience.Retry(ctx, c.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/activities", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer drain(resp)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &resilience.StatusError{Code: resp.StatusCode}
		}
		return nil
	})
}

// Activities fetches stored activities from the service.
func (c *Client) Activities(ctx context.Context, start, end time.Time, limit int) ([]classifier.Result, error) {
	if c == nil {
		return nil, nil
	}

	q := url.Values{}
	if !start.IsZero() {
		q.Set("start", start.Format(time.RFC3339))
	}
	if !end.IsZero() {
		q.Set("end", end.Format(time.RFC3339))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var results []classifier.Result
	err := resilience.Retry(ctx, c.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/activities?"+q.Encode(), nil)
		if err != nil {
			return err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer drain(resp)

		if resp.StatusCode != http.StatusOK {
			return &resilience.StatusError{Code: resp.StatusCode}
		}
		results = nil
		return json.NewDecoder(resp.Body).Decode(&results)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch activities: %w", err)
	}
	return results, nil
}

// Ping reports whether the service answers its health endpoint. No
// retries; this is a liveness probe.
func (c *Client) Ping(ctx context.Context) bool {
	if c == nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ping", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		slog.Debug("companion service unreachable", "error", err)
		return false
	}
	defer drain(resp)
	return resp.StatusCode == http.StatusOK
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
