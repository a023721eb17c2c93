// Package backend fetches raw affiliate lead snapshots from the REST
// backend. The backend is read-only from this service: records are
// fetched, coerced into well-formed UserRecords and cached; no write
// path goes back.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"affiliate-vault/internal/domain"
)

// Default configuration values.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = 1 * time.Second
	DefaultMaxDelay   = 10 * time.Second
)

// Client fetches UserRecord snapshots from the affiliate backend.
type Client struct {
	baseURL    string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
	maxDelay   time.Duration
}

// Option configures Client.
type Option func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates a backend client.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("backend base URL is empty")
	}

	c := &Client{
		baseURL:    baseURL,
		client:     &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		maxDelay:   DefaultMaxDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// wireUserRecord mirrors the backend JSON shape. Numeric fields are
// pointers so absent and null both coerce to zero instead of failing
// the whole sync.
type wireUserRecord struct {
	CEUserID          string   `json:"ce_user_id"`
	CustomerName      string   `json:"customer_name"`
	Country           string   `json:"country"`
	NetDeposits       *float64 `json:"net_deposits"`
	Volume            *float64 `json:"volume"`
	Commission        *float64 `json:"commission"`
	Withdrawals       *float64 `json:"withdrawals"`
	RegistrationDate  *int64   `json:"registration_date"`
	QualificationDate *int64   `json:"qualification_date"`
	TrackingCode      string   `json:"tracking_code"`
}

// SyncResult is one fetched snapshot plus decode diagnostics.
type SyncResult struct {
	Records []domain.UserRecord

	// Coerced counts records that had a missing or non-finite numeric
	// field forced to zero.
	Coerced int
}

// FetchUserRecords retrieves the full lead snapshot. HTTP and network
// failures are retried with exponential backoff; a non-2xx status from
// the backend is not, since it signals a request or server bug rather
// than a transient fault. 429 and 5xx are the exception and retry.
func (c *Client) FetchUserRecords(ctx context.Context) (*SyncResult, error) {
	url := c.baseURL + "/api/user-records"

	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var wire []wireUserRecord
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decode user records: %w", err)
	}

	result := &SyncResult{Records: make([]domain.UserRecord, 0, len(wire))}
	for _, w := range wire {
		r, coerced := w.toDomain()
		if coerced {
			result.Coerced++
		}
		result.Records = append(result.Records, r)
	}
	return result, nil
}

// toDomain converts a wire record, coercing absent and non-finite
// numerics to zero. Reports whether any coercion happened.
func (w wireUserRecord) toDomain() (domain.UserRecord, bool) {
	coerced := false

	num := func(p *float64) float64 {
		if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
			coerced = true
			return 0
		}
		return *p
	}
	ts := func(p *int64) int64 {
		if p == nil {
			coerced = true
			return 0
		}
		return *p
	}

	return domain.UserRecord{
		CEUserID:          w.CEUserID,
		CustomerName:      w.CustomerName,
		Country:           w.Country,
		NetDeposits:       num(w.NetDeposits),
		Volume:            num(w.Volume),
		Commission:        num(w.Commission),
		Withdrawals:       num(w.Withdrawals),
		RegistrationDate:  ts(w.RegistrationDate),
		QualificationDate: ts(w.QualificationDate),
		TrackingCode:      w.TrackingCode,
	}, coerced
}

// get performs a GET with bounded retries and exponential backoff.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("fetch %s: %w", url, err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}

		lastErr = fmt.Errorf("backend returned status %d", resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			continue
		}
		return nil, lastErr
	}

	return nil, fmt.Errorf("backend unreachable after %d attempts: %w", c.maxRetries+1, lastErr)
}
