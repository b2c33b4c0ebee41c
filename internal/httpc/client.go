// Package httpc provides the HTTP client used for REST calls to an asl server.
package httpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Default timeouts for HTTP operations.
const (
	DefaultTimeout        = 10 * time.Second
	DefaultConnectTimeout = 5 * time.Second
)

// maxErrorBody caps how much of a failed response is quoted in errors.
const maxErrorBody = 512

// Client is a shared HTTP client with timeouts set.
var Client = New(DefaultTimeout)

// New creates an HTTP client with the given overall timeout.
func New(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DefaultConnectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Code, e.Body)
}

// GetJSON fetches url and decodes the JSON body into v.
func GetJSON(ctx context.Context, c *http.Client, url string, v any) error {
	return doJSON(ctx, c, http.MethodGet, url, v)
}

// PostJSON posts an empty body to url and decodes the JSON reply into v.
func PostJSON(ctx context.Context, c *http.Client, url string, v any) error {
	return doJSON(ctx, c, http.MethodPost, url, v)
}

func doJSON(ctx context.Context, c *http.Client, method, url string, v any) error {
	if c == nil {
		c = Client
	}
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, url, err)
	}
	return nil
}
