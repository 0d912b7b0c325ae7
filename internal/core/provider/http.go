package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/econlens/econlens/internal/core/engine"
)

// maxResponseBytes bounds how much of an upstream response is read. A single
// observation page from either provider stays well under this.
const maxResponseBytes = 8 << 20

// getJSON performs one GET exchange and decodes the JSON body into out.
// Transport failures and non-2xx statuses come back tagged with a category;
// decode failures are fatal so malformed payloads are never retried.
func getJSON(ctx context.Context, client *http.Client, userAgent, op, rawURL string, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return engine.Fatal(op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return engine.Transient(op, err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return engine.Transient(op, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return statusError(op, resp, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return engine.Fatal(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// statusError maps a non-2xx upstream response onto the category taxonomy.
func statusError(op string, resp *http.Response, body []byte) error {
	status := resp.StatusCode
	switch {
	case status == http.StatusTooManyRequests:
		return engine.Throttled(op, retryAfterHeader(resp), fmt.Errorf("rate limited: %s", snippet(body)))
	case status >= 500:
		return engine.Transient(op, fmt.Errorf("server error: %s", snippet(body))).WithStatus(status)
	default:
		return engine.Fatalf(op, "unexpected status %d: %s", status, snippet(body)).WithStatus(status)
	}
}

// retryAfterHeader reads the provider's requested pause, in either the
// delay-seconds or the HTTP-date form.
func retryAfterHeader(resp *http.Response) time.Duration {
	if resp == nil || resp.Header == nil {
		return 0
	}

	retry := resp.Header.Get("Retry-After")
	if retry == "" {
		return 0
	}

	if seconds, err := time.ParseDuration(retry + "s"); err == nil {
		return seconds
	}
	if parsed, err := http.ParseTime(retry); err == nil {
		return time.Until(parsed)
	}

	return 0
}

// snippet reduces an upstream body to a short single-line error detail.
func snippet(body []byte) string {
	s := strings.Join(strings.Fields(string(body)), " ")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		return "(empty body)"
	}
	return s
}
