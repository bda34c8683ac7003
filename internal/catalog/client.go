// Package catalog talks to the external catalog the synchronization engine
// reconciles against.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// ErrUnavailable signals a connectivity-class failure: the catalog itself
// is unreachable, as opposed to it rejecting one entity. The sync engine
// turns it into a run-level failure instead of a per-entity one.
var ErrUnavailable = errors.New("external catalog unavailable")

// Option is one allowed value of an enum attribute as the catalog defines it.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label,omitempty"`
}

// Client is the external catalog surface the sync engine depends on.
type Client interface {
	// FetchOptions returns the authoritative ordered option set for an
	// attribute, identified by its external code.
	FetchOptions(ctx context.Context, attributeCode string) ([]Option, error)

	// PushEntity sends one entity's cast attribute values. A non-nil error
	// that is not ErrUnavailable counts as a per-entity failure.
	PushEntity(ctx context.Context, externalID string, values map[string]string) error
}

// HTTPClient implements Client against a JSON-over-HTTP catalog API.
type HTTPClient struct {
	httpClient  *http.Client
	baseURL     string
	token       string
	rateLimiter *rateLimiter
}

type rateLimiter struct {
	mu       sync.Mutex
	lastCall time.Time
	interval time.Duration
}

func newRateLimiter(interval time.Duration) *rateLimiter {
	return &rateLimiter{interval: interval}
}

func (r *rateLimiter) wait() {
	r.mu.Lock()
	defer r.mu.Unlock()

	since := time.Since(r.lastCall)
	if since < r.interval {
		time.Sleep(r.interval - since)
	}
	r.lastCall = time.Now()
}

// NewHTTPClient creates a catalog client with rate limiting.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL:     baseURL,
		token:       token,
		rateLimiter: newRateLimiter(time.Second), // 1 request per second
	}
}

// FetchOptions retrieves the option set for an attribute code.
func (c *HTTPClient) FetchOptions(ctx context.Context, attributeCode string) ([]Option, error) {
	if attributeCode == "" {
		return nil, fmt.Errorf("attribute code is required")
	}

	c.rateLimiter.wait()

	endpoint := fmt.Sprintf("%s/attributes/%s/options", c.baseURL, url.PathEscape(attributeCode))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("attribute not found in catalog: %s", attributeCode)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var options []Option
	if err := json.NewDecoder(resp.Body).Decode(&options); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return options, nil
}

type pushPayload struct {
	Values map[string]string `json:"values"`
}

type pushError struct {
	Reason string `json:"reason"`
}

// PushEntity sends one entity's attribute values to the catalog.
func (c *HTTPClient) PushEntity(ctx context.Context, externalID string, values map[string]string) error {
	if externalID == "" {
		return fmt.Errorf("external ID is required")
	}

	c.rateLimiter.wait()

	body, err := json.Marshal(pushPayload{Values: values})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/entities/%s", c.baseURL, url.PathEscape(externalID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		var failure pushError
		if err := json.NewDecoder(resp.Body).Decode(&failure); err == nil && failure.Reason != "" {
			return fmt.Errorf("catalog rejected entity %s: %s", externalID, failure.Reason)
		}
		return fmt.Errorf("catalog rejected entity %s: status %d", externalID, resp.StatusCode)
	}

	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "attrpipe/1.0 (https://github.com/mrlokans/attrpipe)")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
