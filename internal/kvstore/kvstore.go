package kvstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Client provides the small HTTP JSON contract of the dependent key-value
// service. Both operations are best-effort from the caller's perspective:
// their failure never changes a run's terminal status.
type Client interface {
	// WaitReady polls the readiness endpoint a fixed number of attempts at
	// a fixed interval and reports whether the service became reachable.
	// An abandoned wait is not an error.
	WaitReady(ctx context.Context) bool
	// PushItem stores one namespaced key-value record
	PushItem(ctx context.Context, namespace, key string, value any) error
}

// item is the POST /item request body
type item struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Value     any    `json:"value"`
}

// HTTPClient implements Client against the service's HTTP API
type HTTPClient struct {
	BaseURL string
	// Attempts and Interval bound the readiness poll
	Attempts int
	Interval time.Duration

	client *http.Client
	logger *slog.Logger
}

// NewHTTPClient creates a client with the default readiness poll bounds
func NewHTTPClient(baseURL string, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		BaseURL:  baseURL,
		Attempts: 5,
		Interval: 2 * time.Second,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

// WaitReady probes GET /info until it answers 200 or the attempts run out
func (c *HTTPClient) WaitReady(ctx context.Context) bool {
	for attempt := 1; attempt <= c.Attempts; attempt++ {
		if c.probe(ctx) {
			return true
		}
		c.logger.Debug("key-value service not ready",
			"attempt", attempt, "attempts", c.Attempts)

		if attempt == c.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.Interval):
		}
	}

	c.logger.Warn("key-value service did not become ready, giving up",
		"url", c.BaseURL, "attempts", c.Attempts)
	return false
}

func (c *HTTPClient) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/info", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	return resp.StatusCode == http.StatusOK
}

// PushItem stores one record via POST /item
func (c *HTTPClient) PushItem(ctx context.Context, namespace, key string, value any) error {
	body, err := json.Marshal(item{Namespace: namespace, Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("failed to encode item: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/item", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to push item %s/%s: %w", namespace, key, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("push item %s/%s: unexpected status %d", namespace, key, resp.StatusCode)
	}
	return nil
}
