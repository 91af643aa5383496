package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Sender delivers one message. The returned status code is zero when no response arrived.
type Sender interface {
	Send(ctx context.Context, msg Message) (int, error)
}

// EdgeFunctionClient posts messages to the hosted push function.
type EdgeFunctionClient struct {
	url    string
	apiKey string
	http   *http.Client
}

func NewEdgeFunctionClient(url, apiKey string, timeout time.Duration) *EdgeFunctionClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &EdgeFunctionClient{
		url:    url,
		apiKey: apiKey,
		http:   &http.Client{Timeout: timeout},
	}
}

func (c *EdgeFunctionClient) Send(ctx context.Context, msg Message) (int, error) {
	if c.url == "" {
		return 0, fmt.Errorf("push function url is not configured")
	}
	if msg.Data == nil {
		msg.Data = map[string]interface{}{}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal push message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("push request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("push function returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}
