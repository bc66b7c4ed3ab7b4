// Package render produces the final answer text for a completed intent,
// either via the external knowledge-base renderer or from the registry's own
// response templates.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrTemplateMissing reports that no response template exists for the intent;
// the orchestrator substitutes a generic fallback.
var ErrTemplateMissing = errors.New("response template missing")

// Renderer turns a completed intent plus its filled slots into response text.
type Renderer interface {
	Render(ctx context.Context, intentName string, slots map[string]string) (string, error)
}

// Client calls the remote rendering service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.baseURL != ""
}

type renderRequest struct {
	Intent string            `json:"intent"`
	Slots  map[string]string `json:"slots"`
}

type renderResponse struct {
	Text string `json:"text"`
}

func (c *Client) Render(ctx context.Context, intentName string, slots map[string]string) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("renderer base URL is not configured")
	}

	body, _ := json.Marshal(renderRequest{Intent: intentName, Slots: slots})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/render", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: intent %q", ErrTemplateMissing, intentName)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("renderer status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var out renderResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("decode renderer response: %w", err)
	}
	return out.Text, nil
}
