// Package extract wraps the external intent/parameter extraction service.
package extract

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

	"helpdesk/internal/domain"
)

// ErrUnavailable reports that the extractor could not produce a result; the
// orchestrator downgrades it to a clarification prompt.
var ErrUnavailable = errors.New("extraction unavailable")

// Extractor classifies a message and pulls out slot candidates.
type Extractor interface {
	Extract(ctx context.Context, text string) (domain.ExtractionResult, error)
}

// Client calls the extraction service over HTTP.
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

type extractRequest struct {
	Text string `json:"text"`
}

func (c *Client) Extract(ctx context.Context, text string) (domain.ExtractionResult, error) {
	if !c.Enabled() {
		return domain.ExtractionResult{}, fmt.Errorf("%w: extractor base URL is not configured", ErrUnavailable)
	}

	body, _ := json.Marshal(extractRequest{Text: text})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/extract", bytes.NewReader(body))
	if err != nil {
		return domain.ExtractionResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return domain.ExtractionResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return domain.ExtractionResult{}, fmt.Errorf("%w: status=%d body=%s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var out domain.ExtractionResult
	if err := json.Unmarshal(respBody, &out); err != nil {
		return domain.ExtractionResult{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return out, nil
}
