package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"scribe/logger"

	"github.com/andybalholm/brotli"
)

// ErrNoEndpoint is returned when neither a custom nor a default endpoint is set
var ErrNoEndpoint = errors.New("no completion endpoint configured")

// Request is the body sent to the completion service
type Request struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
}

// Response is the body returned by the completion service
type Response struct {
	Result string `json:"result"`
}

// RequestError reports a non-2xx response from the completion service
type RequestError struct {
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
}

// Client is the HTTP client for the completion service
type Client struct {
	HTTPClient  *http.Client
	URL         string
	AuthToken   string
	Model       string
	Compression string
}

// NewClient creates a new completion client.
// url is the custom endpoint, or the default one when no custom endpoint is set
// timeoutMs is the HTTP client timeout in milliseconds (0 = no timeout)
func NewClient(url, apiKey, model string, timeoutMs int) *Client {
	timeout := time.Duration(0)
	if timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}
	return &Client{
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		URL:       url,
		AuthToken: apiKey,
		Model:     model,
	}
}

// Complete sends prompt to the completion service and returns its result text
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	defer logger.Trace("completion.Complete")()

	if c.URL == "" {
		return "", ErrNoEndpoint
	}

	jsonData, err := json.Marshal(&Request{Prompt: prompt, Model: c.Model})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	body, encoding, err := c.encode(jsonData)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, c.URL, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if encoding != "" {
		httpReq.Header.Set("Content-Encoding", encoding)
	}
	if c.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.AuthToken)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return "", &RequestError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var out Response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	return out.Result, nil
}

// encode compresses the request body with brotli (quality 1 for speed) when
// compression is enabled.
func (c *Client) encode(jsonData []byte) (io.Reader, string, error) {
	if c.Compression != "br" {
		return bytes.NewReader(jsonData), "", nil
	}
	var compressedBuf bytes.Buffer
	brotliWriter := brotli.NewWriterLevel(&compressedBuf, 1)
	if _, err := brotliWriter.Write(jsonData); err != nil {
		return nil, "", fmt.Errorf("failed to compress request: %w", err)
	}
	if err := brotliWriter.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close brotli writer: %w", err)
	}
	return &compressedBuf, "br", nil
}
