// Package llm implements the OpenRouter chat-completions client used for
// vision extraction and answer generation.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Message represents a chat message.
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart represents a part of a message (text or image).
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL holds an image reference, here always a base64 data URL.
type ImageURL struct {
	URL string `json:"url"`
}

// Request is the chat completion request payload.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Response is the chat completion response payload.
type Response struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
	Error   *APIError `json:"error,omitempty"`
}

// Choice represents a completion choice.
type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// ResponseMessage is the assistant message inside a choice.
type ResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// APIError is the error body returned by the API.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Options configures the client.
type Options struct {
	BaseURL    string
	APIKey     string
	SiteURL    string
	SiteName   string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Client talks to an OpenRouter-compatible chat completions endpoint.
type Client struct {
	httpClient *http.Client
	opts       Options
}

// ChatModel is the behavior the extraction and answer layers depend on.
type ChatModel interface {
	Complete(ctx context.Context, model string, parts []ContentPart) (string, error)
}

var _ ChatModel = (*Client)(nil)

// NewClient creates a chat completions client.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://openrouter.ai/api/v1"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = 2 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		opts:       opts,
	}
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

// JPEGPart builds an image content part from raw JPEG bytes.
func JPEGPart(jpeg []byte) ContentPart {
	encoded := base64.StdEncoding.EncodeToString(jpeg)
	return ContentPart{
		Type:     "image_url",
		ImageURL: &ImageURL{URL: "data:image/jpeg;base64," + encoded},
	}
}

// Complete sends a single-user-message completion and returns the
// assistant's text. Transient failures are retried with backoff.
func (c *Client) Complete(ctx context.Context, model string, parts []ContentPart) (string, error) {
	req := Request{
		Model:    model,
		Messages: []Message{{Role: "user", Content: parts}},
	}

	var content string
	err := c.retryWithBackoff(ctx, func() error {
		var err error
		content, err = c.complete(ctx, req)
		return err
	})
	return content, err
}

func (c *Client) complete(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.opts.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	if c.opts.SiteURL != "" {
		httpReq.Header.Set("HTTP-Referer", c.opts.SiteURL)
	}
	if c.opts.SiteName != "" {
		httpReq.Header.Set("X-Title", c.opts.SiteName)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &transientError{err: fmt.Errorf("send request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &transientError{err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", &transientError{err: fmt.Errorf("api status %d: %s", resp.StatusCode, truncate(string(respBody), 200))}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("api status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var parsed Response
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("api error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", &transientError{err: fmt.Errorf("response has no choices")}
	}

	return parsed.Choices[0].Message.Content, nil
}

// transientError marks failures worth retrying.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// retryWithBackoff retries transient failures with exponential backoff.
func (c *Client) retryWithBackoff(ctx context.Context, fn func() error) error {
	var lastErr error

	delay := c.opts.RetryDelay
	for attempt := 0; attempt < c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if _, transient := err.(*transientError); !transient {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return fmt.Errorf("exhausted %d attempts: %w", c.opts.MaxRetries, lastErr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
