package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider generates text from a chat transcript.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// HTTPError is returned when a provider answers with a non-2xx status.
type HTTPError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// DecodeError wraps a response body that could not be parsed.
type DecodeError struct {
	Provider string
	Err      error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("%s: malformed response: %v", e.Provider, e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// postJSON sends body as JSON and returns the response when the status is 2xx.
// The caller owns resp.Body.
func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, body any) (*http.Response, error) {
	if client == nil {
		return nil, fmt.Errorf("%s: http client is nil", provider)
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return nil, &HTTPError{Provider: provider, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return resp, nil
}

// errStreamTruncated reports a stream that closed before its terminator.
var errStreamTruncated = errors.New("stream ended before completion")

// streamingClient copies c without the overall timeout; ctx bounds the stream.
func streamingClient(provider string, c *http.Client) (*http.Client, error) {
	if c == nil {
		return nil, fmt.Errorf("%s: http client is nil", provider)
	}
	cp := *c
	cp.Timeout = 0
	return &cp, nil
}
