// ABOUTME: REST client for the thread/run based Assistants API (v2)
// ABOUTME: Implements ThreadAPI with bearer auth and the assistants beta header

package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxErrorBody bounds how much of a failed response is kept in the error
const maxErrorBody = 400

// APIError is a non-2xx response from the Assistants API
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("assistants api %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Is reports ErrAssistantRequestFailed as a match
func (e *APIError) Is(target error) bool {
	return target == ErrAssistantRequestFailed
}

// ClientOptions configures a Client
type ClientOptions struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to the Assistants API over HTTP
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates an Assistants API client
func NewClient(opts ClientOptions) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		httpClient: httpClient,
	}
}

type threadResponse struct {
	ID string `json:"id"`
}

type messageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type runRequest struct {
	AssistantID string `json:"assistant_id"`
}

type messageList struct {
	Data []Message `json:"data"`
}

// CreateThread creates an empty thread and returns its id
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	var out threadResponse
	if err := c.do(ctx, http.MethodPost, "/threads", struct{}{}, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: thread response has no id", ErrAssistantRequestFailed)
	}
	return out.ID, nil
}

// AddMessage appends a message to a thread
func (c *Client) AddMessage(ctx context.Context, threadID, role, content string) error {
	path := "/threads/" + url.PathEscape(threadID) + "/messages"
	return c.do(ctx, http.MethodPost, path, messageRequest{Role: role, Content: content}, nil)
}

// CreateRun starts a run of assistantID against a thread
func (c *Client) CreateRun(ctx context.Context, threadID, assistantID string) (*Run, error) {
	path := "/threads/" + url.PathEscape(threadID) + "/runs"
	var run Run
	if err := c.do(ctx, http.MethodPost, path, runRequest{AssistantID: assistantID}, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRun retrieves the current state of a run
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	path := "/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(runID)
	var run Run
	if err := c.do(ctx, http.MethodGet, path, nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListMessages returns a thread's messages, newest first
func (c *Client) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	path := "/threads/" + url.PathEscape(threadID) + "/messages?order=desc"
	var out messageList
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAssistantRequestFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAssistantRequestFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %w", ErrAssistantRequestFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: truncate(string(raw), maxErrorBody)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decoding response: %s", ErrAssistantRequestFailed, truncate(string(raw), maxErrorBody))
	}
	return nil
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
