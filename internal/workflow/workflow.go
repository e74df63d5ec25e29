// ABOUTME: Workflow Caller for Flowise-style prediction endpoints
// ABOUTME: POSTs a question to /api/v1/prediction/{flowId} and normalizes the reply text

package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrWorkflowRequestFailed matches every transport or status failure from Predict
var ErrWorkflowRequestFailed = errors.New("workflow request failed")

// ErrMissingFlowID is returned when Predict is called without a flow id
var ErrMissingFlowID = errors.New("flow id is required")

// maxErrorBody bounds how much of a failed response is kept in the error
const maxErrorBody = 400

// Turn is one prior message sent as history
type Turn struct {
	Role    string
	Content string
}

// RequestError describes a failed prediction call. StatusCode is zero for
// network errors.
type RequestError struct {
	FlowID     string
	StatusCode int
	Body       string
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("workflow %s: status %d: %s", e.FlowID, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("workflow %s: %v", e.FlowID, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Is reports ErrWorkflowRequestFailed as a match
func (e *RequestError) Is(target error) bool {
	return target == ErrWorkflowRequestFailed
}

// Options configures a Caller
type Options struct {
	BaseURL string
	APIKey  string
	// SendHistory includes prior turns in each request
	SendHistory bool
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Caller is a stateless client for the prediction endpoint
type Caller struct {
	baseURL     string
	apiKey      string
	sendHistory bool
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewCaller creates a Caller
func NewCaller(opts Options) *Caller {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Caller{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		sendHistory: opts.SendHistory,
		httpClient:  httpClient,
		logger:      logger.With("component", "workflow"),
	}
}

type predictionRequest struct {
	Question string           `json:"question"`
	History  []predictionTurn `json:"history,omitempty"`
}

type predictionTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// flowiseRole maps chat roles onto the names Flowise uses in history
func flowiseRole(role string) string {
	switch role {
	case "user":
		return "userMessage"
	case "assistant":
		return "apiMessage"
	default:
		return role
	}
}

// Predict sends question to the flow and returns the normalized reply text.
// history is only sent when the caller was built with SendHistory.
func (c *Caller) Predict(ctx context.Context, flowID, question string, history []Turn) (string, error) {
	if strings.TrimSpace(flowID) == "" {
		return "", ErrMissingFlowID
	}

	body := predictionRequest{Question: question}
	if c.sendHistory {
		for _, t := range history {
			body.History = append(body.History, predictionTurn{Role: flowiseRole(t.Role), Content: t.Content})
		}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encoding prediction request: %w", err)
	}

	endpoint := c.baseURL + "/api/v1/prediction/" + url.PathEscape(flowID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", &RequestError{FlowID: flowID, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("prediction request failed", "flow_id", flowID, "error", err)
		return "", &RequestError{FlowID: flowID, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &RequestError{FlowID: flowID, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("prediction returned error status",
			"flow_id", flowID,
			"status", resp.StatusCode,
		)
		return "", &RequestError{FlowID: flowID, StatusCode: resp.StatusCode, Body: truncate(string(raw), maxErrorBody)}
	}

	text, err := ExtractText(raw)
	if err != nil {
		return "", &RequestError{FlowID: flowID, StatusCode: resp.StatusCode, Err: err}
	}

	c.logger.Debug("prediction completed", "flow_id", flowID, "duration", time.Since(start))
	return text, nil
}

// ExtractText normalizes a prediction response body. A bare JSON string is
// returned verbatim, an object with a string "text" field yields that field,
// and anything else is returned as compact JSON.
func ExtractText(body []byte) (string, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return "", fmt.Errorf("decoding prediction response: %w", err)
	}

	switch val := v.(type) {
	case string:
		return val, nil
	case map[string]any:
		if text, ok := val["text"].(string); ok {
			return text, nil
		}
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err != nil {
		return "", fmt.Errorf("compacting prediction response: %w", err)
	}
	return buf.String(), nil
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
