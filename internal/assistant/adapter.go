// ABOUTME: Assistant Adapter owning one external conversation thread
// ABOUTME: Lazily creates the thread, replays history, starts a run and polls it to a terminal state

package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrThreadCreationFailed is returned when a new thread cannot be created
	ErrThreadCreationFailed = errors.New("thread creation failed")

	// ErrRunDidNotComplete matches every *RunError
	ErrRunDidNotComplete = errors.New("run did not complete")

	// ErrNoTextResponse is returned when a completed run left no assistant text
	ErrNoTextResponse = errors.New("no text response from assistant")

	// ErrAssistantRequestFailed wraps transport and status failures talking to the API
	ErrAssistantRequestFailed = errors.New("assistant request failed")

	// ErrMissingAssistantID is returned when an adapter has no assistant identity
	ErrMissingAssistantID = errors.New("assistant id is not set")
)

// Run statuses reported by the API
const (
	RunStatusQueued     = "queued"
	RunStatusInProgress = "in_progress"
	RunStatusCompleted  = "completed"
	RunStatusFailed     = "failed"
	RunStatusExpired    = "expired"
	RunStatusCancelled  = "cancelled"
	RunStatusIncomplete = "incomplete"

	// ReasonTimeout is the RunError reason when polling gives up
	ReasonTimeout = "timeout"
)

// RunError reports a run that ended without completing. Reason is the
// terminal status or "timeout".
type RunError struct {
	RunID  string
	Reason string
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s did not complete: %s", e.RunID, e.Reason)
}

// Is reports ErrRunDidNotComplete as a match
func (e *RunError) Is(target error) bool {
	return target == ErrRunDidNotComplete
}

// Run is the subset of a run the adapter depends on
type Run struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Message is a thread message as returned by ListMessages
type Message struct {
	ID      string        `json:"id"`
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart is one piece of a thread message
type ContentPart struct {
	Type string    `json:"type"`
	Text *TextPart `json:"text,omitempty"`
}

// TextPart holds plain text content
type TextPart struct {
	Value string `json:"value"`
}

// Text returns the first text part of the message
func (m Message) Text() (string, bool) {
	for _, part := range m.Content {
		if part.Type == "text" && part.Text != nil {
			return part.Text.Value, true
		}
	}
	return "", false
}

// ThreadAPI is the external thread service the adapter drives
type ThreadAPI interface {
	CreateThread(ctx context.Context) (string, error)
	AddMessage(ctx context.Context, threadID, role, content string) error
	CreateRun(ctx context.Context, threadID, assistantID string) (*Run, error)
	GetRun(ctx context.Context, threadID, runID string) (*Run, error)
	// ListMessages returns messages newest first
	ListMessages(ctx context.Context, threadID string) ([]Message, error)
}

// Turn is one prior conversation message to replay into a new thread
type Turn struct {
	Role    string
	Content string
}

// RunObserver receives the outcome and duration of each polled run
type RunObserver interface {
	ObserveRun(outcome string, d time.Duration)
}

// Options configures an Adapter
type Options struct {
	PollInterval time.Duration
	RunTimeout   time.Duration
	Observer     RunObserver
	Logger       *slog.Logger
}

const (
	defaultPollInterval = time.Second
	defaultRunTimeout   = 60 * time.Second
)

// Adapter wraps a single external thread for one assistant. Callers
// serialize replies; ResetThread may run at any time, and a reset that lands
// during a reply wins: the reply finishes on its thread, which is then
// forgotten.
type Adapter struct {
	api          ThreadAPI
	assistantID  string
	pollInterval time.Duration
	runTimeout   time.Duration
	observer     RunObserver
	logger       *slog.Logger

	mu         sync.Mutex
	threadID   string
	generation uint64
}

// NewAdapter creates an adapter for assistantID
func NewAdapter(api ThreadAPI, assistantID string, opts Options) *Adapter {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = defaultRunTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		api:          api,
		assistantID:  assistantID,
		pollInterval: opts.PollInterval,
		runTimeout:   opts.RunTimeout,
		observer:     opts.Observer,
		logger:       logger.With("component", "assistant", "assistant_id", assistantID),
	}
}

// ThreadID returns the current thread handle, empty before the first reply
// and after ResetThread.
func (a *Adapter) ThreadID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.threadID
}

// ResetThread drops the thread handle so the next reply starts a new thread
func (a *Adapter) ResetThread() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.threadID != "" {
		a.logger.Debug("thread reset", "thread_id", a.threadID)
	}
	a.threadID = ""
	a.generation++
}

// Reply sends text to the assistant and returns its answer. When no thread
// exists yet, one is created and history is replayed into it in order before
// text is added; with an existing thread history is ignored. No lock is held
// across API calls.
func (a *Adapter) Reply(ctx context.Context, history []Turn, text string) (string, error) {
	if a.assistantID == "" {
		return "", ErrMissingAssistantID
	}

	a.mu.Lock()
	threadID, generation := a.threadID, a.generation
	a.mu.Unlock()

	if threadID == "" {
		var err error
		threadID, err = a.openThread(ctx, history)
		if err != nil {
			return "", err
		}
		a.adoptThread(threadID, generation)
	}

	if err := a.api.AddMessage(ctx, threadID, "user", text); err != nil {
		return "", fmt.Errorf("adding message: %w", err)
	}

	run, err := a.api.CreateRun(ctx, threadID, a.assistantID)
	if err != nil {
		return "", fmt.Errorf("creating run: %w", err)
	}
	a.logger.Debug("run created", "thread_id", threadID, "run_id", run.ID)

	if err := a.waitForRun(ctx, threadID, run); err != nil {
		return "", err
	}

	messages, err := a.api.ListMessages(ctx, threadID)
	if err != nil {
		return "", fmt.Errorf("listing messages: %w", err)
	}
	for _, m := range messages {
		if m.Role != "assistant" {
			continue
		}
		if reply, ok := m.Text(); ok {
			return reply, nil
		}
		break
	}
	return "", ErrNoTextResponse
}

// adoptThread stores threadID unless the adapter was reset since generation
func (a *Adapter) adoptThread(threadID string, generation uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.generation != generation {
		a.logger.Debug("thread discarded after reset", "thread_id", threadID)
		return
	}
	a.threadID = threadID
}

// openThread creates a thread and replays history into it. A thread whose
// replay fails is abandoned so the next reply starts over.
func (a *Adapter) openThread(ctx context.Context, history []Turn) (string, error) {
	threadID, err := a.api.CreateThread(ctx)
	if err != nil {
		a.logger.Warn("thread creation failed", "error", err)
		return "", fmt.Errorf("%w: %w", ErrThreadCreationFailed, err)
	}

	for _, turn := range history {
		if err := a.api.AddMessage(ctx, threadID, turn.Role, turn.Content); err != nil {
			return "", fmt.Errorf("replaying history: %w", err)
		}
	}

	a.logger.Info("thread created", "thread_id", threadID, "replayed", len(history))
	return threadID, nil
}

// waitForRun polls the run until it reaches a terminal status or the run
// timeout elapses. Status is checked before the deadline, so a run that is
// already terminal is never reported as timed out.
func (a *Adapter) waitForRun(ctx context.Context, threadID string, run *Run) error {
	start := time.Now()
	deadline := start.Add(a.runTimeout)

	for {
		current, err := a.api.GetRun(ctx, threadID, run.ID)
		if err != nil {
			a.observe("error", start)
			return fmt.Errorf("polling run: %w", err)
		}

		switch current.Status {
		case RunStatusCompleted:
			a.observe(current.Status, start)
			return nil
		case RunStatusFailed, RunStatusExpired, RunStatusCancelled, RunStatusIncomplete:
			a.observe(current.Status, start)
			a.logger.Warn("run ended without completing", "run_id", run.ID, "status", current.Status)
			return &RunError{RunID: run.ID, Reason: current.Status}
		}

		if !time.Now().Before(deadline) {
			a.observe(ReasonTimeout, start)
			a.logger.Warn("run timed out", "run_id", run.ID, "status", current.Status, "timeout", a.runTimeout)
			return &RunError{RunID: run.ID, Reason: ReasonTimeout}
		}

		timer := time.NewTimer(a.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.observe("cancelled", start)
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (a *Adapter) observe(outcome string, start time.Time) {
	if a.observer != nil {
		a.observer.ObserveRun(outcome, time.Since(start))
	}
}
