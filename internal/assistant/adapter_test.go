package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeThreadAPI records every call in order and serves scripted run statuses
type fakeThreadAPI struct {
	mu sync.Mutex

	calls    []string
	threads  int
	statuses []string // consumed by GetRun; the last one repeats
	messages []Message

	createErr error
	getRunErr error

	// runGate, when set, holds every GetRun until it is closed
	runGate chan struct{}
}

func (f *fakeThreadAPI) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeThreadAPI) CreateThread(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create_thread")
	if f.createErr != nil {
		return "", f.createErr
	}
	f.threads++
	return fmt.Sprintf("thread_%d", f.threads), nil
}

func (f *fakeThreadAPI) AddMessage(ctx context.Context, threadID, role, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("add %s %s: %s", threadID, role, content)
	return nil
}

func (f *fakeThreadAPI) CreateRun(ctx context.Context, threadID, assistantID string) (*Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("run %s %s", threadID, assistantID)
	return &Run{ID: "run_1", Status: RunStatusQueued}, nil
}

func (f *fakeThreadAPI) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	if f.runGate != nil {
		select {
		case <-f.runGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("get_run")
	if f.getRunErr != nil {
		return nil, f.getRunErr
	}
	status := RunStatusCompleted
	if len(f.statuses) > 0 {
		status = f.statuses[0]
		if len(f.statuses) > 1 {
			f.statuses = f.statuses[1:]
		}
	}
	return &Run{ID: runID, Status: status}, nil
}

func (f *fakeThreadAPI) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("list")
	return f.messages, nil
}

func (f *fakeThreadAPI) callsMatching(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			out = append(out, c)
		}
	}
	return out
}

func textMessage(role, text string) Message {
	return Message{Role: role, Content: []ContentPart{{Type: "text", Text: &TextPart{Value: text}}}}
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) ObserveRun(outcome string, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func fastOptions() Options {
	return Options{PollInterval: 5 * time.Millisecond, RunTimeout: time.Second}
}

func TestReply_ReplaysHistoryBeforeRun(t *testing.T) {
	api := &fakeThreadAPI{messages: []Message{textMessage("assistant", "D")}}
	adapter := NewAdapter(api, "asst_1", fastOptions())

	reply, err := adapter.Reply(context.Background(), []Turn{
		{Role: "user", Content: "A"},
		{Role: "assistant", Content: "B"},
	}, "C")
	require.NoError(t, err)
	assert.Equal(t, "D", reply)

	require.GreaterOrEqual(t, len(api.calls), 5)
	assert.Equal(t, []string{
		"create_thread",
		"add thread_1 user: A",
		"add thread_1 assistant: B",
		"add thread_1 user: C",
		"run thread_1 asst_1",
	}, api.calls[:5])
	assert.Equal(t, "thread_1", adapter.ThreadID())
}

func TestReply_ReusesThreadAndIgnoresHistory(t *testing.T) {
	api := &fakeThreadAPI{messages: []Message{textMessage("assistant", "ok")}}
	adapter := NewAdapter(api, "asst_1", fastOptions())
	ctx := context.Background()

	_, err := adapter.Reply(ctx, nil, "first")
	require.NoError(t, err)
	_, err = adapter.Reply(ctx, []Turn{{Role: "user", Content: "first"}}, "second")
	require.NoError(t, err)

	assert.Len(t, api.callsMatching("create_thread"), 1)
	assert.Equal(t, []string{"add thread_1 user: first", "add thread_1 user: second"}, api.callsMatching("add"))
}

func TestResetThread_StartsNewThread(t *testing.T) {
	api := &fakeThreadAPI{messages: []Message{textMessage("assistant", "ok")}}
	adapter := NewAdapter(api, "asst_1", fastOptions())
	ctx := context.Background()

	_, err := adapter.Reply(ctx, nil, "one")
	require.NoError(t, err)
	assert.Equal(t, "thread_1", adapter.ThreadID())

	adapter.ResetThread()
	assert.Empty(t, adapter.ThreadID())

	_, err = adapter.Reply(ctx, nil, "two")
	require.NoError(t, err)

	assert.Len(t, api.callsMatching("create_thread"), 2)
	assert.Equal(t, "thread_2", adapter.ThreadID())
	assert.Contains(t, api.calls, "add thread_2 user: two")
}

func TestReply_ThreadCreationFailed(t *testing.T) {
	api := &fakeThreadAPI{createErr: errors.New("boom")}
	adapter := NewAdapter(api, "asst_1", fastOptions())

	_, err := adapter.Reply(context.Background(), nil, "hi")
	assert.ErrorIs(t, err, ErrThreadCreationFailed)
	assert.Empty(t, adapter.ThreadID())
	assert.Empty(t, api.callsMatching("run"))
}

func TestReply_RunFailedReturnsImmediately(t *testing.T) {
	api := &fakeThreadAPI{statuses: []string{RunStatusFailed}}
	obs := &recordingObserver{}
	adapter := NewAdapter(api, "asst_1", Options{PollInterval: 5 * time.Millisecond, RunTimeout: time.Hour, Observer: obs})

	start := time.Now()
	_, err := adapter.Reply(context.Background(), nil, "hi")
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrRunDidNotComplete)
	var runErr *RunError
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, "failed", runErr.Reason)
	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, api.callsMatching("get_run"), 1)
	assert.Empty(t, api.callsMatching("list"))
	assert.Equal(t, []string{"failed"}, obs.outcomes)
}

func TestReply_RunExpired(t *testing.T) {
	api := &fakeThreadAPI{statuses: []string{RunStatusQueued, RunStatusInProgress, RunStatusExpired}}
	adapter := NewAdapter(api, "asst_1", fastOptions())

	_, err := adapter.Reply(context.Background(), nil, "hi")

	var runErr *RunError
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, "expired", runErr.Reason)
	assert.Len(t, api.callsMatching("get_run"), 3)
}

func TestReply_RunTimeout(t *testing.T) {
	api := &fakeThreadAPI{statuses: []string{RunStatusInProgress}}
	obs := &recordingObserver{}
	adapter := NewAdapter(api, "asst_1", Options{PollInterval: 5 * time.Millisecond, RunTimeout: 30 * time.Millisecond, Observer: obs})

	_, err := adapter.Reply(context.Background(), nil, "hi")
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrRunDidNotComplete)
	var runErr *RunError
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, ReasonTimeout, runErr.Reason)
	assert.GreaterOrEqual(t, len(api.callsMatching("get_run")), 2)
	assert.Equal(t, []string{ReasonTimeout}, obs.outcomes)
}

func TestReply_PollsUntilCompleted(t *testing.T) {
	api := &fakeThreadAPI{
		statuses: []string{RunStatusQueued, RunStatusInProgress, RunStatusCompleted},
		messages: []Message{textMessage("assistant", "done"), textMessage("user", "hi")},
	}
	adapter := NewAdapter(api, "asst_1", fastOptions())

	reply, err := adapter.Reply(context.Background(), nil, "hi")
	require.NoError(t, err)
	assert.Equal(t, "done", reply)
	assert.Len(t, api.callsMatching("get_run"), 3)
}

func TestReply_ContextCancelledWhilePolling(t *testing.T) {
	api := &fakeThreadAPI{statuses: []string{RunStatusInProgress}}
	adapter := NewAdapter(api, "asst_1", Options{PollInterval: time.Hour, RunTimeout: 2 * time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := adapter.Reply(ctx, nil, "hi")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReply_PollError(t *testing.T) {
	api := &fakeThreadAPI{getRunErr: &APIError{StatusCode: 500}}
	adapter := NewAdapter(api, "asst_1", fastOptions())

	_, err := adapter.Reply(context.Background(), nil, "hi")
	assert.ErrorIs(t, err, ErrAssistantRequestFailed)
	assert.NotErrorIs(t, err, ErrRunDidNotComplete)
}

func TestReply_NoTextResponse(t *testing.T) {
	tests := []struct {
		name     string
		messages []Message
	}{
		{"no messages", nil},
		{"only user messages", []Message{textMessage("user", "hi")}},
		{"newest assistant message has no text", []Message{
			{Role: "assistant", Content: []ContentPart{{Type: "image_file"}}},
			textMessage("assistant", "older"),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeThreadAPI{messages: tt.messages}
			adapter := NewAdapter(api, "asst_1", fastOptions())

			_, err := adapter.Reply(context.Background(), nil, "hi")
			assert.ErrorIs(t, err, ErrNoTextResponse)
		})
	}
}

func TestReply_SkipsUserMessagesNewerThanReply(t *testing.T) {
	api := &fakeThreadAPI{messages: []Message{
		textMessage("user", "hi"),
		textMessage("assistant", "newest reply"),
		textMessage("assistant", "older reply"),
	}}
	adapter := NewAdapter(api, "asst_1", fastOptions())

	reply, err := adapter.Reply(context.Background(), nil, "hi")
	require.NoError(t, err)
	assert.Equal(t, "newest reply", reply)
}

func TestReply_MissingAssistantID(t *testing.T) {
	api := &fakeThreadAPI{}
	adapter := NewAdapter(api, "", fastOptions())

	_, err := adapter.Reply(context.Background(), nil, "hi")
	assert.ErrorIs(t, err, ErrMissingAssistantID)
	assert.Empty(t, api.calls)
}

func TestNewAdapter_Defaults(t *testing.T) {
	adapter := NewAdapter(&fakeThreadAPI{}, "asst_1", Options{})
	assert.Equal(t, time.Second, adapter.pollInterval)
	assert.Equal(t, 60*time.Second, adapter.runTimeout)
}

func TestResetThread_DoesNotWaitForRunInFlight(t *testing.T) {
	api := &fakeThreadAPI{
		messages: []Message{textMessage("assistant", "late")},
		runGate:  make(chan struct{}),
	}
	adapter := NewAdapter(api, "asst_1", fastOptions())

	type result struct {
		reply string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		reply, err := adapter.Reply(context.Background(), nil, "hi")
		done <- result{reply, err}
	}()
	require.Eventually(t, func() bool {
		return len(api.callsMatching("run ")) == 1
	}, time.Second, 5*time.Millisecond)

	reset := make(chan struct{})
	go func() {
		adapter.ResetThread()
		close(reset)
	}()
	select {
	case <-reset:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("ResetThread blocked on a reply in flight")
	}
	assert.Empty(t, adapter.ThreadID())

	close(api.runGate)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "late", res.reply)
	assert.Empty(t, adapter.ThreadID(), "reset wins over the finished reply")

	_, err := adapter.Reply(context.Background(), nil, "again")
	require.NoError(t, err)
	assert.Equal(t, "thread_2", adapter.ThreadID())
}

func TestAdoptThread_IgnoredAfterReset(t *testing.T) {
	adapter := NewAdapter(&fakeThreadAPI{}, "asst_1", fastOptions())

	adapter.ResetThread()
	adapter.adoptThread("thread_stale", 0)
	assert.Empty(t, adapter.ThreadID())

	adapter.adoptThread("thread_fresh", 1)
	assert.Equal(t, "thread_fresh", adapter.ThreadID())
}
