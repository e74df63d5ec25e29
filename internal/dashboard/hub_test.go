package dashboard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/rocketlauncher/internal/assistant"
	"github.com/2389/rocketlauncher/internal/chat"
)

type fakeGauge struct {
	mu   sync.Mutex
	last int
}

func (g *fakeGauge) SetActiveSessions(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = n
}

func (g *fakeGauge) value() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

func TestHub_GetOrCreateReturnsSameEntry(t *testing.T) {
	gauge := &fakeGauge{}
	hub := newSessionHub(hubOptions{TTL: time.Hour, Gauge: gauge})
	defer hub.Close()

	a := hub.getOrCreate("s1")
	b := hub.getOrCreate("s1")
	c := hub.getOrCreate("s2")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, "s1", a.session.ID())
	assert.Equal(t, 2, hub.count())
	assert.Equal(t, 2, gauge.value())
}

func TestHub_CleanupEvictsIdleSessions(t *testing.T) {
	gauge := &fakeGauge{}
	hub := newSessionHub(hubOptions{TTL: 30 * time.Minute, Gauge: gauge})
	defer hub.Close()

	hub.getOrCreate("s1")
	hub.getOrCreate("s2")

	assert.Equal(t, 0, hub.cleanupStaleSessions(), "fresh sessions stay")

	hub.now = func() time.Time { return time.Now().Add(time.Hour) }
	assert.Equal(t, 2, hub.cleanupStaleSessions())
	assert.Equal(t, 0, hub.count())
	assert.Equal(t, 0, gauge.value())

	_, ok := hub.get("s1")
	assert.False(t, ok)
}

func TestHub_CleanupKeepsSendingSessions(t *testing.T) {
	hub := newSessionHub(hubOptions{TTL: time.Minute})
	defer hub.Close()

	workflows := &fakeWorkflows{reply: "ok", block: make(chan struct{})}
	router := chat.NewRouter(chat.RouterOptions{Workflows: workflows, Store: seededCatalog(t)})

	entry := hub.getOrCreate("s1")
	_, err := router.Select(context.Background(), entry.session, "workflow", "math")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = router.Send(context.Background(), entry.session, "slow question")
	}()
	require.Eventually(t, entry.session.Sending, time.Second, 5*time.Millisecond)

	hub.now = func() time.Time { return time.Now().Add(time.Hour) }
	assert.Equal(t, 0, hub.cleanupStaleSessions())

	close(workflows.block)
	<-done
	assert.Equal(t, 1, hub.cleanupStaleSessions())
}

func TestHub_ZeroTTLNeverEvicts(t *testing.T) {
	hub := newSessionHub(hubOptions{})
	defer hub.Close()

	hub.getOrCreate("s1")
	hub.now = func() time.Time { return time.Now().Add(24 * time.Hour) }
	assert.Equal(t, 0, hub.cleanupStaleSessions())
}

func TestHub_LimiterPerSession(t *testing.T) {
	hub := newSessionHub(hubOptions{Rate: 0.001, Burst: 1})
	defer hub.Close()

	a := hub.getOrCreate("a")
	b := hub.getOrCreate("b")

	assert.True(t, a.limiter.Allow())
	assert.False(t, a.limiter.Allow())
	assert.True(t, b.limiter.Allow(), "sessions do not share a limiter")
}

func TestHub_UnlimitedWhenRateZero(t *testing.T) {
	hub := newSessionHub(hubOptions{})
	defer hub.Close()

	e := hub.getOrCreate("s1")
	for i := 0; i < 100; i++ {
		require.True(t, e.limiter.Allow())
	}
}

func TestSessionEntry_NoticeIsShownOnce(t *testing.T) {
	e := &sessionEntry{}
	e.setNotice("hello")

	assert.Equal(t, "hello", e.takeNotice())
	assert.Empty(t, e.takeNotice())
}

func TestHub_CloseDropsSessions(t *testing.T) {
	gauge := &fakeGauge{}
	hub := newSessionHub(hubOptions{Gauge: gauge})
	hub.getOrCreate("s1")

	hub.Close()
	assert.Equal(t, 0, hub.count())
	assert.Equal(t, 0, gauge.value())
}

// slowRunAPI keeps every assistant run in progress until release is closed
type slowRunAPI struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (a *slowRunAPI) CreateThread(ctx context.Context) (string, error) { return "thread_1", nil }

func (a *slowRunAPI) AddMessage(ctx context.Context, threadID, role, content string) error {
	return nil
}

func (a *slowRunAPI) CreateRun(ctx context.Context, threadID, assistantID string) (*assistant.Run, error) {
	return &assistant.Run{ID: "run_1", Status: assistant.RunStatusQueued}, nil
}

func (a *slowRunAPI) GetRun(ctx context.Context, threadID, runID string) (*assistant.Run, error) {
	a.once.Do(func() { close(a.started) })
	select {
	case <-a.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &assistant.Run{ID: runID, Status: assistant.RunStatusCompleted}, nil
}

func (a *slowRunAPI) ListMessages(ctx context.Context, threadID string) ([]assistant.Message, error) {
	return []assistant.Message{{
		Role:    "assistant",
		Content: []assistant.ContentPart{{Type: "text", Text: &assistant.TextPart{Value: "late"}}},
	}}, nil
}

func TestHub_StaysResponsiveWhileSessionClearsDuringRun(t *testing.T) {
	hub := newSessionHub(hubOptions{TTL: time.Minute})
	defer hub.Close()

	api := &slowRunAPI{started: make(chan struct{}), release: make(chan struct{})}
	defer func() {
		select {
		case <-api.release:
		default:
			close(api.release)
		}
	}()
	router := chat.NewRouter(chat.RouterOptions{
		Assistants: func(assistantID string) chat.Replier {
			return assistant.NewAdapter(api, assistantID, assistant.Options{
				PollInterval: time.Millisecond,
				RunTimeout:   5 * time.Second,
			})
		},
		Store: seededCatalog(t),
	})

	busy := hub.getOrCreate("busy")
	hub.getOrCreate("idle")
	ctx := context.Background()
	_, err := router.Select(ctx, busy.session, "assistant", "ada")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := router.Send(ctx, busy.session, "question")
		done <- err
	}()
	<-api.started

	returned := make(chan struct{})
	go func() {
		defer close(returned)
		assert.NoError(t, router.Clear(ctx, busy.session))
		hub.now = func() time.Time { return time.Now().Add(time.Hour) }
		assert.Equal(t, 1, hub.cleanupStaleSessions(), "only the idle session is evicted")
		hub.getOrCreate("newcomer")
		assert.Empty(t, busy.session.Messages())
	}()
	select {
	case <-returned:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("hub blocked on a session with a run in flight")
	}

	close(api.release)
	assert.ErrorIs(t, <-done, chat.ErrConversationCleared)
	_, ok := hub.get("busy")
	assert.True(t, ok)
}
