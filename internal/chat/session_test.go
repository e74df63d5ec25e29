package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/rocketlauncher/internal/assistant"
)

// fakeReplier is a Replier that records resets and replays
type fakeReplier struct {
	mu        sync.Mutex
	thread    int
	resets    int
	histories [][]assistant.Turn
	texts     []string
	reply     string
	err       error
	block     chan struct{}
}

func (f *fakeReplier) Reply(ctx context.Context, history []assistant.Turn, text string) (string, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.thread == 0 {
		f.thread = 1
	}
	f.histories = append(f.histories, history)
	f.texts = append(f.texts, text)
	return f.reply, f.err
}

func (f *fakeReplier) ResetThread() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.thread = 0
	f.resets++
}

func TestSession_AppendPreservesOrder(t *testing.T) {
	s := NewSession("s1")

	for i := 0; i < 25; i++ {
		s.AppendMessage(Message{Role: RoleUser, Content: fmt.Sprintf("m%d", i)})
	}

	msgs := s.Messages()
	require.Len(t, msgs, 25)
	assert.Equal(t, 25, s.Len())
	for i, m := range msgs {
		assert.Equal(t, fmt.Sprintf("m%d", i), m.Content)
		assert.False(t, m.CreatedAt.IsZero())
	}
}

func TestSession_AppendDoesNotDedupe(t *testing.T) {
	s := NewSession("s1")
	s.AppendMessage(Message{Role: RoleUser, Content: "same"})
	s.AppendMessage(Message{Role: RoleUser, Content: "same"})
	assert.Equal(t, 2, s.Len())
}

func TestSession_MessagesReturnsCopy(t *testing.T) {
	s := NewSession("s1")
	s.AppendMessage(Message{Role: RoleUser, Content: "original"})

	msgs := s.Messages()
	msgs[0].Content = "changed"

	assert.Equal(t, "original", s.Messages()[0].Content)
}

func TestSession_ClearEmptiesAndResetsThreads(t *testing.T) {
	s := NewSession("s1")
	a := &fakeReplier{thread: 1}
	b := &fakeReplier{thread: 1}
	s.adapterFor("a", func() Replier { return a })
	s.adapterFor("b", func() Replier { return b })
	s.SelectBackend(Backend{Kind: BackendAssistant, ID: "a"})
	s.AppendMessage(Message{Role: RoleUser, Content: "hello"})

	s.Clear()

	assert.Empty(t, s.Messages())
	assert.Equal(t, 0, a.thread)
	assert.Equal(t, 0, b.thread)
	assert.Equal(t, 1, a.resets)

	backend, ok := s.Backend()
	require.True(t, ok, "clear keeps the selected backend")
	assert.Equal(t, "a", backend.ID)
}

func TestSession_ClearOnEmptySession(t *testing.T) {
	s := NewSession("s1")
	s.Clear()
	assert.Empty(t, s.Messages())
}

func TestSession_SelectBackendReplaces(t *testing.T) {
	s := NewSession("s1")
	_, ok := s.Backend()
	assert.False(t, ok)

	s.SelectBackend(Backend{Kind: BackendWorkflow, ID: "w", FlowID: "flow123"})
	s.SelectBackend(Backend{Kind: BackendAssistant, ID: "a", AssistantID: "asst_1"})

	b, ok := s.Backend()
	require.True(t, ok)
	assert.Equal(t, BackendAssistant, b.Kind)
	assert.Equal(t, "a", b.ID)
}

func TestSession_AdapterReusedAcrossSelections(t *testing.T) {
	s := NewSession("s1")
	created := 0
	create := func() Replier {
		created++
		return &fakeReplier{}
	}

	first := s.adapterFor("a", create)
	s.SelectBackend(Backend{Kind: BackendWorkflow, ID: "w"})
	second := s.adapterFor("a", create)

	assert.Same(t, first, second)
	assert.Equal(t, 1, created)
}

func TestSession_BeginSendIsExclusive(t *testing.T) {
	s := NewSession("s1")
	require.True(t, s.beginSend())
	assert.True(t, s.Sending())
	assert.False(t, s.beginSend())

	s.endSend()
	assert.False(t, s.Sending())
	assert.True(t, s.beginSend())
}
