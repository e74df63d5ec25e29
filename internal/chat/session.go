// ABOUTME: Session State Holder: ordered messages, the active backend and per-assistant adapters
// ABOUTME: One Session per browser session; all methods are safe for concurrent use

package chat

import (
	"context"
	"sync"
	"time"

	"github.com/2389/rocketlauncher/internal/assistant"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one transcript entry
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Name      string    `json:"name,omitempty"`
	Avatar    string    `json:"avatar,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// BackendKind says which downstream caller a backend uses
type BackendKind string

const (
	BackendWorkflow  BackendKind = "workflow"
	BackendAssistant BackendKind = "assistant"
)

// Backend is the active target for the next message
type Backend struct {
	Kind BackendKind `json:"kind"`
	// ID is the catalog document id
	ID    string `json:"id"`
	Title string `json:"title"`

	// FlowID is set for workflows
	FlowID string `json:"flow_id,omitempty"`

	// AssistantID, Name and Avatar are set for assistants
	AssistantID string `json:"assistant_id,omitempty"`
	Name        string `json:"name,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}

// Replier is an assistant conversation with a resettable thread
type Replier interface {
	Reply(ctx context.Context, history []assistant.Turn, text string) (string, error)
	ResetThread()
}

// Session holds one conversation
type Session struct {
	id string

	mu       sync.Mutex
	messages []Message
	backend  *Backend
	adapters map[string]Replier // keyed by assistant catalog id
	sending  bool
	lastUsed time.Time

	// epoch changes whenever the transcript is discarded or replaced; a
	// reply started under an older epoch is dropped
	epoch uint64
}

// NewSession creates an empty session
func NewSession(id string) *Session {
	return &Session{
		id:       id,
		adapters: make(map[string]Replier),
		lastUsed: time.Now(),
	}
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// AppendMessage adds msg to the end of the transcript
func (s *Session) AppendMessage(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.messages = append(s.messages, msg)
	s.lastUsed = time.Now()
}

// Messages returns a copy of the transcript in insertion order
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Clear empties the transcript and drops every assistant thread handle.
// The selected backend is kept.
func (s *Session) Clear() {
	s.mu.Lock()
	s.messages = nil
	s.epoch++
	s.lastUsed = time.Now()
	adapters := make([]Replier, 0, len(s.adapters))
	for _, a := range s.adapters {
		adapters = append(adapters, a)
	}
	s.mu.Unlock()

	// Adapters may be mid-reply; reset them without holding the session lock.
	for _, a := range adapters {
		a.ResetThread()
	}
}

// SelectBackend makes b the active backend. Adapters of previously selected
// assistants are kept so their threads are reused on reselection.
func (s *Session) SelectBackend(b Backend) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backend = &b
	s.lastUsed = time.Now()
}

// Backend returns the active backend
func (s *Session) Backend() (Backend, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backend == nil {
		return Backend{}, false
	}
	return *s.backend, true
}

// LastUsed returns when the session was last touched
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Touch marks the session as used now
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = time.Now()
}

// Sending reports whether a send is in flight
func (s *Session) Sending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending
}

// replaceMessages swaps in a loaded transcript
func (s *Session) replaceMessages(msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = msgs
	s.epoch++
}

// recordTurn appends msg and returns the transcript before it along with
// the epoch the turn belongs to.
func (s *Session) recordTurn(msg Message) ([]Message, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := make([]Message, len(s.messages))
	copy(history, s.messages)
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.messages = append(s.messages, msg)
	s.lastUsed = time.Now()
	return history, s.epoch
}

// appendIfCurrent appends msg only when the transcript still belongs to epoch
func (s *Session) appendIfCurrent(msg Message, epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return false
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.messages = append(s.messages, msg)
	s.lastUsed = time.Now()
	return true
}

// beginSend claims the session for one send. It returns false when a send
// is already in flight.
func (s *Session) beginSend() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sending {
		return false
	}
	s.sending = true
	return true
}

func (s *Session) endSend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sending = false
	s.lastUsed = time.Now()
}

// adapterFor returns the adapter for an assistant, creating it on first use
func (s *Session) adapterFor(id string, create func() Replier) Replier {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.adapters[id]; ok {
		return a
	}
	a := create()
	s.adapters[id] = a
	return a
}
