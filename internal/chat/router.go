// ABOUTME: Router dispatches a user message to the active workflow or assistant
// ABOUTME: Records the user turn first, then calls exactly one backend and appends its reply

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/rocketlauncher/internal/assistant"
	"github.com/2389/rocketlauncher/internal/store"
	"github.com/2389/rocketlauncher/internal/workflow"
)

// WorkflowCaller is what the router needs to run a workflow
type WorkflowCaller interface {
	Predict(ctx context.Context, flowID, question string, history []workflow.Turn) (string, error)
}

// AdapterFactory builds a Replier for an external assistant id
type AdapterFactory func(assistantID string) Replier

// Recorder receives send and failure counts
type Recorder interface {
	RecordSend(backend string)
	RecordFailure(kind string)
}

// RouterOptions configures a Router
type RouterOptions struct {
	Workflows  WorkflowCaller
	Assistants AdapterFactory
	// Store is the catalog used by Select and, with PersistTranscripts,
	// where workflow transcripts are kept
	Store              store.Store
	PersistTranscripts bool
	Metrics            Recorder
	Logger             *slog.Logger
}

// Router routes messages for any number of sessions. It holds no per-session state.
type Router struct {
	workflows  WorkflowCaller
	assistants AdapterFactory
	store      store.Store
	persist    bool
	metrics    Recorder
	logger     *slog.Logger
}

// NewRouter creates a Router
func NewRouter(opts RouterOptions) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		workflows:  opts.Workflows,
		assistants: opts.Assistants,
		store:      opts.Store,
		persist:    opts.PersistTranscripts && opts.Store != nil,
		metrics:    opts.Metrics,
		logger:     logger.With("component", "chat"),
	}
}

// Send appends text as a user message and asks the active backend for a reply.
// The user turn is recorded before any backend call, so it stays in the
// transcript even when the call fails; on failure no reply is appended.
// A session handles one send at a time. When the session is cleared or its
// transcript replaced while the backend call runs, the reply is discarded
// and ErrConversationCleared is returned.
func (r *Router) Send(ctx context.Context, s *Session, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}
	if !s.beginSend() {
		r.recordFailure(ErrSendInProgress)
		return Message{}, ErrSendInProgress
	}
	defer s.endSend()

	user := Message{Role: RoleUser, Content: text, CreatedAt: time.Now().UTC()}
	history, epoch := s.recordTurn(user)

	backend, ok := s.Backend()
	if !ok {
		r.recordFailure(ErrNoBackendSelected)
		return Message{}, ErrNoBackendSelected
	}

	logger := r.logger.With("session_id", s.ID(), "backend", backend.Kind, "backend_id", backend.ID)
	r.persistTurn(ctx, backend, user)

	var reply Message
	var err error
	switch backend.Kind {
	case BackendWorkflow:
		reply, err = r.sendWorkflow(ctx, backend, history, text)
	case BackendAssistant:
		reply, err = r.sendAssistant(ctx, s, backend, history, text)
	default:
		err = fmt.Errorf("%w: kind %q", ErrUnknownBackend, backend.Kind)
	}
	if r.metrics != nil {
		r.metrics.RecordSend(string(backend.Kind))
	}
	if err != nil {
		logger.Warn("send failed", "kind", ErrorKind(err), "error", err)
		r.recordFailure(err)
		return Message{}, err
	}

	reply.CreatedAt = time.Now().UTC()
	if !s.appendIfCurrent(reply, epoch) {
		logger.Info("reply dropped, conversation was cleared during the send")
		r.recordFailure(ErrConversationCleared)
		return Message{}, ErrConversationCleared
	}
	r.persistTurn(ctx, backend, reply)
	logger.Debug("reply appended", "length", len(reply.Content))
	return reply, nil
}

func (r *Router) sendWorkflow(ctx context.Context, b Backend, history []Message, text string) (Message, error) {
	if r.workflows == nil {
		return Message{}, errors.New("no workflow caller configured")
	}
	turns := make([]workflow.Turn, 0, len(history))
	for _, m := range history {
		turns = append(turns, workflow.Turn{Role: m.Role, Content: m.Content})
	}

	answer, err := r.workflows.Predict(ctx, b.FlowID, text, turns)
	if err != nil {
		return Message{}, err
	}
	return Message{Role: RoleAssistant, Content: answer}, nil
}

func (r *Router) sendAssistant(ctx context.Context, s *Session, b Backend, history []Message, text string) (Message, error) {
	if r.assistants == nil {
		return Message{}, errors.New("no assistant factory configured")
	}
	adapter := s.adapterFor(b.ID, func() Replier {
		return r.assistants(b.AssistantID)
	})

	turns := make([]assistant.Turn, 0, len(history))
	for _, m := range history {
		turns = append(turns, assistant.Turn{Role: m.Role, Content: m.Content})
	}

	answer, err := adapter.Reply(ctx, turns, text)
	if err != nil {
		return Message{}, err
	}
	return Message{Role: RoleAssistant, Content: answer, Name: b.Name, Avatar: b.Avatar}, nil
}

// Select resolves a catalog entry and makes it the session's backend.
// Webhooks are only logged and leave the backend unchanged; nil is returned
// for them. With transcript persistence, selecting a workflow loads its
// stored transcript into the session.
func (r *Router) Select(ctx context.Context, s *Session, kind, id string) (*Backend, error) {
	if r.store == nil {
		return nil, errors.New("no catalog store configured")
	}

	switch kind {
	case string(BackendWorkflow):
		wf, err := store.GetWorkflow(ctx, r.store, id)
		if err != nil {
			return nil, r.lookupError(kind, id, err)
		}
		b := Backend{Kind: BackendWorkflow, ID: wf.ID, Title: wf.Title, FlowID: wf.ChatflowID}
		if r.persist {
			if err := r.loadTranscript(ctx, s, wf.ChatflowID); err != nil {
				return nil, err
			}
		}
		s.SelectBackend(b)
		r.logger.Info("workflow selected", "session_id", s.ID(), "workflow_id", wf.ID, "flow_id", wf.ChatflowID)
		return &b, nil

	case string(BackendAssistant):
		a, err := store.GetAssistant(ctx, r.store, id)
		if err != nil {
			return nil, r.lookupError(kind, id, err)
		}
		b := Backend{
			Kind:        BackendAssistant,
			ID:          a.ID,
			Title:       a.Name,
			AssistantID: a.AssistantID,
			Name:        a.Name,
			Avatar:      a.Avatar,
		}
		s.SelectBackend(b)
		r.logger.Info("assistant selected", "session_id", s.ID(), "assistant_id", a.ID)
		return &b, nil

	case "webhook":
		wh, err := store.GetWebhook(ctx, r.store, id)
		if err != nil {
			return nil, r.lookupError(kind, id, err)
		}
		r.logger.Info("webhook selected", "session_id", s.ID(), "webhook_id", wh.ID, "label", wh.Label, "url", wh.URL)
		return nil, nil
	}

	return nil, fmt.Errorf("%w: kind %q", ErrUnknownBackend, kind)
}

func (r *Router) lookupError(kind, id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s %q", ErrUnknownBackend, kind, id)
	}
	return fmt.Errorf("loading %s %q: %w", kind, id, err)
}

// Clear empties the session and, with transcript persistence, deletes the
// active workflow's stored transcript.
func (r *Router) Clear(ctx context.Context, s *Session) error {
	s.Clear()

	if !r.persist {
		return nil
	}
	b, ok := s.Backend()
	if !ok || b.Kind != BackendWorkflow {
		return nil
	}
	if err := store.DeleteChatMessages(ctx, r.store, b.FlowID); err != nil {
		return fmt.Errorf("deleting transcript: %w", err)
	}
	r.logger.Info("transcript deleted", "session_id", s.ID(), "flow_id", b.FlowID)
	return nil
}

func (r *Router) loadTranscript(ctx context.Context, s *Session, flowID string) error {
	stored, err := store.ListChatMessages(ctx, r.store, flowID)
	if err != nil {
		return fmt.Errorf("loading transcript: %w", err)
	}
	msgs := make([]Message, 0, len(stored))
	for _, m := range stored {
		msgs = append(msgs, Message{
			Role:      m.Role,
			Content:   m.Content,
			Name:      m.Name,
			Avatar:    m.Avatar,
			CreatedAt: m.CreatedAt,
		})
	}
	s.replaceMessages(msgs)
	return nil
}

// persistTurn writes a workflow turn to its transcript. Failures are logged;
// the in-memory transcript stays authoritative for the session.
func (r *Router) persistTurn(ctx context.Context, b Backend, m Message) {
	if !r.persist || b.Kind != BackendWorkflow {
		return
	}
	err := store.AppendChatMessage(ctx, r.store, b.FlowID, store.ChatMessage{
		Role:      m.Role,
		Content:   m.Content,
		Name:      m.Name,
		Avatar:    m.Avatar,
		CreatedAt: m.CreatedAt,
	})
	if err != nil {
		r.logger.Warn("failed to persist chat message", "flow_id", b.FlowID, "error", err)
	}
}

func (r *Router) recordFailure(err error) {
	if r.metrics != nil {
		r.metrics.RecordFailure(ErrorKind(err))
	}
}
