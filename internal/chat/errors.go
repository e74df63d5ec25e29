// ABOUTME: Error taxonomy for chat sends and backend selection
// ABOUTME: Maps every failure onto a stable kind string for logs, metrics and the JSON API

package chat

import (
	"context"
	"errors"

	"github.com/2389/rocketlauncher/internal/assistant"
	"github.com/2389/rocketlauncher/internal/workflow"
)

var (
	// ErrNoBackendSelected is returned when neither a workflow nor an assistant is active
	ErrNoBackendSelected = errors.New("no workflow or assistant selected")

	// ErrEmptyMessage is returned for blank input; nothing is appended
	ErrEmptyMessage = errors.New("message is empty")

	// ErrSendInProgress is returned when a session already has a send in flight
	ErrSendInProgress = errors.New("a message is already being sent")

	// ErrRateLimited is returned when a session sends faster than allowed
	ErrRateLimited = errors.New("too many messages, slow down")

	// ErrDuplicateSubmit is returned when the same form submission arrives twice
	ErrDuplicateSubmit = errors.New("message already submitted")

	// ErrConversationCleared is returned when the session was cleared while
	// its send was in flight; the late reply is discarded
	ErrConversationCleared = errors.New("conversation was cleared before the reply arrived")

	// ErrUnknownBackend is returned when selecting an id missing from the catalog
	ErrUnknownBackend = errors.New("unknown workflow, assistant or webhook")
)

// Error kinds reported by ErrorKind
const (
	KindNoBackendSelected      = "no_backend_selected"
	KindEmptyMessage           = "empty_message"
	KindSendInProgress         = "send_in_progress"
	KindRateLimited            = "rate_limited"
	KindDuplicateSubmit        = "duplicate_submit"
	KindUnknownBackend         = "unknown_backend"
	KindConversationCleared    = "conversation_cleared"
	KindThreadCreationFailed   = "thread_creation_failed"
	KindRunDidNotComplete      = "run_did_not_complete"
	KindNoTextResponse         = "no_text_response"
	KindWorkflowRequestFailed  = "workflow_request_failed"
	KindAssistantRequestFailed = "assistant_request_failed"
	KindCancelled              = "cancelled"
	KindInternal               = "internal"
)

// kindTable is checked in order; wrapped errors match their most specific kind first
var kindTable = []struct {
	err  error
	kind string
}{
	{ErrNoBackendSelected, KindNoBackendSelected},
	{ErrEmptyMessage, KindEmptyMessage},
	{ErrSendInProgress, KindSendInProgress},
	{ErrRateLimited, KindRateLimited},
	{ErrDuplicateSubmit, KindDuplicateSubmit},
	{ErrUnknownBackend, KindUnknownBackend},
	{ErrConversationCleared, KindConversationCleared},
	{assistant.ErrThreadCreationFailed, KindThreadCreationFailed},
	{assistant.ErrRunDidNotComplete, KindRunDidNotComplete},
	{assistant.ErrNoTextResponse, KindNoTextResponse},
	{workflow.ErrWorkflowRequestFailed, KindWorkflowRequestFailed},
	{assistant.ErrAssistantRequestFailed, KindAssistantRequestFailed},
	{context.Canceled, KindCancelled},
	{context.DeadlineExceeded, KindCancelled},
}

// ErrorKind classifies err. Unknown errors are KindInternal.
func ErrorKind(err error) string {
	for _, entry := range kindTable {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	return KindInternal
}

// IsUserError reports whether err is caused by the request rather than a backend
func IsUserError(err error) bool {
	switch ErrorKind(err) {
	case KindNoBackendSelected, KindEmptyMessage, KindSendInProgress,
		KindRateLimited, KindDuplicateSubmit, KindUnknownBackend, KindConversationCleared:
		return true
	}
	return false
}
