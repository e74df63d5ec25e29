// Package chat holds chat sessions and routes their messages.
//
// # Session
//
// A Session is the state of one browser conversation: the ordered message
// list, the active Backend (a workflow or an assistant, never both) and one
// assistant Replier per assistant that has been talked to. Switching backends
// keeps the messages and the repliers; Clear empties the messages and resets
// every replier's thread.
//
// # Router
//
// Router.Send is the single entry point for a user message:
//
//  1. blank input fails with ErrEmptyMessage, a concurrent send on the same
//     session with ErrSendInProgress; nothing is appended in either case
//  2. the user message is appended
//  3. without a backend the send fails with ErrNoBackendSelected
//  4. workflows go to the WorkflowCaller, assistants to the session's
//     Replier for that assistant, created on first use
//  5. on success the reply is appended, tagged with the assistant's
//     name and avatar; on failure nothing more is appended
//
// With PersistTranscripts, workflow turns are also written to the
// chats/{flowId}/messages collection, selecting a workflow loads that
// transcript, and clearing deletes it.
//
// ErrorKind maps any returned error onto a stable string used in logs,
// metrics and API responses.
package chat
