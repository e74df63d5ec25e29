// Package assistant drives thread-based conversational assistants.
//
// # Adapter
//
// An Adapter owns at most one external thread for one assistant id:
//
//	Uninitialized --Reply--> CreateThread (ErrThreadCreationFailed on error)
//	              --> replay history, one AddMessage per turn, in order
//	Thread ready  --> AddMessage(user) --> CreateRun --> poll GetRun
//	Polling       --> completed: newest assistant message with text
//	              --> failed/expired/cancelled/incomplete: *RunError{Reason: status}
//	              --> deadline passed: *RunError{Reason: "timeout"}
//
// Polling waits PollInterval between checks and stops early when the context
// is cancelled. ResetThread forgets the handle; the next Reply starts a new
// thread and replays whatever history it is given.
//
// # Client
//
// Client implements ThreadAPI against the v2 REST endpoints (/threads,
// /threads/{id}/messages, /threads/{id}/runs, /threads/{id}/runs/{run_id})
// with a bearer key and the "OpenAI-Beta: assistants=v2" header.
package assistant
