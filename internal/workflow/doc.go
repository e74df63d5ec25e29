// Package workflow calls externally hosted prediction flows.
//
// A flow is addressed by its chatflow id. Predict posts
//
//	{"question": "...", "history": [{"role": "userMessage", "content": "..."}]}
//
// to <base_url>/api/v1/prediction/<flowId>; history is only included when
// workflows.send_history is enabled. The reply shape differs between flow
// configurations, so ExtractText accepts a bare string, an object with a
// "text" field, or falls back to the whole body as compact JSON.
//
// Failures are *RequestError values matching ErrWorkflowRequestFailed. There
// are no retries.
package workflow
