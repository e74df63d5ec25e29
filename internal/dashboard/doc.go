// Package dashboard serves the chat dashboard over HTTP.
//
// Each browser gets a signed session cookie (an HS256 JWT carrying the
// session id and a CSRF token). The id keys a chat.Session held in an
// in-memory hub that evicts idle sessions and rate-limits sends per session.
//
// Two surfaces share the same sessions:
//
//   - the server-rendered page at / whose forms post to /chat/send,
//     /chat/select and /chat/clear and redirect back, showing failures as a
//     one-shot notice
//   - a JSON API under /api that returns failures as {"error","kind"}
//
// State-changing requests must carry the session's CSRF token, either as the
// csrf_token form field or the X-CSRF-Token header. Sends carry a submit id;
// a second send with the same id inside the dedupe window is rejected.
package dashboard
