// ABOUTME: JSON API for the chat session: catalog, transcript, send, select, clear
// ABOUTME: Errors are returned as {"error","kind"} with a status derived from the kind

package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"

	"github.com/2389/rocketlauncher/internal/chat"
	"github.com/2389/rocketlauncher/internal/store"
)

// catalog is everything the pickers list
type catalog struct {
	Workflows  []store.Workflow  `json:"workflows"`
	Assistants []store.Assistant `json:"assistants"`
	Webhooks   []store.Webhook   `json:"webhooks"`
}

// loadCatalog reads the three picker collections wholesale
func (d *Dashboard) loadCatalog(ctx context.Context) (catalog, error) {
	workflows, err := store.ListWorkflows(ctx, d.catalog)
	if err != nil {
		return catalog{}, fmt.Errorf("listing workflows: %w", err)
	}
	assistants, err := store.ListAssistants(ctx, d.catalog)
	if err != nil {
		return catalog{}, fmt.Errorf("listing assistants: %w", err)
	}
	webhooks, err := store.ListWebhooks(ctx, d.catalog)
	if err != nil {
		return catalog{}, fmt.Errorf("listing webhooks: %w", err)
	}

	c := catalog{Workflows: workflows, Assistants: assistants, Webhooks: webhooks}
	if c.Workflows == nil {
		c.Workflows = []store.Workflow{}
	}
	if c.Assistants == nil {
		c.Assistants = []store.Assistant{}
	}
	if c.Webhooks == nil {
		c.Webhooks = []store.Webhook{}
	}
	return c, nil
}

type chatStateResponse struct {
	Backend   *chat.Backend  `json:"backend"`
	Messages  []chat.Message `json:"messages"`
	Sending   bool           `json:"sending"`
	CSRFToken string         `json:"csrf_token"`
}

type sendRequest struct {
	Message  string `json:"message"`
	SubmitID string `json:"submit_id"`
}

type sendResponse struct {
	Reply chat.Message `json:"reply"`
}

type selectRequest struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

type selectResponse struct {
	Backend *chat.Backend `json:"backend"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// handleAPICatalog returns the workflows, assistants and webhooks
func (d *Dashboard) handleAPICatalog(w http.ResponseWriter, r *http.Request) {
	c, err := d.loadCatalog(r.Context())
	if err != nil {
		d.logger.Error("failed to load catalog", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to load catalog", chat.KindInternal)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleAPIChat returns the session's backend and transcript
func (d *Dashboard) handleAPIChat(w http.ResponseWriter, r *http.Request) {
	entry := entryFromContext(r.Context())

	resp := chatStateResponse{
		Messages:  entry.session.Messages(),
		Sending:   entry.session.Sending(),
		CSRFToken: csrfFromContext(r.Context()),
	}
	if b, ok := entry.session.Backend(); ok {
		resp.Backend = &b
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAPISend sends one message and waits for the reply
func (d *Dashboard) handleAPISend(w http.ResponseWriter, r *http.Request) {
	entry := entryFromContext(r.Context())

	var req sendRequest
	if !d.decodeJSON(w, r, &req) {
		return
	}

	reply, err := d.send(r.Context(), entry, req.Message, req.SubmitID)
	if err != nil {
		d.writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sendResponse{Reply: reply})
}

// handleAPISelect changes the session's backend. Webhooks return a null backend.
func (d *Dashboard) handleAPISelect(w http.ResponseWriter, r *http.Request) {
	entry := entryFromContext(r.Context())

	var req selectRequest
	if !d.decodeJSON(w, r, &req) {
		return
	}

	b, err := d.router.Select(r.Context(), entry.session, req.Kind, req.ID)
	if err != nil {
		d.writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, selectResponse{Backend: b})
}

// handleAPIClear empties the session transcript
func (d *Dashboard) handleAPIClear(w http.ResponseWriter, r *http.Request) {
	entry := entryFromContext(r.Context())

	if err := d.router.Clear(r.Context(), entry.session); err != nil {
		d.writeChatError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *Dashboard) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !isJSON(r) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "expected application/json", "bad_request")
		return false
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return false
	}
	return true
}

// writeChatError writes err with the status for its kind. Internal errors
// are logged and their text withheld.
func (d *Dashboard) writeChatError(w http.ResponseWriter, err error) {
	kind := chat.ErrorKind(err)
	msg := err.Error()
	if kind == chat.KindInternal {
		d.logger.Error("chat request failed", "error", err)
		msg = "internal error"
	}
	writeJSONError(w, statusFor(kind), msg, kind)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message, kind string) {
	writeJSON(w, status, errorResponse{Error: message, Kind: kind})
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}
