// ABOUTME: Server-rendered chat page and its form handlers
// ABOUTME: Forms post, then redirect back to the page with a one-shot notice on failure

package dashboard

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/2389/rocketlauncher/internal/chat"
	"github.com/2389/rocketlauncher/internal/store"
)

type chatPageData struct {
	Title     string
	CSRFToken string
	SubmitID  string
	Notice    string

	Backend           *chat.Backend
	SelectedWorkflow  *store.Workflow
	SelectedAssistant *store.Assistant
	Messages          []chat.Message
	Sending           bool

	Workflows  []store.Workflow
	Assistants []store.Assistant
	Webhooks   []store.Webhook
}

// handleChatPage renders the pickers and the transcript
func (d *Dashboard) handleChatPage(w http.ResponseWriter, r *http.Request) {
	entry := entryFromContext(r.Context())

	data := chatPageData{
		Title:     "RocketLauncher",
		CSRFToken: csrfFromContext(r.Context()),
		SubmitID:  uuid.NewString(),
		Notice:    entry.takeNotice(),
		Messages:  entry.session.Messages(),
		Sending:   entry.session.Sending(),
	}

	c, err := d.loadCatalog(r.Context())
	if err != nil {
		d.logger.Error("failed to load catalog", "error", err)
		if data.Notice == "" {
			data.Notice = "The catalog could not be loaded."
		}
	}
	data.Workflows = c.Workflows
	data.Assistants = c.Assistants
	data.Webhooks = c.Webhooks

	if b, ok := entry.session.Backend(); ok {
		data.Backend = &b
		switch b.Kind {
		case chat.BackendWorkflow:
			for i := range data.Workflows {
				if data.Workflows[i].ID == b.ID {
					data.SelectedWorkflow = &data.Workflows[i]
				}
			}
		case chat.BackendAssistant:
			for i := range data.Assistants {
				if data.Assistants[i].ID == b.ID {
					data.SelectedAssistant = &data.Assistants[i]
				}
			}
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := d.page.Execute(w, data); err != nil {
		d.logger.Error("failed to render chat page", "error", err)
	}
}

// handleChatSend sends the message form field and redirects back to the page
func (d *Dashboard) handleChatSend(w http.ResponseWriter, r *http.Request) {
	entry := entryFromContext(r.Context())

	_, err := d.send(r.Context(), entry, r.FormValue("message"), r.FormValue("submit_id"))
	if err != nil {
		entry.setNotice(noticeFor(err))
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleChatSelect selects a workflow, assistant or webhook
func (d *Dashboard) handleChatSelect(w http.ResponseWriter, r *http.Request) {
	entry := entryFromContext(r.Context())

	b, err := d.router.Select(r.Context(), entry.session, r.FormValue("kind"), r.FormValue("id"))
	switch {
	case err != nil:
		if chat.ErrorKind(err) == chat.KindInternal {
			d.logger.Error("select failed", "error", err)
		}
		entry.setNotice(noticeFor(err))
	case b == nil:
		entry.setNotice("Webhook noted. Keep chatting with the current selection.")
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleChatClear empties the transcript
func (d *Dashboard) handleChatClear(w http.ResponseWriter, r *http.Request) {
	entry := entryFromContext(r.Context())

	if err := d.router.Clear(r.Context(), entry.session); err != nil {
		d.logger.Error("clear failed", "error", err)
		entry.setNotice("The conversation was cleared here but the saved transcript could not be deleted.")
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
