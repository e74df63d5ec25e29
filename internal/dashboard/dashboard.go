// ABOUTME: Dashboard wires the chat router, session hub and cookies into HTTP routes
// ABOUTME: Serves the server-rendered chat page and its JSON API

package dashboard

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/2389/rocketlauncher/internal/assistant"
	"github.com/2389/rocketlauncher/internal/chat"
	"github.com/2389/rocketlauncher/internal/dedupe"
	"github.com/2389/rocketlauncher/internal/metrics"
	"github.com/2389/rocketlauncher/internal/store"
)

// Context keys for request-scoped values
type contextKey string

const (
	entryContextKey contextKey = "session_entry"
	csrfContextKey  contextKey = "csrf_token"
)

// maxBodyBytes bounds form and JSON request bodies
const maxBodyBytes = 64 << 10

// Config holds dashboard behaviour settings
type Config struct {
	// Secret signs session cookies
	Secret       []byte
	CookieSecure bool
	// SessionTTL evicts sessions idle for longer; zero keeps them forever
	SessionTTL time.Duration
	// SendRate and SendBurst bound sends per session; zero rate is unlimited
	SendRate  float64
	SendBurst int
	// SubmitDedupeTTL is how long a form submission id is remembered
	SubmitDedupeTTL time.Duration
}

// Options are the dependencies of a Dashboard
type Options struct {
	Router  *chat.Router
	Catalog store.Reader
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Config  Config
}

// Dashboard serves the chat UI for many browser sessions
type Dashboard struct {
	router  *chat.Router
	catalog store.Reader
	metrics *metrics.Metrics
	hub     *sessionHub
	cookies *cookieSigner
	dedupe  *dedupe.Cache
	page    *template.Template
	secure  bool
	logger  *slog.Logger
}

// New creates a Dashboard. Call Close to stop its background goroutines.
func New(opts Options) (*Dashboard, error) {
	if opts.Router == nil {
		return nil, errors.New("dashboard: router is required")
	}
	if opts.Catalog == nil {
		return nil, errors.New("dashboard: catalog is required")
	}
	if len(opts.Config.Secret) == 0 {
		return nil, errors.New("dashboard: cookie secret is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	page, err := template.New("layout.html").Funcs(template.FuncMap{
		"markdown": renderMarkdown,
	}).ParseFS(templateFS, "templates/layout.html", "templates/chat.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}

	return &Dashboard{
		router:  opts.Router,
		catalog: opts.Catalog,
		metrics: opts.Metrics,
		hub: newSessionHub(hubOptions{
			TTL:   opts.Config.SessionTTL,
			Rate:  opts.Config.SendRate,
			Burst: opts.Config.SendBurst,
			Gauge: opts.Metrics,
		}),
		cookies: newCookieSigner(opts.Config.Secret, CookieLifetime),
		dedupe:  dedupe.New(dedupe.Options{TTL: opts.Config.SubmitDedupeTTL}),
		page:    page,
		secure:  opts.Config.CookieSecure,
		logger:  logger.With("component", "dashboard"),
	}, nil
}

// Close stops background goroutines and drops all sessions
func (d *Dashboard) Close() {
	d.hub.Close()
	d.dedupe.Close()
}

// RegisterRoutes adds the dashboard routes to mux
func (d *Dashboard) RegisterRoutes(mux *http.ServeMux) {
	// Server-rendered page; forms post back and redirect
	mux.HandleFunc("GET /{$}", d.withSession(d.handleChatPage))
	mux.HandleFunc("POST /chat/send", d.withSession(d.requireCSRF(d.handleChatSend)))
	mux.HandleFunc("POST /chat/select", d.withSession(d.requireCSRF(d.handleChatSelect)))
	mux.HandleFunc("POST /chat/clear", d.withSession(d.requireCSRF(d.handleChatClear)))

	// JSON API
	mux.HandleFunc("GET /api/catalog", d.handleAPICatalog)
	mux.HandleFunc("GET /api/chat", d.withSession(d.handleAPIChat))
	mux.HandleFunc("POST /api/chat/send", d.withSession(d.requireCSRF(d.handleAPISend)))
	mux.HandleFunc("POST /api/chat/select", d.withSession(d.requireCSRF(d.handleAPISelect)))
	mux.HandleFunc("POST /api/chat/clear", d.withSession(d.requireCSRF(d.handleAPIClear)))
}

// withSession resolves the browser's chat session from its cookie, issuing a
// fresh cookie and session when the cookie is missing, invalid or expired
func (d *Dashboard) withSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := d.readCookie(r)
		if !ok {
			var err error
			claims, err = d.newSessionCookie(w, r)
			if err != nil {
				d.logger.Error("failed to issue session cookie", "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
		}

		entry := d.hub.getOrCreate(claims.SessionID)
		ctx := context.WithValue(r.Context(), entryContextKey, entry)
		ctx = context.WithValue(ctx, csrfContextKey, claims.CSRF)
		next(w, r.WithContext(ctx))
	}
}

func (d *Dashboard) readCookie(r *http.Request) (sessionClaims, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return sessionClaims{}, false
	}
	claims, err := d.cookies.parse(cookie.Value)
	if err != nil {
		d.logger.Debug("discarding session cookie", "error", err)
		return sessionClaims{}, false
	}
	return claims, true
}

func (d *Dashboard) newSessionCookie(w http.ResponseWriter, r *http.Request) (sessionClaims, error) {
	csrf, err := generateSecureToken(32)
	if err != nil {
		return sessionClaims{}, fmt.Errorf("generating csrf token: %w", err)
	}
	claims := sessionClaims{SessionID: uuid.NewString(), CSRF: csrf}

	value, expires, err := d.cookies.issue(claims)
	if err != nil {
		return sessionClaims{}, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   d.secure || r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	d.logger.Debug("new chat session", "session_id", claims.SessionID)
	return claims, nil
}

// requireCSRF rejects requests whose csrf_token form field or X-CSRF-Token
// header does not match the token bound to the session cookie
func (d *Dashboard) requireCSRF(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		want := csrfFromContext(r.Context())

		got := r.Header.Get("X-CSRF-Token")
		if got == "" && !isJSON(r) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
			got = r.FormValue("csrf_token")
		}

		if want == "" || got != want {
			d.logger.Warn("csrf validation failed", "path", r.URL.Path)
			if isJSON(r) || r.Header.Get("X-CSRF-Token") != "" {
				writeJSONError(w, http.StatusForbidden, "invalid csrf token", "csrf")
				return
			}
			http.Error(w, "invalid csrf token", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func entryFromContext(ctx context.Context) *sessionEntry {
	entry, _ := ctx.Value(entryContextKey).(*sessionEntry)
	return entry
}

func csrfFromContext(ctx context.Context) string {
	token, _ := ctx.Value(csrfContextKey).(string)
	return token
}

// send runs one chat send for a browser session. Duplicate submissions and
// rate-limited sends are refused before anything reaches the router.
func (d *Dashboard) send(ctx context.Context, entry *sessionEntry, text, submitID string) (chat.Message, error) {
	sessionID := entry.session.ID()

	if !d.dedupe.Claim(sessionID, submitID) {
		d.metrics.RecordFailure(chat.KindDuplicateSubmit)
		return chat.Message{}, chat.ErrDuplicateSubmit
	}
	if !entry.limiter.Allow() {
		d.dedupe.Release(sessionID, submitID)
		d.metrics.RecordFailure(chat.KindRateLimited)
		return chat.Message{}, chat.ErrRateLimited
	}

	reply, err := d.router.Send(ctx, entry.session, text)
	if errors.Is(err, chat.ErrEmptyMessage) || errors.Is(err, chat.ErrSendInProgress) {
		// nothing was recorded, so the same submission may be retried
		d.dedupe.Release(sessionID, submitID)
	}
	return reply, err
}

// noticeFor turns a send error into text for the page banner
func noticeFor(err error) string {
	var runErr *assistant.RunError
	if errors.As(err, &runErr) {
		return fmt.Sprintf("The assistant run did not complete (%s). Try again.", runErr.Reason)
	}

	switch chat.ErrorKind(err) {
	case chat.KindNoBackendSelected:
		return "Select a workflow or an assistant first."
	case chat.KindEmptyMessage:
		return "Type a message before sending."
	case chat.KindSendInProgress:
		return "Still waiting for the previous reply."
	case chat.KindRateLimited:
		return "You are sending messages too quickly. Wait a moment."
	case chat.KindDuplicateSubmit:
		return "That message was already sent."
	case chat.KindUnknownBackend:
		return "That workflow or assistant no longer exists."
	case chat.KindConversationCleared:
		return "The chat was cleared before the reply arrived."
	case chat.KindThreadCreationFailed:
		return "Could not start a conversation with the assistant."
	case chat.KindNoTextResponse:
		return "The assistant did not return a text response."
	case chat.KindWorkflowRequestFailed:
		return "The workflow service request failed."
	case chat.KindAssistantRequestFailed:
		return "The assistant service request failed."
	case chat.KindCancelled:
		return "The request was cancelled before a reply arrived."
	default:
		return "Something went wrong. Try again."
	}
}

// statusFor maps an error kind to the API response status
func statusFor(kind string) int {
	switch kind {
	case chat.KindEmptyMessage, chat.KindNoBackendSelected, chat.KindUnknownBackend:
		return http.StatusBadRequest
	case chat.KindSendInProgress, chat.KindDuplicateSubmit, chat.KindConversationCleared:
		return http.StatusConflict
	case chat.KindRateLimited:
		return http.StatusTooManyRequests
	case chat.KindThreadCreationFailed, chat.KindRunDidNotComplete, chat.KindNoTextResponse,
		chat.KindWorkflowRequestFailed, chat.KindAssistantRequestFailed:
		return http.StatusBadGateway
	case chat.KindCancelled:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
