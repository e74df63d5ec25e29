// ABOUTME: Session hub keeping one chat session per browser cookie
// ABOUTME: Evicts idle sessions and gives each its own send rate limiter

package dashboard

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/2389/rocketlauncher/internal/chat"
)

const cleanupInterval = time.Minute

// SessionGauge receives the number of live sessions
type SessionGauge interface {
	SetActiveSessions(n int)
}

// sessionEntry is a chat session plus the per-browser state the dashboard keeps
type sessionEntry struct {
	session *chat.Session
	limiter *rate.Limiter

	mu     sync.Mutex
	notice string
}

// setNotice stores a message shown once on the next page render
func (e *sessionEntry) setNotice(msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notice = msg
}

// takeNotice returns and clears the pending notice
func (e *sessionEntry) takeNotice() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	msg := e.notice
	e.notice = ""
	return msg
}

type hubOptions struct {
	TTL   time.Duration
	Rate  float64 // sends per second
	Burst int
	Gauge SessionGauge
}

// sessionHub manages live chat sessions keyed by session id
type sessionHub struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	ttl      time.Duration
	limit    rate.Limit
	burst    int
	gauge    SessionGauge
	now      func() time.Time
	cancel   context.CancelFunc
}

func newSessionHub(opts hubOptions) *sessionHub {
	limit := rate.Limit(opts.Rate)
	if opts.Rate <= 0 {
		limit = rate.Inf
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	hub := &sessionHub{
		sessions: make(map[string]*sessionEntry),
		ttl:      opts.TTL,
		limit:    limit,
		burst:    burst,
		gauge:    opts.Gauge,
		now:      time.Now,
		cancel:   cancel,
	}
	go hub.cleanupLoop(ctx)
	return hub
}

// getOrCreate returns the entry for id, creating an empty session if needed
func (h *sessionHub) getOrCreate(id string) *sessionEntry {
	h.mu.RLock()
	entry, ok := h.sessions[id]
	h.mu.RUnlock()
	if ok {
		entry.session.Touch()
		return entry
	}

	h.mu.Lock()
	if entry, ok = h.sessions[id]; !ok {
		entry = &sessionEntry{
			session: chat.NewSession(id),
			limiter: rate.NewLimiter(h.limit, h.burst),
		}
		h.sessions[id] = entry
	}
	n := len(h.sessions)
	h.mu.Unlock()

	entry.session.Touch()
	h.report(n)
	return entry
}

// get returns the entry for id without creating one
func (h *sessionHub) get(id string) (*sessionEntry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	entry, ok := h.sessions[id]
	return entry, ok
}

// count returns the number of live sessions
func (h *sessionHub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// cleanupLoop periodically removes idle sessions
func (h *sessionHub) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.cleanupStaleSessions()
		}
	}
}

// cleanupStaleSessions removes sessions idle for longer than the TTL.
// A session with a send in flight is never evicted. Sessions are inspected
// without the hub lock held.
func (h *sessionHub) cleanupStaleSessions() int {
	if h.ttl <= 0 {
		return 0
	}

	h.mu.RLock()
	entries := make(map[string]*sessionEntry, len(h.sessions))
	for id, entry := range h.sessions {
		entries[id] = entry
	}
	h.mu.RUnlock()

	now := h.now()
	var stale []string
	for id, entry := range entries {
		if entry.session.Sending() {
			continue
		}
		if now.Sub(entry.session.LastUsed()) > h.ttl {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return 0
	}

	h.mu.Lock()
	removed := 0
	for _, id := range stale {
		// skip ids replaced since the snapshot
		if h.sessions[id] == entries[id] {
			delete(h.sessions, id)
			removed++
		}
	}
	n := len(h.sessions)
	h.mu.Unlock()

	if removed > 0 {
		h.report(n)
	}
	return removed
}

func (h *sessionHub) report(n int) {
	if h.gauge != nil {
		h.gauge.SetActiveSessions(n)
	}
}

// Close stops the cleanup goroutine and drops every session
func (h *sessionHub) Close() {
	h.cancel()

	h.mu.Lock()
	h.sessions = make(map[string]*sessionEntry)
	h.mu.Unlock()
	h.report(0)
}
