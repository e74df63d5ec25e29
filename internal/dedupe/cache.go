// ABOUTME: TTL window of claimed form submission ids, scoped per chat session
// ABOUTME: Lets the dashboard drop double-submitted chat messages

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

const defaultSweepInterval = time.Minute

// claim is one remembered submission
type claim struct {
	key     string
	claimed time.Time
}

// Options configures a Cache
type Options struct {
	// TTL is how long a submission id stays claimed
	TTL time.Duration
	// MaxEntries bounds memory; the oldest claim is dropped when full
	MaxEntries int
	// SweepInterval is how often expired claims are removed
	SweepInterval time.Duration
}

// Cache remembers submission ids for a TTL. Claims are kept in a list
// ordered by claim time so the oldest can be dropped in O(1).
type Cache struct {
	mu      sync.Mutex
	claims  map[string]*list.Element
	order   *list.List // oldest at front
	ttl     time.Duration
	max     int
	now     func() time.Time
	done    chan struct{}
	stopped bool
}

// New creates a Cache and starts its sweeper. Call Close to stop it.
func New(opts Options) *Cache {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 10_000
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	c := &Cache{
		claims: make(map[string]*list.Element),
		order:  list.New(),
		ttl:    opts.TTL,
		max:    opts.MaxEntries,
		now:    time.Now,
		done:   make(chan struct{}),
	}
	go c.sweepLoop(opts.SweepInterval)
	return c
}

func submitKey(sessionID, submitID string) string {
	return sessionID + "\x00" + submitID
}

// Claim marks submitID as used within sessionID. It returns false when the
// same id was already claimed and has not expired. An empty submitID is
// always accepted and never remembered.
func (c *Cache) Claim(sessionID, submitID string) bool {
	if submitID == "" {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := submitKey(sessionID, submitID)
	now := c.now()

	if elem, ok := c.claims[key]; ok {
		if c.live(elem.Value.(*claim), now) {
			return false
		}
		c.order.Remove(elem)
		delete(c.claims, key)
	}

	if len(c.claims) >= c.max {
		c.dropOldest()
	}
	c.claims[key] = c.order.PushBack(&claim{key: key, claimed: now})
	return true
}

// Release forgets a claim so the same id may be submitted again
func (c *Cache) Release(sessionID, submitID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := submitKey(sessionID, submitID)
	if elem, ok := c.claims[key]; ok {
		c.order.Remove(elem)
		delete(c.claims, key)
	}
}

// Len returns the number of remembered claims, expired ones included
// until the next sweep.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.claims)
}

func (c *Cache) live(cl *claim, now time.Time) bool {
	return now.Sub(cl.claimed) < c.ttl
}

// dropOldest must be called with mu held
func (c *Cache) dropOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	c.order.Remove(front)
	delete(c.claims, front.Value.(*claim).key)
}

func (c *Cache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep removes expired claims from the front of the list. Claims are
// ordered by time, so it stops at the first live one.
func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		cl := front.Value.(*claim)
		if c.live(cl, now) {
			return
		}
		c.order.Remove(front)
		delete(c.claims, cl.key)
	}
}

// Close stops the sweeper. It is safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.stopped {
		close(c.done)
		c.stopped = true
	}
}
