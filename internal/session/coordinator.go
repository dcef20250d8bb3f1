package session

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	// DefaultGracePeriod is how long a detached session keeps its backend
	// handle alive waiting for a reattach. Long enough to absorb a
	// synchronous remount, short enough not to leak idle backends.
	DefaultGracePeriod = 100 * time.Millisecond

	// DefaultResizeDebounce delays layout-driven resizes until the layout
	// transition has settled.
	DefaultResizeDebounce = 250 * time.Millisecond

	// closeTimeout bounds the backend Close call made by a fired teardown.
	closeTimeout = 5 * time.Second
)

// Coordinator owns the process-wide session registry and the pending
// teardown timers. All mutation goes through Attach/Detach and the teardown
// timer callback.
type Coordinator struct {
	gateway  Gateway
	bus      *Bus
	grace    time.Duration
	debounce time.Duration

	mu       sync.Mutex
	records  map[string]*record
	pending  map[string]*time.Timer
	closing  map[string]chan struct{}
	attached map[string]int
}

// record tracks one session id known to the registry. live flips to true
// when the backend create resolved; creating is non-nil while a create call
// is in flight and is closed when it resolves either way.
type record struct {
	kind     Kind
	live     bool
	creating chan struct{}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithGracePeriod overrides the detach-to-teardown grace window.
func WithGracePeriod(d time.Duration) Option {
	return func(c *Coordinator) { c.grace = d }
}

// WithResizeDebounce overrides the layout-transition resize debounce.
func WithResizeDebounce(d time.Duration) Option {
	return func(c *Coordinator) { c.debounce = d }
}

// NewCoordinator creates a coordinator over the given gateway and bus.
func NewCoordinator(gateway Gateway, bus *Bus, opts ...Option) *Coordinator {
	c := &Coordinator{
		gateway:  gateway,
		bus:      bus,
		grace:    DefaultGracePeriod,
		debounce: DefaultResizeDebounce,
		records:  make(map[string]*record),
		pending:  make(map[string]*time.Timer),
		closing:  make(map[string]chan struct{}),
		attached: make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Live reports whether id currently has a live backend handle.
func (c *Coordinator) Live(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[id]
	return ok && rec.live
}

// EnsureCreated makes sure a backend handle exists for id. If one is already
// live the call returns immediately without touching the gateway. A close
// still in flight for the same id is authoritative: the call waits for it to
// resolve before creating anew. On backend failure the record is left absent
// and a *CreationError is returned; retrying is the caller's decision.
func (c *Coordinator) EnsureCreated(ctx context.Context, id string, params Params) error {
	for {
		c.mu.Lock()

		if ch, ok := c.closing[id]; ok {
			c.mu.Unlock()
			select {
			case <-ch:
				continue
			case <-ctx.Done():
				return &CreationError{ID: id, Err: ctx.Err()}
			}
		}

		if rec, ok := c.records[id]; ok {
			if rec.live {
				c.mu.Unlock()
				return nil
			}
			// Another attach is mid-create for the same id; wait for its
			// outcome and re-check.
			creating := rec.creating
			c.mu.Unlock()
			select {
			case <-creating:
				continue
			case <-ctx.Done():
				return &CreationError{ID: id, Err: ctx.Err()}
			}
		}

		rec := &record{kind: params.Kind(), creating: make(chan struct{})}
		c.records[id] = rec
		c.mu.Unlock()

		err := c.gateway.Create(ctx, id, params)

		c.mu.Lock()
		close(rec.creating)
		rec.creating = nil
		if err != nil {
			delete(c.records, id)
			c.mu.Unlock()
			log.Printf("Coordinator: create failed for %s: %v", id, err)
			return &CreationError{ID: id, Err: err}
		}
		rec.live = true
		c.mu.Unlock()

		log.Printf("Coordinator: session %s (%s) created", id, params.Kind())
		return nil
	}
}

// CancelTeardown removes any pending teardown timer for id. No effect when
// none is armed. Called at the start of attachment, before EnsureCreated.
func (c *Coordinator) CancelTeardown(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.pending[id]; ok {
		t.Stop()
		delete(c.pending, id)
		log.Printf("Coordinator: teardown cancelled for %s (reattach)", id)
	}
}

// ScheduleTeardown arms the deferred teardown for id. At most one timer per
// id exists; a second call while one is armed is a no-op, as is a call while
// any handle is still attached to id. When the timer fires without
// cancellation the backend handle is closed and the session record removed.
func (c *Coordinator) ScheduleTeardown(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.attached[id] > 0 {
		return
	}
	if _, ok := c.pending[id]; ok {
		return
	}
	if _, ok := c.records[id]; !ok {
		return
	}

	c.pending[id] = time.AfterFunc(c.grace, func() { c.teardown(id) })
	log.Printf("Coordinator: teardown scheduled for %s in %v", id, c.grace)
}

// registerAttachment counts a new live handle for id and cancels any pending
// teardown under the same lock, so a reattach inside the grace window can
// never race the timer arming.
func (c *Coordinator) registerAttachment(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attached[id]++
	if t, ok := c.pending[id]; ok {
		t.Stop()
		delete(c.pending, id)
		log.Printf("Coordinator: teardown cancelled for %s (reattach)", id)
	}
}

// releaseAttachment drops one live handle for id and arms the deferred
// teardown only when it was the last one. Several views may share one
// session id; the backend must outlive all of them.
func (c *Coordinator) releaseAttachment(id string) {
	c.mu.Lock()
	n := c.attached[id] - 1
	if n <= 0 {
		delete(c.attached, id)
	} else {
		c.attached[id] = n
	}
	c.mu.Unlock()

	if n > 0 {
		log.Printf("Coordinator: handle released for %s, %d still attached", id, n)
		return
	}
	c.ScheduleTeardown(id)
}

// teardown runs in the timer goroutine when the grace window elapsed.
func (c *Coordinator) teardown(id string) {
	c.mu.Lock()
	if _, ok := c.pending[id]; !ok {
		// Cancelled racing the fire.
		c.mu.Unlock()
		return
	}
	delete(c.pending, id)

	barrier := make(chan struct{})
	c.closing[id] = barrier
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if err := c.gateway.Close(ctx, id); err != nil {
		// Teardown is fire and forget; nobody is attached anymore.
		log.Printf("Coordinator: close failed for %s: %v", id, err)
	} else {
		log.Printf("Coordinator: session %s closed", id)
	}

	c.mu.Lock()
	delete(c.records, id)
	delete(c.closing, id)
	c.mu.Unlock()
	close(barrier)
}

// AttachConfig carries the per-view callbacks fed by the subscription set.
// Callbacks run on backend goroutines; UI code must hop to its own thread.
type AttachConfig struct {
	// OnOutput receives output chunks in backend order.
	OnOutput func(data string)

	// OnExit fires at most once, when the backend handle ends.
	OnExit func()

	// OnChallenge fires when an MFA challenge for this session moves the
	// handle into the challenge-received state. SSH sessions only. The
	// handle is passed in because challenges raised during authentication
	// arrive before Attach has returned it.
	OnChallenge func(h *Handle, ch Challenge)
}

// Attach binds a view instance to session id: it cancels any pending
// teardown, counts the attachment, subscribes the view's listeners, and
// makes sure the backend handle exists. The challenge listener is registered
// before the create call so challenges raised during authentication reach
// the view. On creation failure the attachment is released again and the
// error is returned for display.
func (c *Coordinator) Attach(ctx context.Context, id string, params Params, cfg AttachConfig) (*Handle, error) {
	c.registerAttachment(id)

	h := newHandle(c, id, params.Kind(), cfg)
	h.subscribe(c.bus)

	if err := c.EnsureCreated(ctx, id, params); err != nil {
		h.releaseSubscriptions()
		c.releaseAttachment(id)
		return nil, err
	}
	return h, nil
}
