package session

import (
	"context"
	"log"
	"sync"
	"time"
)

// Handle is one view instance's grip on a session: it owns the subscription
// set created at attach time, the readiness gate for input, and the MFA
// state machine. A handle is released exactly once via Detach; after that
// every operation fails with ErrDetached and no callback fires again.
type Handle struct {
	coord *Coordinator
	id    string
	kind  Kind

	onOutput    func(string)
	onExit      func()
	onChallenge func(*Handle, Challenge)

	mu       sync.Mutex
	detached bool
	unsubs   []func()

	// Readiness gate. ready stays false until the rendering surface has
	// completed its first layout pass; writes are dropped until then.
	ready bool
	cols  int
	rows  int

	resizeTimer *time.Timer

	mfaState  MFAState
	challenge *Challenge
}

func newHandle(c *Coordinator, id string, kind Kind, cfg AttachConfig) *Handle {
	return &Handle{
		coord:       c,
		id:          id,
		kind:        kind,
		onOutput:    cfg.OnOutput,
		onExit:      cfg.OnExit,
		onChallenge: cfg.OnChallenge,
		mfaState:    MFAIdle,
	}
}

// ID returns the session id this handle is attached to.
func (h *Handle) ID() string { return h.id }

// Kind returns the session kind.
func (h *Handle) Kind() Kind { return h.kind }

// subscribe builds the subscription set. The detached re-check inside each
// forwarder keeps a chunk that was already in flight when Detach ran from
// reaching the view.
func (h *Handle) subscribe(bus *Bus) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.unsubs = append(h.unsubs, bus.SubscribeOutput(h.id, func(data string) {
		h.mu.Lock()
		dead := h.detached
		h.mu.Unlock()
		if dead || h.onOutput == nil {
			return
		}
		h.onOutput(data)
	}))

	h.unsubs = append(h.unsubs, bus.SubscribeExit(h.id, func() {
		h.mu.Lock()
		dead := h.detached
		h.mu.Unlock()
		if dead || h.onExit == nil {
			return
		}
		h.onExit()
	}))

	// The challenge channel is global; only remote sessions listen, and the
	// id filter runs locally.
	if h.kind == KindSSH {
		h.unsubs = append(h.unsubs, bus.SubscribeChallenge(h.handleChallenge))
	}
}

// releaseSubscriptions drops the subscription set exactly once.
func (h *Handle) releaseSubscriptions() {
	h.mu.Lock()
	unsubs := h.unsubs
	h.unsubs = nil
	h.detached = true
	if h.resizeTimer != nil {
		h.resizeTimer.Stop()
		h.resizeTimer = nil
	}
	h.mu.Unlock()

	for _, cancel := range unsubs {
		cancel()
	}
}

// Detach releases the subscription set synchronously and gives the
// attachment back to the coordinator, which arms the deferred teardown once
// the last handle for the id is gone. Safe to call more than once; only the
// first call does anything.
func (h *Handle) Detach() {
	h.mu.Lock()
	if h.detached {
		h.mu.Unlock()
		return
	}
	h.detached = true
	h.mu.Unlock()

	h.releaseSubscriptions()
	h.coord.releaseAttachment(h.id)
}

// Write forwards user input to the backend. Input arriving before the
// surface is ready is silently dropped; losing sub-100ms startup keystrokes
// beats buffering input against a session that may never come up. Write
// failures are logged and surfaced once, never retried.
func (h *Handle) Write(ctx context.Context, data []byte) error {
	h.mu.Lock()
	if h.detached {
		h.mu.Unlock()
		return ErrDetached
	}
	if !h.ready {
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	if err := h.coord.gateway.Write(ctx, h.id, data); err != nil {
		werr := &WriteError{ID: h.id, Err: err}
		log.Printf("Session %s: %v", h.id, werr)
		return werr
	}
	return nil
}

// Ready reports whether the readiness gate is armed.
func (h *Handle) Ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ready
}

// SurfaceReady arms the readiness gate with the first computed geometry and
// pushes it to the backend. Called once the rendering surface has completed
// its initial layout pass.
func (h *Handle) SurfaceReady(cols, rows int) {
	h.mu.Lock()
	if h.detached {
		h.mu.Unlock()
		return
	}
	h.ready = true
	changed := cols != h.cols || rows != h.rows
	h.cols, h.rows = cols, rows
	h.mu.Unlock()

	if changed {
		h.pushResize(cols, rows)
	}
}

// SurfaceResized recomputes and pushes dimensions immediately. Use for
// direct window resizes where the geometry is already settled.
func (h *Handle) SurfaceResized(cols, rows int) {
	h.mu.Lock()
	if h.detached || !h.ready || (cols == h.cols && rows == h.rows) {
		h.mu.Unlock()
		return
	}
	h.cols, h.rows = cols, rows
	h.mu.Unlock()

	h.pushResize(cols, rows)
}

// SurfaceResizedDebounced pushes dimensions after the layout transition has
// settled. Use for sibling-panel toggles, where the surface is still
// animating when the first layout callbacks arrive. Subsequent calls within
// the debounce window replace the pending geometry.
func (h *Handle) SurfaceResizedDebounced(cols, rows int) {
	h.mu.Lock()
	if h.detached || !h.ready {
		h.mu.Unlock()
		return
	}
	if h.resizeTimer != nil {
		h.resizeTimer.Stop()
	}
	delay := h.coord.debounce
	h.resizeTimer = time.AfterFunc(delay, func() {
		h.mu.Lock()
		if h.detached || (cols == h.cols && rows == h.rows) {
			h.mu.Unlock()
			return
		}
		h.cols, h.rows = cols, rows
		h.mu.Unlock()
		h.pushResize(cols, rows)
	})
	h.mu.Unlock()
}

// Size returns the last geometry pushed through the gate.
func (h *Handle) Size() (cols, rows int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cols, h.rows
}

// pushResize is best effort: failures are logged and never surfaced. The
// backend may interleave the resize with queued output; the coordinator
// makes no assumption about when it takes effect.
func (h *Handle) pushResize(cols, rows int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.coord.gateway.Resize(ctx, h.id, cols, rows); err != nil {
		log.Printf("Session %s: resize to %dx%d failed: %v", h.id, cols, rows, err)
	}
}
