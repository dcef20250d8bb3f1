package session

import "sync"

// Bus carries events from the backends to whoever is attached. Output and
// exit events are scoped by session id; challenge events are global and must
// be filtered by the receiver (the backend does not know which view, if any,
// is attached when authentication starts).
//
// Per-id ordering of output events is the publisher's responsibility: each
// backend publishes from a single reader goroutine, so chunks arrive in the
// order the backend produced them. No ordering holds across ids.
//
// Unsubscribing is synchronous: once the cancel func returns, the callback
// will not fire again.
type Bus struct {
	mu        sync.Mutex
	nextToken int
	output    map[string]map[int]func(string)
	exit      map[string]map[int]func()
	challenge map[int]func(Challenge)
}

func NewBus() *Bus {
	return &Bus{
		output:    make(map[string]map[int]func(string)),
		exit:      make(map[string]map[int]func()),
		challenge: make(map[int]func(Challenge)),
	}
}

// SubscribeOutput registers fn for output chunks of one session. The
// returned cancel func is idempotent.
func (b *Bus) SubscribeOutput(id string, fn func(string)) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	token := b.nextToken
	b.nextToken++

	if b.output[id] == nil {
		b.output[id] = make(map[int]func(string))
	}
	b.output[id][token] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.output[id], token)
		if len(b.output[id]) == 0 {
			delete(b.output, id)
		}
	}
}

// SubscribeExit registers fn for the end-of-session event of one session.
// The event fires at most once per backend handle.
func (b *Bus) SubscribeExit(id string, fn func()) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	token := b.nextToken
	b.nextToken++

	if b.exit[id] == nil {
		b.exit[id] = make(map[int]func())
	}
	b.exit[id][token] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.exit[id], token)
		if len(b.exit[id]) == 0 {
			delete(b.exit, id)
		}
	}
}

// SubscribeChallenge registers fn for every MFA challenge on the bus,
// regardless of session id.
func (b *Bus) SubscribeChallenge(fn func(Challenge)) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	token := b.nextToken
	b.nextToken++
	b.challenge[token] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.challenge, token)
	}
}

// PublishOutput delivers an output chunk to the subscribers of id.
func (b *Bus) PublishOutput(id, data string) {
	for _, fn := range b.outputSubscribers(id) {
		fn(data)
	}
}

// PublishExit signals that the backend handle for id ended.
func (b *Bus) PublishExit(id string) {
	b.mu.Lock()
	fns := make([]func(), 0, len(b.exit[id]))
	for _, fn := range b.exit[id] {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// PublishChallenge broadcasts an MFA challenge to all challenge subscribers.
func (b *Bus) PublishChallenge(ch Challenge) {
	b.mu.Lock()
	fns := make([]func(Challenge), 0, len(b.challenge))
	for _, fn := range b.challenge {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(ch)
	}
}

func (b *Bus) outputSubscribers(id string) []func(string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fns := make([]func(string), 0, len(b.output[id]))
	for _, fn := range b.output[id] {
		fns = append(fns, fn)
	}
	return fns
}
