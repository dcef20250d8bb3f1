// Package backend implements the session gateway against real drivers: a
// local PTY (creack/pty on Unix, ConPTY on Windows) and SSH over
// golang.org/x/crypto/ssh. Each running session feeds its output and exit
// events onto the shared bus; keyboard-interactive authentication is bridged
// onto the bus as MFA challenges and answered through the gateway's
// challenge operations.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/TaylorChen/konnect/internal/session"
)

// challengeTimeout bounds how long an SSH authentication waits for the user
// to answer a keyboard-interactive challenge.
const challengeTimeout = 2 * time.Minute

// driver is one running backend handle.
type driver interface {
	write(data []byte) error
	resize(cols, rows int) error
	close() error
}

// Manager owns the running backend handles and implements session.Gateway.
type Manager struct {
	bus *session.Bus

	mu       sync.Mutex
	sessions map[string]driver
	mfa      map[string]chan []string
}

// NewManager creates a backend manager publishing onto bus.
func NewManager(bus *session.Bus) *Manager {
	return &Manager{
		bus:      bus,
		sessions: make(map[string]driver),
		mfa:      make(map[string]chan []string),
	}
}

var _ session.Gateway = (*Manager)(nil)

// Create starts the driver selected by the params' kind. Creating an id that
// is already running is a no-op, matching the gateway contract.
func (m *Manager) Create(ctx context.Context, id string, params session.Params) error {
	m.mu.Lock()
	if _, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		log.Printf("Backend: session %s already running, skipping create", id)
		return nil
	}
	m.mu.Unlock()

	var (
		d   driver
		err error
	)
	switch p := params.(type) {
	case session.LocalParams:
		d, err = newLocalSession(id, p, m.bus)
	case session.SSHParams:
		d, err = newSSHSession(ctx, id, p, m)
	default:
		return &session.UnsupportedKindError{Kind: params.Kind()}
	}
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.sessions[id] = d
	m.mu.Unlock()
	return nil
}

// Write delivers input to the running driver for id.
func (m *Manager) Write(ctx context.Context, id string, data []byte) error {
	d, err := m.lookup(id)
	if err != nil {
		return err
	}
	return d.write(data)
}

// Resize pushes new dimensions to the running driver for id.
func (m *Manager) Resize(ctx context.Context, id string, cols, rows int) error {
	d, err := m.lookup(id)
	if err != nil {
		return err
	}
	return d.resize(cols, rows)
}

// Close destroys the driver for id and forgets it. Closing an unknown id is
// a no-op, mirroring Create's idempotence.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	d, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return d.close()
}

// SubmitChallenge hands the user's responses to the authentication attempt
// waiting on them. The pending slot is consumed either way.
func (m *Manager) SubmitChallenge(ctx context.Context, id string, responses []string) error {
	m.mu.Lock()
	ch, ok := m.mfa[id]
	delete(m.mfa, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("no pending challenge for session %s", id)
	}
	ch <- responses
	return nil
}

// CancelChallenge abandons the pending challenge for id, failing the
// authentication attempt waiting on it.
func (m *Manager) CancelChallenge(ctx context.Context, id string) error {
	m.mu.Lock()
	ch, ok := m.mfa[id]
	delete(m.mfa, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("no pending challenge for session %s", id)
	}
	close(ch)
	return nil
}

// Shutdown closes every running session. Used on app exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	drivers := make([]driver, 0, len(m.sessions))
	for id, d := range m.sessions {
		drivers = append(drivers, d)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, d := range drivers {
		wg.Add(1)
		go func(d driver) {
			defer wg.Done()
			if err := d.close(); err != nil {
				log.Printf("Backend: close during shutdown: %v", err)
			}
		}(d)
	}
	wg.Wait()
}

func (m *Manager) lookup(id string) (driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s not found", id)
	}
	return d, nil
}

// awaitChallenge publishes a challenge on the bus and blocks until the user
// answers, cancels, or the timeout elapses. Called from an authentication
// goroutine mid-handshake.
func (m *Manager) awaitChallenge(id string, ch session.Challenge) ([]string, error) {
	respCh := make(chan []string, 1)

	m.mu.Lock()
	if _, ok := m.mfa[id]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("challenge already pending for session %s", id)
	}
	m.mfa[id] = respCh
	m.mu.Unlock()

	log.Printf("Backend: publishing MFA challenge for %s (%d prompts)", id, len(ch.Prompts))
	m.bus.PublishChallenge(ch)

	select {
	case responses, ok := <-respCh:
		if !ok {
			return nil, errors.New("challenge cancelled by user")
		}
		return responses, nil
	case <-time.After(challengeTimeout):
		m.mu.Lock()
		delete(m.mfa, id)
		m.mu.Unlock()
		return nil, errors.New("challenge response timed out")
	}
}
