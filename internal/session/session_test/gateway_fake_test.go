package session_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/TaylorChen/konnect/internal/session"
)

// fakeGateway records every gateway call in order and can be told to fail or
// stall individual operations.
type fakeGateway struct {
	mu sync.Mutex

	calls   []string // op:id, in call order
	creates []string
	writes  []string // id:data
	resizes []string // id:COLSxROWS
	closes  []string
	submits [][]string
	cancels []string

	createErr   error
	writeErr    error
	resizeErr   error
	submitErr   error
	createDelay time.Duration
	closeDelay  time.Duration
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{}
}

func (g *fakeGateway) record(op, id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, op+":"+id)
}

func (g *fakeGateway) Create(ctx context.Context, id string, params session.Params) error {
	if g.createDelay > 0 {
		time.Sleep(g.createDelay)
	}
	g.mu.Lock()
	err := g.createErr
	g.mu.Unlock()
	if err != nil {
		return err
	}
	g.record("create", id)
	g.mu.Lock()
	g.creates = append(g.creates, id)
	g.mu.Unlock()
	return nil
}

func (g *fakeGateway) Write(ctx context.Context, id string, data []byte) error {
	if g.writeErr != nil {
		return g.writeErr
	}
	g.record("write", id)
	g.mu.Lock()
	g.writes = append(g.writes, id+":"+string(data))
	g.mu.Unlock()
	return nil
}

func (g *fakeGateway) Resize(ctx context.Context, id string, cols, rows int) error {
	if g.resizeErr != nil {
		return g.resizeErr
	}
	g.record("resize", id)
	g.mu.Lock()
	g.resizes = append(g.resizes, sizeKey(id, cols, rows))
	g.mu.Unlock()
	return nil
}

func (g *fakeGateway) Close(ctx context.Context, id string) error {
	if g.closeDelay > 0 {
		time.Sleep(g.closeDelay)
	}
	g.record("close", id)
	g.mu.Lock()
	g.closes = append(g.closes, id)
	g.mu.Unlock()
	return nil
}

func (g *fakeGateway) SubmitChallenge(ctx context.Context, id string, responses []string) error {
	g.record("submit", id)
	g.mu.Lock()
	g.submits = append(g.submits, responses)
	err := g.submitErr
	g.mu.Unlock()
	return err
}

func (g *fakeGateway) CancelChallenge(ctx context.Context, id string) error {
	g.record("cancel", id)
	g.mu.Lock()
	g.cancels = append(g.cancels, id)
	g.mu.Unlock()
	return nil
}

func (g *fakeGateway) createCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.creates)
}

func (g *fakeGateway) closeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.closes)
}

func (g *fakeGateway) writeLog() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.writes...)
}

func (g *fakeGateway) resizeLog() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.resizes...)
}

func (g *fakeGateway) callLog() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func (g *fakeGateway) submitCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.submits)
}

func (g *fakeGateway) cancelCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cancels)
}

func (g *fakeGateway) setCreateErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createErr = err
}

func sizeKey(id string, cols, rows int) string {
	return fmt.Sprintf("%s:%dx%d", id, cols, rows)
}

func localParams() session.LocalParams {
	return session.LocalParams{Shell: "/bin/bash", Cols: 80, Rows: 24}
}

func sshParams() session.SSHParams {
	return session.SSHParams{
		Host:     "192.168.1.1",
		Port:     22,
		Username: "admin",
		Auth:     session.PasswordAuth{Secret: "secret"},
		Cols:     80,
		Rows:     24,
	}
}
