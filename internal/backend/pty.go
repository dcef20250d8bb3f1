// pty.go - Local shell sessions over a platform PTY
package backend

import (
	"log"
	"sync"

	"github.com/TaylorChen/konnect/internal/session"
)

// ptyHandle abstracts the platform PTY (creack/pty on Unix, ConPTY on
// Windows).
type ptyHandle interface {
	Write([]byte) (int, error)
	Read([]byte) (int, error)
	Close() error
	Resize(cols, rows int) error
}

// localSession runs one local shell behind a PTY and pumps its output onto
// the bus.
type localSession struct {
	id  string
	pty ptyHandle
	bus *session.Bus

	exitOnce sync.Once
}

func newLocalSession(id string, params session.LocalParams, bus *session.Bus) (*localSession, error) {
	if params.Cols <= 0 {
		params.Cols = 80
	}
	if params.Rows <= 0 {
		params.Rows = 24
	}

	pty, err := startPTY(params)
	if err != nil {
		return nil, err
	}

	s := &localSession{
		id:  id,
		pty: pty,
		bus: bus,
	}

	go s.readLoop()

	log.Printf("PTY: session %s started (%dx%d)", id, params.Cols, params.Rows)
	return s, nil
}

// readLoop pumps PTY output to the bus until the shell exits. Runs as the
// only publisher for this id, which keeps per-id chunk ordering.
func (s *localSession) readLoop() {
	buf := make([]byte, 8192)
	for {
		n, err := s.pty.Read(buf)
		if n > 0 {
			s.bus.PublishOutput(s.id, string(buf[:n]))
		}
		if err != nil {
			log.Printf("PTY: session %s read ended: %v", s.id, err)
			s.publishExit()
			return
		}
	}
}

func (s *localSession) publishExit() {
	s.exitOnce.Do(func() {
		s.bus.PublishExit(s.id)
	})
}

func (s *localSession) write(data []byte) error {
	_, err := s.pty.Write(data)
	return err
}

func (s *localSession) resize(cols, rows int) error {
	return s.pty.Resize(cols, rows)
}

func (s *localSession) close() error {
	return s.pty.Close()
}
