package backend_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TaylorChen/konnect/internal/backend"
	"github.com/TaylorChen/konnect/internal/session"
)

// telnetParams stands in for a connection kind the backend has no driver
// for yet.
type telnetParams struct{}

func (telnetParams) Kind() session.Kind { return session.KindTelnet }

func TestCreateUnsupportedKind(t *testing.T) {
	m := backend.NewManager(session.NewBus())

	err := m.Create(context.Background(), "t1", telnetParams{})
	require.Error(t, err)

	var uk *session.UnsupportedKindError
	require.True(t, errors.As(err, &uk))
	assert.Equal(t, session.KindTelnet, uk.Kind)
}

func TestCloseUnknownIDIsNoop(t *testing.T) {
	m := backend.NewManager(session.NewBus())

	assert.NoError(t, m.Close(context.Background(), "never-created"))
}

func TestWriteUnknownID(t *testing.T) {
	m := backend.NewManager(session.NewBus())

	err := m.Write(context.Background(), "ghost", []byte("ls\n"))
	assert.Error(t, err)
}

func TestResizeUnknownID(t *testing.T) {
	m := backend.NewManager(session.NewBus())

	err := m.Resize(context.Background(), "ghost", 80, 24)
	assert.Error(t, err)
}

func TestSubmitChallengeWithoutPending(t *testing.T) {
	m := backend.NewManager(session.NewBus())

	err := m.SubmitChallenge(context.Background(), "s1", []string{"123456"})
	assert.Error(t, err)
}

func TestCancelChallengeWithoutPending(t *testing.T) {
	m := backend.NewManager(session.NewBus())

	err := m.CancelChallenge(context.Background(), "s1")
	assert.Error(t, err)
}

func TestShutdownWithNoSessions(t *testing.T) {
	m := backend.NewManager(session.NewBus())
	m.Shutdown()
}
