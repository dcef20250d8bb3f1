package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TaylorChen/konnect/internal/session"
)

func TestEnsureCreatedIdempotent(t *testing.T) {
	gw := newFakeGateway()
	coord := session.NewCoordinator(gw, session.NewBus())

	require.NoError(t, coord.EnsureCreated(context.Background(), "t1", localParams()))
	require.NoError(t, coord.EnsureCreated(context.Background(), "t1", localParams()))

	assert.Equal(t, 1, gw.createCount(), "second EnsureCreated must not reach the backend")
	assert.True(t, coord.Live("t1"))
}

func TestEnsureCreatedDistinctIDs(t *testing.T) {
	gw := newFakeGateway()
	coord := session.NewCoordinator(gw, session.NewBus())

	require.NoError(t, coord.EnsureCreated(context.Background(), "t1", localParams()))
	require.NoError(t, coord.EnsureCreated(context.Background(), "t2", localParams()))

	assert.Equal(t, 2, gw.createCount())
}

func TestCreateFailureLeavesRecordAbsent(t *testing.T) {
	gw := newFakeGateway()
	gw.setCreateErr(errors.New("connection refused"))
	coord := session.NewCoordinator(gw, session.NewBus())

	err := coord.EnsureCreated(context.Background(), "t1", localParams())
	require.Error(t, err)

	var cerr *session.CreationError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "t1", cerr.ID)
	assert.False(t, coord.Live("t1"), "failed create must not leave a live record")

	// Explicit retry goes back to the backend.
	gw.setCreateErr(nil)
	require.NoError(t, coord.EnsureCreated(context.Background(), "t1", localParams()))
	assert.Equal(t, 1, gw.createCount())
	assert.True(t, coord.Live("t1"))
}

func TestReattachWithinGraceCancelsTeardown(t *testing.T) {
	gw := newFakeGateway()
	coord := session.NewCoordinator(gw, session.NewBus(), session.WithGracePeriod(100*time.Millisecond))

	h, err := coord.Attach(context.Background(), "t1", localParams(), session.AttachConfig{})
	require.NoError(t, err)

	// Detach at time 0, reattach well inside the grace window.
	h.Detach()
	time.Sleep(20 * time.Millisecond)

	h2, err := coord.Attach(context.Background(), "t1", localParams(), session.AttachConfig{})
	require.NoError(t, err)
	defer h2.Detach()

	time.Sleep(250 * time.Millisecond)

	assert.Equal(t, 0, gw.closeCount(), "reattach within grace must cancel the pending close")
	assert.Equal(t, 1, gw.createCount(), "the original handle must be reused")
	assert.True(t, coord.Live("t1"))
}

func TestTeardownFiresAfterGrace(t *testing.T) {
	gw := newFakeGateway()
	coord := session.NewCoordinator(gw, session.NewBus(), session.WithGracePeriod(30*time.Millisecond))

	h, err := coord.Attach(context.Background(), "t1", localParams(), session.AttachConfig{})
	require.NoError(t, err)

	h.Detach()
	time.Sleep(150 * time.Millisecond)

	assert.Equal(t, 1, gw.closeCount(), "teardown must close exactly once")
	assert.False(t, coord.Live("t1"), "record removed when teardown executes")
}

func TestSharedSessionSurvivesSingleDetach(t *testing.T) {
	gw := newFakeGateway()
	bus := session.NewBus()
	coord := session.NewCoordinator(gw, bus, session.WithGracePeriod(20*time.Millisecond))

	// Two views of the same saved connection share one backend session.
	recA := &recorder{}
	hA, err := coord.Attach(context.Background(), "t1", localParams(), recA.config())
	require.NoError(t, err)

	recB := &recorder{}
	hB, err := coord.Attach(context.Background(), "t1", localParams(), recB.config())
	require.NoError(t, err)

	assert.Equal(t, 1, gw.createCount(), "second view reuses the existing backend")

	hA.Detach()
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 0, gw.closeCount(), "backend must outlive the surviving view")
	assert.True(t, coord.Live("t1"))

	bus.PublishOutput("t1", "still here")
	assert.Equal(t, []string{"still here"}, recB.output())
	assert.Empty(t, recA.output(), "the detached view hears nothing")

	// Last one out arms the teardown.
	hB.Detach()
	require.Eventually(t, func() bool { return gw.closeCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, coord.Live("t1"))
}

func TestScheduleTeardownWhileAttachedNoop(t *testing.T) {
	gw := newFakeGateway()
	coord := session.NewCoordinator(gw, session.NewBus(), session.WithGracePeriod(10*time.Millisecond))

	h, err := coord.Attach(context.Background(), "t1", localParams(), session.AttachConfig{})
	require.NoError(t, err)

	coord.ScheduleTeardown("t1")
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, 0, gw.closeCount(), "a live attachment blocks the teardown timer")
	assert.True(t, coord.Live("t1"))

	h.Detach()
	require.Eventually(t, func() bool { return gw.closeCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestAttachFailureDoesNotPinAttachment(t *testing.T) {
	gw := newFakeGateway()
	gw.setCreateErr(errors.New("connection refused"))
	coord := session.NewCoordinator(gw, session.NewBus(), session.WithGracePeriod(10*time.Millisecond))

	_, err := coord.Attach(context.Background(), "t1", localParams(), session.AttachConfig{})
	require.Error(t, err)

	// Had the failed attach leaked its attachment count, the successful
	// view's detach below could never arm the teardown.
	gw.setCreateErr(nil)
	h, err := coord.Attach(context.Background(), "t1", localParams(), session.AttachConfig{})
	require.NoError(t, err)

	h.Detach()
	require.Eventually(t, func() bool { return gw.closeCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestScheduleTeardownAtMostOneTimer(t *testing.T) {
	gw := newFakeGateway()
	coord := session.NewCoordinator(gw, session.NewBus(), session.WithGracePeriod(30*time.Millisecond))

	require.NoError(t, coord.EnsureCreated(context.Background(), "t1", localParams()))
	coord.ScheduleTeardown("t1")
	coord.ScheduleTeardown("t1")

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, 1, gw.closeCount())
}

func TestScheduleTeardownUnknownIDNoop(t *testing.T) {
	gw := newFakeGateway()
	coord := session.NewCoordinator(gw, session.NewBus(), session.WithGracePeriod(10*time.Millisecond))

	coord.ScheduleTeardown("ghost")
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 0, gw.closeCount())
}

func TestCancelTeardownWithoutPendingNoop(t *testing.T) {
	gw := newFakeGateway()
	coord := session.NewCoordinator(gw, session.NewBus())

	coord.CancelTeardown("t1") // nothing armed, nothing happens
	assert.Equal(t, 0, gw.closeCount())
}

func TestInFlightCloseBlocksRecreate(t *testing.T) {
	gw := newFakeGateway()
	gw.closeDelay = 100 * time.Millisecond
	coord := session.NewCoordinator(gw, session.NewBus(), session.WithGracePeriod(time.Millisecond))

	h, err := coord.Attach(context.Background(), "t1", localParams(), session.AttachConfig{})
	require.NoError(t, err)
	h.Detach()

	// Let the teardown fire and get stuck inside the slow close.
	time.Sleep(30 * time.Millisecond)

	h2, err := coord.Attach(context.Background(), "t1", localParams(), session.AttachConfig{})
	require.NoError(t, err)
	defer h2.Detach()

	// The in-flight close is authoritative: the reattach waits it out and
	// then creates a fresh handle.
	assert.Equal(t, []string{"create:t1", "close:t1", "create:t1"}, gw.callLog())
	assert.True(t, coord.Live("t1"))
}

func TestEnsureCreatedWaitBlockedByCloseHonorsContext(t *testing.T) {
	gw := newFakeGateway()
	gw.closeDelay = 200 * time.Millisecond
	coord := session.NewCoordinator(gw, session.NewBus(), session.WithGracePeriod(time.Millisecond))

	require.NoError(t, coord.EnsureCreated(context.Background(), "t1", localParams()))
	coord.ScheduleTeardown("t1")
	time.Sleep(30 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := coord.EnsureCreated(ctx, "t1", localParams())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
