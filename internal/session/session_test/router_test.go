package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TaylorChen/konnect/internal/session"
)

// recorder collects delivered events for one attached instance.
type recorder struct {
	mu     sync.Mutex
	chunks []string
	exits  int
}

func (r *recorder) config() session.AttachConfig {
	return session.AttachConfig{
		OnOutput: func(data string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.chunks = append(r.chunks, data)
		},
		OnExit: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.exits++
		},
	}
}

func (r *recorder) output() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.chunks...)
}

func (r *recorder) exitCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exits
}

func TestOutputDeliveredToAttachedInstance(t *testing.T) {
	gw := newFakeGateway()
	bus := session.NewBus()
	coord := session.NewCoordinator(gw, bus)

	rec := &recorder{}
	h, err := coord.Attach(context.Background(), "t1", localParams(), rec.config())
	require.NoError(t, err)
	defer h.Detach()

	bus.PublishOutput("t1", "hello ")
	bus.PublishOutput("t1", "world")
	bus.PublishOutput("t2", "other session")

	assert.Equal(t, []string{"hello ", "world"}, rec.output())
}

func TestExitDeliveredOnce(t *testing.T) {
	gw := newFakeGateway()
	bus := session.NewBus()
	coord := session.NewCoordinator(gw, bus)

	rec := &recorder{}
	h, err := coord.Attach(context.Background(), "t1", localParams(), rec.config())
	require.NoError(t, err)
	defer h.Detach()

	bus.PublishExit("t1")
	assert.Equal(t, 1, rec.exitCount())
}

func TestDetachReleasesListenersSynchronously(t *testing.T) {
	gw := newFakeGateway()
	bus := session.NewBus()
	coord := session.NewCoordinator(gw, bus)

	rec := &recorder{}
	h, err := coord.Attach(context.Background(), "t1", localParams(), rec.config())
	require.NoError(t, err)

	h.Detach()

	bus.PublishOutput("t1", "late chunk")
	bus.PublishExit("t1")

	assert.Empty(t, rec.output(), "listeners must not fire after detach returns")
	assert.Equal(t, 0, rec.exitCount())
}

func TestStaleInstanceNeverHearsNewOutput(t *testing.T) {
	gw := newFakeGateway()
	bus := session.NewBus()
	coord := session.NewCoordinator(gw, bus, session.WithGracePeriod(time.Millisecond))

	recA := &recorder{}
	hA, err := coord.Attach(context.Background(), "t1", localParams(), recA.config())
	require.NoError(t, err)

	hA.Detach()
	// Let the teardown fire so instance B gets a brand new backend handle.
	require.Eventually(t, func() bool { return gw.closeCount() == 1 },
		time.Second, 5*time.Millisecond)

	recB := &recorder{}
	hB, err := coord.Attach(context.Background(), "t1", localParams(), recB.config())
	require.NoError(t, err)
	defer hB.Detach()

	bus.PublishOutput("t1", "for B only")

	assert.Empty(t, recA.output(), "stale listener from A must never fire")
	assert.Equal(t, []string{"for B only"}, recB.output())
}

func TestDetachIdempotent(t *testing.T) {
	gw := newFakeGateway()
	bus := session.NewBus()
	coord := session.NewCoordinator(gw, bus, session.WithGracePeriod(20*time.Millisecond))

	h, err := coord.Attach(context.Background(), "t1", localParams(), session.AttachConfig{})
	require.NoError(t, err)

	h.Detach()
	h.Detach()
	h.Detach()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, gw.closeCount())
}

func TestAttachFailureReleasesSubscriptions(t *testing.T) {
	gw := newFakeGateway()
	gw.setCreateErr(assert.AnError)
	bus := session.NewBus()
	coord := session.NewCoordinator(gw, bus)

	rec := &recorder{}
	_, err := coord.Attach(context.Background(), "t1", localParams(), rec.config())
	require.Error(t, err)

	bus.PublishOutput("t1", "never seen")
	assert.Empty(t, rec.output())
}
