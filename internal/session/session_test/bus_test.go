package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TaylorChen/konnect/internal/session"
)

func TestBusRoutesOutputByID(t *testing.T) {
	bus := session.NewBus()

	var got1, got2 []string
	cancel1 := bus.SubscribeOutput("t1", func(data string) { got1 = append(got1, data) })
	defer cancel1()
	cancel2 := bus.SubscribeOutput("t2", func(data string) { got2 = append(got2, data) })
	defer cancel2()

	bus.PublishOutput("t1", "a")
	bus.PublishOutput("t2", "b")
	bus.PublishOutput("t1", "c")

	assert.Equal(t, []string{"a", "c"}, got1)
	assert.Equal(t, []string{"b"}, got2)
}

func TestBusMultipleListenersSameID(t *testing.T) {
	bus := session.NewBus()

	var first, second int
	defer bus.SubscribeOutput("t1", func(string) { first++ })()
	defer bus.SubscribeOutput("t1", func(string) { second++ })()

	bus.PublishOutput("t1", "chunk")

	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
}

func TestBusCancelStopsDelivery(t *testing.T) {
	bus := session.NewBus()

	var exits int
	cancel := bus.SubscribeExit("t1", func() { exits++ })

	bus.PublishExit("t1")
	cancel()
	bus.PublishExit("t1")

	assert.Equal(t, 1, exits)
}

func TestBusCancelIdempotent(t *testing.T) {
	bus := session.NewBus()

	cancel := bus.SubscribeOutput("t1", func(string) {})
	cancel()
	cancel()

	bus.PublishOutput("t1", "chunk")
}

func TestBusChallengeBroadcast(t *testing.T) {
	bus := session.NewBus()

	var seen []string
	defer bus.SubscribeChallenge(func(ch session.Challenge) {
		seen = append(seen, "a:"+ch.SessionID)
	})()
	defer bus.SubscribeChallenge(func(ch session.Challenge) {
		seen = append(seen, "b:"+ch.SessionID)
	})()

	bus.PublishChallenge(session.Challenge{SessionID: "s1"})

	// Every challenge listener hears every challenge; filtering by session
	// id happens at the receiver.
	assert.ElementsMatch(t, []string{"a:s1", "b:s1"}, seen)
}

func TestBusPublishWithNoListeners(t *testing.T) {
	bus := session.NewBus()

	bus.PublishOutput("ghost", "chunk")
	bus.PublishExit("ghost")
	bus.PublishChallenge(session.Challenge{SessionID: "ghost"})
}
