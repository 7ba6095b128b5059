package broadcast_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stijnveenman/pigeon/internal/broadcast"
)

func TestSendAndRecv(t *testing.T) {
	bus := broadcast.New()
	sub := bus.Subscribe()

	bus.Send(broadcast.Message{PartitionID: 0, Offset: 1})

	msg, lagged, ok := sub.Recv(nil)
	require.True(t, ok)
	require.False(t, lagged)
	require.Equal(t, uint64(1), msg.Offset)
}

func TestSubscribeOnlySeesFutureMessages(t *testing.T) {
	bus := broadcast.New()
	bus.Send(broadcast.Message{Offset: 1})

	sub := bus.Subscribe()
	bus.Send(broadcast.Message{Offset: 2})

	msg, _, ok := sub.Recv(nil)
	require.True(t, ok)
	require.Equal(t, uint64(2), msg.Offset)
}

func TestLaggedSubscriberDropsOldest(t *testing.T) {
	bus := broadcast.New()
	sub := bus.Subscribe()

	for i := uint64(0); i < broadcast.Capacity+3; i++ {
		bus.Send(broadcast.Message{Offset: i})
	}

	msg, lagged, ok := sub.Recv(nil)
	require.True(t, ok)
	require.True(t, lagged)
	require.Equal(t, uint64(3), msg.Offset)
}

func TestRecvUnblocksOnStop(t *testing.T) {
	bus := broadcast.New()
	sub := bus.Subscribe()

	stop := make(chan struct{})
	done := make(chan struct{})
	var ok bool
	go func() {
		_, _, ok = sub.Recv(stop)
		close(done)
	}()

	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Recv did not unblock on stop")
	}
	require.False(t, ok)
}

func TestRecvUnblocksOnClose(t *testing.T) {
	bus := broadcast.New()
	sub := bus.Subscribe()

	done := make(chan struct{})
	var ok bool
	go func() {
		_, _, ok = sub.Recv(nil)
		close(done)
	}()

	bus.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Recv did not unblock on close")
	}
	require.False(t, ok)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := broadcast.New()
	sub := bus.Subscribe()
	sub.Unsubscribe()

	bus.Send(broadcast.Message{Offset: 1})

	stop := make(chan struct{})
	close(stop)
	_, _, ok := sub.Recv(stop)
	require.False(t, ok)
}
