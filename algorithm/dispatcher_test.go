package algorithm

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probelab/probekit/event"
)

func TestRegisterLookup(t *testing.T) {
	d := NewDispatcher(func(context.Context, *event.Event) error { return nil })

	inst := NewInstance(1, "ttl-sweep")
	require.NoError(t, d.Register(inst))
	require.Error(t, d.Register(inst))

	got, ok := d.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, inst, got)

	d.Unregister(1)
	_, ok = d.Lookup(1)
	assert.False(t, ok)
}

func TestDeliveryClosesEvents(t *testing.T) {
	delivered := make(chan *event.Event, 1)
	d := NewDispatcher(func(_ context.Context, ev *event.Event) error {
		delivered <- ev
		return nil
	})

	var released atomic.Int32
	inst := NewInstance(1, "ttl-sweep")
	ev, err := event.New(event.TypeProbeReady, []byte{1, 2}, inst,
		event.WithRelease(func(any) { released.Add(1) }))
	require.NoError(t, err)
	require.NoError(t, d.Post(ev))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx)
	}()

	select {
	case got := <-delivered:
		assert.Equal(t, event.TypeProbeReady, got.Type())
		assert.Equal(t, inst, got.Issuer())
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	// The dispatcher closed the event after handling it.
	assert.Equal(t, int32(1), released.Load())
}

func TestPostQueueFullReleasesPayload(t *testing.T) {
	d := NewDispatcher(
		func(context.Context, *event.Event) error { return nil },
		WithQueueSize(1),
	)

	released := 0
	first, err := event.New(event.TypeLayerChanged, "a", nil)
	require.NoError(t, err)
	require.NoError(t, d.Post(first))

	second, err := event.New(event.TypeLayerChanged, "b", nil,
		event.WithRelease(func(any) { released++ }))
	require.NoError(t, err)

	err = d.Post(second)
	require.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 1, released, "a rejected event must release its payload")
}

func TestRunDrainsOnCancel(t *testing.T) {
	d := NewDispatcher(func(context.Context, *event.Event) error { return nil })

	released := 0
	ev, err := event.New(event.TypeAlgorithmDone, "done", nil,
		event.WithRelease(func(any) { released++ }))
	require.NoError(t, err)
	require.NoError(t, d.Post(ev))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, d.Run(ctx), context.Canceled)

	// Queued events are closed on shutdown so payloads are not leaked.
	assert.Equal(t, 1, released)
}
