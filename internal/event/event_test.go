package event

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Event_initiallyUnset(t *testing.T) {
	e := New()
	assert.False(t, e.IsSet())
}

func Test_Event_SetThenIsSet(t *testing.T) {
	e := New()
	e.Set()
	assert.True(t, e.IsSet())
}

func Test_Event_SetIsIdempotent(t *testing.T) {
	e := New()
	assert.NotPanics(t, func() {
		e.Set()
		e.Set()
	})
	assert.True(t, e.IsSet())
}

func Test_Event_ClearResets(t *testing.T) {
	e := New()
	e.Set()
	e.Clear()
	assert.False(t, e.IsSet())

	assert.NotPanics(t, func() { e.Clear() })
}

func Test_Event_Wait_returnsOnceSet(t *testing.T) {
	e := New()

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		done <- e.Wait(ctx)
	}()

	time.Sleep(10 * time.Millisecond)
	e.Set()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Set")
	}
}

func Test_Event_Wait_respectsContextCancellation(t *testing.T) {
	e := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func Test_Event_Wait_canBeReWaitedAfterClear(t *testing.T) {
	e := New()
	e.Set()

	ctx := context.Background()
	require.NoError(t, e.Wait(ctx))

	e.Clear()

	ctx2, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := e.Wait(ctx2)
	assert.Error(t, err, "Wait must block again after Clear")
}
