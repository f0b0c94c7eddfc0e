package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHooksRunInReverseOrder(t *testing.T) {
	m := New(time.Second, nil)
	var order []string
	m.Register("registry", Func(func() { order = append(order, "registry") }))
	m.Register("api", Func(func() { order = append(order, "api") }))

	require.NoError(t, m.Shutdown())
	assert.Equal(t, []string{"api", "registry"}, order)
}

func TestShutdownRunsOnce(t *testing.T) {
	m := New(time.Second, nil)
	calls := 0
	m.Register("count", Func(func() { calls++ }))

	require.NoError(t, m.Shutdown())
	require.NoError(t, m.Shutdown())
	assert.Equal(t, 1, calls)

	select {
	case <-m.Done():
	default:
		t.Fatal("done channel must be closed after shutdown")
	}
}

func TestFailingHookDoesNotStopOthers(t *testing.T) {
	m := New(time.Second, nil)
	ran := false
	m.Register("first", Func(func() { ran = true }))
	m.Register("broken", func(context.Context) error { return errors.New("busy") })

	err := m.Shutdown()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: busy")
	assert.True(t, ran)
}

func TestHooksShareTimeout(t *testing.T) {
	m := New(20*time.Millisecond, nil)
	m.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	err := m.Shutdown()
	assert.Error(t, err)
}

func TestWaitReturnsOnContext(t *testing.T) {
	m := New(time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Nil(t, m.Wait(ctx))
	<-m.Done()
}

func TestWaitReturnsOnTrigger(t *testing.T) {
	m := New(time.Second, nil)
	go m.Trigger()
	assert.Nil(t, m.Wait(context.Background()))
}
