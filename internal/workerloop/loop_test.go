package workerloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunUntil_FiresTimerInOrder(t *testing.T) {
	l := NewLoop()
	var order []string

	l.SetTimeout(20*time.Millisecond, func() { order = append(order, "second") })
	l.SetTimeout(5*time.Millisecond, func() { order = append(order, "first") })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := l.RunUntil(ctx, func() bool { return len(order) == 2 })
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestRunUntil_DrainsMicrotasksBeforeTimers(t *testing.T) {
	l := NewLoop()
	var order []string

	l.SetTimeout(0, func() { order = append(order, "timer") })
	l.QueueMicrotask(func() { order = append(order, "microtask") })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := l.RunUntil(ctx, func() bool { return len(order) == 2 })
	require.NoError(t, err)
	assert.Equal(t, []string{"microtask", "timer"}, order)
}

func TestClear_CancelsPendingTimer(t *testing.T) {
	l := NewLoop()
	fired := false
	id := l.SetTimeout(5*time.Millisecond, func() { fired = true })
	l.Clear(id)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_ = l.RunUntil(ctx, func() bool { return false })

	assert.False(t, fired)
}

func TestPost_DeliversExternalWorkToLoopGoroutine(t *testing.T) {
	l := NewLoop()
	done := false
	go l.Post(func() { done = true })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := l.RunUntil(ctx, func() bool { return done })
	require.NoError(t, err)
	assert.True(t, done)
}

func TestRunUntil_ReturnsContextErrorOnCancellation(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.RunUntil(ctx, func() bool { return false })
	assert.Error(t, err)
}

func TestSetInterval_FiresRepeatedly(t *testing.T) {
	l := NewLoop()
	count := 0
	l.SetInterval(2*time.Millisecond, func() { count++ })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := l.RunUntil(ctx, func() bool { return count >= 3 })
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, 3)
}
