package limiter_test

import (
	"testing"

	"github.com/codeharbor/sandboxexec/limiter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(maxConcurrent, maxMemoryMb int64) *limiter.Limiter {
	return limiter.New(limiter.Config{
		MaxConcurrent:                  maxConcurrent,
		MaxTotalMemoryMb:               maxMemoryMb,
		DisableMemoryPressureDetection: true,
	})
}

func TestAcquireRelease_TokenConservation(t *testing.T) {
	l := newTestLimiter(10, 3072)

	var tokens []*limiter.Token
	for i := 0; i < 5; i++ {
		tok, err := l.Acquire(100)
		require.Nil(t, err)
		tokens = append(tokens, tok)
	}
	assert.EqualValues(t, 5, l.GetStats().ActiveExecutions)

	for _, tok := range tokens {
		l.Release(tok)
	}
	assert.EqualValues(t, 0, l.GetStats().ActiveExecutions)
}

func TestRelease_IsIdempotent(t *testing.T) {
	l := newTestLimiter(10, 3072)
	tok, err := l.Acquire(100)
	require.Nil(t, err)

	l.Release(tok)
	statsAfterFirst := l.GetStats()
	l.Release(tok)
	statsAfterSecond := l.GetStats()

	assert.Equal(t, statsAfterFirst, statsAfterSecond)
	assert.EqualValues(t, 0, statsAfterSecond.ActiveExecutions)
}

func TestAcquire_ConcurrentExecutionsLimit(t *testing.T) {
	l := newTestLimiter(2, 3072)

	_, err1 := l.Acquire(10)
	_, err2 := l.Acquire(10)
	require.Nil(t, err1)
	require.Nil(t, err2)

	_, err3 := l.Acquire(10)
	require.NotNil(t, err3)
	assert.Equal(t, limiter.LimitConcurrentExecutions, err3.LimitType)
}

func TestAcquire_TotalMemoryLimit(t *testing.T) {
	l := newTestLimiter(10, 150)

	_, err1 := l.Acquire(100)
	require.Nil(t, err1)

	_, err2 := l.Acquire(100)
	require.NotNil(t, err2)
	assert.Equal(t, limiter.LimitTotalMemory, err2.LimitType)
}

func TestMemoryInvariant_NeverExceedsTotal(t *testing.T) {
	l := newTestLimiter(100, 1000)

	var tokens []*limiter.Token
	for i := 0; i < 20; i++ {
		tok, err := l.Acquire(60)
		if err != nil {
			continue
		}
		tokens = append(tokens, tok)
		assert.LessOrEqual(t, l.GetStats().CurrentAllocatedMemoryMb, int64(1000))
	}
	for _, tok := range tokens {
		l.Release(tok)
	}
}

func TestAcquireWithWait_SucceedsOnceSlotFrees(t *testing.T) {
	l := newTestLimiter(1, 3072)
	tok, err := l.Acquire(10)
	require.Nil(t, err)

	go func() {
		l.Release(tok)
	}()

	got, waitErr := l.AcquireWithWait(10, 2000)
	require.Nil(t, waitErr)
	require.NotNil(t, got)
	l.Release(got)
}

func TestCanAcquire_IsSideEffectFree(t *testing.T) {
	l := newTestLimiter(1, 3072)
	assert.True(t, l.CanAcquire(10))
	assert.True(t, l.CanAcquire(10), "CanAcquire must not reserve a slot")

	tok, err := l.Acquire(10)
	require.Nil(t, err)
	assert.False(t, l.CanAcquire(10))
	l.Release(tok)
}

func TestResetInstance_AllowsReconfiguration(t *testing.T) {
	limiter.ResetInstance()
	inst1 := limiter.GetInstance(limiter.Config{MaxConcurrent: 1, DisableMemoryPressureDetection: true})
	_, err := inst1.Acquire(1)
	require.Nil(t, err)

	limiter.ResetInstance()
	inst2 := limiter.GetInstance(limiter.Config{MaxConcurrent: 5, DisableMemoryPressureDetection: true})
	assert.NotSame(t, inst1, inst2)
	limiter.ResetInstance()
}
