package limiter

import (
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codeharbor/sandboxexec/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Limit type identifiers, surfaced on a ResourceLimitError.
const (
	LimitConcurrentExecutions = "CONCURRENT_EXECUTIONS"
	LimitTotalMemory          = "TOTAL_MEMORY"
	LimitMemoryPressure       = "MEMORY_PRESSURE"
	LimitAcquireTimeout       = "ACQUIRE_TIMEOUT"
)

const (
	defaultMaxConcurrent            = 10
	defaultMaxTotalMemoryMb         = 3072
	defaultPressureThresholdPercent = 80
	pollInterval                    = 100 * time.Millisecond
)

// Token is the Limiter's bookkeeping object for one in-flight
// execution's reservation. It is owned exclusively by the caller that
// acquired it; Release is idempotent, matching spec invariant "double-
// release is a no-op".
type Token struct {
	ID            string
	StartTime     time.Time
	MemoryLimitMb int64

	released atomic.Bool
}

// Stats is the snapshot returned by GetStats.
type Stats struct {
	ActiveExecutions          int64
	TotalExecutions           int64
	RejectedExecutions        int64
	CurrentAllocatedMemoryMb  int64
	AvailableSlots            int64
	MemoryPressureDetected    bool
}

// Config configures a Limiter. A zero-value Config produces the spec
// defaults.
type Config struct {
	MaxConcurrent                  int64
	MaxTotalMemoryMb               int64
	MemoryPressureThresholdPercent float64

	// DisableMemoryPressureDetection turns off the host-heap probe,
	// which is otherwise enabled by default per spec §6
	// ("enableMemoryPressureDetection (default true)").
	DisableMemoryPressureDetection bool
}

// Limiter is a process-wide admission gate. The zero value is not
// usable; construct with New or reach the process-wide singleton via
// GetInstance.
type Limiter struct {
	maxConcurrent            int64
	maxTotalMemoryMb         int64
	pressureEnabled          bool
	pressureThresholdPercent float64

	mu                 sync.Mutex
	active             map[string]*Token
	currentAllocatedMb int64

	totalExecutions    atomic.Int64
	rejectedExecutions atomic.Int64

	now func() time.Time
}

// New constructs a standalone Limiter from cfg. Most callers should use
// GetInstance instead, since the spec models the Limiter as a process-
// wide singleton; New exists for tests and for embedders that
// deliberately want more than one independent quota domain.
func New(cfg Config) *Limiter {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	maxTotalMemoryMb := cfg.MaxTotalMemoryMb
	if maxTotalMemoryMb <= 0 {
		maxTotalMemoryMb = defaultMaxTotalMemoryMb
	}
	threshold := cfg.MemoryPressureThresholdPercent
	if threshold <= 0 {
		threshold = defaultPressureThresholdPercent
	}
	return &Limiter{
		maxConcurrent:            maxConcurrent,
		maxTotalMemoryMb:         maxTotalMemoryMb,
		pressureEnabled:          !cfg.DisableMemoryPressureDetection,
		pressureThresholdPercent: threshold,
		active:                   map[string]*Token{},
		now:                      time.Now,
	}
}

var (
	instanceMu sync.Mutex
	instance   *Limiter
)

// GetInstance returns the process-wide Limiter singleton, constructing
// it from cfg on first use. Subsequent calls ignore cfg and return the
// existing instance; use ResetInstance to force reconstruction (test
// harnesses only, per spec §4.3 "Singleton reset only for test
// harnesses").
func GetInstance(cfg Config) *Limiter {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance == nil {
		instance = New(cfg)
	}
	return instance
}

// ResetInstance discards the process-wide singleton so the next
// GetInstance call reconstructs it from scratch.
func ResetInstance() {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	instance = nil
}

// CanAcquire is a side-effect-free precheck: it reports whether acquire
// would currently succeed for memoryLimitMb, without reserving
// anything.
func (l *Limiter) CanAcquire(memoryLimitMb int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.canAcquireLocked(memoryLimitMb)
}

func (l *Limiter) canAcquireLocked(memoryLimitMb int64) bool {
	if int64(len(l.active)) >= l.maxConcurrent {
		return false
	}
	if l.currentAllocatedMb+memoryLimitMb > l.maxTotalMemoryMb {
		return false
	}
	if l.pressureEnabled && memoryPressureDetected(l.pressureThresholdPercent) {
		return false
	}
	return true
}

// Acquire reserves memoryLimitMb of the total-memory quota and one slot
// of the concurrency quota, atomically with respect to every other
// Acquire/Release. On success it returns a Token the caller must
// eventually Release. On failure it returns a *model.StructuredError of
// type ResourceLimitError describing which check failed.
func (l *Limiter) Acquire(memoryLimitMb int64) (*Token, *model.StructuredError) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if int64(len(l.active)) >= l.maxConcurrent {
		l.rejectedExecutions.Add(1)
		current := int64(len(l.active))
		logRejection(LimitConcurrentExecutions, current, l.maxConcurrent)
		return nil, model.NewResourceLimitError(
			LimitConcurrentExecutions,
			"maximum concurrent executions reached",
			current, l.maxConcurrent,
		)
	}
	if l.currentAllocatedMb+memoryLimitMb > l.maxTotalMemoryMb {
		l.rejectedExecutions.Add(1)
		logRejection(LimitTotalMemory, l.currentAllocatedMb, l.maxTotalMemoryMb)
		return nil, model.NewResourceLimitError(
			LimitTotalMemory,
			"maximum total memory allocation reached",
			l.currentAllocatedMb, l.maxTotalMemoryMb,
		)
	}
	if l.pressureEnabled && memoryPressureDetected(l.pressureThresholdPercent) {
		l.rejectedExecutions.Add(1)
		logRejection(LimitMemoryPressure, int64(l.pressureThresholdPercent), 100)
		return nil, model.NewResourceLimitError(
			LimitMemoryPressure,
			"host memory pressure detected",
			int64(l.pressureThresholdPercent), 100,
		)
	}

	tok := &Token{
		ID:            uuid.NewString(),
		StartTime:     l.now(),
		MemoryLimitMb: memoryLimitMb,
	}
	l.active[tok.ID] = tok
	l.currentAllocatedMb += memoryLimitMb
	l.totalExecutions.Add(1)
	return tok, nil
}

// AcquireWithWait polls Acquire at ~100ms intervals until it succeeds or
// timeoutMs elapses, at which point it fails with ACQUIRE_TIMEOUT.
func (l *Limiter) AcquireWithWait(memoryLimitMb int64, timeoutMs int64) (*Token, *model.StructuredError) {
	deadline := l.now().Add(time.Duration(timeoutMs) * time.Millisecond)
	for {
		tok, err := l.Acquire(memoryLimitMb)
		if err == nil {
			return tok, nil
		}
		if l.now().After(deadline) {
			l.rejectedExecutions.Add(1)
			return nil, model.NewResourceLimitError(
				LimitAcquireTimeout,
				"timed out waiting for a resource slot",
				timeoutMs, timeoutMs,
			)
		}
		time.Sleep(pollInterval)
	}
}

// Release frees the token's reservation. It is idempotent: releasing an
// already-released (or unknown) token is a no-op, matching spec
// invariant "double-release is a no-op".
func (l *Limiter) Release(tok *Token) {
	if tok == nil || !tok.released.CompareAndSwap(false, true) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.active[tok.ID]; !ok {
		return
	}
	delete(l.active, tok.ID)
	l.currentAllocatedMb -= tok.MemoryLimitMb
	if l.currentAllocatedMb < 0 {
		l.currentAllocatedMb = 0
	}
}

// GetStats returns a point-in-time snapshot of the Limiter's counters.
func (l *Limiter) GetStats() Stats {
	l.mu.Lock()
	active := int64(len(l.active))
	allocated := l.currentAllocatedMb
	maxConcurrent := l.maxConcurrent
	pressureEnabled := l.pressureEnabled
	threshold := l.pressureThresholdPercent
	l.mu.Unlock()

	return Stats{
		ActiveExecutions:         active,
		TotalExecutions:          l.totalExecutions.Load(),
		RejectedExecutions:       l.rejectedExecutions.Load(),
		CurrentAllocatedMemoryMb: allocated,
		AvailableSlots:           maxConcurrent - active,
		MemoryPressureDetected:   pressureEnabled && memoryPressureDetected(threshold),
	}
}

// memoryPressureDetected queries the host's current heap usage via
// runtime.MemStats and fails open (returns false) if the measurement
// itself is unavailable or nonsensical, per spec §4.3 "fail-open on
// query failure (availability over strictness)".
func memoryPressureDetected(thresholdPercent float64) bool {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	limit := debug.SetMemoryLimit(-1) // read-only query, per debug.SetMemoryLimit docs
	if limit <= 0 || limit == int64(^uint64(0)>>1) {
		// No GOMEMLIMIT configured; nothing sensible to compare
		// against, so fail open.
		return false
	}
	used := float64(stats.HeapAlloc)
	pct := used / float64(limit) * 100
	return pct >= thresholdPercent
}

func logRejection(limitType string, current, max int64) {
	log.Warn().
		Str("event", "resource_limit_rejected").
		Str("limitType", limitType).
		Int64("current", current).
		Int64("max", max).
		Msg("execution admission rejected")
}

// SetLogger allows an embedder to redirect warn-level rejection events
// to a configured zerolog.Logger instead of the global log.Logger.
func SetLogger(l zerolog.Logger) {
	log.Logger = l
}
