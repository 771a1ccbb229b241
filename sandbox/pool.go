package sandbox

import (
	"context"

	"github.com/codeharbor/sandboxexec/model"
	"golang.org/x/sync/errgroup"
)

// Pool runs many Execute calls concurrently against a shared Executor,
// bounding in-flight goroutines independently of (and beneath) the
// Resource Limiter's own admission control: the Limiter decides whether
// an individual execution may proceed at all, while Pool decides how
// many goroutines are even allowed to be mid-call at once, so a caller
// firing off thousands of snippets doesn't spin up thousands of
// concurrent Execute goroutines at once. Grounded on the host-side
// "task pool" described in spec §5, using golang.org/x/sync/errgroup for
// supervised fan-out/cancellation the way the teacher's root module
// already depends on (indirectly) for its own concurrent test harnesses.
type Pool struct {
	exec  *Executor
	limit int
}

// NewPool constructs a Pool bounded to maxInFlight concurrent Execute
// calls. maxInFlight <= 0 means unbounded (errgroup.SetLimit(-1)).
func NewPool(exec *Executor, maxInFlight int) *Pool {
	return &Pool{exec: exec, limit: maxInFlight}
}

// Job is one unit of work submitted to Run.
type Job struct {
	Code     string
	Vars     model.Context
	Manifest model.ToolManifest
}

// Run executes every job concurrently, bounded by the Pool's limit, and
// returns one ExecutionResult per job in submission order. Run itself
// never fails: per-job failures are carried inside each ExecutionResult,
// matching execute()'s "never returns a Go error" contract. Run returns
// a non-nil error only if ctx is cancelled before every job completes.
func (p *Pool) Run(ctx context.Context, jobs []Job) ([]model.ExecutionResult, error) {
	results := make([]model.ExecutionResult, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	if p.limit > 0 {
		g.SetLimit(p.limit)
	}

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			results[i] = p.exec.Execute(gctx, job.Code, job.Vars, job.Manifest)
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
