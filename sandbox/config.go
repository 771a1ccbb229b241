package sandbox

import (
	"errors"
	"time"

	"github.com/codeharbor/sandboxexec/security"
	"github.com/codeharbor/sandboxexec/toolctx"
	"github.com/rs/zerolog"
)

const (
	defaultTimeoutMs         = 30_000
	defaultMemoryLimitMb     = 512
	defaultMaxConcurrent     = 10
	defaultMaxTotalMemoryMb  = 3072
	defaultPressureThreshold = 80

	// workerSubcommandSentinel is the hidden argv[1] value MaybeRunWorker
	// recognizes to dispatch into worker.Run instead of the embedder's
	// own CLI, the same "re-exec self as a different role" trick Go's
	// own testing binaries use for subprocess-isolated tests.
	workerSubcommandSentinel = "__sandbox_worker"
)

// config is the resolved, validated configuration an Executor runs
// with. It is unexported; embedders only ever see it through Option.
type config struct {
	timeoutMs        int64
	memoryLimitMb    int64
	allowedReadPaths []string

	maxConcurrentExecutions       int64
	maxTotalMemoryMb              int64
	enableMemoryPressureDetection bool
	memoryPressureThresholdPct    float64

	cacheEnabled       bool
	cacheMaxEntries    int
	cacheTTLSeconds    int64
	cachePersistDir    string

	securityOpts []security.Option

	invoker        ToolInvoker
	vectorSearch   toolctx.VectorSearchProvider
	workerBinary   string
	sanitizerRoots []string
	logger         zerolog.Logger
}

// Option configures an Executor, following the same Option/optionFunc
// idiom goja-grpc uses for its Module (WithChannel, WithProtobuf,
// WithAdapter): an option may fail validation, and NewExecutor resolves
// every option before constructing anything.
type Option interface {
	apply(*config) error
}

type optionFunc func(*config) error

func (f optionFunc) apply(c *config) error { return f(c) }

// WithTimeout sets the per-execution wall-clock deadline.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(c *config) error {
		if d <= 0 {
			return errors.New("sandbox: WithTimeout requires a positive duration")
		}
		c.timeoutMs = d.Milliseconds()
		return nil
	})
}

// WithMemoryLimitMb sets the per-worker heap cap, in MiB.
func WithMemoryLimitMb(mb int64) Option {
	return optionFunc(func(c *config) error {
		if mb <= 0 {
			return errors.New("sandbox: WithMemoryLimitMb requires a positive value")
		}
		c.memoryLimitMb = mb
		return nil
	})
}

// WithAllowedReadPaths sets the filesystem read allow-list. Empty by
// default (no read access at all), per RF-1's deny-by-default posture.
func WithAllowedReadPaths(paths ...string) Option {
	return optionFunc(func(c *config) error {
		c.allowedReadPaths = append([]string(nil), paths...)
		return nil
	})
}

// WithMaxConcurrentExecutions bounds the number of workers running at
// once, enforced by the Resource Limiter.
func WithMaxConcurrentExecutions(n int64) Option {
	return optionFunc(func(c *config) error {
		if n <= 0 {
			return errors.New("sandbox: WithMaxConcurrentExecutions requires a positive value")
		}
		c.maxConcurrentExecutions = n
		return nil
	})
}

// WithMaxTotalMemoryMb bounds the sum of every active worker's
// MemoryLimitMb, enforced by the Resource Limiter.
func WithMaxTotalMemoryMb(mb int64) Option {
	return optionFunc(func(c *config) error {
		if mb <= 0 {
			return errors.New("sandbox: WithMaxTotalMemoryMb requires a positive value")
		}
		c.maxTotalMemoryMb = mb
		return nil
	})
}

// WithMemoryPressureDetection enables or disables the host-heap probe,
// and its trigger threshold as a percentage.
func WithMemoryPressureDetection(enabled bool, thresholdPercent float64) Option {
	return optionFunc(func(c *config) error {
		c.enableMemoryPressureDetection = enabled
		if thresholdPercent > 0 {
			c.memoryPressureThresholdPct = thresholdPercent
		}
		return nil
	})
}

// WithCache enables the Result Cache and sets its capacity/TTL.
func WithCache(enabled bool, maxEntries int, ttl time.Duration) Option {
	return optionFunc(func(c *config) error {
		c.cacheEnabled = enabled
		if maxEntries > 0 {
			c.cacheMaxEntries = maxEntries
		}
		if ttl > 0 {
			c.cacheTTLSeconds = int64(ttl.Seconds())
		}
		return nil
	})
}

// WithCachePersistence enables on-disk persistence of cache entries
// under dir.
func WithCachePersistence(dir string) Option {
	return optionFunc(func(c *config) error {
		if dir == "" {
			return errors.New("sandbox: WithCachePersistence requires a non-empty directory")
		}
		c.cachePersistDir = dir
		return nil
	})
}

// WithSecurityOptions forwards additional security.Option values to the
// underlying Validator (e.g. security.WithMaxCodeLength,
// security.WithCustomPatterns).
func WithSecurityOptions(opts ...security.Option) Option {
	return optionFunc(func(c *config) error {
		c.securityOpts = append(c.securityOpts, opts...)
		return nil
	})
}

// WithToolInvoker configures the host-side collaborator Execute
// dispatches `invoke` frames to. Optional: without one, NewExecutor
// installs an invoker that rejects every call with an MCPToolError, so
// an invoke a snippet sends for an undeclared tool still gets a reply.
func WithToolInvoker(invoker ToolInvoker) Option {
	return optionFunc(func(c *config) error {
		if invoker == nil {
			return errors.New("sandbox: WithToolInvoker requires a non-nil invoker")
		}
		c.invoker = invoker
		return nil
	})
}

// WithVectorSearchProvider configures the optional semantic tool
// selector used by BuildTools. Per RF-2 it is always referenced only by
// interface; nil disables BuildTools entirely (buildTools then always
// returns an empty manifest).
func WithVectorSearchProvider(provider toolctx.VectorSearchProvider) Option {
	return optionFunc(func(c *config) error {
		c.vectorSearch = provider
		return nil
	})
}

// WithWorkerBinary overrides the executable path re-invoked as the
// isolated worker subprocess. Defaults to os.Executable() — this same
// binary, re-exec'd with the hidden worker subcommand, per RF-1.
func WithWorkerBinary(path string) Option {
	return optionFunc(func(c *config) error {
		if path == "" {
			return errors.New("sandbox: WithWorkerBinary requires a non-empty path")
		}
		c.workerBinary = path
		return nil
	})
}

// WithSanitizerRoots adds extra host-root path prefixes the Path
// Sanitizer redacts from surfaced errors/stacks, beyond the user's home
// directory (always included).
func WithSanitizerRoots(roots ...string) Option {
	return optionFunc(func(c *config) error {
		c.sanitizerRoots = append(c.sanitizerRoots, roots...)
		return nil
	})
}

// WithLogger overrides the zerolog.Logger the Executor and its
// Limiter/Cache collaborators log through.
func WithLogger(logger zerolog.Logger) Option {
	return optionFunc(func(c *config) error {
		c.logger = logger
		return nil
	})
}

func resolveConfig(opts []Option) (*config, error) {
	c := &config{
		timeoutMs:                     defaultTimeoutMs,
		memoryLimitMb:                 defaultMemoryLimitMb,
		maxConcurrentExecutions:       defaultMaxConcurrent,
		maxTotalMemoryMb:              defaultMaxTotalMemoryMb,
		enableMemoryPressureDetection: true,
		memoryPressureThresholdPct:    defaultPressureThreshold,
		cacheMaxEntries:               1000,
		cacheTTLSeconds:               3600,
		logger:                        zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(c); err != nil {
			return nil, err
		}
	}
	if c.invoker == nil {
		c.invoker = noopInvoker{}
	}
	return c, nil
}
