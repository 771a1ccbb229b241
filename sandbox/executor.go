package sandbox

import (
	"context"
	"os"
	"time"

	"github.com/codeharbor/sandboxexec/cache"
	"github.com/codeharbor/sandboxexec/limiter"
	"github.com/codeharbor/sandboxexec/model"
	"github.com/codeharbor/sandboxexec/rpcbridge"
	"github.com/codeharbor/sandboxexec/sanitize"
	"github.com/codeharbor/sandboxexec/security"
	"github.com/codeharbor/sandboxexec/toolctx"
)

// Executor runs one untrusted code snippet to completion, implementing
// the full §4.6.1 orchestration: validate, cache lookup, limiter
// acquisition, worker spawn, RPC dispatch, result parsing, and cache
// population.
type Executor struct {
	cfg *config

	validator *security.Validator
	limiter   *limiter.Limiter
	cache     *cache.Cache
	sanitizer *sanitize.Sanitizer
	builder   *toolctx.Builder
}

// NewExecutor resolves opts into a config and constructs an Executor,
// matching gojagrpc.New's "resolve every option, validate the
// combination, fail fast" shape.
func NewExecutor(registry map[string]map[string]model.ToolDefinition, opts ...Option) (*Executor, error) {
	cfg, err := resolveConfig(opts)
	if err != nil {
		return nil, err
	}
	if cfg.workerBinary == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, err
		}
		cfg.workerBinary = self
	}

	limiter.SetLogger(cfg.logger)
	lim := limiter.GetInstance(limiter.Config{
		MaxConcurrent:                  cfg.maxConcurrentExecutions,
		MaxTotalMemoryMb:               cfg.maxTotalMemoryMb,
		MemoryPressureThresholdPercent: cfg.memoryPressureThresholdPct,
		DisableMemoryPressureDetection: !cfg.enableMemoryPressureDetection,
	})

	var persistence *cache.PersistenceConfig
	if cfg.cachePersistDir != "" {
		persistence = &cache.PersistenceConfig{Dir: cfg.cachePersistDir}
	}
	resultCache := cache.New(cache.Config{
		Enabled:     cfg.cacheEnabled,
		MaxEntries:  cfg.cacheMaxEntries,
		TTLSeconds:  cfg.cacheTTLSeconds,
		Persistence: persistence,
	})

	return &Executor{
		cfg:       cfg,
		validator: security.New(cfg.securityOpts...),
		limiter:   lim,
		cache:     resultCache,
		sanitizer: sanitize.New(append(append([]string(nil), cfg.allowedReadPaths...), cfg.sanitizerRoots...)...),
		builder:   toolctx.NewBuilder(registry, cfg.vectorSearch),
	}, nil
}

// BuildTools delegates to the Context Builder: up to topK tools
// relevant to intent, selected by the configured VectorSearchProvider.
func (e *Executor) BuildTools(ctx context.Context, intent string, topK int) (model.ToolManifest, error) {
	return e.builder.BuildTools(ctx, intent, topK)
}

// Execute runs one snippet of untrusted code against vars, with manifest
// describing the tool proxies to expose inside the sandbox (typically
// the return value of a prior BuildTools call, or a manifest assembled
// by the embedder directly). It implements every step of §4.6.1 and
// never returns a Go error: all failure modes are represented in the
// returned ExecutionResult's Error field, per the public execute()
// contract.
func (e *Executor) Execute(ctx context.Context, code string, vars model.Context, manifest model.ToolManifest, permission ...PermissionLabel) model.ExecutionResult {
	start := time.Now()
	elapsed := func() int64 { return time.Since(start).Milliseconds() }

	var label PermissionLabel
	if len(permission) > 0 {
		label = permission[0]
	}

	if structErr := e.validator.Validate(code, vars); structErr != nil {
		return model.Fail(structErr, elapsed())
	}

	toolVersions := manifest.ToolVersions()
	key := cache.GenerateKey(code, vars, toolVersions)
	if entry, ok := e.cache.Get(key); ok {
		// entry is already a deep clone (cache.Cache.Get deep-copies
		// Result before returning it), so it's safe to hand this value
		// straight to the caller per spec §4.6.1 step 2 "a deep clone
		// of the cached result" — no aliasing back into the cache.
		cloned := entry.Result
		cloned.ExecutionTimeMs = 0
		return cloned
	}

	token, structErr := e.limiter.Acquire(e.cfg.memoryLimitMb)
	if structErr != nil {
		return model.Fail(structErr, elapsed())
	}
	defer e.limiter.Release(token)

	bootstrap := rpcbridge.BootstrapPayload{
		Code:             code,
		Context:          vars,
		ToolManifest:     manifest,
		TimeoutMs:        e.cfg.timeoutMs,
		AllowedReadPaths: resolveReadPaths(e.cfg, label),
	}

	stdout, spawnErr := e.spawnWorker(ctx, bootstrap, e.cfg.invoker)

	ectx := errorContext{TimeoutMs: e.cfg.timeoutMs, MemoryLimitMb: e.cfg.memoryLimitMb}

	var result model.ExecutionResult
	switch {
	case spawnErr != nil:
		raw := spawnErr.Error()
		if !looksLikeTimeoutExit(spawnErr) {
			raw = userErrorPrefix + ": " + raw
		}
		result = model.Fail(parseError(raw, "", ectx, e.sanitizer), elapsed())

	default:
		output, parseErr := parseOutput(stdout)
		switch {
		case parseErr != nil:
			result = model.Fail(parseError(parseErr.Error(), "", ectx, e.sanitizer), elapsed())
		case !output.Success:
			result = model.Fail(parseError(output.Error, output.ErrorStack, ectx, e.sanitizer), elapsed())
		default:
			result = model.Ok(output.Result, elapsed())
		}
	}

	if result.Success {
		e.cache.Set(key, cache.Entry{
			Code:         code,
			Context:      vars,
			ToolVersions: toolVersions,
			Result:       result,
		})
	}
	return result
}
