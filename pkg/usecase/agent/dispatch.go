package agent

import (
	"context"
	"time"

	"github.com/m-mizutani/dossier/pkg/cache"
	"github.com/m-mizutani/dossier/pkg/model"
	"github.com/m-mizutani/dossier/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

// dispatch runs one iteration's calls concurrently and returns their steps in
// request order
func (a *Agent) dispatch(ctx context.Context, iteration int, calls []model.ToolCall) []model.Step {
	steps := make([]model.Step, len(calls))

	var eg errgroup.Group
	eg.SetLimit(a.parallelism)
	for i, call := range calls {
		eg.Go(func() error {
			steps[i] = a.execute(ctx, iteration, call)
			return nil
		})
	}
	_ = eg.Wait()

	return steps
}

func (a *Agent) execute(ctx context.Context, iteration int, call model.ToolCall) model.Step {
	step := model.Step{Iteration: iteration, Call: call}
	logger := logging.From(ctx).With("tool", call.Name, "iteration", iteration)

	prepared, failure := a.registry.Prepare(call.Name, call.Args)
	if failure != nil {
		logger.Debug("tool call rejected", "kind", failure.Kind(), "message", failure.Message())
		step.Result = failure
		return step
	}

	attempts := 0
	run := func(ctx context.Context) *model.ToolResult {
		return a.invokeWithRetry(ctx, call.Name, prepared, &attempts)
	}

	if a.cache == nil {
		step.Result = run(ctx)
		step.Attempts = attempts
		return step
	}

	key, err := cache.Key(call.Name, prepared)
	if err != nil {
		logger.Warn("cannot derive cache key, dispatching uncached", "error", err)
		step.Result = run(ctx)
		step.Attempts = attempts
		return step
	}

	result, hit := a.cache.Do(ctx, key, run)
	if hit {
		logger.Debug("cache hit")
	}
	step.Result = result
	step.CacheHit = hit
	step.Attempts = attempts
	return step
}

// invokeWithRetry re-dispatches transient failures with linear backoff
func (a *Agent) invokeWithRetry(ctx context.Context, name string, prepared map[string]any, attempts *int) *model.ToolResult {
	logger := logging.From(ctx).With("tool", name)

	var result *model.ToolResult
	for attempt := 0; attempt <= a.retries; attempt++ {
		if attempt > 0 {
			wait := a.backoff * time.Duration(attempt)
			logger.Debug("retrying tool call", "attempt", attempt+1, "wait", wait, "kind", result.Kind())
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return model.Failure(model.ErrorKindTimeout, "deadline reached before retrying %s: %s", name, ctx.Err().Error())
			}
		}

		*attempts = attempt + 1
		result = a.invokeOnce(ctx, name, prepared)
		if result.OK() || !result.Kind().Retryable() {
			return result
		}
	}
	return result
}

// invokeOnce bounds a single call by the per-call timeout. A tool that ignores
// cancellation is abandoned; its late result is discarded.
func (a *Agent) invokeOnce(ctx context.Context, name string, prepared map[string]any) *model.ToolResult {
	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	done := make(chan *model.ToolResult, 1)
	go func() {
		done <- a.registry.Invoke(callCtx, name, prepared)
	}()

	select {
	case result := <-done:
		return result
	case <-callCtx.Done():
		return model.Failure(model.ErrorKindTimeout, "%s did not finish within %s", name, a.callTimeout)
	}
}
