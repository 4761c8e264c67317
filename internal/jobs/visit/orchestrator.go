package visit

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/NoorahSmith/ViewCounter-d/internal/domain"
	"github.com/NoorahSmith/ViewCounter-d/internal/executor"
	"github.com/NoorahSmith/ViewCounter-d/internal/proxypool"
	"github.com/NoorahSmith/ViewCounter-d/internal/support"
)

// ProxyProvider yields the proxy for one attempt. The pool manager and the
// static provider both satisfy it.
type ProxyProvider interface {
	NextProxy(ctx context.Context) (*domain.ProxyRecord, error)
}

type Options struct {
	MaxRetries int
	// BackoffDelays[k-1] is slept before retry k.
	BackoffDelays  []time.Duration
	PerUnitTimeout time.Duration
	// FallbackDirect switches every later attempt to a direct connection
	// once the proxy pool is exhausted, instead of failing the unit.
	FallbackDirect bool
}

// Orchestrator drives one work unit through its attempts. A nil provider
// means every attempt connects directly.
type Orchestrator struct {
	executor executor.Executor
	proxies  ProxyProvider
	opts     Options

	direct atomic.Bool

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func New(exec executor.Executor, proxies ProxyProvider, opts Options) (*Orchestrator, error) {
	if exec == nil {
		return nil, errors.New("visit: executor is required")
	}
	if err := ValidateSchedule(opts.MaxRetries, opts.BackoffDelays); err != nil {
		return nil, err
	}
	if opts.PerUnitTimeout < 0 {
		return nil, fmt.Errorf("visit: perUnitTimeout must not be negative, got %s", opts.PerUnitTimeout)
	}

	return &Orchestrator{
		executor: exec,
		proxies:  proxies,
		opts:     opts,
		sleep:    support.SleepContext,
		now:      time.Now,
	}, nil
}

// DirectMode reports whether pool exhaustion has switched the run to direct connections.
func (o *Orchestrator) DirectMode() bool {
	return o.direct.Load()
}

// Execute runs target until it succeeds, fails with a terminal kind, or the
// retry budget is spent. It never panics and always returns a terminal Result.
func (o *Orchestrator) Execute(ctx context.Context, target string) domain.Result {
	result := domain.Result{Target: target, StartedAt: o.now()}

	for attempt := 0; ; attempt++ {
		proxy, err := o.assignProxy(ctx)
		if err != nil {
			kind := domain.KindProxyExhausted
			if ctx.Err() != nil {
				kind = domain.KindCanceled
			}
			return o.finish(result, kind, err.Error())
		}

		unit := domain.WorkUnit{Target: target, Attempt: attempt, Proxy: proxy}
		if proxy != nil {
			result.ProxiesUsed++
		} else if o.proxies != nil {
			result.Direct = true
		}

		outcome := o.attempt(ctx, unit)
		result.Attempts = attempt + 1
		result.Proxy = proxy

		if outcome.OK {
			result.Status = domain.StatusSucceeded
			result.Payload = outcome.Payload
			result.Metadata = outcome.Metadata
			result.Duration = o.now().Sub(result.StartedAt)
			return result
		}

		kind := outcome.FailureKind
		if kind == domain.KindNone {
			kind = domain.KindHardFailure
		}
		log.Debug("visit attempt failed", "target", target, "attempt", result.Attempts, "kind", kind, "proxy", proxyLabel(proxy), "error", outcome.Message)

		if !kind.Retryable() || attempt >= o.opts.MaxRetries {
			return o.finish(result, kind, outcome.Message)
		}

		delay := o.opts.BackoffDelays[attempt]
		result.Delays = append(result.Delays, delay)
		if err := o.sleep(ctx, delay); err != nil {
			return o.finish(result, domain.KindCanceled, fmt.Sprintf("backoff interrupted: %v", err))
		}
	}
}

func (o *Orchestrator) finish(result domain.Result, kind domain.FailureKind, cause string) domain.Result {
	result.Status = domain.StatusFailed
	result.FailureKind = kind
	result.Cause = cause
	result.Payload = ""
	result.Duration = o.now().Sub(result.StartedAt)
	return result
}

func (o *Orchestrator) assignProxy(ctx context.Context) (*domain.ProxyRecord, error) {
	if o.proxies == nil || o.direct.Load() {
		return nil, nil
	}

	record, err := o.proxies.NextProxy(ctx)
	if err == nil {
		return record, nil
	}

	if errors.Is(err, proxypool.ErrPoolExhausted) && o.opts.FallbackDirect && ctx.Err() == nil {
		if o.direct.CompareAndSwap(false, true) {
			log.Warn("proxy pool exhausted; continuing without proxies", "error", err)
		}
		return nil, nil
	}
	return nil, err
}

// attempt runs the executor under the per-unit timeout. An executor that
// ignores its context is abandoned once the deadline passes.
func (o *Orchestrator) attempt(ctx context.Context, unit domain.WorkUnit) domain.Outcome {
	attemptCtx, cancel := ctx, context.CancelFunc(func() {})
	if o.opts.PerUnitTimeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, o.opts.PerUnitTimeout)
	}
	defer cancel()

	done := make(chan domain.Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- domain.Failed(domain.KindCrashed, "executor panicked: %v", r)
			}
		}()
		done <- o.executor.Perform(attemptCtx, unit.Target, unit.Proxy)
	}()

	select {
	case outcome := <-done:
		if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return timedOut(outcome)
		}
		return outcome
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return domain.Failed(domain.KindCanceled, "attempt canceled: %v", ctx.Err())
		}
		select {
		case outcome := <-done:
			return timedOut(outcome)
		default:
		}
		return domain.Failed(domain.KindTimeout, "attempt exceeded %s", o.opts.PerUnitTimeout)
	}
}

// timedOut relabels a failure that ended after the attempt deadline. Only
// kinds that a cut-off request produces become timeouts; a failure the
// executor classified on its own keeps its kind.
func timedOut(outcome domain.Outcome) domain.Outcome {
	if outcome.OK {
		return outcome
	}
	switch outcome.FailureKind {
	case domain.KindNone, domain.KindTransport, domain.KindCanceled:
		outcome.FailureKind = domain.KindTimeout
	}
	return outcome
}

func proxyLabel(proxy *domain.ProxyRecord) string {
	if proxy == nil {
		return "direct"
	}
	return proxy.String()
}
