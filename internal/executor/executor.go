// Package executor defines the boundary between the visit orchestrator and
// whatever performs a single visit.
package executor

import (
	"context"

	"github.com/NoorahSmith/ViewCounter-d/internal/domain"
)

// Executor performs one attempt against target, routed through proxy when
// it is non-nil. Failures are reported through Outcome.FailureKind, never
// by panicking.
type Executor interface {
	Perform(ctx context.Context, target string, proxy *domain.ProxyRecord) domain.Outcome
}

type Func func(ctx context.Context, target string, proxy *domain.ProxyRecord) domain.Outcome

func (f Func) Perform(ctx context.Context, target string, proxy *domain.ProxyRecord) domain.Outcome {
	return f(ctx, target, proxy)
}
