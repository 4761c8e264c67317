package executor

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/NoorahSmith/ViewCounter-d/internal/domain"
)

// ClassifyStatus maps a response status to a failure kind; KindNone means success.
func ClassifyStatus(code int) domain.FailureKind {
	switch {
	case code == http.StatusTooManyRequests:
		return domain.KindRateLimited
	case code >= http.StatusInternalServerError:
		return domain.KindServerFault
	case code >= http.StatusBadRequest:
		return domain.KindHardFailure
	default:
		return domain.KindNone
	}
}

// ClassifyError maps a transport error, taking the attempt context into account.
func ClassifyError(ctx context.Context, err error) domain.FailureKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.KindTimeout
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return domain.KindCanceled
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.KindTimeout
	}
	return domain.KindTransport
}
