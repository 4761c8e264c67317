package proxypool

import "errors"

var (
	// ErrPoolExhausted means no unused proxy could be obtained within the refetch ceiling.
	ErrPoolExhausted = errors.New("proxy pool exhausted")

	ErrSourceUnavailable = errors.New("proxy source unavailable")
	// ErrAuthenticationMissing is fatal for the provider that returned it.
	ErrAuthenticationMissing   = errors.New("proxy source authentication missing")
	ErrNoCandidatesAfterFilter = errors.New("no unused proxy candidates after filtering")
)
