package domain

import (
	"fmt"
	"strings"
	"time"
)

type FailureKind string

const (
	KindNone             FailureKind = ""
	KindRateLimited      FailureKind = "rate_limited"
	KindServerFault      FailureKind = "server_fault"
	KindTimeout          FailureKind = "timeout"
	KindMalformedTarget  FailureKind = "malformed_target"
	KindHardFailure      FailureKind = "hard_failure"
	KindTransport        FailureKind = "transport"
	KindUnsupportedProxy FailureKind = "unsupported_proxy"
	KindBlocked          FailureKind = "blocked"
	KindProxyExhausted   FailureKind = "proxy_exhausted"
	KindCanceled         FailureKind = "canceled"
	KindCrashed          FailureKind = "crashed"
)

// Retryable reports whether a failure of this kind is worth another attempt.
func (k FailureKind) Retryable() bool {
	switch k {
	case KindRateLimited, KindServerFault, KindTimeout:
		return true
	default:
		return false
	}
}

type WorkUnit struct {
	Target  string
	Attempt int
	Proxy   *ProxyRecord
}

// ContextMetadata describes the execution context an executor presented to
// the target.
type ContextMetadata struct {
	UserAgent string `json:"userAgent,omitempty"`
	Viewport  string `json:"viewport,omitempty"`
	Locale    string `json:"locale,omitempty"`
}

func (m ContextMetadata) Fingerprint() string {
	if m.UserAgent == "" && m.Viewport == "" && m.Locale == "" {
		return ""
	}
	return strings.Join([]string{m.UserAgent, m.Viewport, m.Locale}, "|")
}

// Outcome is what an executor reports for a single attempt.
type Outcome struct {
	OK          bool
	Payload     string
	Metadata    ContextMetadata
	FailureKind FailureKind
	Message     string
}

func Succeeded(payload string, metadata ContextMetadata) Outcome {
	return Outcome{OK: true, Payload: payload, Metadata: metadata}
}

func Failed(kind FailureKind, format string, args ...any) Outcome {
	return Outcome{FailureKind: kind, Message: fmt.Sprintf(format, args...)}
}

type ResultStatus string

const (
	StatusSucceeded ResultStatus = "succeeded"
	StatusFailed    ResultStatus = "failed"
)

// Result is the terminal record of one work unit after all its attempts.
type Result struct {
	Target      string
	Status      ResultStatus
	Attempts    int
	Payload     string
	Metadata    ContextMetadata
	Proxy       *ProxyRecord
	ProxiesUsed int
	FailureKind FailureKind
	Cause       string
	Delays      []time.Duration
	Direct      bool
	StartedAt   time.Time
	Duration    time.Duration
}

func (r Result) OK() bool {
	return r.Status == StatusSucceeded
}

// Retries is the number of attempts after the first.
func (r Result) Retries() int {
	if r.Attempts <= 1 {
		return 0
	}
	return r.Attempts - 1
}
