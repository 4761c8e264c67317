package domain

import "testing"

func TestFailureKindRetryable(t *testing.T) {
	retryable := []FailureKind{KindRateLimited, KindServerFault, KindTimeout}
	for _, k := range retryable {
		if !k.Retryable() {
			t.Fatalf("%s should be retryable", k)
		}
	}

	terminal := []FailureKind{KindMalformedTarget, KindHardFailure, KindTransport, KindBlocked, KindProxyExhausted, KindCrashed, KindCanceled}
	for _, k := range terminal {
		if k.Retryable() {
			t.Fatalf("%s should not be retryable", k)
		}
	}
}

func TestRunStatisticsFold(t *testing.T) {
	stats := NewRunStatistics("run")

	stats.Fold(Result{Status: StatusSucceeded, Attempts: 1, ProxiesUsed: 1, Metadata: ContextMetadata{UserAgent: "ua-1", Viewport: "1280x720"}})
	stats.Fold(Result{Status: StatusSucceeded, Attempts: 3, ProxiesUsed: 3, Metadata: ContextMetadata{UserAgent: "ua-1", Viewport: "1920x1080"}})
	stats.Fold(Result{Status: StatusSucceeded, Attempts: 1, ProxiesUsed: 1, Metadata: ContextMetadata{UserAgent: "ua-1", Viewport: "1280x720"}})
	stats.Fold(Result{Status: StatusFailed, Attempts: 4, ProxiesUsed: 4, FailureKind: KindServerFault})
	stats.Fold(Result{Status: StatusFailed, Attempts: 1, FailureKind: KindProxyExhausted, Direct: true})

	if stats.Total != 5 || stats.Succeeded != 3 || stats.Failed != 2 {
		t.Fatalf("unexpected counts: total=%d succeeded=%d failed=%d", stats.Total, stats.Succeeded, stats.Failed)
	}
	if stats.Retries != 5 {
		t.Fatalf("Retries = %d, want 5", stats.Retries)
	}
	if stats.ProxiesUsed != 9 {
		t.Fatalf("ProxiesUsed = %d, want 9", stats.ProxiesUsed)
	}
	if stats.DirectUnits != 1 {
		t.Fatalf("DirectUnits = %d, want 1", stats.DirectUnits)
	}
	if got := stats.DistinctFingerprints(); got != 2 {
		t.Fatalf("DistinctFingerprints = %d, want 2", got)
	}
	if got := stats.DistinctUserAgents(); got != 1 {
		t.Fatalf("DistinctUserAgents = %d, want 1", got)
	}
	if stats.FailuresByKind[KindServerFault] != 1 || stats.FailuresByKind[KindProxyExhausted] != 1 {
		t.Fatalf("unexpected failure breakdown: %v", stats.FailuresByKind)
	}

	kinds := stats.FailureKinds()
	if len(kinds) != 2 || kinds[0] != KindProxyExhausted || kinds[1] != KindServerFault {
		t.Fatalf("FailureKinds = %v, want sorted [proxy_exhausted server_fault]", kinds)
	}
	if rate := stats.SuccessRate(); rate != 0.6 {
		t.Fatalf("SuccessRate = %v, want 0.6", rate)
	}
}

func TestRunStatisticsEmpty(t *testing.T) {
	stats := NewRunStatistics("")
	if stats.SuccessRate() != 0 {
		t.Fatalf("empty run success rate = %v, want 0", stats.SuccessRate())
	}
	stats.Abort("pool exhausted")
	if !stats.Aborted || stats.AbortReason != "pool exhausted" {
		t.Fatalf("Abort did not record reason: %+v", stats)
	}
}
