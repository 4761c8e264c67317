package domain

import (
	"sort"
	"time"
)

type PoolStats struct {
	TotalUsed       int `json:"totalUsed"`
	RemainingInPool int `json:"remainingInPool"`
	PoolSize        int `json:"poolSize"`
	Refetches       int `json:"refetches"`
}

// RunStatistics is folded by a single writer; it is not safe for concurrent use.
type RunStatistics struct {
	RunID          string              `json:"runId"`
	Total          int                 `json:"total"`
	Succeeded      int                 `json:"succeeded"`
	Failed         int                 `json:"failed"`
	Retries        int                 `json:"retries"`
	ProxiesUsed    int                 `json:"proxiesUsed"`
	DirectUnits    int                 `json:"directUnits"`
	FailuresByKind map[FailureKind]int `json:"failuresByKind"`
	BatchSizes     []int               `json:"batchSizes"`
	Aborted        bool                `json:"aborted"`
	AbortReason    string              `json:"abortReason,omitempty"`
	Pool           PoolStats           `json:"pool"`
	StartedAt      time.Time           `json:"startedAt"`
	FinishedAt     time.Time           `json:"finishedAt"`

	fingerprints map[string]struct{}
	userAgents   map[string]struct{}
}

func NewRunStatistics(runID string) *RunStatistics {
	return &RunStatistics{
		RunID:          runID,
		FailuresByKind: make(map[FailureKind]int),
		StartedAt:      time.Now(),
		fingerprints:   make(map[string]struct{}),
		userAgents:     make(map[string]struct{}),
	}
}

func (s *RunStatistics) Fold(r Result) {
	s.Total++
	s.Retries += r.Retries()
	s.ProxiesUsed += r.ProxiesUsed
	if r.Direct {
		s.DirectUnits++
	}

	if !r.OK() {
		s.Failed++
		s.FailuresByKind[r.FailureKind]++
		return
	}

	s.Succeeded++
	if fp := r.Metadata.Fingerprint(); fp != "" {
		s.fingerprints[fp] = struct{}{}
	}
	if r.Metadata.UserAgent != "" {
		s.userAgents[r.Metadata.UserAgent] = struct{}{}
	}
}

func (s *RunStatistics) AddBatch(size int) {
	s.BatchSizes = append(s.BatchSizes, size)
}

func (s *RunStatistics) Abort(reason string) {
	s.Aborted = true
	s.AbortReason = reason
}

func (s *RunStatistics) DistinctFingerprints() int {
	return len(s.fingerprints)
}

func (s *RunStatistics) DistinctUserAgents() int {
	return len(s.userAgents)
}

// SuccessRate is in [0,1]; an empty run reports 0.
func (s *RunStatistics) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Total)
}

// FailureKinds returns the recorded kinds ordered by name.
func (s *RunStatistics) FailureKinds() []FailureKind {
	kinds := make([]FailureKind, 0, len(s.FailuresByKind))
	for k := range s.FailuresByKind {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
