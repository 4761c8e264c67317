package domain

import "time"

// RunRecord is the persisted summary of one dispatcher run.
type RunRecord struct {
	ID          uint       `gorm:"primaryKey;autoIncrement" json:"-"`
	RunID       string     `gorm:"size:36;not null;uniqueIndex" json:"runId"`
	Targets     StringList `gorm:"type:text" json:"targets"`
	TotalUnits  int        `gorm:"not null" json:"totalUnits"`
	Concurrency int        `gorm:"not null" json:"concurrency"`
	ProxyMode   string     `gorm:"size:32" json:"proxyMode"`
	Executor    string     `gorm:"size:16" json:"executor"`

	Succeeded   int    `json:"succeeded"`
	Failed      int    `json:"failed"`
	Retries     int    `json:"retries"`
	ProxiesUsed int    `json:"proxiesUsed"`
	DirectUnits int    `json:"directUnits"`
	Aborted     bool   `json:"aborted"`
	AbortReason string `gorm:"size:255" json:"abortReason,omitempty"`

	StartedAt  time.Time  `gorm:"not null" json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"-"`

	Visits []VisitRecord `gorm:"foreignKey:RunID;references:RunID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"visits,omitempty"`
}

type VisitRecord struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"-"`
	RunID       string `gorm:"size:36;not null;index:idx_visit_run_unit,priority:1" json:"runId"`
	UnitIndex   int    `gorm:"not null;index:idx_visit_run_unit,priority:2" json:"unit"`
	Target      string `gorm:"size:2048;not null" json:"target"`
	Status      string `gorm:"size:16;not null" json:"status"`
	Attempts    int    `json:"attempts"`
	FailureKind string `gorm:"size:32;index" json:"failureKind,omitempty"`
	Cause       string `gorm:"type:text" json:"cause,omitempty"`

	ProxyIdentity string `gorm:"size:255" json:"proxy,omitempty"`
	ProxySource   string `gorm:"size:128" json:"proxySource,omitempty"`
	ProxiesUsed   int    `json:"proxiesUsed"`
	Direct        bool   `json:"direct"`
	UserAgent     string `gorm:"size:512" json:"userAgent,omitempty"`
	Fingerprint   string `gorm:"size:1024" json:"fingerprint,omitempty"`

	DurationMs int64     `json:"durationMs"`
	StartedAt  time.Time `json:"startedAt"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"-"`
}

// NewVisitRecord flattens a terminal result for storage.
func NewVisitRecord(runID string, index int, r Result) VisitRecord {
	record := VisitRecord{
		RunID:       runID,
		UnitIndex:   index,
		Target:      r.Target,
		Status:      string(r.Status),
		Attempts:    r.Attempts,
		FailureKind: string(r.FailureKind),
		Cause:       r.Cause,
		ProxiesUsed: r.ProxiesUsed,
		Direct:      r.Direct,
		UserAgent:   r.Metadata.UserAgent,
		Fingerprint: r.Metadata.Fingerprint(),
		DurationMs:  r.Duration.Milliseconds(),
		StartedAt:   r.StartedAt,
	}
	if r.Proxy != nil {
		record.ProxyIdentity = r.Proxy.Identity()
		record.ProxySource = r.Proxy.Source
	}
	return record
}

// ApplyStatistics copies the run totals onto the record.
func (r *RunRecord) ApplyStatistics(stats *RunStatistics) {
	r.Succeeded = stats.Succeeded
	r.Failed = stats.Failed
	r.Retries = stats.Retries
	r.ProxiesUsed = stats.ProxiesUsed
	r.DirectUnits = stats.DirectUnits
	r.Aborted = stats.Aborted
	r.AbortReason = stats.AbortReason
	if !stats.FinishedAt.IsZero() {
		finished := stats.FinishedAt
		r.FinishedAt = &finished
	}
}
