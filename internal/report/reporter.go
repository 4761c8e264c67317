package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/NoorahSmith/ViewCounter-d/internal/domain"
)

// Summary is the serialized end-of-run report.
type Summary struct {
	*domain.RunStatistics
	DistinctFingerprints int     `json:"distinctFingerprints"`
	DistinctUserAgents   int     `json:"distinctUserAgents"`
	SuccessRate          float64 `json:"successRate"`
	DurationMs           int64   `json:"durationMs"`
}

func NewSummary(stats *domain.RunStatistics) Summary {
	return Summary{
		RunStatistics:        stats,
		DistinctFingerprints: stats.DistinctFingerprints(),
		DistinctUserAgents:   stats.DistinctUserAgents(),
		SuccessRate:          stats.SuccessRate(),
		DurationMs:           duration(stats).Milliseconds(),
	}
}

type Reporter struct {
	format string
	output string
	stdout io.Writer
}

// NewReporter writes to stdout when output is empty.
func NewReporter(format, output string) *Reporter {
	return &Reporter{format: format, output: output, stdout: os.Stdout}
}

func (r *Reporter) Generate(stats *domain.RunStatistics) error {
	outputWriter := r.stdout
	if r.output != "" {
		file, err := os.Create(r.output)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer file.Close()
		outputWriter = file
	}

	if r.format == "json" {
		return WriteJSON(outputWriter, stats)
	}
	return WriteText(outputWriter, stats)
}

func WriteJSON(w io.Writer, stats *domain.RunStatistics) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(NewSummary(stats))
}

func WriteText(w io.Writer, stats *domain.RunStatistics) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	status := "completed"
	if stats.Aborted {
		status = "aborted (" + stats.AbortReason + ")"
	}

	lines := [][2]string{
		{"Run", stats.RunID},
		{"Status", status},
		{"Duration", duration(stats).Round(time.Millisecond).String()},
		{"Units", fmt.Sprintf("%d (%d succeeded, %d failed, %.1f%% success)", stats.Total, stats.Succeeded, stats.Failed, stats.SuccessRate()*100)},
		{"Retries", fmt.Sprint(stats.Retries)},
		{"Batches", formatBatches(stats.BatchSizes)},
		{"Proxies used", fmt.Sprint(stats.ProxiesUsed)},
		{"Direct units", fmt.Sprint(stats.DirectUnits)},
		{"Fingerprints", fmt.Sprintf("%d distinct (%d user agents)", stats.DistinctFingerprints(), stats.DistinctUserAgents())},
		{"Pool", fmt.Sprintf("used %d, remaining %d of %d, refetches %d", stats.Pool.TotalUsed, stats.Pool.RemainingInPool, stats.Pool.PoolSize, stats.Pool.Refetches)},
	}
	for _, line := range lines {
		if _, err := fmt.Fprintf(tw, "%s:\t%s\n", line[0], line[1]); err != nil {
			return err
		}
	}

	for _, kind := range stats.FailureKinds() {
		if _, err := fmt.Fprintf(tw, "  %s:\t%d\n", kind, stats.FailuresByKind[kind]); err != nil {
			return err
		}
	}

	return tw.Flush()
}

func formatBatches(sizes []int) string {
	if len(sizes) == 0 {
		return "0"
	}
	parts := make([]string, len(sizes))
	for i, size := range sizes {
		parts[i] = fmt.Sprint(size)
	}
	return fmt.Sprintf("%d [%s]", len(sizes), strings.Join(parts, " "))
}

func duration(stats *domain.RunStatistics) time.Duration {
	if stats.FinishedAt.IsZero() || stats.FinishedAt.Before(stats.StartedAt) {
		return 0
	}
	return stats.FinishedAt.Sub(stats.StartedAt)
}
