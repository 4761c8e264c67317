package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/NoorahSmith/ViewCounter-d/internal/domain"
)

func sampleStats() *domain.RunStatistics {
	stats := domain.NewRunStatistics("run-42")
	stats.Fold(domain.Result{Status: domain.StatusSucceeded, Attempts: 2, ProxiesUsed: 2, Metadata: domain.ContextMetadata{UserAgent: "ua-1"}})
	stats.Fold(domain.Result{Status: domain.StatusFailed, Attempts: 1, ProxiesUsed: 1, FailureKind: domain.KindBlocked})
	stats.AddBatch(2)
	stats.Pool = domain.PoolStats{TotalUsed: 3, RemainingInPool: 7, PoolSize: 10, Refetches: 1}
	stats.FinishedAt = stats.StartedAt.Add(2500 * time.Millisecond)
	return stats
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteText(&buf, sampleStats()); err != nil {
		t.Fatalf("WriteText returned error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"run-42", "completed", "2.5s", "1 succeeded, 1 failed, 50.0% success", "1 [2]", "remaining 7 of 10", "blocked:"} {
		if !strings.Contains(out, want) {
			t.Fatalf("text report missing %q:\n%s", want, out)
		}
	}
}

func TestWriteTextAborted(t *testing.T) {
	stats := sampleStats()
	stats.Abort("proxy pool exhausted")

	var buf bytes.Buffer
	if err := WriteText(&buf, stats); err != nil {
		t.Fatalf("WriteText returned error: %v", err)
	}
	if !strings.Contains(buf.String(), "aborted (proxy pool exhausted)") {
		t.Fatalf("aborted status missing:\n%s", buf.String())
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleStats()); err != nil {
		t.Fatalf("WriteJSON returned error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if decoded["runId"] != "run-42" || decoded["successRate"] != 0.5 || decoded["durationMs"] != float64(2500) {
		t.Fatalf("unexpected JSON fields: %v", decoded)
	}
	if decoded["distinctUserAgents"] != float64(1) {
		t.Fatalf("distinctUserAgents = %v", decoded["distinctUserAgents"])
	}
	kinds, ok := decoded["failuresByKind"].(map[string]any)
	if !ok || kinds["blocked"] != float64(1) {
		t.Fatalf("failuresByKind = %v", decoded["failuresByKind"])
	}
}

func TestGenerateToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	if err := NewReporter("json", path).Generate(sampleStats()); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(data), `"runId": "run-42"`) {
		t.Fatalf("report file content unexpected: %s", data)
	}
}

func TestGenerateToStdoutWriter(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewReporter("text", "")
	reporter.stdout = &buf

	if err := reporter.Generate(sampleStats()); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if !strings.Contains(buf.String(), "Run:") {
		t.Fatalf("text report not written: %s", buf.String())
	}
}
