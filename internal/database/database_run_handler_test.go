package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"

	"github.com/NoorahSmith/ViewCounter-d/internal/domain"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	store, err := Open("", WithDialector(sqlite.Open(dsn)))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRunLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	started := time.Now().Add(-time.Minute).UTC()

	run := &domain.RunRecord{
		RunID:       "run-1",
		Targets:     domain.StringList{"https://a.test", "https://b.test"},
		TotalUnits:  3,
		Concurrency: 2,
		ProxyMode:   "pooled-open",
		Executor:    "http",
		StartedAt:   started,
	}
	if err := store.BeginRun(ctx, run); err != nil {
		t.Fatalf("BeginRun returned error: %v", err)
	}

	proxy := &domain.ProxyRecord{Protocol: domain.ProtocolHTTP, Host: "10.0.0.1", Port: 8080, Source: "list-a"}
	results := []domain.Result{
		{Target: "https://a.test", Status: domain.StatusSucceeded, Attempts: 2, Proxy: proxy, ProxiesUsed: 2,
			Metadata: domain.ContextMetadata{UserAgent: "ua", Viewport: "1280x720"}, Duration: 1500 * time.Millisecond},
		{Target: "https://b.test", Status: domain.StatusFailed, Attempts: 1, FailureKind: domain.KindHardFailure, Cause: "status 404"},
		{Target: "https://a.test", Status: domain.StatusSucceeded, Attempts: 1, Direct: true},
	}
	// Insert out of order; reads come back by unit index.
	for _, i := range []int{2, 0, 1} {
		if err := store.RecordVisit(ctx, "run-1", i, results[i]); err != nil {
			t.Fatalf("RecordVisit(%d) returned error: %v", i, err)
		}
	}

	stats := domain.NewRunStatistics("run-1")
	for _, r := range results {
		stats.Fold(r)
	}
	stats.FinishedAt = time.Now().UTC()
	if err := store.FinishRun(ctx, stats); err != nil {
		t.Fatalf("FinishRun returned error: %v", err)
	}

	loaded, err := store.Run(ctx, "run-1")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if loaded.Succeeded != 2 || loaded.Failed != 1 || loaded.Retries != 1 || loaded.DirectUnits != 1 {
		t.Fatalf("unexpected totals: %+v", loaded)
	}
	if loaded.FinishedAt == nil {
		t.Fatal("FinishedAt not stored")
	}
	if len(loaded.Targets) != 2 || loaded.Targets[1] != "https://b.test" {
		t.Fatalf("Targets = %v", loaded.Targets)
	}
	if len(loaded.Visits) != 3 {
		t.Fatalf("loaded %d visits, want 3", len(loaded.Visits))
	}
	for i, visit := range loaded.Visits {
		if visit.UnitIndex != i {
			t.Fatalf("visits not ordered by unit: %d at position %d", visit.UnitIndex, i)
		}
	}

	first := loaded.Visits[0]
	if first.ProxyIdentity != "10.0.0.1:8080" || first.ProxySource != "list-a" || first.Fingerprint == "" || first.DurationMs != 1500 {
		t.Fatalf("unexpected first visit: %+v", first)
	}
	if loaded.Visits[1].FailureKind != string(domain.KindHardFailure) || loaded.Visits[1].Cause != "status 404" {
		t.Fatalf("unexpected failed visit: %+v", loaded.Visits[1])
	}
}

func TestFinishUnknownRun(t *testing.T) {
	store := setupTestStore(t)

	err := store.FinishRun(context.Background(), domain.NewRunStatistics("missing"))
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("FinishRun error = %v, want ErrRunNotFound", err)
	}
	if _, err := store.Run(context.Background(), "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("Run error = %v, want ErrRunNotFound", err)
	}
}

func TestRecentRuns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		run := &domain.RunRecord{RunID: fmt.Sprintf("run-%d", i), TotalUnits: 1, Concurrency: 1, StartedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := store.BeginRun(ctx, run); err != nil {
			t.Fatalf("BeginRun returned error: %v", err)
		}
	}

	runs, err := store.RecentRuns(ctx, 2)
	if err != nil {
		t.Fatalf("RecentRuns returned error: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "run-2" || runs[1].RunID != "run-1" {
		t.Fatalf("RecentRuns = %v", runs)
	}
}

func TestBeginRunRequiresID(t *testing.T) {
	store := setupTestStore(t)
	if err := store.BeginRun(context.Background(), &domain.RunRecord{}); err == nil {
		t.Fatal("expected error for empty run id")
	}
}

func TestOpenWithoutConnection(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error without dsn or dialector")
	}
}
