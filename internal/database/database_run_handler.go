package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/NoorahSmith/ViewCounter-d/internal/domain"
)

var ErrRunNotFound = errors.New("run not found")

func (s *Store) BeginRun(ctx context.Context, run *domain.RunRecord) error {
	if run.RunID == "" {
		return errors.New("database: run id is required")
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("database: create run %s: %w", run.RunID, err)
	}
	return nil
}

// RecordVisit stores one folded unit result.
func (s *Store) RecordVisit(ctx context.Context, runID string, index int, result domain.Result) error {
	visit := domain.NewVisitRecord(runID, index, result)
	if err := s.db.WithContext(ctx).Create(&visit).Error; err != nil {
		return fmt.Errorf("database: record visit %d of run %s: %w", index, runID, err)
	}
	return nil
}

// FinishRun writes the final totals for the run.
func (s *Store) FinishRun(ctx context.Context, stats *domain.RunStatistics) error {
	var run domain.RunRecord
	if err := s.db.WithContext(ctx).Where("run_id = ?", stats.RunID).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("database: %w: %s", ErrRunNotFound, stats.RunID)
		}
		return fmt.Errorf("database: load run %s: %w", stats.RunID, err)
	}

	run.ApplyStatistics(stats)
	if err := s.db.WithContext(ctx).Save(&run).Error; err != nil {
		return fmt.Errorf("database: update run %s: %w", stats.RunID, err)
	}
	return nil
}

// Run loads a run with its visits in unit order.
func (s *Store) Run(ctx context.Context, runID string) (domain.RunRecord, error) {
	var run domain.RunRecord
	err := s.db.WithContext(ctx).
		Preload("Visits", func(db *gorm.DB) *gorm.DB { return db.Order("unit_index ASC") }).
		Where("run_id = ?", runID).
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.RunRecord{}, fmt.Errorf("database: %w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("database: load run %s: %w", runID, err)
	}
	return run, nil
}

// RecentRuns returns up to limit runs, newest first, without visits.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []domain.RunRecord
	if err := s.db.WithContext(ctx).Order("started_at DESC, id DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("database: list runs: %w", err)
	}
	return runs, nil
}
