package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/blackcoderx/restseq/pkg/extract"
	"github.com/blackcoderx/restseq/pkg/report"
	"github.com/blackcoderx/restseq/pkg/sequencer"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RunRecord is one run row.
type RunRecord struct {
	ID        string `gorm:"primaryKey"`
	Grammar   string `gorm:"index"`
	StartTime time.Time
	EndTime   time.Time
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Outcomes  []OutcomeRecord `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

// OutcomeRecord is one request outcome of a run.
type OutcomeRecord struct {
	ID         uint   `gorm:"primaryKey"`
	RunID      string `gorm:"index"`
	Position   int
	RequestID  string
	Status     string
	Kind       string
	Cause      string
	Error      string
	StatusCode int
	DurationMS int64
	// Misses holds the extraction misses as a JSON array.
	Misses string
}

// ResultsDB stores run summaries in SQLite.
type ResultsDB struct {
	db *gorm.DB
}

// OpenResultsDB opens (and migrates) the results database at dsn.
func OpenResultsDB(dsn string, logger *zap.Logger) (*ResultsDB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: NewGormLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open results database: %w", err)
	}
	if err := db.AutoMigrate(&RunRecord{}, &OutcomeRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate results database: %w", err)
	}
	return &ResultsDB{db: db}, nil
}

// SaveRun inserts a summary with all of its outcomes.
func (r *ResultsDB) SaveRun(s *report.Summary) error {
	rec := RunRecord{
		ID:        s.RunID,
		Grammar:   s.Grammar,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Total:     s.Total,
		Succeeded: s.Succeeded,
		Failed:    s.Failed,
		Skipped:   s.Skipped,
	}
	for i, o := range s.Outcomes {
		rec.Outcomes = append(rec.Outcomes, OutcomeRecord{
			Position:   i,
			RequestID:  o.RequestID,
			Status:     string(o.Status),
			Kind:       o.Kind,
			Cause:      o.Cause,
			Error:      o.Error,
			StatusCode: o.StatusCode,
			DurationMS: o.Duration.Milliseconds(),
			Misses:     encodeMisses(o.Misses),
		})
	}

	if err := r.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to save run %s: %w", s.RunID, err)
	}
	return nil
}

// LoadRun reads a run back as a summary.
func (r *ResultsDB) LoadRun(id string) (*report.Summary, error) {
	var rec RunRecord
	err := r.db.Preload("Outcomes", func(db *gorm.DB) *gorm.DB {
		return db.Order("position")
	}).First(&rec, "id = ?", id).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}

	s := &report.Summary{
		RunID:     rec.ID,
		Grammar:   rec.Grammar,
		StartTime: rec.StartTime,
		EndTime:   rec.EndTime,
		Duration:  rec.EndTime.Sub(rec.StartTime),
		Total:     rec.Total,
		Succeeded: rec.Succeeded,
		Failed:    rec.Failed,
		Skipped:   rec.Skipped,
	}
	for _, o := range rec.Outcomes {
		misses, err := decodeMisses(o.Misses)
		if err != nil {
			return nil, fmt.Errorf("failed to load run %s: outcome %s: %w", id, o.RequestID, err)
		}
		s.Outcomes = append(s.Outcomes, report.Outcome{
			RequestID:  o.RequestID,
			Status:     sequencer.Status(o.Status),
			Kind:       o.Kind,
			Cause:      o.Cause,
			Error:      o.Error,
			StatusCode: o.StatusCode,
			Duration:   time.Duration(o.DurationMS) * time.Millisecond,
			Misses:     misses,
		})
	}
	return s, nil
}

// ListRuns returns the most recent runs, newest first.
func (r *ResultsDB) ListRuns(limit int) ([]RunRecord, error) {
	var runs []RunRecord
	q := r.db.Order("start_time desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Close closes the underlying connection.
func (r *ResultsDB) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func encodeMisses(misses []extract.Miss) string {
	if len(misses) == 0 {
		return ""
	}
	data, _ := json.Marshal(misses)
	return string(data)
}

func decodeMisses(raw string) ([]extract.Miss, error) {
	if raw == "" {
		return nil, nil
	}
	var misses []extract.Miss
	if err := json.Unmarshal([]byte(raw), &misses); err != nil {
		return nil, fmt.Errorf("invalid misses column: %w", err)
	}
	return misses, nil
}
