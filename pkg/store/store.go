// Package store persists run history in a relational database.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ethpandaops/testoor/pkg/config"
)

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = errors.New("not found")

// ListRunsFilter narrows ListRuns.
type ListRunsFilter struct {
	AssemblyName string
	Limit        int
	Offset       int
}

// Store provides persistence for run history.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// SaveRun stores a run and its test results atomically.
	SaveRun(ctx context.Context, run *Run, results []*TestResult) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter ListRunsFilter) ([]Run, error)
	ListTestResults(ctx context.Context, runID, outcome string) ([]TestResult, error)
	// TestHistory returns the most recent results of one test across runs.
	TestHistory(ctx context.Context, testID string, limit int) ([]TestResult, error)
	DeleteRun(ctx context.Context, runID string) error
}

var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a Store backed by the configured database driver.
func NewStore(log logrus.FieldLogger, cfg *config.DatabaseConfig) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	switch s.cfg.Driver {
	case config.DriverSQLite:
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case config.DriverPostgres:
		dialector = postgres.Open(s.cfg.Postgres.DSN())
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return fmt.Errorf("opening history database: %w", err)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(&Run{}, &TestResult{}); err != nil {
		return fmt.Errorf("running history migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("History database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

func (s *store) SaveRun(ctx context.Context, run *Run, results []*TestResult) error {
	const batchSize = 100

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return fmt.Errorf("inserting run: %w", err)
		}

		if len(results) == 0 {
			return nil
		}

		if err := tx.CreateInBatches(results, batchSize).Error; err != nil {
			return fmt.Errorf("inserting test results: %w", err)
		}

		return nil
	})
}

func (s *store) GetRun(ctx context.Context, runID string) (*Run, error) {
	var run Run

	err := s.db.WithContext(ctx).Where("run_id = ?", runID).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("getting run: %w", err)
	}

	return &run, nil
}

// ListRuns returns runs newest first.
func (s *store) ListRuns(ctx context.Context, filter ListRunsFilter) ([]Run, error) {
	q := s.db.WithContext(ctx).Order("started_at DESC")

	if filter.AssemblyName != "" {
		q = q.Where("assembly_name = ?", filter.AssemblyName)
	}

	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var runs []Run
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	return runs, nil
}

// ListTestResults returns the results of a run, optionally only those with
// the given outcome.
func (s *store) ListTestResults(ctx context.Context, runID, outcome string) ([]TestResult, error) {
	q := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("id ASC")

	if outcome != "" {
		q = q.Where("outcome = ?", outcome)
	}

	var results []TestResult
	if err := q.Find(&results).Error; err != nil {
		return nil, fmt.Errorf("listing test results: %w", err)
	}

	return results, nil
}

func (s *store) TestHistory(ctx context.Context, testID string, limit int) ([]TestResult, error) {
	q := s.db.WithContext(ctx).Where("test_id = ?", testID).Order("finished_at DESC")

	if limit > 0 {
		q = q.Limit(limit)
	}

	var results []TestResult
	if err := q.Find(&results).Error; err != nil {
		return nil, fmt.Errorf("listing test history: %w", err)
	}

	return results, nil
}

// DeleteRun removes a run and its test results.
func (s *store) DeleteRun(ctx context.Context, runID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", runID).Delete(&TestResult{}).Error; err != nil {
			return fmt.Errorf("deleting test results: %w", err)
		}

		res := tx.Where("run_id = ?", runID).Delete(&Run{})
		if res.Error != nil {
			return fmt.Errorf("deleting run: %w", res.Error)
		}

		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		return nil
	})
}
