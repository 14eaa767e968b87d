package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/testoor/pkg/config"
	"github.com/ethpandaops/testoor/pkg/message"
	"github.com/ethpandaops/testoor/pkg/scope"
	"github.com/ethpandaops/testoor/pkg/store"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func setupTestStore(t *testing.T) store.Store {
	t.Helper()

	// A file keeps every pooled connection on the same database.
	cfg := &config.DatabaseConfig{
		Driver: config.DriverSQLite,
		SQLite: config.SQLiteDatabaseConfig{Path: filepath.Join(t.TempDir(), "history.db")},
	}

	s := store.NewStore(testLogger(), cfg)
	require.NoError(t, s.Start(context.Background()))

	t.Cleanup(func() { _ = s.Stop() })

	return s
}

func TestStore_SaveAndGetRun(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()

	run := &store.Run{RunID: "run-1", AssemblyName: "alpha", StartedAt: now, TestsTotal: 2, TestsPassed: 1, TestsFailed: 1}
	results := []*store.TestResult{
		{RunID: "run-1", TestID: "t1", DisplayName: "first", Outcome: store.OutcomePassed},
		{RunID: "run-1", TestID: "t2", DisplayName: "second", Outcome: store.OutcomeFailed, FailureMessage: "boom"},
	}

	require.NoError(t, s.SaveRun(ctx, run, results))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.AssemblyName)
	assert.Equal(t, 2, got.TestsTotal)

	all, err := s.ListTestResults(ctx, "run-1", "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "first", all[0].DisplayName)

	failed, err := s.ListTestResults(ctx, "run-1", store.OutcomeFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "boom", failed[0].FailureMessage)

	_, err = s.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_SaveRunIsAtomic(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	// Duplicate (run_id, test_id) pairs violate the unique index.
	err := s.SaveRun(ctx, &store.Run{RunID: "run-dup"}, []*store.TestResult{
		{RunID: "run-dup", TestID: "same"},
		{RunID: "run-dup", TestID: "same"},
	})
	require.Error(t, err)

	_, err = s.GetRun(ctx, "run-dup")
	assert.ErrorIs(t, err, store.ErrNotFound, "the run is rolled back with its results")
}

func TestStore_ListRuns(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()

	for i, name := range []string{"alpha", "beta", "alpha"} {
		run := &store.Run{
			RunID:        name + "-" + string(rune('a'+i)),
			AssemblyName: name,
			StartedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.SaveRun(ctx, run, nil))
	}

	all, err := s.ListRuns(ctx, store.ListRunsFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "alpha-c", all[0].RunID, "newest first")

	alpha, err := s.ListRuns(ctx, store.ListRunsFilter{AssemblyName: "alpha"})
	require.NoError(t, err)
	assert.Len(t, alpha, 2)

	page, err := s.ListRuns(ctx, store.ListRunsFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "beta-b", page[0].RunID)
}

func TestStore_DeleteRun(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRun(ctx, &store.Run{RunID: "gone"}, []*store.TestResult{{RunID: "gone", TestID: "t"}}))
	require.NoError(t, s.DeleteRun(ctx, "gone"))

	results, err := s.ListTestResults(ctx, "gone", "")
	require.NoError(t, err)
	assert.Empty(t, results)

	assert.ErrorIs(t, s.DeleteRun(ctx, "gone"), store.ErrNotFound)
}

func TestHistory_SavesRunAndTracksTestsAcrossRuns(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	build := func(fail bool) *scope.Assembly {
		return &scope.Assembly{
			Name: "history",
			Collections: []*scope.Collection{{
				DisplayName: "c",
				Classes: []*scope.Class{{Name: "K", Methods: []*scope.Method{{Name: "M", Cases: []*scope.Case{
					{DisplayName: "stable", Body: func(context.Context, *scope.TestContext) error { return nil }},
					{DisplayName: "flaky", Body: func(context.Context, *scope.TestContext) error {
						if fail {
							return errors.New("flaked")
						}

						return nil
					}},
					{DisplayName: "ignored", SkipReason: "todo"},
				}}}}},
			}},
		}
	}

	var runIDs []string

	for _, fail := range []bool{false, true} {
		h := store.NewHistory(ctx, testLogger(), s)
		scope.NewRunner(testLogger(), scope.Options{}).Run(ctx, build(fail), h)

		require.NoError(t, h.Err())
		require.NotEmpty(t, h.RunID())

		runIDs = append(runIDs, h.RunID())
	}

	second, err := s.GetRun(ctx, runIDs[1])
	require.NoError(t, err)
	assert.Equal(t, "history", second.AssemblyName)
	assert.Equal(t, 3, second.TestsTotal)
	assert.Equal(t, 1, second.TestsPassed)
	assert.Equal(t, 1, second.TestsFailed)
	assert.Equal(t, 1, second.TestsSkipped)

	failed, err := s.ListTestResults(ctx, runIDs[1], store.OutcomeFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "flaky", failed[0].DisplayName)
	assert.Equal(t, "K", failed[0].ClassName)
	assert.Contains(t, failed[0].FailureMessage, "flaked")

	// Unique ids are stable, so the same test can be followed across runs.
	history, err := s.TestHistory(ctx, failed[0].TestID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)

	outcomes := []string{history[0].Outcome, history[1].Outcome}
	assert.ElementsMatch(t, []string{store.OutcomePassed, store.OutcomeFailed}, outcomes)
}

func TestHistory_CountsErrors(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	h := store.NewHistory(ctx, testLogger(), s)

	ids := message.IDs{AssemblyID: "a"}

	h.OnMessage(&message.AssemblyStarting{IDs: ids, AssemblyName: "errs", StartTime: time.Now()})
	h.OnMessage(&message.AssemblyCleanupFailure{IDs: ids})
	h.OnMessage(&message.AssemblyFinished{IDs: ids, FinishTime: time.Now()})

	run, err := s.GetRun(ctx, h.RunID())
	require.NoError(t, err)
	assert.Equal(t, 1, run.Errors)
}
