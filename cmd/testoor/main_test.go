package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/testoor/pkg/config"
	"github.com/ethpandaops/testoor/pkg/errmeta"
	"github.com/ethpandaops/testoor/pkg/message"
	"github.com/ethpandaops/testoor/pkg/report"
	"github.com/ethpandaops/testoor/pkg/sink"
	"github.com/ethpandaops/testoor/pkg/store"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)

	return l
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()

	cfg, err := config.Load()
	require.NoError(t, err)

	cfg.Run.DisableParallelization = true
	cfg.Report = config.ReportConfig{Enabled: true, Dir: filepath.Join(dir, "reports"), XML: true, JSON: true}
	cfg.Recorder = config.RecorderConfig{Enabled: true, Dir: filepath.Join(dir, "recordings")}
	cfg.History.Enabled = true
	cfg.History.Database = config.DatabaseConfig{
		Driver: config.DriverSQLite,
		SQLite: config.SQLiteDatabaseConfig{Path: filepath.Join(dir, "history.db")},
	}

	require.NoError(t, cfg.Validate())

	return cfg
}

func TestExecuteRun(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	var out bytes.Buffer

	res, err := executeRun(ctx, testLogger(), cfg, filepath.Join("testdata", "plan.yaml"), &out)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Summary.Total)
	assert.Equal(t, 1, res.Summary.Failed)
	assert.Equal(t, 1, res.Summary.Skipped)
	assert.False(t, res.Summary.Succeeded())

	assert.Contains(t, out.String(), "[FAIL]")
	assert.Contains(t, out.String(), "expected -2")
	assert.Contains(t, out.String(), "[FINISHED] smoke")

	// Report files.
	require.Len(t, res.Files, 2)

	rep, err := report.ReadJSON(filepath.Join(res.ReportDir, report.JSONFileName))
	require.NoError(t, err)
	require.Len(t, rep.Assemblies, 1)
	assert.Equal(t, 4, rep.Assemblies[0].Total)
	assert.Equal(t, 2, rep.Assemblies[0].Passed)

	// History.
	require.NotEmpty(t, res.HistoryID)

	st := store.NewStore(testLogger(), &cfg.History.Database)
	require.NoError(t, st.Start(ctx))
	t.Cleanup(func() { _ = st.Stop() })

	run, err := st.GetRun(ctx, res.HistoryID)
	require.NoError(t, err)
	assert.Equal(t, "smoke", run.AssemblyName)
	assert.Equal(t, 1, run.TestsFailed)

	// The recording replays to the same summary and report.
	var replayed bytes.Buffer

	rebuilt := filepath.Join(t.TempDir(), "rebuilt")

	summary, err := replay(ctx, testLogger(), filepath.Join(cfg.Recorder.Dir, res.RunName), rebuilt, errmeta.NoFilter, &replayed)
	require.NoError(t, err)

	assert.Equal(t, res.Summary.Total, summary.Total)
	assert.Equal(t, res.Summary.Failed, summary.Failed)
	assert.Equal(t, res.Summary.Skipped, summary.Skipped)
	assert.Contains(t, replayed.String(), "expected -2")

	again, err := report.ReadJSON(filepath.Join(rebuilt, report.JSONFileName))
	require.NoError(t, err)
	assert.Equal(t, rep.Assemblies[0].Failed, again.Assemblies[0].Failed)
}

func TestExecuteRun_RandomOrderReportsSeed(t *testing.T) {
	cfg := testConfig(t)
	cfg.Run.Orderer = "random"
	cfg.Recorder.Enabled = false
	cfg.History.Enabled = false

	res, err := executeRun(context.Background(), testLogger(), cfg, filepath.Join("testdata", "plan.yaml"), &bytes.Buffer{})
	require.NoError(t, err)

	rep, err := report.ReadJSON(filepath.Join(res.ReportDir, report.JSONFileName))
	require.NoError(t, err)
	require.NotNil(t, rep.Assemblies[0].Seed)
	assert.Equal(t, cfg.Run.Seed, *rep.Assemblies[0].Seed)
}

func TestExecuteRun_InterruptedRunStillSavesHistory(t *testing.T) {
	cfg := testConfig(t)
	cfg.Recorder.Enabled = false

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := executeRun(ctx, testLogger(), cfg, filepath.Join("testdata", "plan.yaml"), &bytes.Buffer{})
	require.NoError(t, err)

	assert.True(t, res.Summary.Completed)
	assert.Zero(t, res.Summary.Total)
	assert.Zero(t, res.Summary.Errors)
	require.NotEmpty(t, res.HistoryID)

	st := store.NewStore(testLogger(), &cfg.History.Database)
	require.NoError(t, st.Start(context.Background()))
	t.Cleanup(func() { _ = st.Stop() })

	run, err := st.GetRun(context.Background(), res.HistoryID)
	require.NoError(t, err)
	assert.Equal(t, "smoke", run.AssemblyName)
}

func TestReportPersistErrors(t *testing.T) {
	out := &message.Collector{}
	execution := sink.NewExecution(testLogger(), out, sink.ExecutionOptions{})

	ids := message.IDs{AssemblyID: "a"}
	execution.OnMessage(&message.AssemblyStarting{IDs: ids})
	execution.OnMessage(&message.AssemblyFinished{IDs: ids, Summary: message.RunSummary{Total: 1}})

	reportPersistErrors(testLogger(), execution, []persister{
		{name: "recording messages", err: func() error { return nil }},
		{name: "saving run history", err: func() error { return context.Canceled }},
	})

	errs := message.Filter[*message.ErrorMessage](out.Messages())
	require.Len(t, errs, 1)
	require.NoError(t, message.Validate(errs[0]))
	assert.Contains(t, errmeta.CombineMessages(errs[0].Error), "saving run history")

	s := execution.Summary()
	assert.Equal(t, 1, s.Errors)
	assert.False(t, s.Succeeded())
}

func TestExecuteRun_MissingPlan(t *testing.T) {
	cfg := testConfig(t)

	_, err := executeRun(context.Background(), testLogger(), cfg, filepath.Join(t.TempDir(), "nope.yaml"), &bytes.Buffer{})
	require.Error(t, err)
}

func TestWriteConfig_RedactsSecrets(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	cfg.Upload.S3 = &config.S3UploadConfig{Enabled: true, Bucket: "b", AccessKeyID: "id", SecretAccessKey: "hunter2"}
	cfg.History.Database.Postgres.Password = "pgpass"

	var buf bytes.Buffer
	require.NoError(t, writeConfig(&buf, cfg))

	assert.NotContains(t, buf.String(), "hunter2")
	assert.NotContains(t, buf.String(), "pgpass")
	assert.Contains(t, buf.String(), redacted)
	assert.Equal(t, "hunter2", cfg.Upload.S3.SecretAccessKey, "the loaded config is left untouched")
}

func TestMain(m *testing.M) {
	log = logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	os.Exit(m.Run())
}
