package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/testoor/pkg/config"
	"github.com/ethpandaops/testoor/pkg/errmeta"
	"github.com/ethpandaops/testoor/pkg/message"
	"github.com/ethpandaops/testoor/pkg/plan"
	"github.com/ethpandaops/testoor/pkg/recorder"
	"github.com/ethpandaops/testoor/pkg/report"
	"github.com/ethpandaops/testoor/pkg/scope"
	"github.com/ethpandaops/testoor/pkg/sink"
	"github.com/ethpandaops/testoor/pkg/store"
	"github.com/ethpandaops/testoor/pkg/uniqueid"
	"github.com/ethpandaops/testoor/pkg/upload"
)

// errTestsFailed makes the process exit non-zero after a failed run.
var errTestsFailed = errors.New("tests failed")

var runFlags struct {
	seed           int64
	orderer        string
	explicit       string
	maxParallelism int
	sequential     bool
	failSkips      bool
	failWarns      bool
	stopOnFail     bool
	longRunning    time.Duration
	reportDir      string
	liveOutput     bool
}

var runCmd = &cobra.Command{
	Use:   "run <plan.yaml>",
	Short: "Run the tests described by a plan file",
	Long: `Run every test of a plan file and report the results through the
console, the configured report files, the recorder and the run history.`,
	Args: cobra.ExactArgs(1),
	RunE: runTests,
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.Int64Var(&runFlags.seed, "seed", 0, "seed for the random orderer (0 picks one)")
	f.StringVar(&runFlags.orderer, "orderer", "", "collection and case orderer (natural, alphabetical, random)")
	f.StringVar(&runFlags.explicit, "explicit", "", "explicit test selection (off, on, only)")
	f.IntVar(&runFlags.maxParallelism, "max-parallelism", 0, "maximum collections running at once")
	f.BoolVar(&runFlags.sequential, "sequential", false, "run collections one after another")
	f.BoolVar(&runFlags.failSkips, "fail-skips", false, "report skipped tests as failed")
	f.BoolVar(&runFlags.failWarns, "fail-warns", false, "report passing tests with warnings as failed")
	f.BoolVar(&runFlags.stopOnFail, "stop-on-fail", false, "stop starting tests after the first failure")
	f.DurationVar(&runFlags.longRunning, "long-running", 0, "report tests running longer than this")
	f.StringVar(&runFlags.reportDir, "report-dir", "", "write reports below this directory")
	f.BoolVar(&runFlags.liveOutput, "live-output", false, "print test output as it is written")
}

func runTests(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	applyRunFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	res, err := executeRun(ctx, log, cfg, args[0], os.Stdout)
	if err != nil {
		return err
	}

	if !res.Summary.Succeeded() {
		return errTestsFailed
	}

	return nil
}

// applyRunFlags copies explicitly set flags over the loaded configuration.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()

	if f.Changed("seed") {
		cfg.Run.Seed = runFlags.seed
	}

	if f.Changed("orderer") {
		cfg.Run.Orderer = runFlags.orderer
	}

	if f.Changed("explicit") {
		cfg.Run.Explicit = runFlags.explicit
	}

	if f.Changed("max-parallelism") {
		cfg.Run.MaxParallelism = runFlags.maxParallelism
	}

	if f.Changed("sequential") {
		cfg.Run.DisableParallelization = runFlags.sequential
	}

	if f.Changed("fail-skips") {
		cfg.Run.FailSkips = runFlags.failSkips
	}

	if f.Changed("fail-warns") {
		cfg.Run.FailWarns = runFlags.failWarns
	}

	if f.Changed("stop-on-fail") {
		cfg.Run.StopOnFail = runFlags.stopOnFail
	}

	if f.Changed("long-running") {
		cfg.Run.LongRunningThreshold = runFlags.longRunning
	}

	if f.Changed("report-dir") {
		cfg.Report.Enabled = true
		cfg.Report.Dir = runFlags.reportDir

		if !cfg.Report.XML && !cfg.Report.JSON {
			cfg.Report.XML = true
		}
	}

	if f.Changed("live-output") {
		cfg.Run.ShowLiveOutput = runFlags.liveOutput
	}
}

// runResult is what executeRun produced.
type runResult struct {
	Summary   sink.ExecutionSummary
	RunName   string
	ReportDir string
	Files     []string
	RemoteKey string
	HistoryID string
}

// executeRun runs a plan with every configured reporter attached.
func executeRun(ctx context.Context, log logrus.FieldLogger, cfg *config.Config, planPath string, out io.Writer) (*runResult, error) {
	p, err := plan.Load(planPath)
	if err != nil {
		return nil, err
	}

	assembly := p.Assembly(planPath)
	assembly.ConfigFile = strings.Join(cfgFiles, ",")

	var seed *int64

	if cfg.Run.Orderer == scope.OrderRandom {
		if cfg.Run.Seed == 0 {
			cfg.Run.Seed = rand.Int64()
		}

		seed = &cfg.Run.Seed
	}

	orderer, err := scope.NewOrderer(cfg.Run.Orderer, cfg.Run.Seed)
	if err != nil {
		return nil, fmt.Errorf("creating orderer: %w", err)
	}

	filter := errmeta.NoFilter
	if cfg.Run.FilterStackTraces {
		filter = errmeta.DefaultStackFilter
	}

	assemblyID := uniqueid.ForAssembly(assembly.Name, assembly.Path, assembly.ConfigFile)
	res := &runResult{RunName: fmt.Sprintf("%d_%s", time.Now().Unix(), assemblyID[:8])}

	log = log.WithField("run", res.RunName)

	var uploader upload.Uploader

	if cfg.Upload.S3 != nil && cfg.Upload.S3.Enabled {
		uploader = upload.NewS3Uploader(log, cfg.Upload.S3)

		if err := uploader.Preflight(ctx); err != nil {
			return nil, fmt.Errorf("upload preflight: %w", err)
		}
	}

	var builder *report.Builder

	if cfg.Report.Enabled {
		builder = report.NewBuilder(filter)

		if cfg.Report.CollectEnvironment {
			host, err := report.CollectHost(ctx)
			if err != nil {
				log.WithError(err).Warn("Failed to collect host details")
			} else {
				builder.WithHost(host)
			}
		}
	}

	reporters := sink.NewFanOut(log)

	persisters, err := attachReporters(ctx, log, cfg, reporters, res, out, filter)
	if err != nil {
		_ = reporters.Close()

		return nil, err
	}

	execution := sink.NewExecution(log, reporters, sink.ExecutionOptions{
		Report: builder,
		OnComplete: func(s sink.ExecutionSummary) {
			log.WithFields(logrus.Fields{
				"total":   s.Total,
				"passed":  s.Passed(),
				"failed":  s.Failed,
				"skipped": s.Skipped,
				"not_run": s.NotRun,
				"errors":  s.Errors,
				"time":    s.Time,
			}).Info("Run completed")
		},
	})

	pipeline, err := sink.NewPipeline(log, &cfg.Run, execution)
	if err != nil {
		_ = reporters.Close()

		return nil, fmt.Errorf("building pipeline: %w", err)
	}

	runner := scope.NewRunner(log, scope.Options{
		MaxParallelism:         cfg.Run.MaxParallelism,
		DisableParallelization: cfg.Run.DisableParallelization,
		CollectionOrderer:      orderer,
		CaseOrderer:            orderer,
		Explicit:               scope.ExplicitOption(cfg.Run.Explicit),
		Seed:                   seed,
	})

	log.WithFields(logrus.Fields{
		"plan":  planPath,
		"tests": assembly.CountTests(),
	}).Info("Starting run")

	runner.Run(ctx, assembly, pipeline)

	reportPersistErrors(log, pipeline, persisters)

	_ = pipeline.Close()

	closeErr := reporters.Close()
	if closeErr != nil {
		log.WithError(closeErr).Error("Failed to close reporters")
	}

	res.Summary = execution.Summary()

	if !res.Summary.Completed {
		log.Error("Run aborted before the assembly finished")
	}

	if closeErr != nil {
		res.Summary.Errors++
	}

	if builder == nil {
		return res, nil
	}

	res.ReportDir = filepath.Join(cfg.Report.Dir, res.RunName)

	res.Files, err = report.WriteDir(res.ReportDir, execution.Report(), report.Formats{
		XML:  cfg.Report.XML,
		JSON: cfg.Report.JSON,
	})
	if err != nil {
		return res, fmt.Errorf("writing report: %w", err)
	}

	log.WithField("files", res.Files).Info("Report written")

	if uploader != nil {
		// The run may have been interrupted; the upload still gets a chance.
		res.RemoteKey, err = uploader.Upload(context.WithoutCancel(ctx), res.ReportDir)
		if err != nil {
			return res, fmt.Errorf("uploading report: %w", err)
		}
	}

	return res, nil
}

// persister is a reporter whose storage failures only show after the
// assembly finished.
type persister struct {
	name string
	err  func() error
}

// reportPersistErrors turns storage failures of the reporters into global
// error messages so they count against the run.
func reportPersistErrors(log logrus.FieldLogger, next message.Sink, persisters []persister) {
	for _, p := range persisters {
		err := p.err()
		if err == nil {
			continue
		}

		log.WithError(err).WithField("reporter", p.name).Error("Reporter failed to persist the run")

		next.OnMessage(&message.ErrorMessage{
			Error: errmeta.Extract(fmt.Errorf("%s: %w", p.name, err)),
		})
	}
}

// attachReporters registers the console, logger, recorder and history
// sinks on reporters and returns the ones that persist the run.
func attachReporters(
	ctx context.Context,
	log logrus.FieldLogger,
	cfg *config.Config,
	reporters *sink.FanOut,
	res *runResult,
	out io.Writer,
	filter errmeta.StackFilter,
) ([]persister, error) {
	var persisters []persister

	if _, err := reporters.Get("console", func() (message.Sink, error) {
		return sink.NewConsole(out, sink.ConsoleOptions{
			LiveOutput:  cfg.Run.ShowLiveOutput,
			StackFilter: filter,
		}), nil
	}); err != nil {
		return nil, err
	}

	if _, err := reporters.Get("logger", func() (message.Sink, error) {
		return sink.NewLogger(log), nil
	}); err != nil {
		return nil, err
	}

	if cfg.Recorder.Enabled {
		if _, err := reporters.Get("recorder", func() (message.Sink, error) {
			rec, err := recorder.Open(log, filepath.Join(cfg.Recorder.Dir, res.RunName))
			if err != nil {
				return nil, err
			}

			persisters = append(persisters, persister{name: "recording messages", err: rec.Err})

			return rec, nil
		}); err != nil {
			return nil, fmt.Errorf("opening recorder: %w", err)
		}
	}

	if cfg.History.Enabled {
		// An interrupted run still saves what it produced.
		detached := context.WithoutCancel(ctx)

		if _, err := reporters.Get("history", func() (message.Sink, error) {
			st := store.NewStore(log, &cfg.History.Database)
			if err := st.Start(detached); err != nil {
				return nil, err
			}

			h := &historySink{History: store.NewHistory(detached, log, st), store: st, res: res}
			persisters = append(persisters, persister{name: "saving run history", err: h.Err})

			return h, nil
		}); err != nil {
			return nil, fmt.Errorf("opening history: %w", err)
		}
	}

	return persisters, nil
}

// historySink closes the history store together with the other reporters.
type historySink struct {
	*store.History
	store store.Store
	res   *runResult
}

func (h *historySink) Close() error {
	if h.Err() == nil {
		h.res.HistoryID = h.RunID()
	}

	return h.store.Stop()
}
