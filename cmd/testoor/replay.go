package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/testoor/pkg/errmeta"
	"github.com/ethpandaops/testoor/pkg/recorder"
	"github.com/ethpandaops/testoor/pkg/report"
	"github.com/ethpandaops/testoor/pkg/sink"
)

var replayReportDir string

var replayCmd = &cobra.Command{
	Use:   "replay <recording-dir>",
	Short: "Replay a recorded message stream",
	Long: `Re-dispatch a recording written by the recorder to the console and,
with --report-dir, rebuild the report files from it.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replayReportDir, "report-dir", "",
		"rebuild the XML and JSON reports into this directory")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	filter := errmeta.NoFilter
	if cfg.Run.FilterStackTraces {
		filter = errmeta.DefaultStackFilter
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	summary, err := replay(ctx, log, args[0], replayReportDir, filter, os.Stdout)
	if err != nil {
		return err
	}

	if !summary.Succeeded() {
		return errTestsFailed
	}

	return nil
}

func replay(
	ctx context.Context,
	log logrus.FieldLogger,
	dir, reportDir string,
	filter errmeta.StackFilter,
	out io.Writer,
) (sink.ExecutionSummary, error) {
	var builder *report.Builder
	if reportDir != "" {
		builder = report.NewBuilder(filter)
	}

	console := sink.NewConsole(out, sink.ConsoleOptions{StackFilter: filter})
	execution := sink.NewExecution(log, console, sink.ExecutionOptions{Report: builder})

	n, err := recorder.Replay(ctx, dir, execution)
	if err != nil {
		return sink.ExecutionSummary{}, fmt.Errorf("replaying %s: %w", dir, err)
	}

	log.WithFields(logrus.Fields{
		"recording": filepath.Base(dir),
		"messages":  n,
	}).Info("Replay completed")

	if builder != nil {
		files, err := report.WriteDir(reportDir, execution.Report(), report.Formats{XML: true, JSON: true})
		if err != nil {
			return execution.Summary(), fmt.Errorf("writing report: %w", err)
		}

		log.WithField("files", files).Info("Report written")
	}

	return execution.Summary(), nil
}
