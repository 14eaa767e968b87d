package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/testoor/pkg/report"
	"github.com/ethpandaops/testoor/pkg/upload"
)

// maxMarkdownChars keeps summaries below the GitHub step summary limit.
const maxMarkdownChars = 65000

var summaryFlags struct {
	reportDir string
	remote    string
	output    string
}

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Inspect written and uploaded reports",
}

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the runs uploaded to remote storage",
	RunE:  runReportsList,
}

var reportsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Generate a markdown summary of a report",
	Long: `Read report.json from a local report directory (--report-dir) or an
uploaded run (--remote) and produce a markdown summary.`,
	RunE: runReportsSummary,
}

func init() {
	rootCmd.AddCommand(reportsCmd)
	reportsCmd.AddCommand(reportsListCmd, reportsSummaryCmd)

	f := reportsSummaryCmd.Flags()
	f.StringVar(&summaryFlags.reportDir, "report-dir", "", "local report directory of one run")
	f.StringVar(&summaryFlags.remote, "remote", "", "name of an uploaded run")
	f.StringVar(&summaryFlags.output, "output", "", "output file path (default: summary-<run>.md)")

	reportsSummaryCmd.MarkFlagsOneRequired("report-dir", "remote")
	reportsSummaryCmd.MarkFlagsMutuallyExclusive("report-dir", "remote")
}

func newReader() (*upload.Reader, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if cfg.Upload.S3 == nil || !cfg.Upload.S3.Enabled {
		return nil, fmt.Errorf("S3 upload is not configured or not enabled in config")
	}

	return upload.NewReader(log, cfg.Upload.S3), nil
}

func runReportsList(cmd *cobra.Command, _ []string) error {
	reader, err := newReader()
	if err != nil {
		return err
	}

	runs, err := reader.ListRuns(cmd.Context())
	if err != nil {
		return err
	}

	for _, run := range runs {
		fmt.Println(run)
	}

	return nil
}

func runReportsSummary(cmd *cobra.Command, _ []string) error {
	var (
		rep     *report.Report
		runName string
		err     error
	)

	if summaryFlags.remote != "" {
		reader, rerr := newReader()
		if rerr != nil {
			return rerr
		}

		runName = summaryFlags.remote
		rep, err = reader.GetReport(cmd.Context(), runName)
	} else {
		runName = filepath.Base(summaryFlags.reportDir)
		rep, err = report.ReadJSON(filepath.Join(summaryFlags.reportDir, report.JSONFileName))
	}

	if err != nil {
		return fmt.Errorf("loading report: %w", err)
	}

	output := summaryFlags.output
	if output == "" {
		output = fmt.Sprintf("summary-%s.md", runName)
	}

	md := report.Markdown(rep, runName, maxMarkdownChars)

	if err := os.WriteFile(output, []byte(md), 0o644); err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}

	log.WithField("output", output).Info("Markdown summary generated successfully")

	return nil
}
