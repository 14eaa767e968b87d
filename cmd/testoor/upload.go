package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/testoor/pkg/upload"
)

var uploadReportDir string

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload a report directory to remote storage",
	Long:  `Upload a local report directory to S3-compatible storage using the config file settings.`,
	RunE:  runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().StringVar(&uploadReportDir, "report-dir", "",
		"Path to the report directory of one run")

	_ = uploadCmd.MarkFlagRequired("report-dir")
}

func runUpload(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.Upload.S3 == nil || !cfg.Upload.S3.Enabled {
		return fmt.Errorf("S3 upload is not configured or not enabled in config")
	}

	uploader := upload.NewS3Uploader(log, cfg.Upload.S3)

	log.WithField("dir", uploadReportDir).Info("Uploading report")

	prefix, err := uploader.Upload(cmd.Context(), uploadReportDir)
	if err != nil {
		return fmt.Errorf("uploading report: %w", err)
	}

	log.WithField("prefix", prefix).Info("Upload completed successfully")

	return nil
}
