package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/testoor/pkg/config"
)

const redacted = "<redacted>"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging every --config file, applying
TESTOOR_* environment overrides and defaults. Secrets are redacted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		return writeConfig(os.Stdout, cfg)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func writeConfig(w io.Writer, cfg *config.Config) error {
	out := *cfg

	if out.Upload.S3 != nil {
		s3 := *out.Upload.S3
		if s3.SecretAccessKey != "" {
			s3.SecretAccessKey = redacted
		}

		out.Upload.S3 = &s3
	}

	for _, db := range []*config.DatabaseConfig{&out.History.Database, &out.API.Database} {
		if db.Postgres.Password != "" {
			db.Postgres.Password = redacted
		}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(&out); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	return enc.Close()
}
