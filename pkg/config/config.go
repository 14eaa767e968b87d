package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment variable override, e.g.
	// TESTOOR_RUN_FAIL_SKIPS=true.
	EnvPrefix = "TESTOOR"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultReportDir is the default directory reports are written to.
	DefaultReportDir = "./reports"

	// DefaultOrderer is the default collection and case orderer.
	DefaultOrderer = "natural"

	// DefaultExplicit is the default explicit test policy.
	DefaultExplicit = "off"

	// DefaultLongRunningThreshold is the default idle time after which
	// still-running cases are reported.
	DefaultLongRunningThreshold = 5 * time.Minute
)

// ErrFailSkipsAndWarns is returned when both fail_skips and fail_warns are
// enabled. Their combined effect on intermediate counts is not defined.
var ErrFailSkipsAndWarns = errors.New("run.fail_skips and run.fail_warns cannot be enabled together")

// Config is the root configuration for testoor.
type Config struct {
	Global   GlobalConfig   `yaml:"global" mapstructure:"global"`
	Run      RunConfig      `yaml:"run" mapstructure:"run"`
	Report   ReportConfig   `yaml:"report" mapstructure:"report"`
	Recorder RecorderConfig `yaml:"recorder" mapstructure:"recorder"`
	History  HistoryConfig  `yaml:"history" mapstructure:"history"`
	Upload   UploadConfig   `yaml:"upload,omitempty" mapstructure:"upload"`
	API      APIConfig      `yaml:"api" mapstructure:"api"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// RunConfig controls how an assembly is executed and how its message
// stream is transformed.
type RunConfig struct {
	MaxParallelism         int    `yaml:"max_parallelism" mapstructure:"max_parallelism"`
	DisableParallelization bool   `yaml:"disable_parallelization" mapstructure:"disable_parallelization"`
	Orderer                string `yaml:"orderer" mapstructure:"orderer"`
	// Seed drives the random orderer. Zero picks a seed from the clock.
	Seed     int64  `yaml:"seed,omitempty" mapstructure:"seed"`
	Explicit string `yaml:"explicit" mapstructure:"explicit"`

	FailSkips  bool `yaml:"fail_skips" mapstructure:"fail_skips"`
	FailWarns  bool `yaml:"fail_warns" mapstructure:"fail_warns"`
	StopOnFail bool `yaml:"stop_on_fail" mapstructure:"stop_on_fail"`

	// LongRunningThreshold enables the long-running case detector. Zero
	// disables it.
	LongRunningThreshold time.Duration `yaml:"long_running_threshold" mapstructure:"long_running_threshold"`

	FilterStackTraces bool `yaml:"filter_stack_traces" mapstructure:"filter_stack_traces"`
	ShowLiveOutput    bool `yaml:"show_live_output" mapstructure:"show_live_output"`
}

// ReportConfig controls structured report generation.
type ReportConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Dir     string `yaml:"dir" mapstructure:"dir"`
	XML     bool   `yaml:"xml" mapstructure:"xml"`
	JSON    bool   `yaml:"json" mapstructure:"json"`
	// CollectEnvironment adds host details to the report.
	CollectEnvironment bool `yaml:"collect_environment" mapstructure:"collect_environment"`
}

// RecorderConfig controls the write-ahead message recording.
type RecorderConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Dir     string `yaml:"dir" mapstructure:"dir"`
}

// HistoryConfig controls persisting run results to a database.
type HistoryConfig struct {
	Enabled  bool           `yaml:"enabled" mapstructure:"enabled"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
}

// UploadConfig contains report upload settings.
type UploadConfig struct {
	S3 *S3UploadConfig `yaml:"s3,omitempty" mapstructure:"s3"`
}

// S3UploadConfig configures uploading report directories to S3-compatible
// storage.
type S3UploadConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	StorageClass    string `yaml:"storage_class,omitempty" mapstructure:"storage_class"`
	ACL             string `yaml:"acl,omitempty" mapstructure:"acl"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
}

// Load reads and merges the configuration files in order, applies
// environment overrides and defaults.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	// AutomaticEnv only applies to keys viper already knows about.
	for _, key := range envKeys(reflect.TypeOf(Config{}), "") {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	var cfg Config

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return nil, fmt.Errorf("creating config decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// envKeys lists the dotted keys of every scalar field reachable from t
// through struct fields.
func envKeys(t reflect.Type, prefix string) []string {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	keys := make([]string, 0, t.NumField())

	for i := range t.NumField() {
		field := t.Field(i)

		name, _, _ := strings.Cut(field.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			continue
		}

		key := name
		if prefix != "" {
			key = prefix + "." + name
		}

		ft := field.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}

		if ft.Kind() == reflect.Struct {
			keys = append(keys, envKeys(ft, key)...)

			continue
		}

		keys = append(keys, key)
	}

	return keys
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Run.Orderer == "" {
		c.Run.Orderer = DefaultOrderer
	}

	if c.Run.Explicit == "" {
		c.Run.Explicit = DefaultExplicit
	}

	if c.Report.Dir == "" {
		c.Report.Dir = DefaultReportDir
	}

	if c.Report.Enabled && !c.Report.XML && !c.Report.JSON {
		c.Report.XML = true
	}

	if c.History.Enabled && c.History.Database.Driver == "" {
		c.History.Database.Driver = DriverSQLite
	}

	if c.History.Database.Driver == DriverSQLite && c.History.Database.SQLite.Path == "" {
		c.History.Database.SQLite.Path = DefaultSQLitePath
	}

	if c.History.Database.Postgres.Port == 0 {
		c.History.Database.Postgres.Port = 5432
	}

	if c.API.Server.ReportDir == "" {
		c.API.Server.ReportDir = c.Report.Dir
	}

	c.API.applyDefaults()
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, ok := validOrderers[c.Run.Orderer]; !ok {
		return fmt.Errorf("run.orderer: unknown orderer %q", c.Run.Orderer)
	}

	if _, ok := validExplicit[c.Run.Explicit]; !ok {
		return fmt.Errorf("run.explicit: must be one of off, on, only (got %q)", c.Run.Explicit)
	}

	if c.Run.MaxParallelism < 0 {
		return fmt.Errorf("run.max_parallelism: must not be negative")
	}

	if c.Run.LongRunningThreshold < 0 {
		return fmt.Errorf("run.long_running_threshold: must not be negative")
	}

	if c.Run.FailSkips && c.Run.FailWarns {
		return ErrFailSkipsAndWarns
	}

	if c.Recorder.Enabled && c.Recorder.Dir == "" {
		return fmt.Errorf("recorder.dir: required when the recorder is enabled")
	}

	if c.History.Enabled {
		if err := c.History.Database.Validate(); err != nil {
			return fmt.Errorf("history.database: %w", err)
		}
	}

	if s3 := c.Upload.S3; s3 != nil && s3.Enabled {
		if s3.Bucket == "" {
			return fmt.Errorf("upload.s3.bucket: required when s3 upload is enabled")
		}

		if !c.Report.Enabled {
			return fmt.Errorf("upload.s3: requires report.enabled")
		}
	}

	return nil
}

var validOrderers = map[string]struct{}{
	"natural":      {},
	"alphabetical": {},
	"random":       {},
}

var validExplicit = map[string]struct{}{
	"off":  {},
	"on":   {},
	"only": {},
}
