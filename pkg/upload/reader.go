package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/testoor/pkg/config"
	"github.com/ethpandaops/testoor/pkg/report"
)

// ErrReportNotFound is returned when an uploaded run has no JSON report.
var ErrReportNotFound = errors.New("report not found")

// Reader lists and fetches uploaded reports.
type Reader struct {
	log    logrus.FieldLogger
	cfg    *config.S3UploadConfig
	client *s3.Client
}

// NewReader creates a Reader for the configured bucket and prefix.
func NewReader(log logrus.FieldLogger, cfg *config.S3UploadConfig) *Reader {
	return &Reader{
		log:    log.WithField("component", "s3-reader"),
		cfg:    cfg,
		client: newS3Client(cfg),
	}
}

// ListRuns returns the names of the uploaded report directories.
func (r *Reader) ListRuns(ctx context.Context) ([]string, error) {
	prefix := runPrefix(r.cfg.Prefix, "")

	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(r.cfg.Bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	var runs []string

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing runs under %q: %w", prefix, err)
		}

		for _, cp := range page.CommonPrefixes {
			if cp.Prefix == nil {
				continue
			}

			runs = append(runs, path.Base(strings.TrimSuffix(*cp.Prefix, "/")))
		}
	}

	r.log.WithField("runs", len(runs)).Debug("Listed uploaded runs")

	return runs, nil
}

// GetReport downloads and decodes the JSON report of an uploaded run.
func (r *Reader) GetReport(ctx context.Context, runName string) (*report.Report, error) {
	key := runPrefix(r.cfg.Prefix, runName) + "/" + report.JSONFileName

	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%s: %w", runName, ErrReportNotFound)
		}

		return nil, fmt.Errorf("getting object %q: %w", key, err)
	}

	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading object %q: %w", key, err)
	}

	return report.DecodeJSON(data)
}

// isS3NotFound returns true if the error indicates the object does not exist.
func isS3NotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}

	// Some S3-compatible implementations return a generic error.
	return strings.Contains(err.Error(), "NoSuchKey")
}
