// Package upload publishes report directories to remote storage and reads
// them back.
package upload

import "context"

// DefaultPrefix is the key prefix used when none is configured.
const DefaultPrefix = "testoor"

// Uploader uploads a local report directory to remote storage.
type Uploader interface {
	// Preflight verifies that the remote storage is reachable and writable.
	Preflight(ctx context.Context) error

	// Upload uploads every file below reportDir under
	// prefix + "/runs/" + basename(reportDir) and returns that key prefix.
	Upload(ctx context.Context, reportDir string) (string, error)
}
