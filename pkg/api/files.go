package api

import (
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// reportFileServer serves report files written below a single root
// directory.
type reportFileServer struct {
	log  logrus.FieldLogger
	root string
}

func newReportFileServer(log logrus.FieldLogger, root string) *reportFileServer {
	return &reportFileServer{
		log:  log.WithField("component", "report-files"),
		root: filepath.Clean(root),
	}
}

// ServeFile serves filePath relative to the root. It returns an error,
// without writing a response, when the path is disallowed or missing.
func (f *reportFileServer) ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error {
	if !isAllowedPath(filePath) {
		return fmt.Errorf("path %q is not allowed", filePath)
	}

	full := filepath.Join(f.root, filepath.FromSlash(filePath))
	if !strings.HasPrefix(full, f.root+string(filepath.Separator)) {
		return fmt.Errorf("path %q escapes the report directory", filePath)
	}

	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return fmt.Errorf("file %q not found", filePath)
	}

	http.ServeFile(w, r, full)

	return nil
}

// isAllowedPath rejects empty, absolute, unclean, or traversal request paths.
func isAllowedPath(filePath string) bool {
	if filePath == "" || strings.Contains(filePath, "..") {
		return false
	}

	if filepath.IsAbs(filePath) || strings.HasPrefix(filePath, "/") {
		return false
	}

	// No double slashes, trailing slashes or dot segments.
	return path.Clean(filePath) == filePath
}
