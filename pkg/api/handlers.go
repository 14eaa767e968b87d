package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ethpandaops/testoor/pkg/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

type listRunsResponse struct {
	Runs   []store.Run `json:"runs"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

type testResultsResponse struct {
	Tests []store.TestResult `json:"tests"`
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	offset, ok := queryInt(w, r, "offset", 0)
	if !ok {
		return
	}

	runs, err := s.store.ListRuns(r.Context(), store.ListRunsFilter{
		AssemblyName: r.URL.Query().Get("assembly"),
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		s.internalError(w, err, "listing runs")

		return
	}

	if runs == nil {
		runs = []store.Run{}
	}

	writeJSON(w, http.StatusOK, listRunsResponse{Runs: runs, Limit: limit, Offset: offset})
}

func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{"run not found"})

		return
	}

	if err != nil {
		s.internalError(w, err, "getting run")

		return
	}

	writeJSON(w, http.StatusOK, run)
}

var validOutcomes = map[string]struct{}{
	"":                   {},
	store.OutcomePassed:  {},
	store.OutcomeFailed:  {},
	store.OutcomeSkipped: {},
	store.OutcomeNotRun:  {},
}

func (s *server) handleListTestResults(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	outcome := r.URL.Query().Get("outcome")

	if _, ok := validOutcomes[outcome]; !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{"invalid outcome " + strconv.Quote(outcome)})

		return
	}

	if _, err := s.store.GetRun(r.Context(), runID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{"run not found"})
		} else {
			s.internalError(w, err, "getting run")
		}

		return
	}

	results, err := s.store.ListTestResults(r.Context(), runID, outcome)
	if err != nil {
		s.internalError(w, err, "listing test results")

		return
	}

	if results == nil {
		results = []store.TestResult{}
	}

	writeJSON(w, http.StatusOK, testResultsResponse{Tests: results})
}

func (s *server) handleTestHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	results, err := s.store.TestHistory(r.Context(), chi.URLParam(r, "testID"), limit)
	if err != nil {
		s.internalError(w, err, "listing test history")

		return
	}

	if results == nil {
		results = []store.TestResult{}
	}

	writeJSON(w, http.StatusOK, testResultsResponse{Tests: results})
}

func (s *server) handleReportFile(w http.ResponseWriter, r *http.Request) {
	if err := s.files.ServeFile(w, r, chi.URLParam(r, "*")); err != nil {
		s.log.WithError(err).Debug("Report file not served")
		writeJSON(w, http.StatusNotFound, errorResponse{"file not found"})
	}
}

func (s *server) internalError(w http.ResponseWriter, err error, doing string) {
	s.log.WithError(err).Error("Failed " + doing)
	writeJSON(w, http.StatusInternalServerError, errorResponse{"internal error"})
}

// queryLimit parses the limit parameter. Zero selects the default, since
// the store reads a zero limit as unbounded.
func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit, ok := queryInt(w, r, "limit", defaultListLimit)
	if !ok {
		return 0, false
	}

	if limit == 0 {
		limit = defaultListLimit
	}

	return min(limit, maxListLimit), true
}

// queryInt parses a non-negative integer query parameter, writing a 400
// response and returning false when it is malformed.
func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}

	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{"invalid " + name})

		return 0, false
	}

	return v, true
}
