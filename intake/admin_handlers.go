package intake

import (
	"net/http"
	"strconv"
	"time"

	errs "github.com/jrsteele09/go-credential-pool/internal/errors"
	"github.com/jrsteele09/go-credential-pool/progress"
)

type refreshResponse struct {
	RunID          string   `json:"run_id"`
	Total          int      `json:"total"`
	Succeeded      int      `json:"succeeded"`
	Failed         int      `json:"failed"`
	FailedSubjects []string `json:"failed_subjects"`
	Empty          bool     `json:"empty"`
	Elapsed        string   `json:"elapsed"`
}

type pullResponse struct {
	RunID           string   `json:"run_id"`
	GroupID         string   `json:"group_id"`
	Target          int      `json:"target"`
	Tries           int      `json:"tries"`
	Added           int      `json:"added"`
	Failed          int      `json:"failed"`
	Remaining       int      `json:"remaining"`
	RecentSuccesses []string `json:"recent_successes"`
	Elapsed         string   `json:"elapsed"`
}

func (s *Server) AdminRefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.refresher == nil {
			writeJSONError(w, "unavailable", "refresh is not configured", http.StatusServiceUnavailable)
			return
		}

		report, err := s.gate.RefreshAll(r.Context(), s.refresher)
		if err != nil {
			s.writeBatchError(w, err)
			return
		}
		s.notifier.Notify(r.Context(), progress.RefreshSummary(report))

		failed := make([]string, 0, len(report.Failures))
		for _, f := range report.Failures {
			failed = append(failed, f.SubjectID)
		}
		writeJSON(w, http.StatusOK, refreshResponse{
			RunID:          report.RunID,
			Total:          report.Total,
			Succeeded:      report.Succeeded,
			Failed:         report.Failed,
			FailedSubjects: failed,
			Empty:          report.Empty,
			Elapsed:        report.Elapsed.Round(time.Millisecond).String(),
		})
	}
}

func (s *Server) AdminPullHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.enroller == nil {
			writeJSONError(w, "unavailable", "pull is not configured", http.StatusServiceUnavailable)
			return
		}

		amount, err := strconv.Atoi(r.FormValue("amount"))
		if err != nil || amount < 1 {
			writeJSONError(w, "invalid_request", "amount must be a positive integer", http.StatusBadRequest)
			return
		}
		group := r.FormValue("group")
		if group == "" {
			group = s.config.GetDefaultGroupID()
		}
		if group == "" {
			writeJSONError(w, "invalid_request", "group is required", http.StatusBadRequest)
			return
		}

		report, err := s.gate.Enroll(r.Context(), s.enroller, amount, group)
		if err != nil {
			s.writeBatchError(w, err)
			return
		}
		s.notifier.Notify(r.Context(), progress.EnrollmentSummary(report))

		writeJSON(w, http.StatusOK, pullResponse{
			RunID:           report.RunID,
			GroupID:         report.GroupID,
			Target:          report.Target,
			Tries:           report.Tries,
			Added:           report.Added,
			Failed:          report.Failed,
			Remaining:       report.Remaining,
			RecentSuccesses: report.RecentSuccesses,
			Elapsed:         report.Elapsed.Round(time.Millisecond).String(),
		})
	}
}

// AdminCountHandler reports the size of the refreshed pool
func (s *Server) AdminCountHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pool, err := s.store.LoadRefreshedPool(r.Context())
		if err != nil {
			s.logger.Err(err).Msg("Failed to load refreshed pool")
			writeJSONError(w, "store_unavailable", "credential store unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"count": len(pool)})
	}
}

func (s *Server) writeBatchError(w http.ResponseWriter, err error) {
	switch {
	case errs.Is(err, errs.ErrBatchInProgress):
		writeJSONError(w, "conflict", err.Error(), http.StatusConflict)
	case errs.Is(err, errs.ErrInvalidTarget):
		writeJSONError(w, "invalid_request", err.Error(), http.StatusBadRequest)
	case errs.Is(err, errs.ErrStoreUnavailable):
		s.logger.Err(err).Msg("Batch failed")
		writeJSONError(w, "store_unavailable", err.Error(), http.StatusServiceUnavailable)
	default:
		s.logger.Err(err).Msg("Batch failed")
		writeJSONError(w, "batch_failed", err.Error(), http.StatusInternalServerError)
	}
}
