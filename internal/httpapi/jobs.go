package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jobintel/pipeline/internal/model"
	"github.com/jobintel/pipeline/internal/store"
)

type jobAction struct {
	status model.JobStatus
}

var (
	jobActionApplied   = jobAction{status: model.StatusApplied}
	jobActionDismissed = jobAction{status: model.StatusDismissed}
)

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbErr := h.store.Ping(r.Context())
	status := "ok"
	if dbErr != nil {
		status = "degraded"
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status": status,
		"database": map[string]any{
			"ok": dbErr == nil,
		},
	})
}

func (h *handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"timezone":       h.cfg.Timezone,
		"sources":        len(h.cfg.Sources),
		"companies":      len(h.cfg.Companies),
		"dry_run":        h.cfg.Notifier.DryRun,
	})
}

func (h *handlers) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.JobFilter{
		Limit:  20,
		Offset: 0,
	}

	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}
	if v := q.Get("band"); v != "" {
		band, ok := model.ParseScoreBand(v)
		if !ok {
			h.writeError(w, http.StatusBadRequest, "invalid band")
			return
		}
		filter.Band = band
	}
	if v := q.Get("bucket"); v != "" {
		bucket, ok := model.ParseTitleBucket(v)
		if !ok {
			h.writeError(w, http.StatusBadRequest, "invalid bucket")
			return
		}
		filter.Bucket = bucket
	}
	if v := q.Get("status"); v != "" {
		status, ok := model.ParseJobStatus(v)
		if !ok {
			h.writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		filter.Status = status
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid since (RFC3339)")
			return
		}
		filter.Since = &t
	}
	if v := q.Get("minScore"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid minScore")
			return
		}
		filter.MinScore = f
	}
	if v := q.Get("tiers"); v != "" {
		filter.Tiers = strings.Split(v, ",")
	}

	jobs, err := h.store.ListCanonicalJobs(r.Context(), filter)
	if err != nil {
		h.logger.Error("httpapi: list jobs failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "list jobs failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (h *handlers) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := parseJobID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := h.store.GetCanonicalJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error("httpapi: get job failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "get job failed")
		return
	}

	analysis, err := h.store.GetFitAnalysis(r.Context(), id)
	if err != nil {
		h.logger.Error("httpapi: get fit analysis failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "get fit analysis failed")
		return
	}

	alts, err := h.store.ListAlternateURLs(r.Context(), id)
	if err != nil {
		h.logger.Error("httpapi: list alternate urls failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "list alternate urls failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"job":           job,
		"fit_analysis":  analysis,
		"alternate_urls": alts,
	})
}

func (h *handlers) handleJobAction(action jobAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseJobID(r)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid job id")
			return
		}

		if err := h.transitionJob(r.Context(), id, action.status); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				h.writeError(w, http.StatusNotFound, "job not found")
				return
			}
			if errors.Is(err, errInvalidTransition) {
				h.writeError(w, http.StatusConflict, "job is not active")
				return
			}
			h.logger.Error("httpapi: job transition failed", zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "status update failed")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func parseJobID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
