package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const defaultAnalyticsDays = 7

func (h *handlers) handleAnalyticsSources(w http.ResponseWriter, r *http.Request) {
	days := defaultAnalyticsDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "invalid days")
			return
		}
		days = n
	}

	sources, err := h.store.SourceAnalytics(r.Context(), days)
	if err != nil {
		h.logger.Error("httpapi: source analytics failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "source analytics failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"days": days, "sources": sources})
}

func (h *handlers) handleAnalyticsWeekly(w http.ResponseWriter, r *http.Request) {
	since := time.Now().AddDate(0, 0, -7)

	summary, err := h.store.WeeklySummary(r.Context(), since)
	if err != nil {
		h.logger.Error("httpapi: weekly summary failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "weekly summary failed")
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}
