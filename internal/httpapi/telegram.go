package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/jobintel/pipeline/internal/model"
)

// telegramUpdate is the minimal slice of Telegram's callback-query update
// shape this handler needs. Only callback_data of the form "applied_<id>"
// or "skip_<id>" is acted on; notifier.TelegramNotifier itself sends plain
// text messages without inline buttons.
type telegramUpdate struct {
	CallbackQuery *struct {
		ID   string `json:"id"`
		Data string `json:"data"`
	} `json:"callback_query"`
}

// handleTelegramCallback applies the status transition encoded in an inline
// button press. Telegram retries delivery on a non-2xx response, so once the
// body decodes as JSON every outcome gets a 200 and failures are logged
// rather than surfaced; a body that is not valid JSON gets a 400.
func (h *handlers) handleTelegramCallback(w http.ResponseWriter, r *http.Request) {
	var update telegramUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid callback payload")
		return
	}

	if update.CallbackQuery == nil || update.CallbackQuery.Data == "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	action, idStr, ok := strings.Cut(update.CallbackQuery.Data, "_")
	if !ok {
		h.logger.Warn("httpapi: unrecognized telegram callback data", zap.String("data", update.CallbackQuery.Data))
		w.WriteHeader(http.StatusOK)
		return
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		h.logger.Warn("httpapi: non-numeric job id in telegram callback", zap.String("data", update.CallbackQuery.Data))
		w.WriteHeader(http.StatusOK)
		return
	}

	var status model.JobStatus
	switch action {
	case "applied":
		status = model.StatusApplied
	case "skip":
		status = model.StatusDismissed
	default:
		h.logger.Warn("httpapi: unknown telegram callback action", zap.String("action", action))
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.transitionJob(r.Context(), id, status); err != nil {
		h.logger.Error("httpapi: telegram callback transition failed",
			zap.Int64("job_id", id), zap.String("action", action), zap.Error(err))
	}

	w.WriteHeader(http.StatusOK)
}
