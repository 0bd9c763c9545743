package httpapi

import (
	"context"
	"errors"

	"github.com/jobintel/pipeline/internal/model"
)

var errInvalidTransition = errors.New("httpapi: invalid status transition")

// transitionJob applies a status change to a canonical job, enforcing the
// same monotone active -> {applied|dismissed|...} rule the orchestrator
// and model package define. A not-found GetCanonicalJob error passes
// through unwrapped so callers can match it with errors.Is(err, store.ErrNotFound).
func (h *handlers) transitionJob(ctx context.Context, id int64, to model.JobStatus) error {
	job, err := h.store.GetCanonicalJob(ctx, id)
	if err != nil {
		return err
	}
	if !model.CanTransition(job.Status, to) {
		return errInvalidTransition
	}
	return h.store.UpdateCanonicalJobStatus(ctx, id, to)
}
