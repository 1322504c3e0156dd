// Package handlers contains the HTTP handlers for the FareWatch API.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"farewatch/internal/core"
	"farewatch/internal/types"
)

// WatchRepo is the storage the handler needs. Implemented by
// db.WatchRepository.
type WatchRepo interface {
	Get(ctx context.Context, id string) (*types.Watch, error)
	Update(ctx context.Context, id string, patch types.WatchPatch, expectedVersion int64) (*types.Watch, error)
	SetActive(ctx context.Context, id string, active bool) (*types.Watch, error)
	Delete(ctx context.Context, id string) error
}

// Triggerer runs one trigger synchronously. Implemented by trigger.Controller.
type Triggerer interface {
	Trigger(ctx context.Context, watchID string) (*types.TriggerOutcome, error)
}

// TriggerEnqueuer schedules an asynchronous trigger run. Implemented by
// queue.TriggerQueue. Optional.
type TriggerEnqueuer interface {
	EnqueueTrigger(ctx context.Context, watchID string, reason string) error
}

// UpdateWatchRequest is the body of PATCH /v1/watches/{id}.
type UpdateWatchRequest struct {
	TargetUSD *float64 `json:"target_usd" validate:"omitempty,gt=0,lte=100000"`
	Email     *string  `json:"email" validate:"omitempty,email,max=254"`
}

// WatchHandler serves the trigger entry point and watch management routes.
type WatchHandler struct {
	repo      WatchRepo
	triggerer Triggerer
	enqueuer  TriggerEnqueuer
	validator *core.Validator
	logger    *slog.Logger
}

// NewWatchHandler creates a WatchHandler. enqueuer may be nil, in which case
// resuming a watch does not schedule an immediate run.
func NewWatchHandler(repo WatchRepo, triggerer Triggerer, enqueuer TriggerEnqueuer, v *core.Validator, l *slog.Logger) *WatchHandler {
	if l == nil {
		l = slog.Default()
	}
	if v == nil {
		v = core.NewValidator(l)
	}
	return &WatchHandler{
		repo:      repo,
		triggerer: triggerer,
		enqueuer:  enqueuer,
		validator: v,
		logger:    l,
	}
}

// RegisterRoutes mounts the watch routes on r.
func (h *WatchHandler) RegisterRoutes(r chi.Router) {
	r.Route("/watches/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Patch("/", h.Update)
		r.Delete("/", h.Delete)
		r.Post("/trigger", h.Trigger)
		r.Post("/pause", h.Pause)
		r.Post("/resume", h.Resume)
	})
}

// Trigger handles POST /v1/watches/{id}/trigger. Every "no deal" path is a
// 200 with action NOOP; only an unknown, paused or concurrently modified
// watch, or an internal failure, is an error.
func (h *WatchHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	outcome, err := h.triggerer.Trigger(r.Context(), id)
	if err != nil {
		// Client errors (unknown, paused, lost race) are logged by RequestLogger.
		if types.CodeOf(err).HTTPStatus() >= http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "trigger failed", "watch_id", id, "error", err)
		}
		core.Error(w, r, err)
		return
	}

	core.Data(w, r, http.StatusOK, NewTriggerResponse(id, outcome))
}

// Get handles GET /v1/watches/{id}.
func (h *WatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	watch, err := h.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, NewWatchView(watch))
}

// Update handles PATCH /v1/watches/{id}. Only target_usd and email can be
// changed. The write is conditional on the version that was read.
func (h *WatchHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateWatchRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.TargetUSD == nil && req.Email == nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"at least one of target_usd or email is required",
			nil,
		))
		return
	}
	if req.Email != nil {
		trimmed := strings.TrimSpace(*req.Email)
		req.Email = &trimmed
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	current, err := h.repo.Get(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	updated, err := h.repo.Update(r.Context(), id, types.WatchPatch{
		TargetUSD: req.TargetUSD,
		Email:     req.Email,
	}, current.Version)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "watch updated",
		"watch_id", id,
		"target_changed", req.TargetUSD != nil,
		"email_changed", req.Email != nil,
	)
	core.Data(w, r, http.StatusOK, NewWatchView(updated))
}

// Delete handles DELETE /v1/watches/{id}.
func (h *WatchHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.repo.Delete(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "watch deleted", "watch_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// Pause handles POST /v1/watches/{id}/pause.
func (h *WatchHandler) Pause(w http.ResponseWriter, r *http.Request) {
	watch, err := h.repo.SetActive(r.Context(), chi.URLParam(r, "id"), false)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, NewWatchView(watch))
}

// Resume handles POST /v1/watches/{id}/resume. A successful resume also
// enqueues a trigger so the user does not wait for the next scheduler tick.
// Enqueue failures are logged; the resume itself has already succeeded.
func (h *WatchHandler) Resume(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	watch, err := h.repo.SetActive(r.Context(), id, true)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if h.enqueuer != nil {
		if err := h.enqueuer.EnqueueTrigger(r.Context(), id, "resume"); err != nil {
			h.logger.WarnContext(r.Context(), "failed to enqueue trigger on resume",
				"watch_id", id,
				"error", err,
			)
		}
	}

	core.Data(w, r, http.StatusOK, NewWatchView(watch))
}
