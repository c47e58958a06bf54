package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"adaptrix/internal/domain"
)

type callbackRequest struct {
	VideoID      string `json:"video_id"`
	Status       string `json:"status"`
	LocalizedURL string `json:"localized_url"`
	ErrorMessage string `json:"error_message"`
}

// ProcessorCallback lets the processor report a terminal status directly.
// Polling sessions pick the change up on their next tick.
func (a *App) ProcessorCallback(w http.ResponseWriter, r *http.Request) {
	if a.CallbackSecret == "" {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "callbacks are disabled")
		return
	}
	got := r.Header.Get("X-Processor-Secret")
	if subtle.ConstantTimeCompare([]byte(got), []byte(a.CallbackSecret)) != 1 {
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid processor secret")
		return
	}
	var req callbackRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if _, err := uuid.Parse(req.VideoID); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "video_id must be a uuid")
		return
	}
	update := domain.StatusUpdate{
		Status:       domain.JobStatus(req.Status),
		ResultPath:   req.LocalizedURL,
		ErrorMessage: req.ErrorMessage,
	}
	err := a.Videos.ApplyUpdate(r.Context(), req.VideoID, update)
	switch {
	case err == nil:
		a.json(w, http.StatusOK, map[string]string{"video_id": req.VideoID, "status": req.Status})
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "video not found")
	case errors.Is(err, domain.ErrTerminalState):
		a.error(w, http.StatusConflict, "terminal_state", err.Error())
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrMissingResult), errors.Is(err, domain.ErrMissingErrorMessage):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	default:
		a.log(r).Error().Err(err).Str("job_id", req.VideoID).Msg("callback: apply update failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to apply update")
	}
}
