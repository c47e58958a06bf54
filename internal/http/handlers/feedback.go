package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"adaptrix/internal/notify"
)

const maxFeedbackBody = 64 << 10

type contactRequest struct {
	Name             string `json:"name" validate:"max=100"`
	Email            string `json:"email" validate:"required,email,max=255"`
	Message          string `json:"message" validate:"required,min=1,max=5000"`
	MarketingConsent bool   `json:"marketing_consent"`
}

// FeedbackSend forwards a landing page message to the team inbox.
func (a *App) FeedbackSend(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFeedbackBody)).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if fields := validateStruct(&req); len(fields) > 0 {
		a.validationError(w, fields)
		return
	}
	if a.Mailer == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "feedback is not configured")
		return
	}
	id, err := a.Mailer.Send(r.Context(), notify.ContactMessage{
		Name:             req.Name,
		Email:            req.Email,
		Message:          req.Message,
		MarketingConsent: req.MarketingConsent,
	})
	if err != nil {
		if errors.Is(err, notify.ErrNotConfigured) {
			a.error(w, http.StatusServiceUnavailable, "unavailable", "feedback is not configured")
			return
		}
		a.log(r).Error().Err(err).Msg("feedback: send failed")
		a.error(w, http.StatusBadGateway, "send_failed", "failed to send feedback")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "message_id": id})
}
