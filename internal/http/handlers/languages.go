package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"adaptrix/internal/languages"
	"adaptrix/internal/middleware"
	"adaptrix/internal/transcription"
)

// Whisper rejects uploads above 25 MB; base64 adds a third.
const maxDetectBody = 34 << 20

// LanguagesList returns the supported targets and a suggested default for the caller.
func (a *App) LanguagesList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a.json(w, http.StatusOK, map[string]any{
		"languages": languages.Supported,
		"suggested": languages.Suggest(middleware.LocaleFromContext(ctx), middleware.CountryFromContext(ctx)),
	})
}

type detectRequest struct {
	Audio string `json:"audio"`
}

// LanguagesDetect identifies the spoken language of a base64 WAV sample.
func (a *App) LanguagesDetect(w http.ResponseWriter, r *http.Request) {
	var req detectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDetectBody)).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	audio, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil || len(audio) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "audio must be non-empty base64")
		return
	}
	if a.Detector == nil {
		a.detectFailed(w, "language detection is not configured")
		return
	}
	det, err := a.Detector.Detect(r.Context(), audio)
	if err != nil {
		if errors.Is(err, transcription.ErrNoAudio) {
			a.error(w, http.StatusBadRequest, "bad_request", "audio is required")
			return
		}
		a.log(r).Warn().Err(err).Msg("languages: detection failed")
		a.detectFailed(w, "language detection failed")
		return
	}
	a.json(w, http.StatusOK, det)
}

func (a *App) detectFailed(w http.ResponseWriter, msg string) {
	a.json(w, http.StatusBadGateway, map[string]any{
		"detected_language": "unknown",
		"error":             errorBody{Code: "detection_failed", Message: msg, Retryable: true},
	})
}
