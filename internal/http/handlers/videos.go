package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"adaptrix/internal/domain"
	"adaptrix/internal/lifecycle"
	"adaptrix/internal/middleware"
	"adaptrix/internal/storage"
)

const (
	// multipartOverhead covers form fields and boundaries around the file part.
	multipartOverhead = 1 << 20
	multipartMemory   = 32 << 20
)

type jobResponse struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Filename       string    `json:"filename"`
	Status         string    `json:"status"`
	SourceURL      string    `json:"source_url"`
	ResultURL      string    `json:"result_url,omitempty"`
	ThumbnailURL   string    `json:"thumbnail_url,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	SourceLanguage string    `json:"source_language,omitempty"`
	TargetLanguage string    `json:"target_language"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (a *App) jobJSON(job *domain.Job) jobResponse {
	out := jobResponse{
		ID:             job.ID,
		Title:          job.Title(),
		Filename:       job.Filename,
		Status:         string(job.Status),
		SourceURL:      storage.ResolveURL(a.Store, job.SourcePath),
		SourceLanguage: job.SourceLanguage,
		TargetLanguage: job.TargetLanguage,
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
	}
	if job.ResultPath != nil {
		out.ResultURL = storage.ResolveURL(a.Store, *job.ResultPath)
	}
	if job.ThumbnailPath != nil {
		out.ThumbnailURL = storage.ResolveURL(a.Store, *job.ThumbnailPath)
	}
	if job.ErrorMessage != nil {
		out.ErrorMessage = *job.ErrorMessage
	}
	return out
}

type progressResponse struct {
	lifecycle.State
	ElapsedSeconds int64  `json:"elapsed_seconds"`
	ResultURL      string `json:"result_url,omitempty"`
}

func (a *App) progressJSON(st lifecycle.State) progressResponse {
	return progressResponse{
		State:          st,
		ElapsedSeconds: st.ElapsedSeconds(),
		ResultURL:      storage.ResolveURL(a.Store, st.ResultRef),
	}
}

// VideosSubmit accepts a multipart upload and starts processing it.
func (a *App) VideosSubmit(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.lifecycleError(w, r, &lifecycle.Error{Kind: lifecycle.KindFileTooLarge, Message: "file exceeds the upload limit"}, nil)
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "file is required")
		return
	}
	defer file.Close()

	job, err := a.Videos.SubmitOnce(r.Context(), r.Header.Get("Idempotency-Key"), lifecycle.SubmitRequest{
		OwnerID:        userID,
		Filename:       header.Filename,
		ContentType:    header.Header.Get("Content-Type"),
		Size:           header.Size,
		Body:           file,
		TargetLanguage: r.FormValue("target_language"),
		SourceLanguage: r.FormValue("source_language"),
	})
	if errors.Is(err, lifecycle.ErrAlreadyStarted) {
		if job == nil {
			a.error(w, http.StatusConflict, "already_started", "this upload is already in progress")
			return
		}
		w.Header().Set("Idempotent-Replayed", "true")
		a.json(w, http.StatusAccepted, a.jobJSON(job))
		return
	}
	if err != nil {
		a.lifecycleError(w, r, err, job)
		return
	}
	w.Header().Set("Location", "/v1/videos/"+job.ID)
	a.json(w, http.StatusAccepted, a.jobJSON(job))
}

// lifecycleError renders a submit failure. job is set when the row exists.
func (a *App) lifecycleError(w http.ResponseWriter, r *http.Request, err error, job *domain.Job) {
	var le *lifecycle.Error
	if !errors.As(err, &le) {
		a.log(r).Error().Err(err).Msg("videos: unexpected submit error")
		a.error(w, http.StatusInternalServerError, "internal", "unexpected error")
		return
	}
	status := http.StatusInternalServerError
	switch le.Kind {
	case lifecycle.KindUnauthenticated:
		status = http.StatusUnauthorized
	case lifecycle.KindUnsupportedFileType:
		status = http.StatusUnsupportedMediaType
	case lifecycle.KindFileTooLarge:
		status = http.StatusRequestEntityTooLarge
	case lifecycle.KindMissingTargetLanguage:
		status = http.StatusBadRequest
	case lifecycle.KindUploadFailed, lifecycle.KindProcessingTriggerFailed:
		status = http.StatusBadGateway
	}
	body := map[string]any{
		"error": errorBody{Code: string(le.Kind), Message: le.Message, Retryable: le.Kind.Retryable()},
	}
	if le.Kind == lifecycle.KindUnauthenticated {
		body["redirect"] = middleware.SignInPath
	}
	if job != nil {
		body["job"] = a.jobJSON(job)
	}
	a.json(w, status, body)
}

func (a *App) VideosList(w http.ResponseWriter, r *http.Request) {
	jobs, err := a.Videos.List(r.Context(), a.currentUserID(r))
	if err != nil {
		a.log(r).Error().Err(err).Msg("videos: list failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load videos")
		return
	}
	items := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		items = append(items, a.jobJSON(&jobs[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) VideoGet(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadJobForUser(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, a.jobJSON(job))
}

func (a *App) VideoDelete(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadJobForUser(w, r)
	if !ok {
		return
	}
	if err := a.Videos.Delete(r.Context(), job.OwnerID, job.ID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "video not found")
			return
		}
		a.log(r).Error().Err(err).Str("job_id", job.ID).Msg("videos: delete failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to delete video")
		return
	}
	if a.Thumbnails != nil {
		a.Thumbnails.Forget(job)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) VideoProgress(w http.ResponseWriter, r *http.Request) {
	jobID, ok := a.jobID(w, r)
	if !ok {
		return
	}
	st, err := a.Videos.Progress(r.Context(), a.currentUserID(r), jobID)
	if err != nil {
		a.jobLookupError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, a.progressJSON(st))
}

// VideoCancel stops an active job. Jobs with no live session answer 409.
func (a *App) VideoCancel(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadJobForUser(w, r)
	if !ok {
		return
	}
	if err := a.Videos.Cancel(r.Context(), job.OwnerID, job.ID); err != nil {
		if errors.Is(err, lifecycle.ErrNoActiveSession) {
			a.error(w, http.StatusConflict, "no_active_session", "video is not processing")
			return
		}
		a.log(r).Error().Err(err).Str("job_id", job.ID).Msg("videos: cancel failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to cancel video")
		return
	}
	st, err := a.Videos.Progress(r.Context(), job.OwnerID, job.ID)
	if err != nil {
		st = lifecycle.State{Phase: lifecycle.PhaseCancelled, JobID: job.ID}
	}
	a.json(w, http.StatusOK, a.progressJSON(st))
}

func (a *App) VideoThumbnail(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadJobForUser(w, r)
	if !ok {
		return
	}
	if a.Thumbnails == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "thumbnails are disabled")
		return
	}
	url, err := a.Thumbnails.Thumbnail(r.Context(), job)
	if err != nil {
		a.log(r).Warn().Err(err).Str("job_id", job.ID).Msg("videos: thumbnail failed")
		a.error(w, http.StatusBadGateway, "thumbnail_failed", "could not generate a thumbnail")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"thumbnail_url": url})
}

type ratingRequest struct {
	Rating int `json:"rating" validate:"required,min=1,max=3"`
}

// VideoRate records the owner's 1..3 rating, replacing an earlier one.
func (a *App) VideoRate(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadJobForUser(w, r)
	if !ok {
		return
	}
	var req ratingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if fields := validateStruct(&req); len(fields) > 0 {
		a.validationError(w, fields)
		return
	}
	fb, err := a.Feedback.Upsert(r.Context(), &domain.Feedback{UserID: job.OwnerID, VideoID: job.ID, Rating: req.Rating})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRating) {
			a.error(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		a.log(r).Error().Err(err).Str("job_id", job.ID).Msg("videos: save rating failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to save rating")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"id":         fb.ID,
		"video_id":   fb.VideoID,
		"rating":     fb.Rating,
		"updated_at": fb.UpdatedAt,
	})
}

func (a *App) jobID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		a.error(w, http.StatusNotFound, "not_found", "video not found")
		return "", false
	}
	return id, true
}

func (a *App) loadJobForUser(w http.ResponseWriter, r *http.Request) (*domain.Job, bool) {
	jobID, ok := a.jobID(w, r)
	if !ok {
		return nil, false
	}
	job, err := a.Videos.Get(r.Context(), a.currentUserID(r), jobID)
	if err != nil {
		a.jobLookupError(w, r, err)
		return nil, false
	}
	return job, true
}

func (a *App) jobLookupError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "video not found")
		return
	}
	a.log(r).Error().Err(err).Msg("videos: load failed")
	a.error(w, http.StatusInternalServerError, "internal", "failed to load video")
}
