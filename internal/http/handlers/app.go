package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"adaptrix/internal/domain"
	"adaptrix/internal/lifecycle"
	"adaptrix/internal/middleware"
	"adaptrix/internal/notify"
	"adaptrix/internal/storage"
	"adaptrix/internal/transcription"
)

// Videos is the job lifecycle surface the video handlers drive.
type Videos interface {
	SubmitOnce(ctx context.Context, key string, req lifecycle.SubmitRequest) (*domain.Job, error)
	Cancel(ctx context.Context, ownerID, jobID string) error
	Get(ctx context.Context, ownerID, jobID string) (*domain.Job, error)
	List(ctx context.Context, ownerID string) ([]domain.Job, error)
	Delete(ctx context.Context, ownerID, jobID string) error
	Progress(ctx context.Context, ownerID, jobID string) (lifecycle.State, error)
	ApplyUpdate(ctx context.Context, jobID string, u domain.StatusUpdate) error
}

type Thumbnails interface {
	Thumbnail(ctx context.Context, job *domain.Job) (string, error)
	Forget(job *domain.Job)
}

type ContactMailer interface {
	Send(ctx context.Context, msg notify.ContactMessage) (string, error)
}

type LanguageDetector interface {
	Detect(ctx context.Context, audio []byte) (transcription.Detection, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// App carries the dependencies shared by all handlers.
type App struct {
	Videos         Videos
	Store          storage.ObjectStore
	Thumbnails     Thumbnails
	Feedback       domain.FeedbackRepository
	Mailer         ContactMailer
	Detector       LanguageDetector
	DB             Pinger
	Logger         zerolog.Logger
	CallbackSecret string
	MaxUploadBytes int64
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]any{"error": errorBody{Code: errCode, Message: message}})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

func (a *App) log(r *http.Request) *zerolog.Logger {
	l := a.Logger.With().
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Str("user_id", a.currentUserID(r)).
		Logger()
	return &l
}
