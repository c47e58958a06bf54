package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"adaptrix/internal/http/handlers"
	"adaptrix/internal/middleware"
)

type Options struct {
	JWTSecret      string
	AllowedOrigins []string
	RateLimit      int
	DefaultLocale  string
	CountryLookup  middleware.CountryLookup
	Logger         zerolog.Logger
	// Static serves locally stored uploads under /static when set.
	Static stdhttp.Handler
}

func NewRouter(app *handlers.App, opts Options) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimw.RealIP, chimw.Recoverer, middleware.Logger(opts.Logger), middleware.CORS(opts.AllowedOrigins))

	// Health
	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	if opts.Static != nil {
		r.Handle("/static/*", stdhttp.StripPrefix("/static/", opts.Static))
	}

	r.Post("/v1/processor/callback", app.ProcessorCallback)

	r.Group(func(r chi.Router) {
		r.Use(middleware.I18N(opts.DefaultLocale, opts.CountryLookup))
		r.Get("/v1/languages", app.LanguagesList)
		r.With(middleware.RateLimit(opts.RateLimit, time.Minute)).Post("/v1/languages/detect", app.LanguagesDetect)
		r.With(middleware.RateLimit(opts.RateLimit, time.Minute)).Post("/v1/feedback", app.FeedbackSend)
	})

	r.Route("/v1/videos", func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))
		r.Get("/", app.VideosList)
		r.With(middleware.RateLimit(opts.RateLimit, time.Minute)).Post("/", app.VideosSubmit)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", app.VideoGet)
			r.Delete("/", app.VideoDelete)
			r.Get("/progress", app.VideoProgress)
			r.Post("/cancel", app.VideoCancel)
			r.Get("/thumbnail", app.VideoThumbnail)
			r.Post("/feedback", app.VideoRate)
		})
	})

	return r
}
