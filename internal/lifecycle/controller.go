// Package lifecycle drives an uploaded video from validation to a terminal job
// state: upload, job row, processor trigger, then a polling session per job.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"

	"adaptrix/internal/domain"
	"adaptrix/internal/languages"
	"adaptrix/internal/processor"
	"adaptrix/internal/storage"
)

// Trigger starts external processing for an uploaded job.
type Trigger interface {
	Trigger(ctx context.Context, req processor.TriggerRequest) error
}

// Config bounds submissions and paces sessions.
type Config struct {
	AllowedTypes  []string
	MaxBytes      int64
	PollInterval  time.Duration
	StageInterval time.Duration
	Timeout       time.Duration
	// Retention keeps finished sessions queryable before eviction.
	Retention time.Duration
	// IdempotencyKeys bounds how many Idempotency-Key latches are remembered.
	IdempotencyKeys int
}

// DefaultConfig mirrors the limits of the upload page.
func DefaultConfig() Config {
	return Config{
		AllowedTypes:    []string{"video/mp4", "video/quicktime"},
		MaxBytes:        1000 << 20,
		PollInterval:    5 * time.Second,
		StageInterval:   3 * time.Second,
		Timeout:         10 * time.Minute,
		Retention:       15 * time.Minute,
		IdempotencyKeys: 1024,
	}
}

// Option customizes a Controller.
type Option func(*Controller)

// WithClock replaces the wall clock used for sessions.
func WithClock(clock Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithFinishHook registers fn to run once per session when it finishes.
func WithFinishHook(fn func(State)) Option {
	return func(c *Controller) { c.onFinish = fn }
}

// Controller owns submissions and their polling sessions.
type Controller struct {
	jobs     domain.JobRepository
	store    storage.ObjectStore
	trigger  Trigger
	logger   zerolog.Logger
	cfg      Config
	clock    Clock
	allowed  map[string]struct{}
	onFinish func(State)
	latches  *lru.Cache

	ctx     context.Context
	stopAll context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*session
}

// New returns a Controller with unset Config fields taken from DefaultConfig.
func New(jobs domain.JobRepository, store storage.ObjectStore, trigger Trigger, logger zerolog.Logger, cfg Config, opts ...Option) (*Controller, error) {
	def := DefaultConfig()
	if len(cfg.AllowedTypes) == 0 {
		cfg.AllowedTypes = def.AllowedTypes
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.StageInterval <= 0 {
		cfg.StageInterval = def.StageInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if cfg.IdempotencyKeys <= 0 {
		cfg.IdempotencyKeys = def.IdempotencyKeys
	}
	latches, err := lru.New(cfg.IdempotencyKeys)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: latch cache: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		jobs:     jobs,
		store:    store,
		trigger:  trigger,
		logger:   logger,
		cfg:      cfg,
		clock:    systemClock{},
		allowed:  make(map[string]struct{}, len(cfg.AllowedTypes)),
		latches:  latches,
		ctx:      ctx,
		stopAll:  cancel,
		sessions: make(map[string]*session),
	}
	for _, t := range cfg.AllowedTypes {
		c.allowed[normalizeContentType(t)] = struct{}{}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the effective configuration.
func (c *Controller) Config() Config { return c.cfg }

// Close stops every session and waits for their goroutines to exit.
func (c *Controller) Close() {
	c.stopAll()
	c.wg.Wait()
}

// SubmitRequest is one upload as received from the client. Size must be the
// exact byte count of Body.
type SubmitRequest struct {
	OwnerID        string
	Filename       string
	ContentType    string
	Size           int64
	Body           io.Reader
	TargetLanguage string
	SourceLanguage string
}

// Submission is a single user action. It runs at most once.
type Submission struct {
	c       *Controller
	req     SubmitRequest
	started atomic.Bool

	mu    sync.Mutex
	phase Phase
	job   *domain.Job
}

// NewSubmission wraps req as one user action; see Submission.Run.
func (c *Controller) NewSubmission(req SubmitRequest) *Submission {
	return &Submission{c: c, req: req, phase: PhaseIdle}
}

// Run executes the submission. A second call returns ErrAlreadyStarted.
func (s *Submission) Run(ctx context.Context) (*domain.Job, error) {
	if !s.started.CompareAndSwap(false, true) {
		return s.Job(), ErrAlreadyStarted
	}
	job, err := s.c.submit(ctx, s)
	if err != nil {
		s.setPhase(PhaseFailed)
	}
	return job, err
}

// Phase reports how far the submission got.
func (s *Submission) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Job returns the created job, or nil before the row exists.
func (s *Submission) Job() *domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job
}

func (s *Submission) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

func (s *Submission) setJob(job *domain.Job) {
	s.mu.Lock()
	s.job = job
	s.mu.Unlock()
}

// Submit runs a fresh submission for req.
func (c *Controller) Submit(ctx context.Context, req SubmitRequest) (*domain.Job, error) {
	return c.NewSubmission(req).Run(ctx)
}

// SubmitOnce latches on (owner, key): the first call runs, later calls return
// ErrAlreadyStarted with the job of the first call when it exists. A blank key
// behaves like Submit. The latch is released when the first call fails before
// creating a job row or with a retryable kind, so a retry under the same key
// runs again as a new job.
func (c *Controller) SubmitOnce(ctx context.Context, key string, req SubmitRequest) (*domain.Job, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return c.Submit(ctx, req)
	}
	latchKey := req.OwnerID + "\x00" + key
	sub := c.NewSubmission(req)
	if found, _ := c.latches.ContainsOrAdd(latchKey, sub); found {
		if prev, ok := c.latches.Get(latchKey); ok {
			return prev.(*Submission).Job(), ErrAlreadyStarted
		}
		return nil, ErrAlreadyStarted
	}
	job, err := sub.Run(ctx)
	if err != nil && (job == nil || KindOf(err).Retryable()) {
		c.latches.Remove(latchKey)
	}
	return job, err
}

func (c *Controller) submit(ctx context.Context, sub *Submission) (*domain.Job, error) {
	req := sub.req
	sub.setPhase(PhaseValidating)
	target, err := c.validate(req)
	if err != nil {
		return nil, err
	}

	log := c.logger.With().Str("owner_id", req.OwnerID).Str("filename", req.Filename).Logger()

	sub.setPhase(PhaseUploading)
	key, err := storage.NewUploadKey(req.OwnerID, req.Filename, c.clock.Now())
	if err != nil {
		return nil, fail(KindUploadFailed, "could not derive a storage key", err)
	}
	stored, err := c.store.Upload(ctx, key, req.Body, req.Size, normalizeContentType(req.ContentType))
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("lifecycle: upload failed")
		return nil, fail(KindUploadFailed, "upload failed, please try again", err)
	}

	job := &domain.Job{
		OwnerID:        req.OwnerID,
		Filename:       req.Filename,
		SourcePath:     stored,
		SourceLanguage: sourceLanguage(req.SourceLanguage),
		TargetLanguage: target,
	}
	if err := c.jobs.Create(ctx, job); err != nil {
		log.Error().Err(err).Str("orphan_key", stored).Msg("lifecycle: job insert failed")
		return nil, fail(KindJobCreateFailed, "could not record the upload, please try again", err)
	}
	sub.setJob(job)
	log = log.With().Str("job_id", job.ID).Logger()

	err = c.trigger.Trigger(ctx, processor.TriggerRequest{
		VideoID:          job.ID,
		OriginalURL:      storage.ResolveURL(c.store, stored),
		TargetLanguage:   job.TargetLanguage,
		UserID:           job.OwnerID,
		OriginalFilename: job.Filename,
	})
	if err != nil {
		log.Error().Err(err).Msg("lifecycle: processing trigger failed")
		return job, fail(KindProcessingTriggerFailed, "could not start processing, please try again", err)
	}

	c.startSession(job)
	sub.setPhase(PhaseProcessing)
	log.Info().Str("target_language", job.TargetLanguage).Msg("lifecycle: processing started")
	return job, nil
}

// validate checks every precondition without side effects and returns the
// normalized target language.
func (c *Controller) validate(req SubmitRequest) (string, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return "", fail(KindUnauthenticated, "sign in to upload videos", domain.ErrUnauthorized)
	}
	if _, ok := c.allowed[normalizeContentType(req.ContentType)]; !ok {
		return "", fail(KindUnsupportedFileType, fmt.Sprintf("%q is not a supported video format", req.ContentType), nil)
	}
	if req.Size > c.cfg.MaxBytes {
		return "", fail(KindFileTooLarge, fmt.Sprintf("file exceeds the %d MB limit", c.cfg.MaxBytes>>20), nil)
	}
	target, err := languages.Normalize(req.TargetLanguage)
	if err != nil {
		return "", fail(KindMissingTargetLanguage, "select a target language", err)
	}
	return target, nil
}

func normalizeContentType(ct string) string {
	ct = strings.TrimSpace(ct)
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	return strings.ToLower(ct)
}

func sourceLanguage(raw string) string {
	lang, err := languages.Normalize(raw)
	if err != nil {
		return ""
	}
	return lang
}

// Cancel stops the job's session, marks the row cancelled and deletes the
// uploaded source. Cleanup failures are logged only.
func (c *Controller) Cancel(ctx context.Context, ownerID, jobID string) error {
	s := c.lookup(ownerID, jobID)
	if s == nil || !s.active() || !s.claimCancel() {
		return ErrNoActiveSession
	}
	s.stop()
	if s.finished() {
		// The session reached a terminal state before it stopped.
		return ErrNoActiveSession
	}

	log := c.logger.With().Str("job_id", jobID).Str("owner_id", ownerID).Logger()
	err := c.jobs.UpdateStatus(ctx, jobID, domain.StatusUpdate{Status: domain.JobStatusCancelled})
	switch {
	case err == nil:
		if derr := c.store.Delete(ctx, s.sourcePath); derr != nil {
			log.Warn().Err(derr).Str("key", s.sourcePath).Msg("lifecycle: cancel cleanup failed")
		}
	case errors.Is(err, domain.ErrTerminalState):
		log.Info().Err(err).Msg("lifecycle: job finished before cancel")
	default:
		log.Warn().Err(err).Msg("lifecycle: cancel status update failed")
	}
	c.finish(s, State{Phase: PhaseCancelled})
	return nil
}

// Get returns the owner's job.
func (c *Controller) Get(ctx context.Context, ownerID, jobID string) (*domain.Job, error) {
	return c.jobs.GetForOwner(ctx, jobID, ownerID)
}

// List returns the owner's jobs, newest first.
func (c *Controller) List(ctx context.Context, ownerID string) ([]domain.Job, error) {
	return c.jobs.ListByOwner(ctx, ownerID)
}

// Delete stops any session, removes the row, then deletes the job's stored objects.
func (c *Controller) Delete(ctx context.Context, ownerID, jobID string) error {
	job, err := c.jobs.GetForOwner(ctx, jobID, ownerID)
	if err != nil {
		return err
	}
	if s := c.lookup(ownerID, jobID); s != nil {
		s.stop()
		c.finish(s, State{Phase: PhaseCancelled})
	}
	if err := c.jobs.Delete(ctx, jobID, ownerID); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.sessions, jobID)
	c.mu.Unlock()

	keys := []string{job.SourcePath}
	if job.ResultPath != nil && !storage.IsAbsoluteURL(*job.ResultPath) {
		keys = append(keys, *job.ResultPath)
	}
	if job.ThumbnailPath != nil {
		keys = append(keys, *job.ThumbnailPath)
	}
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := c.store.Delete(ctx, key); err != nil {
			c.logger.Warn().Err(err).Str("job_id", jobID).Str("key", key).Msg("lifecycle: delete object failed")
		}
	}
	return nil
}

// Progress returns the live session state, or one derived from the row when
// no session is tracked.
func (c *Controller) Progress(ctx context.Context, ownerID, jobID string) (State, error) {
	if s := c.lookup(ownerID, jobID); s != nil {
		return s.snapshot(c.clock.Now()), nil
	}
	job, err := c.jobs.GetForOwner(ctx, jobID, ownerID)
	if err != nil {
		return State{}, err
	}
	return c.stateFromJob(job, c.clock.Now()), nil
}

// ApplyUpdate records a status reported by the processor. Sessions observe it
// on their next poll.
func (c *Controller) ApplyUpdate(ctx context.Context, jobID string, u domain.StatusUpdate) error {
	if err := c.jobs.UpdateStatus(ctx, jobID, u); err != nil {
		return err
	}
	c.logger.Info().Str("job_id", jobID).Str("status", string(u.Status)).Msg("lifecycle: processor update applied")
	return nil
}

// stateFromJob derives the client state from the row alone. A row still
// processing past the timeout reads as timed out, matching what its session
// reported before eviction or a restart.
func (c *Controller) stateFromJob(job *domain.Job, now time.Time) State {
	st := State{JobID: job.ID}
	switch job.Status {
	case domain.JobStatusCompleted:
		st.Phase = PhaseCompleted
		if job.ResultPath != nil {
			st.ResultRef = *job.ResultPath
		}
	case domain.JobStatusError:
		st.Phase = PhaseFailed
		st.ErrorKind = KindProcessorError
		if job.ErrorMessage != nil {
			st.Message = *job.ErrorMessage
		}
	case domain.JobStatusCancelled:
		st.Phase = PhaseCancelled
	default:
		st.Elapsed = now.Sub(job.CreatedAt)
		if st.Elapsed > c.cfg.Timeout {
			st.Phase = PhaseFailed
			st.ErrorKind = KindProcessingTimeout
			st.Message = timeoutMessage
			break
		}
		st.Phase = PhaseProcessing
	}
	return st
}

func (c *Controller) lookup(ownerID, jobID string) *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictLocked(c.clock.Now())
	s, ok := c.sessions[jobID]
	if !ok || s.ownerID != ownerID {
		return nil
	}
	return s
}

func (c *Controller) evictLocked(now time.Time) {
	for id, s := range c.sessions {
		if at := s.finishedTime(); !at.IsZero() && now.Sub(at) > c.cfg.Retention {
			delete(c.sessions, id)
		}
	}
}
