package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"adaptrix/internal/domain"
)

const timeoutMessage = "processing is taking longer than expected"

// session polls one job. Its goroutine owns the poll ticker, the stage ticker
// and the timeout timer; all three are released by teardown, which every exit
// of run reaches through a single defer.
type session struct {
	jobID      string
	ownerID    string
	sourcePath string
	startedAt  time.Time

	cancel    context.CancelFunc
	done      chan struct{}
	stopOnce  sync.Once
	cancelled atomic.Bool

	mu         sync.Mutex
	state      State
	stage      int
	finishedAt time.Time
}

func newSession(job *domain.Job, now time.Time) *session {
	return &session{
		jobID:      job.ID,
		ownerID:    job.OwnerID,
		sourcePath: job.SourcePath,
		startedAt:  now,
		done:       make(chan struct{}),
		state:      State{Phase: PhaseProcessing, JobID: job.ID},
	}
}

func (c *Controller) startSession(job *domain.Job) {
	now := c.clock.Now()
	s := newSession(job, now)
	ctx, cancel := context.WithCancel(c.ctx)
	s.cancel = cancel

	c.mu.Lock()
	c.evictLocked(now)
	c.sessions[job.ID] = s
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx, s)
	}()
}

func (c *Controller) run(ctx context.Context, s *session) {
	poll := c.clock.NewTicker(c.cfg.PollInterval)
	stage := c.clock.NewTicker(c.cfg.StageInterval)
	deadline := c.clock.NewTimer(c.cfg.Timeout)
	defer s.teardown(poll, stage, deadline)

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C():
			c.logger.Warn().Str("job_id", s.jobID).Dur("timeout", c.cfg.Timeout).Msg("lifecycle: processing timed out")
			c.finish(s, State{
				Phase:     PhaseFailed,
				ErrorKind: KindProcessingTimeout,
				Message:   timeoutMessage,
			})
			return
		case <-stage.C():
			s.advanceStage()
		case <-poll.C():
			if c.poll(ctx, s) {
				return
			}
		}
	}
}

// poll reads the row once and reports whether the session is over. It never
// writes to the row.
func (c *Controller) poll(ctx context.Context, s *session) bool {
	job, err := c.jobs.GetByID(ctx, s.jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.finish(s, State{Phase: PhaseFailed, ErrorKind: KindProcessorError, Message: "job not found"})
			return true
		}
		if ctx.Err() != nil {
			return true
		}
		c.logger.Warn().Err(err).Str("job_id", s.jobID).Msg("lifecycle: poll failed, retrying")
		return false
	}
	switch job.Status {
	case domain.JobStatusCompleted:
		st := State{Phase: PhaseCompleted}
		if job.ResultPath != nil {
			st.ResultRef = *job.ResultPath
		}
		c.finish(s, st)
	case domain.JobStatusError:
		st := State{Phase: PhaseFailed, ErrorKind: KindProcessorError, Message: "processing failed"}
		if job.ErrorMessage != nil && *job.ErrorMessage != "" {
			st.Message = *job.ErrorMessage
		}
		c.finish(s, st)
	case domain.JobStatusCancelled:
		c.finish(s, State{Phase: PhaseCancelled})
	default:
		return false
	}
	return true
}

func (c *Controller) finish(s *session, st State) {
	now := c.clock.Now()
	if !s.complete(st, now) {
		return
	}
	snap := s.snapshot(now)
	c.logger.Info().
		Str("job_id", s.jobID).
		Str("phase", string(snap.Phase)).
		Str("error_kind", string(snap.ErrorKind)).
		Dur("elapsed", snap.Elapsed).
		Msg("lifecycle: session finished")
	if c.onFinish != nil {
		c.onFinish(snap)
	}
}

// complete records the final state once; later calls are ignored.
func (s *session) complete(st State, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finishedAt.IsZero() {
		return false
	}
	st.JobID = s.jobID
	s.state = st
	s.finishedAt = now
	return true
}

func (s *session) advanceStage() {
	s.mu.Lock()
	if s.finishedAt.IsZero() {
		s.stage = (s.stage + 1) % len(StageLabels)
	}
	s.mu.Unlock()
}

func (s *session) snapshot(now time.Time) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	if s.finishedAt.IsZero() {
		st.Elapsed = now.Sub(s.startedAt)
		if st.Phase == PhaseProcessing {
			st.StageLabel = StageLabels[s.stage]
		}
	} else {
		st.Elapsed = s.finishedAt.Sub(s.startedAt)
	}
	return st
}

func (s *session) finished() bool {
	return !s.finishedTime().IsZero()
}

func (s *session) finishedTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishedAt
}

// active reports whether the polling goroutine is still running.
func (s *session) active() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *session) claimCancel() bool {
	return s.cancelled.CompareAndSwap(false, true)
}

// stop ends the polling goroutine and waits for its teardown.
func (s *session) stop() {
	s.cancel()
	<-s.done
}

func (s *session) teardown(timers ...Ticker) {
	s.stopOnce.Do(func() {
		for _, t := range timers {
			t.Stop()
		}
		s.cancel()
		close(s.done)
	})
}
