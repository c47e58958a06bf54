// Package sweeper deletes stored objects that no job row references, such as
// uploads whose job insert failed.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"adaptrix/internal/storage"
)

// Referencer reports whether any job row still points at a stored path.
type Referencer interface {
	PathReferenced(ctx context.Context, path string) (bool, error)
}

type Options struct {
	// Prefix limits the sweep to keys under it. Empty sweeps the whole store.
	Prefix   string
	Grace    time.Duration
	Interval time.Duration
	// MaxTries bounds retries of each reference lookup.
	MaxTries uint
	Logger   zerolog.Logger
}

// Result summarizes one pass.
type Result struct {
	Scanned int
	Young   int
	Kept    int
	Deleted int
	Failed  int
}

type Sweeper struct {
	store    storage.ObjectStore
	refs     Referencer
	prefix   string
	grace    time.Duration
	interval time.Duration
	maxTries uint
	logger   zerolog.Logger
	now      func() time.Time
}

func New(store storage.ObjectStore, refs Referencer, opts Options) (*Sweeper, error) {
	if store == nil || refs == nil {
		return nil, errors.New("sweeper: store and referencer are required")
	}
	if opts.Grace <= 0 {
		opts.Grace = time.Hour
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Minute
	}
	if opts.MaxTries == 0 {
		opts.MaxTries = 3
	}
	return &Sweeper{
		store:    store,
		refs:     refs,
		prefix:   opts.Prefix,
		grace:    opts.Grace,
		interval: opts.Interval,
		maxTries: opts.MaxTries,
		logger:   opts.Logger,
		now:      time.Now,
	}, nil
}

// Run sweeps immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.interval).Dur("grace", s.grace).Msg("sweeper: started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("sweeper: pass failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SweepOnce deletes every unreferenced object older than the grace period.
// Objects whose reference check fails are kept.
func (s *Sweeper) SweepOnce(ctx context.Context) (Result, error) {
	var res Result
	objects, err := s.store.List(ctx, s.prefix)
	if err != nil {
		return res, fmt.Errorf("sweeper: list objects: %w", err)
	}
	cutoff := s.now().Add(-s.grace)
	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Scanned++
		if obj.LastModified.After(cutoff) {
			res.Young++
			continue
		}
		referenced, err := backoff.Retry(ctx, func() (bool, error) {
			return s.refs.PathReferenced(ctx, obj.Key)
		}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(s.maxTries))
		if err != nil {
			res.Failed++
			s.logger.Warn().Err(err).Str("key", obj.Key).Msg("sweeper: reference check failed")
			continue
		}
		if referenced {
			res.Kept++
			continue
		}
		if err := s.store.Delete(ctx, obj.Key); err != nil {
			res.Failed++
			s.logger.Warn().Err(err).Str("key", obj.Key).Msg("sweeper: delete failed")
			continue
		}
		res.Deleted++
		s.logger.Info().Str("key", obj.Key).Time("last_modified", obj.LastModified).Msg("sweeper: orphan deleted")
	}
	s.logger.Info().
		Int("scanned", res.Scanned).
		Int("deleted", res.Deleted).
		Int("kept", res.Kept).
		Int("young", res.Young).
		Int("failed", res.Failed).
		Msg("sweeper: pass complete")
	return res, nil
}
