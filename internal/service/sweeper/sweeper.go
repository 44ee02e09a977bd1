// Package sweeper evicts sessions and artifacts that have outlived the TTL.
package sweeper

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/yuchenx/docpilot/internal/service/session"
	"github.com/yuchenx/docpilot/internal/storage"
)

// Sweeper periodically calls the registry's sweep and deletes the stored
// files of whatever was evicted. Eviction is best effort: one failed file
// deletion never stops the rest.
type Sweeper struct {
	registry *session.Registry
	blobs    storage.Blobs
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

func New(registry *session.Registry, blobs storage.Blobs, ttl, interval time.Duration, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		registry: registry,
		blobs:    blobs,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
		logger:   logger.With().Str("component", "sweeper").Logger(),
	}
}

// WithClock overrides the time source; test hook.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Run blocks, sweeping every interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}

// SweepOnce evicts everything past the TTL and returns the eviction count.
func (s *Sweeper) SweepOnce() int {
	displaced, evicted := s.registry.Sweep(s.now(), s.ttl)
	for _, art := range displaced {
		if err := s.blobs.Delete(art.Path); err != nil {
			s.logger.Warn().Err(err).Str("path", art.Path).Msg("failed to delete evicted artifact")
		}
	}
	if evicted > 0 {
		s.logger.Info().Int("evicted", evicted).Msg("sweep complete")
	}
	return evicted
}
