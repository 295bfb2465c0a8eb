package meeting

import (
	"context"
	"log/slog"
	"time"

	"github.com/utkarsh2338/NexMeet/internal/metrics"
)

// SweepConfig controls the background retention sweep.
type SweepConfig struct {
	Interval      time.Duration
	Retention     time.Duration
	OrphanTimeout time.Duration
}

// Sweeper deletes old inactive meetings and ends reconstructed meetings that
// were never rejoined.
type Sweeper struct {
	store   Store
	manager *Manager
	guard   RoomGuard
	cfg     SweepConfig
	log     *slog.Logger
}

func NewSweeper(store Store, manager *Manager, guard RoomGuard, cfg SweepConfig, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 30 * 24 * time.Hour
	}
	return &Sweeper{
		store:   store,
		manager: manager,
		guard:   guard,
		cfg:     cfg,
		log:     logger.With("component", "sweeper"),
	}
}

// Run sweeps every Interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce performs a single pass.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	if s.cfg.OrphanTimeout > 0 && s.guard != nil {
		if n := s.manager.ExpireOrphans(ctx, s.cfg.OrphanTimeout, s.guard); n > 0 {
			s.log.Info("ended abandoned meetings", "count", n)
		}
	}

	cutoff := s.manager.now().Add(-s.cfg.Retention)
	deleted, err := s.store.DeleteInactiveBefore(ctx, cutoff)
	if err != nil {
		s.log.Warn("retention sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		metrics.MeetingsSwept.Add(float64(deleted))
		s.log.Info("deleted old meetings", "count", deleted, "cutoff", cutoff.Format(time.RFC3339))
	}
}
