package genjob

import (
	"context"
	"time"

	"github.com/suPer8Hu/genjobs/internal/logger"
)

type ReaperConfig struct {
	// queued jobs not triggered for this long are published again
	RequeueAfter time.Duration
	// terminal jobs older than this are deleted; 0 keeps them forever
	Retention time.Duration
	BatchSize int
}

// Reaper closes the gaps of the fire-and-forget trigger: it fails processing
// jobs past their deadline, re-publishes queued jobs whose trigger was lost,
// and purges old terminal jobs.
type Reaper struct {
	repo    *Repo
	trigger Trigger
	cfg     ReaperConfig
	log     *logger.Logger
	now     func() time.Time
}

type SweepStats struct {
	TimedOut int64
	Requeued int
	Purged   int64
}

func NewReaper(repo *Repo, trigger Trigger, log *logger.Logger, cfg ReaperConfig) *Reaper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Reaper{
		repo:    repo,
		trigger: trigger,
		cfg:     cfg,
		log:     log.With("component", "JobReaper"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *Reaper) Sweep(ctx context.Context) (SweepStats, error) {
	var st SweepStats
	now := r.now()

	n, err := r.repo.FailExpired(ctx, now)
	if err != nil {
		return st, storage("fail expired", err)
	}
	st.TimedOut = n

	if r.trigger != nil && r.cfg.RequeueAfter > 0 {
		ids, err := r.repo.StaleQueued(ctx, now.Add(-r.cfg.RequeueAfter), r.cfg.BatchSize)
		if err != nil {
			return st, storage("list stale queued", err)
		}
		for _, id := range ids {
			if err := r.trigger.PublishJob(ctx, id); err != nil {
				r.log.Warn("requeue publish failed", "job_id", id, "error", err)
				continue
			}
			if err := r.repo.MarkEnqueued(ctx, id, now); err != nil {
				return st, storage("mark enqueued", err)
			}
			st.Requeued++
		}
	}

	if r.cfg.Retention > 0 {
		n, err := r.repo.PurgeTerminal(ctx, now.Add(-r.cfg.Retention))
		if err != nil {
			return st, storage("purge terminal", err)
		}
		st.Purged = n
	}
	return st, nil
}

// Run sweeps every interval until ctx is done.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.log.Info("reaper started", "interval", interval.String(), "requeue_after", r.cfg.RequeueAfter.String(), "retention", r.cfg.Retention.String())
	for {
		select {
		case <-ctx.Done():
			r.log.Info("reaper stopped")
			return nil
		case <-ticker.C:
			st, err := r.Sweep(ctx)
			if err != nil {
				r.log.Warn("sweep failed", "error", err)
				continue
			}
			if st.TimedOut > 0 || st.Requeued > 0 || st.Purged > 0 {
				r.log.Info("sweep", "timed_out", st.TimedOut, "requeued", st.Requeued, "purged", st.Purged)
			}
		}
	}
}
