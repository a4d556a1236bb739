package genjob

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/suPer8Hu/genjobs/internal/common"
	"github.com/suPer8Hu/genjobs/internal/logger"
)

// Trigger signals the Processor that a job is ready. Implemented by the
// RabbitMQ publisher.
type Trigger interface {
	PublishJob(ctx context.Context, jobID string) error
}

// ProviderSet reports whether a text provider name can be routed.
type ProviderSet interface {
	Has(name string) bool
}

type Service struct {
	repo      *Repo
	trigger   Trigger
	providers ProviderSet
	log       *logger.Logger
	budget    time.Duration
	now       func() time.Time
}

// NewService wires submission and fetch. budget is the processing deadline
// attached to each job; providers may be nil to skip provider validation.
func NewService(repo *Repo, trigger Trigger, providers ProviderSet, log *logger.Logger, budget time.Duration) *Service {
	if budget <= 0 {
		budget = 10 * time.Minute
	}
	return &Service{
		repo:      repo,
		trigger:   trigger,
		providers: providers,
		log:       log.With("service", "GenJobService"),
		budget:    budget,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit validates in, stores a queued job and signals the Processor. It
// returns without waiting for processing. created is false when the
// idempotency key matched an existing job.
func (s *Service) Submit(ctx context.Context, userID uint64, in Input, idempotencyKey string) (job *Job, created bool, err error) {
	in, err = in.Normalize()
	if err != nil {
		return nil, false, err
	}
	if in.Kind == KindArticle && s.providers != nil && !s.providers.Has(in.Provider) {
		return nil, false, invalid("unknown provider %q", in.Provider)
	}
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if len(idempotencyKey) > 128 {
		return nil, false, invalid("idempotency key too long")
	}

	raw, err := json.Marshal(in)
	if err != nil {
		return nil, false, invalid("encode input: %v", err)
	}
	id, err := common.NewULID()
	if err != nil {
		return nil, false, err
	}

	now := s.now()
	j := &Job{
		ID:         id,
		UserID:     userID,
		Kind:       in.Kind,
		Input:      datatypes.JSON(raw),
		Status:     StatusQueued,
		Progress:   ProgressQueued,
		DeadlineAt: now.Add(s.budget),
		EnqueuedAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if idempotencyKey != "" {
		j.IdempotencyKey = &idempotencyKey
	}

	job, created, err = s.repo.CreateOrGetExisting(ctx, j)
	if err != nil {
		return nil, false, storage("create job", err)
	}
	if !created {
		return job, false, nil
	}

	// Not surfaced: the reaper re-publishes queued jobs whose trigger was lost.
	if s.trigger != nil {
		if err := s.trigger.PublishJob(ctx, job.ID); err != nil {
			s.log.Warn("publish job failed, leaving it to the requeue sweep", "job_id", job.ID, "error", err)
		}
	}
	return job, true, nil
}

// Get returns the caller's job. Jobs of other users are reported as not found.
// A processing job past its deadline is failed here rather than waiting for the reaper.
func (s *Service) Get(ctx context.Context, userID uint64, id string) (*Job, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storage("get job", err)
	}
	if j.UserID != userID {
		// hide existence
		return nil, ErrNotFound
	}

	now := s.now()
	if j.Status == StatusProcessing && !j.DeadlineAt.IsZero() && j.DeadlineAt.Before(now) {
		failed, err := s.repo.FailExpiredByID(ctx, id, now)
		if err != nil {
			return nil, storage("expire job", err)
		}
		if failed {
			s.log.Warn("job timed out on read", "job_id", id, "deadline_at", j.DeadlineAt)
		}
		if j, err = s.repo.Get(ctx, id); err != nil {
			return nil, storage("get job", err)
		}
	}
	return j, nil
}

func (s *Service) List(ctx context.Context, userID uint64, status Status, limit int, beforeID string) ([]Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if status != "" && !status.Valid() {
		return nil, invalid("unknown status %q", status)
	}
	jobs, err := s.repo.List(ctx, userID, status, limit, strings.TrimSpace(beforeID))
	if err != nil {
		return nil, storage("list jobs", err)
	}
	return jobs, nil
}

// Fetcher adapts Get to the Poller's FetchFunc for an in-process caller.
func (s *Service) Fetcher(userID uint64) FetchFunc {
	return func(ctx context.Context, id string) (*View, error) {
		j, err := s.Get(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		v := j.View()
		return &v, nil
	}
}
