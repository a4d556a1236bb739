package genjob

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Repo is the job store. Every state change is a conditional UPDATE that only
// matches when the row is in the expected prior status, so concurrent or
// duplicate processors cannot move a job backwards or out of a terminal state.
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, job *Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *Repo) Get(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

func (r *Repo) GetByUserAndIdempotencyKey(ctx context.Context, userID uint64, key string) (*Job, error) {
	var j Job
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&j).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

// CreateOrGetExisting tries to create a job, but if (user_id, idempotency_key) already exists,
// it returns the existing job instead.
func (r *Repo) CreateOrGetExisting(ctx context.Context, job *Job) (*Job, bool, error) {
	if job.IdempotencyKey == nil || *job.IdempotencyKey == "" {
		job.IdempotencyKey = nil
		if err := r.Create(ctx, job); err != nil {
			return nil, false, err
		}
		return job, true, nil
	}

	err := r.Create(ctx, job)
	if err == nil {
		return job, true, nil
	}

	existing, getErr := r.GetByUserAndIdempotencyKey(ctx, job.UserID, *job.IdempotencyKey)
	if getErr == nil {
		return existing, false, nil
	}
	if errors.Is(getErr, ErrNotFound) {
		return nil, false, err
	}
	return nil, false, getErr
}

// List returns a user's jobs newest first. beforeID pages backwards (ULIDs sort by time).
func (r *Repo) List(ctx context.Context, userID uint64, status Status, limit int, beforeID string) ([]Job, error) {
	q := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if beforeID != "" {
		q = q.Where("id < ?", beforeID)
	}
	var jobs []Job
	if err := q.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// Claim moves queued -> processing and arms the processing deadline.
func (r *Repo) Claim(ctx context.Context, id string, now, deadline time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, StatusQueued).
		Updates(map[string]any{
			"status":      StatusProcessing,
			"progress":    ProgressStarted,
			"started_at":  now,
			"deadline_at": deadline,
			"attempts":    gorm.Expr("attempts + 1"),
		})
	return res.RowsAffected == 1, res.Error
}

// UpdateProgress raises progress (never lowers it) and optionally replaces the preview.
func (r *Repo) UpdateProgress(ctx context.Context, id string, progress int, partial *string) (bool, error) {
	updates := map[string]any{"progress": progress}
	if partial != nil {
		updates["partial_content"] = *partial
	}
	res := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ? AND progress <= ?", id, StatusProcessing, progress).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}

func (r *Repo) Complete(ctx context.Context, id string, result datatypes.JSON, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, StatusProcessing).
		Updates(map[string]any{
			"status":          StatusCompleted,
			"progress":        ProgressDone,
			"result_data":     result,
			"partial_content": nil,
			"error_message":   nil,
			"finished_at":     now,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *Repo) Fail(ctx context.Context, id string, errMsg string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, StatusProcessing).
		Updates(failUpdates(errMsg, now))
	return res.RowsAffected == 1, res.Error
}

// FailExpired fails every processing job whose deadline has passed.
func (r *Repo) FailExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&Job{}).
		Where("status = ? AND deadline_at < ?", StatusProcessing, now).
		Updates(failUpdates(timedOutMessage, now))
	return res.RowsAffected, res.Error
}

// FailExpiredByID is the single-row form of FailExpired, used on read.
func (r *Repo) FailExpiredByID(ctx context.Context, id string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ? AND deadline_at < ?", id, StatusProcessing, now).
		Updates(failUpdates(timedOutMessage, now))
	return res.RowsAffected == 1, res.Error
}

func failUpdates(errMsg string, now time.Time) map[string]any {
	if errMsg == "" {
		errMsg = "unknown error"
	}
	return map[string]any{
		"status":          StatusFailed,
		"error_message":   errMsg,
		"result_data":     nil,
		"partial_content": nil,
		"finished_at":     now,
	}
}

// StaleQueued lists queued jobs whose last trigger is older than before.
func (r *Repo) StaleQueued(ctx context.Context, before time.Time, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&Job{}).
		Where("status = ? AND enqueued_at < ?", StatusQueued, before).
		Order("enqueued_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *Repo) MarkEnqueued(ctx context.Context, id string, now time.Time) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, StatusQueued).
		Update("enqueued_at", now).Error
}

// PurgeTerminal deletes completed/failed jobs that finished before cutoff.
func (r *Repo) PurgeTerminal(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status IN ? AND finished_at < ?", []Status{StatusCompleted, StatusFailed}, before).
		Delete(&Job{})
	return res.RowsAffected, res.Error
}
