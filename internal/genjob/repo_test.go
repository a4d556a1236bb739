package genjob

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/datatypes"
)

func seedJob(t *testing.T, repo *Repo, id string, userID uint64, created time.Time) *Job {
	t.Helper()
	j := &Job{
		ID:         id,
		UserID:     userID,
		Kind:       KindArticle,
		Input:      datatypes.JSON(`{"kind":"article","prompt":"red shoes"}`),
		Status:     StatusQueued,
		DeadlineAt: created.Add(time.Hour),
		EnqueuedAt: created,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
	if err := repo.Create(context.Background(), j); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return j
}

func TestRepo_ClaimOnlyOnce(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()
	seedJob(t, repo, "01JOB0000000000000000000A1", 1, now)

	ok, err := repo.Claim(ctx, "01JOB0000000000000000000A1", now, now.Add(time.Minute))
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	ok, err = repo.Claim(ctx, "01JOB0000000000000000000A1", now, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if ok {
		t.Fatalf("second claim must not succeed")
	}

	j, _ := repo.Get(ctx, "01JOB0000000000000000000A1")
	if j.Status != StatusProcessing || j.Progress != ProgressStarted || j.Attempts != 1 || j.StartedAt == nil {
		t.Fatalf("unexpected claimed job: %+v", j)
	}
}

func TestRepo_ProgressNeverDecreases(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()
	seedJob(t, repo, "01JOB0000000000000000000B1", 1, now)
	_, _ = repo.Claim(ctx, "01JOB0000000000000000000B1", now, now.Add(time.Minute))

	preview := "draft"
	if ok, err := repo.UpdateProgress(ctx, "01JOB0000000000000000000B1", 60, &preview); err != nil || !ok {
		t.Fatalf("raise progress: ok=%v err=%v", ok, err)
	}
	if ok, _ := repo.UpdateProgress(ctx, "01JOB0000000000000000000B1", 30, nil); ok {
		t.Fatalf("lowering progress must not match")
	}
	j, _ := repo.Get(ctx, "01JOB0000000000000000000B1")
	if j.Progress != 60 || j.PartialContent == nil || *j.PartialContent != "draft" {
		t.Fatalf("unexpected job: progress=%d partial=%v", j.Progress, j.PartialContent)
	}
}

func TestRepo_TerminalIsFinal(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()
	seedJob(t, repo, "01JOB0000000000000000000C1", 1, now)

	// queued jobs cannot complete or fail directly
	if ok, _ := repo.Complete(ctx, "01JOB0000000000000000000C1", datatypes.JSON(`{}`), now); ok {
		t.Fatalf("complete from queued must not match")
	}
	if ok, _ := repo.Fail(ctx, "01JOB0000000000000000000C1", "x", now); ok {
		t.Fatalf("fail from queued must not match")
	}

	_, _ = repo.Claim(ctx, "01JOB0000000000000000000C1", now, now.Add(time.Minute))
	preview := "draft"
	_, _ = repo.UpdateProgress(ctx, "01JOB0000000000000000000C1", 60, &preview)
	if ok, err := repo.Complete(ctx, "01JOB0000000000000000000C1", datatypes.JSON(`{"content":"x"}`), now); err != nil || !ok {
		t.Fatalf("complete: ok=%v err=%v", ok, err)
	}

	if ok, _ := repo.Fail(ctx, "01JOB0000000000000000000C1", "late failure", now); ok {
		t.Fatalf("fail after completion must not match")
	}
	if ok, _ := repo.Claim(ctx, "01JOB0000000000000000000C1", now, now.Add(time.Minute)); ok {
		t.Fatalf("claim after completion must not match")
	}
	if ok, _ := repo.UpdateProgress(ctx, "01JOB0000000000000000000C1", 99, nil); ok {
		t.Fatalf("progress after completion must not match")
	}

	j, _ := repo.Get(ctx, "01JOB0000000000000000000C1")
	if j.Status != StatusCompleted || j.Progress != 100 || !j.HasResult() || j.ErrorMessage != nil || j.PartialContent != nil {
		t.Fatalf("unexpected completed job: %+v", j)
	}
}

func TestRepo_FailExpiredAndPurge(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	seedJob(t, repo, "01JOB0000000000000000000D1", 1, base)
	seedJob(t, repo, "01JOB0000000000000000000D2", 1, base)
	_, _ = repo.Claim(ctx, "01JOB0000000000000000000D1", base, base.Add(time.Minute))
	_, _ = repo.Claim(ctx, "01JOB0000000000000000000D2", base, base.Add(time.Hour))

	n, err := repo.FailExpired(ctx, base.Add(10*time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("fail expired: n=%d err=%v", n, err)
	}
	j, _ := repo.Get(ctx, "01JOB0000000000000000000D1")
	if j.Status != StatusFailed || j.ErrorMessage == nil || *j.ErrorMessage != timedOutMessage {
		t.Fatalf("expected timed out job, got %+v", j)
	}
	j, _ = repo.Get(ctx, "01JOB0000000000000000000D2")
	if j.Status != StatusProcessing {
		t.Fatalf("job within deadline must keep processing, got %s", j.Status)
	}

	purged, err := repo.PurgeTerminal(ctx, base.Add(20*time.Minute))
	if err != nil || purged != 1 {
		t.Fatalf("purge: n=%d err=%v", purged, err)
	}
	if _, err := repo.Get(ctx, "01JOB0000000000000000000D1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected purged job to be gone, got %v", err)
	}
}

func TestRepo_StaleQueued(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	seedJob(t, repo, "01JOB0000000000000000000E1", 1, base)
	seedJob(t, repo, "01JOB0000000000000000000E2", 1, base.Add(5*time.Minute))

	ids, err := repo.StaleQueued(ctx, base.Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("stale queued: %v", err)
	}
	if len(ids) != 1 || ids[0] != "01JOB0000000000000000000E1" {
		t.Fatalf("unexpected stale ids: %v", ids)
	}

	if err := repo.MarkEnqueued(ctx, "01JOB0000000000000000000E1", base.Add(2*time.Minute)); err != nil {
		t.Fatalf("mark enqueued: %v", err)
	}
	ids, _ = repo.StaleQueued(ctx, base.Add(time.Minute), 10)
	if len(ids) != 0 {
		t.Fatalf("expected no stale jobs after re-enqueue, got %v", ids)
	}
}

func TestRepo_CreateOrGetExisting(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()
	key := "abc"

	first := &Job{ID: "01JOB0000000000000000000F1", UserID: 9, Kind: KindArticle, Input: datatypes.JSON(`{}`),
		Status: StatusQueued, IdempotencyKey: &key, CreatedAt: now, UpdatedAt: now}
	got, created, err := repo.CreateOrGetExisting(ctx, first)
	if err != nil || !created || got.ID != first.ID {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}

	key2 := "abc"
	second := &Job{ID: "01JOB0000000000000000000F2", UserID: 9, Kind: KindArticle, Input: datatypes.JSON(`{}`),
		Status: StatusQueued, IdempotencyKey: &key2, CreatedAt: now, UpdatedAt: now}
	got, created, err = repo.CreateOrGetExisting(ctx, second)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created || got.ID != first.ID {
		t.Fatalf("expected existing job %s, got %s created=%v", first.ID, got.ID, created)
	}

	// same key, different user is a different job
	key3 := "abc"
	third := &Job{ID: "01JOB0000000000000000000F3", UserID: 10, Kind: KindArticle, Input: datatypes.JSON(`{}`),
		Status: StatusQueued, IdempotencyKey: &key3, CreatedAt: now, UpdatedAt: now}
	if _, created, err := repo.CreateOrGetExisting(ctx, third); err != nil || !created {
		t.Fatalf("other user's job: created=%v err=%v", created, err)
	}
}
