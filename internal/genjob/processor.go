package genjob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/suPer8Hu/genjobs/internal/logger"
)

// Generator performs the slow external work for one kind of job. The returned
// value is stored as result_data.
type Generator interface {
	Generate(ctx context.Context, job *Job, in Input, r *Reporter) (any, error)
}

type Processor struct {
	repo       *Repo
	generators map[Kind]Generator
	log        *logger.Logger
	tracer     trace.Tracer
	timeout    time.Duration
	now        func() time.Time
}

// NewProcessor builds a processor. timeout is the processing deadline armed at
// claim time; the Reaper fails jobs that exceed it.
func NewProcessor(repo *Repo, log *logger.Logger, timeout time.Duration, generators map[Kind]Generator) *Processor {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Processor{
		repo:       repo,
		generators: generators,
		log:        log.With("component", "JobProcessor"),
		tracer:     otel.Tracer("github.com/suPer8Hu/genjobs/internal/genjob"),
		timeout:    timeout,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Process runs one job to a terminal state. Duplicate deliveries and unknown
// ids are no-ops. A non-nil error means the job was never claimed and the
// delivery may be retried; every outcome after the claim is recorded on the job.
func (p *Processor) Process(ctx context.Context, jobID string) error {
	ctx, span := p.tracer.Start(ctx, "genjob.process", trace.WithAttributes(attribute.String("job.id", jobID)))
	defer span.End()

	start := time.Now()
	j, err := p.repo.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			p.log.Warn("job not found, dropping", "job_id", jobID)
			return nil
		}
		span.RecordError(err)
		return storage("get job", err)
	}
	if j.Status != StatusQueued {
		p.log.Info("job already claimed, skipping", "job_id", jobID, "status", j.Status)
		return nil
	}

	now := p.now()
	deadline := now.Add(p.timeout)
	claimed, err := p.repo.Claim(ctx, jobID, now, deadline)
	if err != nil {
		span.RecordError(err)
		return storage("claim job", err)
	}
	if !claimed {
		p.log.Info("lost claim race, skipping", "job_id", jobID)
		return nil
	}
	j.Status = StatusProcessing
	j.Progress = ProgressStarted
	span.SetAttributes(attribute.String("job.kind", string(j.Kind)))

	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	result, genErr := p.run(runCtx, j)
	if errors.Is(genErr, ErrLostClaim) {
		// already terminal, written by the reaper or a read-time expiry
		p.log.Warn("job claim lost while running, dropping outcome", "job_id", jobID, "cost", time.Since(start).String())
		return nil
	}
	if genErr != nil {
		span.RecordError(genErr)
		span.SetStatus(codes.Error, genErr.Error())
		msg := genErr.Error()
		if errors.Is(genErr, context.DeadlineExceeded) {
			msg = timedOutMessage + ": " + msg
		}
		p.finish(ctx, jobID, func(c context.Context) (bool, error) { return p.repo.Fail(c, jobID, msg, p.now()) })
		p.log.Warn("job failed", "job_id", jobID, "kind", j.Kind, "cost", time.Since(start).String(), "error", genErr)
		return nil
	}

	raw, err := json.Marshal(result)
	if err != nil {
		p.finish(ctx, jobID, func(c context.Context) (bool, error) {
			return p.repo.Fail(c, jobID, "encode result: "+err.Error(), p.now())
		})
		return nil
	}
	p.finish(ctx, jobID, func(c context.Context) (bool, error) {
		return p.repo.Complete(c, jobID, datatypes.JSON(raw), p.now())
	})
	p.log.Info("job completed", "job_id", jobID, "kind", j.Kind, "cost", time.Since(start).String())
	return nil
}

func (p *Processor) run(ctx context.Context, j *Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("generator panic", "job_id", j.ID, "kind", j.Kind, "panic", r)
			result, err = nil, fmt.Errorf("panic: unexpected error")
		}
	}()

	in, err := decodeInput(j.Input)
	if err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	gen, ok := p.generators[j.Kind]
	if !ok || gen == nil {
		return nil, fmt.Errorf("no generator registered for kind=%s", j.Kind)
	}
	return gen.Generate(ctx, j, in, &Reporter{repo: p.repo, jobID: j.ID, ctx: ctx, progress: j.Progress})
}

// finish writes the terminal state. It uses a fresh context so an expired job
// deadline does not prevent recording the outcome, and retries briefly on
// storage errors.
func (p *Processor) finish(parent context.Context, jobID string, write func(context.Context) (bool, error)) {
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), 10*time.Second)
		ok, err := write(ctx)
		cancel()
		if err == nil {
			if !ok {
				p.log.Warn("terminal write matched no row, job already terminal", "job_id", jobID)
			}
			return
		}
		lastErr = err
		time.Sleep(time.Duration(attempt) * 200 * time.Millisecond)
	}
	p.log.Error("terminal write failed, job left for the reaper", "job_id", jobID, "error", lastErr)
}

// Reporter lets a Generator publish progress and a preview.
type Reporter struct {
	repo     *Repo
	jobID    string
	ctx      context.Context
	progress int
}

// Partial records progress and, when content is non-empty, the preview text.
// Progress below the last reported value is raised to it.
func (r *Reporter) Partial(progress int, content string) error {
	if progress < r.progress {
		progress = r.progress
	}
	if progress >= ProgressDone {
		progress = ProgressDone - 1
	}
	var partial *string
	if content != "" {
		partial = &content
	}
	ok, err := r.repo.UpdateProgress(r.ctx, r.jobID, progress, partial)
	if err != nil {
		return storage("update progress", err)
	}
	if !ok {
		return ErrLostClaim
	}
	r.progress = progress
	return nil
}

func (r *Reporter) Progress() int { return r.progress }
