package genjob

import (
	"context"
	"time"
)

// FetchFunc reads one snapshot of a job.
type FetchFunc func(ctx context.Context, jobID string) (*View, error)

// Poll fetches jobID every interval until it is terminal and returns the
// terminal snapshot. onUpdate, when set, sees every snapshot including the
// last. Stopping (ctx done) abandons the job; processing is not cancelled.
// partial_content in intermediate snapshots is a preview only.
func Poll(ctx context.Context, fetch FetchFunc, jobID string, interval time.Duration, onUpdate func(View)) (*View, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		v, err := fetch(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if onUpdate != nil {
			onUpdate(*v)
		}
		if v.Status.Terminal() {
			return v, nil
		}

		select {
		case <-ctx.Done():
			return v, ctx.Err()
		case <-ticker.C:
		}
	}
}
