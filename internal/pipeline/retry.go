package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/dgallion1/docblocks/internal/caption"
	"github.com/dgallion1/docblocks/internal/index"
)

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var captionErr *caption.RetryableError
	var indexErr *index.RetryableError
	return errors.As(err, &captionErr) || errors.As(err, &indexErr)
}

// Backoff returns a duration for attempt n (0-indexed) with jitter.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}

const MaxRetries = 3

// backoff is swapped out by tests.
var backoff = Backoff

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type retryingCaptioner struct {
	next caption.Captioner
	log  *slog.Logger
}

// RetryCaptioner retries retryable caption failures up to MaxRetries times.
func RetryCaptioner(c caption.Captioner, log *slog.Logger) caption.Captioner {
	if log == nil {
		log = slog.Default()
	}
	return &retryingCaptioner{next: c, log: log}
}

func (r *retryingCaptioner) Caption(ctx context.Context, image []byte) (string, error) {
	var lastErr error
	for attempt := range MaxRetries {
		text, err := r.next.Caption(ctx, image)
		if err == nil || !IsRetryable(err) {
			return text, err
		}
		lastErr = err
		if attempt == MaxRetries-1 {
			break
		}
		r.log.Warn("retryable caption error", "attempt", attempt, "error", err)
		if err := sleepCtx(ctx, backoff(attempt)); err != nil {
			return "", err
		}
	}
	return "", lastErr
}
