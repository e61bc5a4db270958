package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/codebuildervaibhav/vodchat/internal/pipeline"
	"github.com/codebuildervaibhav/vodchat/internal/types"
)

// Retrying wraps an exporter whose backend fails transiently (Drive)
type Retrying struct {
	pipeline.Exporter
	attempts int
	backoff  func(attempt int) time.Duration
}

// WithRetry retries exp up to attempts times with quadratic backoff
func WithRetry(exp pipeline.Exporter, attempts int) *Retrying {
	return &Retrying{
		Exporter: exp,
		attempts: max(1, attempts),
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * time.Second
		},
	}
}

// Export implements pipeline.Exporter
func (r *Retrying) Export(ctx context.Context, run pipeline.RunInfo, res pipeline.ItemResult, recs []types.CommentRecord) error {
	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if err = r.Exporter.Export(ctx, run, res, recs); err == nil {
			return nil
		}
		if attempt == r.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.backoff(attempt)):
		}
	}
	return fmt.Errorf("%s export failed after %d attempts: %w", r.Name(), r.attempts, err)
}
