package audit

import (
	"context"
	"time"

	"riskgate/internal/domain"
	"riskgate/pkg/sentinel"
)

// Logger is the producer-facing facade over the bounded audit queue. Safe for
// concurrent callers; the queue is the only synchronization point between the
// many decision flows and the single background writer.
type Logger struct {
	queue   chan<- domain.Decision
	depth   func() int
	wait    time.Duration
	metrics *Metrics
}

// Append enqueues a decision for persistence. When the queue is full the call
// waits up to the configured bound and then fails with sentinel.ErrQueueFull —
// it never silently drops. A nil return means the record is owned by the
// writer and will be persisted at-least-once.
func (l *Logger) Append(ctx context.Context, d domain.Decision) error {
	select {
	case l.queue <- d:
		l.metrics.setQueueDepth(l.depth())
		return nil
	default:
	}

	timer := time.NewTimer(l.wait)
	defer timer.Stop()
	select {
	case l.queue <- d:
		l.metrics.setQueueDepth(l.depth())
		return nil
	case <-ctx.Done():
		l.metrics.incEnqueueFailure()
		return ctx.Err()
	case <-timer.C:
		l.metrics.incEnqueueFailure()
		return sentinel.ErrQueueFull
	}
}
