package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"riskgate/internal/domain"
)

const (
	defaultQueueCapacity = 10000
	defaultEnqueueWait   = time.Second
	defaultBatchSize     = 20
	defaultFlushInterval = 5 * time.Second
	defaultRetryBase     = 100 * time.Millisecond
	defaultRetryCap      = 5 * time.Second
	defaultAlertAfter    = 5
)

// Writer is the single consumer of the audit queue. Being the only goroutine
// that assigns sequence numbers and computes record hashes is what makes the
// chain race-free; nothing else in the system may do either.
type Writer struct {
	store  Store
	index  Index
	notify func(Record)

	queue         chan domain.Decision
	enqueueWait   time.Duration
	batchSize     int
	flushInterval time.Duration
	retryBase     time.Duration
	retryCap      time.Duration
	alertAfter    int

	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time

	nextSeq  uint64
	prevHash string
	pending  []Record

	done      chan struct{}
	stopped   chan struct{}
	closeCtx  context.Context
	startOnce sync.Once
	closeOnce sync.Once
	started   atomic.Bool
	unflushed atomic.Int64
	written   atomic.Uint64
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

func WithLogger(logger *slog.Logger) WriterOption {
	return func(w *Writer) { w.logger = logger }
}

func WithMetrics(m *Metrics) WriterOption {
	return func(w *Writer) { w.metrics = m }
}

// WithIndex attaches the fast-lookup sidecar updated after each persist.
func WithIndex(index Index) WriterOption {
	return func(w *Writer) { w.index = index }
}

// WithNotifier attaches a post-persist hook, called once per durable record.
func WithNotifier(fn func(Record)) WriterOption {
	return func(w *Writer) { w.notify = fn }
}

func WithQueueCapacity(n int) WriterOption {
	return func(w *Writer) { w.queue = make(chan domain.Decision, n) }
}

func WithEnqueueWait(d time.Duration) WriterOption {
	return func(w *Writer) { w.enqueueWait = d }
}

func WithBatchSize(n int) WriterOption {
	return func(w *Writer) { w.batchSize = n }
}

func WithFlushInterval(d time.Duration) WriterOption {
	return func(w *Writer) { w.flushInterval = d }
}

func WithRetryBackoff(base, cap time.Duration) WriterOption {
	return func(w *Writer) { w.retryBase, w.retryCap = base, cap }
}

func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) { w.now = now }
}

// NewWriter builds a writer over the given store. Call Start before use.
func NewWriter(store Store, opts ...WriterOption) (*Writer, error) {
	if store == nil {
		return nil, fmt.Errorf("audit store is required")
	}
	w := &Writer{
		store:         store,
		queue:         make(chan domain.Decision, defaultQueueCapacity),
		enqueueWait:   defaultEnqueueWait,
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		retryBase:     defaultRetryBase,
		retryCap:      defaultRetryCap,
		alertAfter:    defaultAlertAfter,
		logger:        slog.Default(),
		now:           time.Now,
		done:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Logger returns the producer facade sharing this writer's queue.
func (w *Writer) Logger() *Logger {
	return &Logger{
		queue:   w.queue,
		depth:   func() int { return len(w.queue) },
		wait:    w.enqueueWait,
		metrics: w.metrics,
	}
}

// Start recovers the chain tail from the store and launches the consumer
// goroutine. A fresh store starts the chain at sequence 0 from the seed.
func (w *Writer) Start(ctx context.Context) error {
	var startErr error
	w.startOnce.Do(func() {
		last, err := w.store.Last(ctx)
		if err != nil {
			startErr = fmt.Errorf("recover audit chain tail: %w", err)
			return
		}
		if last == nil {
			w.nextSeq = 0
			w.prevHash = ChainSeed
		} else {
			w.nextSeq = last.SequenceNo + 1
			w.prevHash = last.RecordHash
		}
		w.started.Store(true)
		go w.run()
	})
	return startErr
}

func (w *Writer) run() {
	defer close(w.stopped)

	loopCtx, cancel := context.WithCancel(context.Background())
	go func() {
		<-w.done
		cancel()
	}()
	defer cancel()

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	batch := make([]domain.Decision, 0, w.batchSize)
	for {
		select {
		case d := <-w.queue:
			w.metrics.setQueueDepth(len(w.queue))
			batch = append(batch, d)
			if len(batch) >= w.batchSize {
				w.flush(loopCtx, batch)
				batch = batch[:0]
				ticker.Reset(w.flushInterval)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(loopCtx, batch)
				batch = batch[:0]
			}
		case <-w.done:
			w.drain(batch)
			return
		}
	}
}

// flush chains the batch and persists it, retrying until success or shutdown.
// Records stay in w.pending until the store acknowledges them, so an
// interrupted persist is re-attempted during drain rather than dropped.
func (w *Writer) flush(ctx context.Context, batch []domain.Decision) {
	for _, d := range batch {
		rec, err := NewRecord(w.nextSeq, w.prevHash, d, w.now())
		if err != nil {
			// Canonicalization of a plain struct cannot fail in practice;
			// if it ever does, losing the chain is worse than stopping.
			w.logger.Error("audit record canonicalization failed",
				"event_id", d.EventID, "error", err)
			continue
		}
		w.pending = append(w.pending, rec)
		w.nextSeq++
		w.prevHash = rec.RecordHash
	}
	w.persistPending(ctx)
}

// persistPending writes w.pending with bounded exponential backoff between
// attempts. It gives up only when ctx is cancelled (shutdown); the records
// remain pending for the drain pass.
func (w *Writer) persistPending(ctx context.Context) {
	if len(w.pending) == 0 {
		return
	}
	backoff := w.retryBase
	for attempt := 1; ; attempt++ {
		start := time.Now()
		err := w.store.Append(ctx, w.pending)
		if w.metrics != nil {
			w.metrics.FlushLatency.Observe(time.Since(start).Seconds())
		}
		if err == nil {
			w.afterPersist(ctx, w.pending)
			w.pending = w.pending[:0]
			return
		}

		w.metrics.incRetry()
		w.logger.Warn("audit batch persist failed, retrying",
			"attempt", attempt,
			"batch_size", len(w.pending),
			"first_sequence", w.pending[0].SequenceNo,
			"error", err,
		)
		if attempt == w.alertAfter {
			w.metrics.incAlert()
			w.logger.Error("audit persist retry budget exhausted, records kept queued",
				"batch_size", len(w.pending),
				"first_sequence", w.pending[0].SequenceNo,
			)
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff = min(backoff*2, w.retryCap)
	}
}

func (w *Writer) afterPersist(ctx context.Context, records []Record) {
	w.metrics.addWritten(len(records))
	w.written.Add(uint64(len(records)))
	for _, rec := range records {
		if w.index != nil {
			if err := w.index.Put(ctx, rec.Payload.EventID, rec.SequenceNo); err != nil {
				w.logger.Warn("audit index update failed",
					"event_id", rec.Payload.EventID,
					"sequence_no", rec.SequenceNo,
					"error", err,
				)
			}
		}
		if w.notify != nil {
			w.notify(rec)
		}
	}
}

// drain flushes everything left in the queue within the Close deadline.
func (w *Writer) drain(batch []domain.Decision) {
	ctx := w.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}

drainQueue:
	for {
		select {
		case d := <-w.queue:
			batch = append(batch, d)
		default:
			break drainQueue
		}
	}

	for len(batch) > 0 && ctx.Err() == nil {
		n := min(len(batch), w.batchSize)
		w.flush(ctx, batch[:n])
		// The slice just flushed now lives in w.pending if the persist gave
		// up; trim it from batch either way so it is counted exactly once.
		batch = batch[n:]
		if len(w.pending) > 0 {
			break
		}
	}

	remaining := int64(len(batch)) + int64(len(w.pending)) + int64(len(w.queue))
	w.unflushed.Store(remaining)
	if remaining > 0 {
		w.logger.Error("audit writer shutting down with unflushed records",
			"unflushed", remaining)
	}
}

// Close stops the writer and drains queued records within ctx's deadline.
// It returns an error carrying the count of records it could not flush.
func (w *Writer) Close(ctx context.Context) error {
	if !w.started.Load() {
		return nil
	}
	w.closeOnce.Do(func() {
		w.closeCtx = ctx
		close(w.done)
	})
	select {
	case <-w.stopped:
	case <-ctx.Done():
		return fmt.Errorf("audit writer drain interrupted, %d records unflushed: %w",
			w.Unflushed(), ctx.Err())
	}
	if n := w.unflushed.Load(); n > 0 {
		return fmt.Errorf("audit writer closed with %d unflushed records", n)
	}
	return nil
}

// Unflushed reports how many records could not be persisted at shutdown.
func (w *Writer) Unflushed() int64 { return w.unflushed.Load() }

// Written reports the total records persisted by this writer instance.
func (w *Writer) Written() uint64 { return w.written.Load() }

// QueueDepth reports the current number of queued decisions.
func (w *Writer) QueueDepth() int { return len(w.queue) }
