package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"riskgate/pkg/sentinel"
)

// Trail bundles the producer facade, the background writer, and the store
// behind one service surface for transport and wiring code.
//
// Once verification fails the trail is marked suspect and stays suspect: the
// chain is not auto-repaired and readers must treat everything from the
// offending sequence onward as untrusted.
type Trail struct {
	Logger *Logger
	Writer *Writer

	store   Store
	index   Index
	logger  *slog.Logger
	metrics *Metrics
	suspect atomic.Bool
}

// NewTrail wires the pipeline over store. Options apply to the writer.
func NewTrail(store Store, index Index, log *slog.Logger, metrics *Metrics, opts ...WriterOption) (*Trail, error) {
	opts = append([]WriterOption{
		WithLogger(log),
		WithMetrics(metrics),
		WithIndex(index),
	}, opts...)
	writer, err := NewWriter(store, opts...)
	if err != nil {
		return nil, err
	}
	return &Trail{
		Logger:  writer.Logger(),
		Writer:  writer,
		store:   store,
		index:   index,
		logger:  log,
		metrics: metrics,
	}, nil
}

// chainVerifier is implemented by stores that hold more than one copy of the
// chain and can check each copy independently.
type chainVerifier interface {
	VerifyAll(ctx context.Context) error
}

// Verify re-walks the stored chain. A store that fans out to multiple
// backends is verified backend by backend, so a tampered replica is caught
// even when reads are served from an intact primary. An integrity failure
// marks the trail suspect and is returned with the exact offending sequence
// number.
func (t *Trail) Verify(ctx context.Context) error {
	var err error
	if v, ok := t.store.(chainVerifier); ok {
		err = v.VerifyAll(ctx)
	} else {
		err = Verify(ctx, t.store)
	}
	if err == nil {
		return nil
	}
	var integrity *IntegrityError
	if errors.As(err, &integrity) {
		t.suspect.Store(true)
		t.metrics.incVerifyFailure()
		t.logger.Error("audit chain integrity failure, trail marked suspect",
			"sequence_no", integrity.SequenceNo,
			"reason", integrity.Reason,
		)
	}
	return err
}

// Suspect reports whether a past verification found the chain broken.
func (t *Trail) Suspect() bool { return t.suspect.Load() }

// Read returns records in [from, to] by sequence number.
func (t *Trail) Read(ctx context.Context, from, to uint64) ([]Record, error) {
	return t.store.Read(ctx, from, to)
}

// Find resolves an event id to its record via the fast index.
func (t *Trail) Find(ctx context.Context, eventID string) (*Record, error) {
	if t.index == nil {
		return nil, fmt.Errorf("audit index not configured: %w", sentinel.ErrUnavailable)
	}
	seq, err := t.index.Lookup(ctx, eventID)
	if err != nil {
		return nil, err
	}
	recs, err := t.store.Read(ctx, seq, seq)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return &recs[0], nil
}
