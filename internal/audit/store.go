package audit

import (
	"context"
	"fmt"
)

// Store is the persistence backend for the audit chain. Append is called only
// by the background writer with records whose sequence numbers continue the
// stored chain; implementations must be append-only and must not reorder a
// batch.
type Store interface {
	// Append persists a batch atomically where the backend allows it.
	// A returned error means nothing in the batch may be considered durable;
	// the writer retries the whole batch.
	Append(ctx context.Context, batch []Record) error

	// Read returns records with from <= sequence_no <= to, in sequence order.
	Read(ctx context.Context, from, to uint64) ([]Record, error)

	// Last returns the highest-sequence record, or nil when the store is empty.
	Last(ctx context.Context) (*Record, error)
}

// IntegrityError reports the first sequence number at which the stored chain
// does not reproduce under recomputation. No auto-repair is ever attempted.
type IntegrityError struct {
	SequenceNo uint64
	Reason     string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("audit chain integrity failure at sequence %d: %s", e.SequenceNo, e.Reason)
}

// Verify walks the full chain in sequence order, recomputing every hash from
// the stored algorithm, previous hash, and payload. It returns nil for an
// intact (or empty) chain and an *IntegrityError naming the first offending
// sequence number otherwise.
func Verify(ctx context.Context, store Store) error {
	last, err := store.Last(ctx)
	if err != nil {
		return fmt.Errorf("read last record: %w", err)
	}
	if last == nil {
		return nil
	}

	records, err := store.Read(ctx, 0, last.SequenceNo)
	if err != nil {
		return fmt.Errorf("read records: %w", err)
	}

	previousHash := ChainSeed
	var expectSeq uint64
	for _, rec := range records {
		if rec.SequenceNo != expectSeq {
			return &IntegrityError{SequenceNo: expectSeq, Reason: fmt.Sprintf("sequence gap: got %d", rec.SequenceNo)}
		}
		if rec.PreviousHash != previousHash {
			return &IntegrityError{SequenceNo: rec.SequenceNo, Reason: "previous_hash does not match predecessor"}
		}
		computed, err := rec.Recompute()
		if err != nil {
			return &IntegrityError{SequenceNo: rec.SequenceNo, Reason: err.Error()}
		}
		if computed != rec.RecordHash {
			return &IntegrityError{SequenceNo: rec.SequenceNo, Reason: "record_hash does not reproduce"}
		}
		previousHash = rec.RecordHash
		expectSeq++
	}
	return nil
}

// Index is the fast lookup sidecar mapping event ids to sequence numbers.
// It is auxiliary: chain verification never consults it.
type Index interface {
	Put(ctx context.Context, eventID string, sequenceNo uint64) error
	Lookup(ctx context.Context, eventID string) (uint64, error)
}
