package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chainedBatch(t *testing.T, n int) []Record {
	t.Helper()
	prev := ChainSeed
	batch := make([]Record, 0, n)
	for i := range n {
		rec, err := NewRecord(uint64(i), prev, testDecision(fmt.Sprintf("ev-%d", i)), time.Now())
		require.NoError(t, err)
		batch = append(batch, rec)
		prev = rec.RecordHash
	}
	return batch
}

func TestMultiStore(t *testing.T) {
	ctx := context.Background()
	primary := NewInMemoryStore()
	secondary := NewInMemoryStore()
	multi := NewMultiStore(primary, secondary)

	require.NoError(t, multi.Append(ctx, chainedBatch(t, 3)))

	t.Run("append reaches every backend", func(t *testing.T) {
		for _, store := range []*InMemoryStore{primary, secondary} {
			recs, err := store.Read(ctx, 0, ^uint64(0))
			require.NoError(t, err)
			assert.Len(t, recs, 3)
		}
	})

	t.Run("reads are served from the first backend", func(t *testing.T) {
		last, err := multi.Last(ctx)
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.Equal(t, uint64(2), last.SequenceNo)
	})

	t.Run("intact backends verify clean", func(t *testing.T) {
		assert.NoError(t, multi.VerifyAll(ctx))
	})

	t.Run("tamper in a secondary backend is detected", func(t *testing.T) {
		secondary.Tamper(1, func(r *Record) {
			r.Payload.Risk = 0.99
		})

		// The primary chain is still clean, so a walk over the fan-out's
		// read path sees nothing wrong.
		assert.NoError(t, Verify(ctx, multi))

		var integrity *IntegrityError
		err := multi.VerifyAll(ctx)
		require.ErrorAs(t, err, &integrity)
		assert.Equal(t, uint64(1), integrity.SequenceNo)
	})
}

func TestTrailVerifyCoversEveryBackend(t *testing.T) {
	ctx := context.Background()
	primary := NewInMemoryStore()
	secondary := NewInMemoryStore()
	multi := NewMultiStore(primary, secondary)
	require.NoError(t, multi.Append(ctx, chainedBatch(t, 2)))

	trail, err := NewTrail(multi, nil, discardLogger(), nil)
	require.NoError(t, err)
	require.NoError(t, trail.Verify(ctx))
	require.False(t, trail.Suspect())

	secondary.Tamper(0, func(r *Record) {
		r.Payload.Outcome = "ESCALATE"
	})

	var integrity *IntegrityError
	err = trail.Verify(ctx)
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, uint64(0), integrity.SequenceNo)
	assert.True(t, trail.Suspect(), "a broken replica must taint the whole trail")
}
