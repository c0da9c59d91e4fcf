package policy

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayKey(t *testing.T) {
	t.Run("buckets by UTC date", func(t *testing.T) {
		// 23:30 in UTC-5 is already the next day in UTC.
		loc := time.FixedZone("UTC-5", -5*3600)
		at := time.Date(2026, 3, 14, 23, 30, 0, 0, loc)
		assert.Equal(t, "2026-03-15", DayKey(at))
	})
}

func TestInMemoryStateStore(t *testing.T) {
	ctx := context.Background()
	day := DayKey(time.Now())

	t.Run("increment claims and reports the count including the claim", func(t *testing.T) {
		store := NewInMemoryStateStore()

		n, err := store.IncrementActions(ctx, "u1", day)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = store.IncrementActions(ctx, "u1", day)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("decrement releases a claim and never goes negative", func(t *testing.T) {
		store := NewInMemoryStateStore()

		_, err := store.IncrementActions(ctx, "u1", day)
		require.NoError(t, err)
		require.NoError(t, store.DecrementActions(ctx, "u1", day))

		n, err := store.ActionsToday(ctx, "u1", day)
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		require.NoError(t, store.DecrementActions(ctx, "u1", day))
		n, err = store.ActionsToday(ctx, "u1", day)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("counts are per user and per day", func(t *testing.T) {
		store := NewInMemoryStateStore()

		_, err := store.IncrementActions(ctx, "u1", "2026-03-14")
		require.NoError(t, err)

		n, err := store.ActionsToday(ctx, "u2", "2026-03-14")
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		n, err = store.ActionsToday(ctx, "u1", "2026-03-15")
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("streak bumps only on high risk and resets explicitly", func(t *testing.T) {
		store := NewInMemoryStateStore()

		n, err := store.BumpStreak(ctx, "u1", true)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = store.BumpStreak(ctx, "u1", false)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = store.BumpStreak(ctx, "u1", true)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		require.NoError(t, store.ResetStreak(ctx, "u1"))
		n, err = store.BumpStreak(ctx, "u1", false)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("concurrent claims serialize", func(t *testing.T) {
		store := NewInMemoryStateStore()

		const goroutines = 32
		var wg sync.WaitGroup
		for i := range goroutines {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.IncrementActions(ctx, "u1", day)
				assert.NoError(t, err)
				_, err = store.BumpStreak(ctx, fmt.Sprintf("user-%d", i%4), true)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		n, err := store.ActionsToday(ctx, "u1", day)
		require.NoError(t, err)
		assert.Equal(t, goroutines, n)
	})
}
