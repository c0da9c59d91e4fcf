package policy

import (
	"context"
	"sync"
	"time"
)

// DayKey buckets quota counters by UTC calendar day.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// UserStateStore owns the only cross-event mutable state in the system: the
// per-user daily action count and consecutive high-risk streak.
// Implementations must serialize updates per user so two concurrent decisions
// cannot both pass a quota or streak check.
type UserStateStore interface {
	// IncrementActions atomically claims one autonomous action for the day
	// and returns the count including the claim. Callers that decide not to
	// act after all must release the claim with DecrementActions.
	IncrementActions(ctx context.Context, userID, day string) (int, error)

	// DecrementActions releases a claim taken by IncrementActions.
	DecrementActions(ctx context.Context, userID, day string) error

	// ActionsToday returns the current count without claiming.
	ActionsToday(ctx context.Context, userID, day string) (int, error)

	// BumpStreak records whether this decision is high-risk and returns the
	// streak including it. A non-high-risk decision leaves the streak
	// untouched; resets happen explicitly via ResetStreak once the decision
	// concludes non-escalate.
	BumpStreak(ctx context.Context, userID string, highRisk bool) (int, error)

	// ResetStreak clears the consecutive high-risk counter.
	ResetStreak(ctx context.Context, userID string) error
}

type userState struct {
	actions map[string]int // day key -> count
	streak  int
}

// InMemoryStateStore keeps rolling state in process memory under one lock.
// Suitable for single-instance deployments and tests; multi-instance
// deployments use the Redis store so quota enforcement stays global.
type InMemoryStateStore struct {
	mu    sync.Mutex
	users map[string]*userState
}

func NewInMemoryStateStore() *InMemoryStateStore {
	return &InMemoryStateStore{users: make(map[string]*userState)}
}

func (s *InMemoryStateStore) user(userID string) *userState {
	u, ok := s.users[userID]
	if !ok {
		u = &userState{actions: make(map[string]int)}
		s.users[userID] = u
	}
	return u
}

func (s *InMemoryStateStore) IncrementActions(_ context.Context, userID, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	u.actions[day]++
	return u.actions[day], nil
}

func (s *InMemoryStateStore) DecrementActions(_ context.Context, userID, day string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	if u.actions[day] > 0 {
		u.actions[day]--
	}
	return nil
}

func (s *InMemoryStateStore) ActionsToday(_ context.Context, userID, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user(userID).actions[day], nil
}

func (s *InMemoryStateStore) BumpStreak(_ context.Context, userID string, highRisk bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	if highRisk {
		u.streak++
	}
	return u.streak, nil
}

func (s *InMemoryStateStore) ResetStreak(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user(userID).streak = 0
	return nil
}
