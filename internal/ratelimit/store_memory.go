package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps a sliding window of hit timestamps per key. It is not
// shared between replicas.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*slidingWindow
	now     func() time.Time
}

type slidingWindow struct {
	hits []time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]*slidingWindow),
		now:     time.Now,
	}
}

func (s *MemoryStore) Allow(_ context.Context, key string, policy Policy) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w := s.windows[key]
	if w == nil {
		w = &slidingWindow{}
		s.windows[key] = w
	}
	w.expire(now.Add(-policy.Window))

	if len(w.hits) >= policy.Limit {
		resetAt := w.hits[0].Add(policy.Window)
		return &Result{
			Allowed:    false,
			Limit:      policy.Limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: retryAfter(resetAt, now),
		}, nil
	}

	w.hits = append(w.hits, now)
	return &Result{
		Allowed:   true,
		Limit:     policy.Limit,
		Remaining: policy.Limit - len(w.hits),
		ResetAt:   w.hits[0].Add(policy.Window),
	}, nil
}

// expire drops hits at or before cutoff.
func (w *slidingWindow) expire(cutoff time.Time) {
	i := 0
	for ; i < len(w.hits); i++ {
		if w.hits[i].After(cutoff) {
			break
		}
	}
	w.hits = w.hits[i:]
}
