package ratelimit

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore implements Store with a per-key sliding window.
// Suitable for single-instance deployments; distributed setups
// should use RedisStore so all instances share counters.
type InMemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	timestamps []time.Time
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		windows: make(map[string]*window),
	}
}

func (s *InMemoryStore) Allow(ctx context.Context, key string, limit int, windowSize time.Duration) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	w := s.windows[key]
	if w == nil {
		w = &window{}
		s.windows[key] = w
	}
	w.trim(now.Add(-windowSize))

	if len(w.timestamps) >= limit {
		return &Result{
			Allowed:   false,
			Remaining: 0,
			ResetAt:   w.timestamps[0].Add(windowSize),
			Limit:     limit,
		}, nil
	}

	w.timestamps = append(w.timestamps, now)
	return &Result{
		Allowed:   true,
		Remaining: limit - len(w.timestamps),
		ResetAt:   w.timestamps[0].Add(windowSize),
		Limit:     limit,
	}, nil
}

// trim drops timestamps older than the window start.
func (w *window) trim(cutoff time.Time) {
	i := 0
	for i < len(w.timestamps) && !w.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.timestamps = w.timestamps[i:]
	}
}
