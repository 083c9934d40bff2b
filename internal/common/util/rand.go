package util

import (
	"math/rand"
	"sync"
)

// lockedSource guards a rand.Source with a mutex so the derived *rand.Rand
// can be shared across goroutines.
type lockedSource struct {
	mu  sync.Mutex
	src rand.Source
}

func (s *lockedSource) Int63() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Int63()
}

func (s *lockedSource) Seed(seed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.src.Seed(seed)
}

// NewThreadsafeRand returns a *rand.Rand safe for concurrent use.
func NewThreadsafeRand(seed int64) *rand.Rand {
	return rand.New(&lockedSource{src: rand.NewSource(seed)})
}
