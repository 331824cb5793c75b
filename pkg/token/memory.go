package token

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// how often expired entries are swept from the in-memory store
const defaultSweepInterval = 10 * time.Minute

// MemoryStore keeps resolution contexts in a process-local map. Expired
// entries are filtered on read and removed by a periodic background sweep.
type MemoryStore struct {
	logger zerolog.Logger

	entries map[string]ResolutionContext
	mu      sync.RWMutex

	sweepInterval time.Duration
	shutdown      chan struct{}
	startOnce     sync.Once
	stopOnce      sync.Once
}

func NewMemoryStore(sweepInterval time.Duration) *MemoryStore {
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}

	return &MemoryStore{
		logger:        log.With().Str("module", "token").Str("submodule", "memory-store").Logger(),
		entries:       map[string]ResolutionContext{},
		sweepInterval: sweepInterval,
		shutdown:      make(chan struct{}),
	}
}

// Start launches the periodic sweep.
func (s *MemoryStore) Start() {
	s.startOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(s.sweepInterval)
			defer ticker.Stop()

			for {
				select {
				case <-s.shutdown:
					return
				case <-ticker.C:
					s.sweep()
				}
			}
		}()
	})
}

func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.shutdown)
	})
}

func (s *MemoryStore) Put(_ context.Context, token string, rc ResolutionContext, _ time.Duration) error {
	s.mu.Lock()
	s.entries[token] = rc
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, token string) (ResolutionContext, error) {
	s.mu.RLock()
	rc, ok := s.entries[token]
	s.mu.RUnlock()

	if !ok {
		return ResolutionContext{}, ErrNotFound
	}

	// expiry is enforced on read so eviction is never late for callers,
	// the sweep only reclaims memory
	if rc.Expired(time.Now()) {
		_ = s.Delete(context.Background(), token)
		return ResolutionContext{}, ErrNotFound
	}

	return rc, nil
}

func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	delete(s.entries, token)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) sweep() {
	now := time.Now()
	removed := 0

	s.mu.Lock()
	for key, rc := range s.entries {
		if rc.Expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	remaining := len(s.entries)
	s.mu.Unlock()

	if removed > 0 {
		s.logger.Debug().
			Int("removed", removed).
			Int("remaining", remaining).
			Msg("sweep removed expired tokens")
	}
}
