package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type memoryEntry struct {
	session *Session
	expires time.Time
}

// MemoryStore is the fallback store used when Redis is unavailable.
// Expired sessions are swept by a background janitor.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	stop    chan struct{}
	once    sync.Once
}

// NewMemoryStore creates an in-memory store. sweepInterval controls how
// often expired sessions are removed; <=0 disables the janitor and
// expiry is then enforced on Get only.
func NewMemoryStore(ttl, sweepInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	if sweepInterval > 0 {
		go s.janitor(sweepInterval)
	}
	return s
}

func (s *MemoryStore) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for id, e := range s.entries {
				if now.After(e.expires) {
					delete(s.entries, id)
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *MemoryStore) Put(_ context.Context, sess *Session) error {
	expires := time.Now().Add(s.ttl)
	sess.ExpiresAt = expires
	copied := *sess
	s.mu.Lock()
	s.entries[sess.ID] = &memoryEntry{session: &copied, expires: expires}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok || time.Now().After(e.expires) {
		return nil, ErrNotFound
	}
	copied := *e.session
	return &copied, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

// NewStore returns a Redis-backed store, falling back to memory when the
// connection cannot be established. The fallback is logged, not fatal:
// a single-node deployment works fine without Redis.
func NewStore(cfg RedisConfig, ttl time.Duration, logger zerolog.Logger) Store {
	if cfg.Addr != "" {
		store, err := NewRedisStore(cfg, ttl, logger)
		if err == nil {
			return store
		}
		logger.Warn().Err(err).Msg("redis unavailable, using in-memory session store")
	}
	return NewMemoryStore(ttl, time.Minute)
}
