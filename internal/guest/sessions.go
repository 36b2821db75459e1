package guest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/code-review-quest/internal/models"
)

const sessionKeyPrefix = "guest_session:"

func copySession(s *models.Session) *models.Session {
	c := *s
	c.Correct = append([]int(nil), s.Correct...)
	c.Missed = append([]int(nil), s.Missed...)
	c.FalsePositives = append([]int(nil), s.FalsePositives...)
	return &c
}

type storedSession struct {
	session   *models.Session
	expiresAt time.Time
}

// MemorySessionStore keeps guest sessions in process memory
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]storedSession
	ttl      time.Duration
	now      func() time.Time
}

// NewMemorySessionStore creates a store whose sessions live for ttl
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]storedSession),
		ttl:      ttl,
		now:      time.Now,
	}
}

// WithClock overrides the store's clock
func (s *MemorySessionStore) WithClock(now func() time.Time) *MemorySessionStore {
	s.now = now
	return s
}

// CreateSession implements SessionStore
func (s *MemorySessionStore) CreateSession(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; ok {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	s.sessions[session.ID] = storedSession{
		session:   copySession(session),
		expiresAt: s.now().Add(s.ttl),
	}
	return nil
}

// GetSession implements SessionStore
func (s *MemorySessionStore) GetSession(_ context.Context, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	if s.now().After(stored.expiresAt) {
		delete(s.sessions, id)
		return nil, nil
	}
	return copySession(stored.session), nil
}

// CompleteSession implements SessionStore
func (s *MemorySessionStore) CompleteSession(_ context.Context, session *models.Session) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[session.ID]
	if !ok || s.now().After(stored.expiresAt) || !stored.session.IsActive() {
		return false, nil
	}
	stored.session = copySession(session)
	s.sessions[session.ID] = stored
	return true, nil
}

// Sweep implements SessionStore
func (s *MemorySessionStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, stored := range s.sessions {
		if now.After(stored.expiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// RedisSessionStore keeps guest sessions as JSON values with a TTL
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore creates a store whose sessions live for ttl
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

// CreateSession implements SessionStore
func (s *RedisSessionStore) CreateSession(ctx context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	ok, err := s.client.SetNX(ctx, sessionKey(session.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	if !ok {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	return nil
}

// GetSession implements SessionStore
func (s *RedisSessionStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	return decodeSession(data)
}

// CompleteSession implements SessionStore as a WATCH/MULTI compare-and-set
// on the stored status
func (s *RedisSessionStore) CompleteSession(ctx context.Context, session *models.Session) (bool, error) {
	key := sessionKey(session.ID)
	completed := false

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read session: %w", err)
		}
		current, err := decodeSession(data)
		if err != nil {
			return err
		}
		if !current.IsActive() {
			return nil
		}

		out, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("failed to encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, out, redis.SetArgs{KeepTTL: true})
			return nil
		})
		if err != nil {
			return err
		}
		completed = true
		return nil
	}

	// A lost WATCH means another writer touched the session first; the
	// retry then observes it as no longer active.
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return completed, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return false, err
	}
	return false, nil
}

// Sweep is a no-op; Redis expires keys on its own
func (s *RedisSessionStore) Sweep(_ context.Context) (int, error) {
	return 0, nil
}

func decodeSession(data []byte) (*models.Session, error) {
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &session, nil
}
