package guest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/code-review-quest/internal/models"
)

const (
	guestKeyPrefix = "guest:"
	maxTxRetries   = 5
)

// RedisStore keeps one JSON document per guest and lets Redis expire it
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore creates a guest store on top of client
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

// WithClock overrides the store's clock
func (s *RedisStore) WithClock(now func() time.Time) *RedisStore {
	s.now = now
	return s
}

func guestKey(handle string) string {
	return guestKeyPrefix + handle
}

// Create implements Store
func (s *RedisStore) Create(ctx context.Context, record *models.GuestRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode guest: %w", err)
	}

	err = s.client.SetArgs(ctx, guestKey(record.Handle), data, redis.SetArgs{
		Mode:     "NX",
		ExpireAt: record.ExpiresAt,
	}).Err()
	if errors.Is(err, redis.Nil) {
		return ErrHandleTaken
	}
	if err != nil {
		return fmt.Errorf("failed to store guest: %w", err)
	}
	return nil
}

// Get implements Store
func (s *RedisStore) Get(ctx context.Context, handle string) (*models.GuestRecord, error) {
	record, err := s.Mutate(ctx, handle, nil)
	if errors.Is(err, ErrGuestNotFound) {
		return nil, nil
	}
	return record, err
}

// Mutate implements Store with a WATCH/MULTI transaction, retried when the
// key changes underneath it
func (s *RedisStore) Mutate(ctx context.Context, handle string, fn MutateFunc) (*models.GuestRecord, error) {
	key := guestKey(handle)
	var updated *models.GuestRecord

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrGuestNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read guest: %w", err)
		}

		var record models.GuestRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("failed to decode guest: %w", err)
		}
		now := s.now()
		if record.IsExpired(now) {
			return ErrGuestNotFound
		}

		if fn != nil {
			if err := fn(&record); err != nil {
				return err
			}
		}
		record.LastActive = now

		out, err := json.Marshal(&record)
		if err != nil {
			return fmt.Errorf("failed to encode guest: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, out, redis.SetArgs{KeepTTL: true})
			return nil
		})
		if err != nil {
			return err
		}

		updated = &record
		return nil
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, ErrConflict
}

// Delete implements Store
func (s *RedisStore) Delete(ctx context.Context, handle string) (*models.GuestRecord, error) {
	data, err := s.client.GetDel(ctx, guestKey(handle)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete guest: %w", err)
	}

	var record models.GuestRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode guest: %w", err)
	}
	if record.IsExpired(s.now()) {
		return nil, nil
	}
	return &record, nil
}

// Sweep is a no-op; Redis expires keys on its own
func (s *RedisStore) Sweep(_ context.Context) (int, error) {
	return 0, nil
}
