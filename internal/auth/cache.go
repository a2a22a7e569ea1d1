package auth

import (
	"context"
	"errors"
	"time"

	"github.com/aman-churiwal/leetquery/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	roleCachePrefix = "role:"
	// Stored for subjects with no grant so misses are cached too.
	noRoleMarker = "-"
)

// CachedRoleStore puts a short-lived Redis cache in front of another
// RoleStore. Redis errors fall through to the backing store.
type CachedRoleStore struct {
	next  RoleStore
	redis *storage.RedisClient
	ttl   time.Duration
}

func NewCachedRoleStore(next RoleStore, client *storage.RedisClient, ttl time.Duration) *CachedRoleStore {
	return &CachedRoleStore{next: next, redis: client, ttl: ttl}
}

func (s *CachedRoleStore) FindRole(ctx context.Context, subject string) (string, error) {
	key := roleCachePrefix + subject

	cached, err := s.redis.Get(ctx, key)
	if err == nil {
		if cached == noRoleMarker {
			return "", nil
		}
		return cached, nil
	}
	if !errors.Is(err, redis.Nil) {
		log.Warn().Err(err).Msg("role cache read failed")
	}

	role, err := s.next.FindRole(ctx, subject)
	if err != nil {
		return "", err
	}

	value := role
	if value == "" {
		value = noRoleMarker
	}
	if err := s.redis.Set(ctx, key, value, s.ttl); err != nil {
		log.Warn().Err(err).Msg("role cache write failed")
	}

	return role, nil
}

// Invalidate drops the cached role for subject after a grant changes.
func (s *CachedRoleStore) Invalidate(ctx context.Context, subject string) error {
	return s.redis.Del(ctx, roleCachePrefix+subject)
}
