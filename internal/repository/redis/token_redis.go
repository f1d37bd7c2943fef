// Package redis stores download tokens in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"docvault/internal/model"
	"docvault/internal/repository"
)

// minTTL keeps already-expired tokens around just long enough to be rejected
// explicitly instead of vanishing on write.
const minTTL = time.Second

// TokenRedis implements repository.TokenRepository with one key per token.
// Keys expire on their own, so DeleteExpired has nothing to do.
type TokenRedis struct {
	client redis.Cmdable
	prefix string
}

func NewTokenRedis(client redis.Cmdable) *TokenRedis {
	return &TokenRedis{client: client, prefix: "docvault:token:"}
}

var _ repository.TokenRepository = (*TokenRedis)(nil)

func (r *TokenRedis) Save(ctx context.Context, t *model.TemporaryToken) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}

	ttl := time.Until(t.ExpiresAt)
	if ttl < minTTL {
		ttl = minTTL
	}

	// NX so a colliding token never overwrites a live one.
	ok, err := r.client.SetNX(ctx, r.key(t.Token), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	if !ok {
		return fmt.Errorf("token already exists")
	}
	return nil
}

// Consume uses GETDEL, which reads and removes the key in one server-side step.
func (r *TokenRedis) Consume(ctx context.Context, token string) (*model.TemporaryToken, error) {
	val, err := r.client.GetDel(ctx, r.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis getdel: %w", err)
	}

	var t model.TemporaryToken
	if err := json.Unmarshal(val, &t); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &t, nil
}

func (r *TokenRedis) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (r *TokenRedis) key(token string) string {
	return r.prefix + token
}
