package redis

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docvault/internal/model"
	"docvault/internal/repository"
)

// newTestClient connects to REDIS_ADDR or skips the test.
func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newToken() *model.TemporaryToken {
	now := time.Now().UTC()
	return &model.TemporaryToken{
		Token:      uuid.NewString(),
		DocumentID: "doc-1",
		UserID:     "user-1",
		ExpiresAt:  now.Add(2 * time.Minute),
		CreatedAt:  now,
	}
}

func TestTokenRedis_SaveAndConsumeOnce(t *testing.T) {
	repo := NewTokenRedis(newTestClient(t))
	ctx := context.Background()
	tok := newToken()

	require.NoError(t, repo.Save(ctx, tok))
	assert.Error(t, repo.Save(ctx, tok), "duplicate token must not overwrite")

	got, err := repo.Consume(ctx, tok.Token)
	require.NoError(t, err)
	assert.Equal(t, tok.DocumentID, got.DocumentID)
	assert.WithinDuration(t, tok.ExpiresAt, got.ExpiresAt, time.Millisecond)

	_, err = repo.Consume(ctx, tok.Token)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTokenRedis_ConcurrentConsume(t *testing.T) {
	repo := NewTokenRedis(newTestClient(t))
	ctx := context.Background()
	tok := newToken()
	require.NoError(t, repo.Save(ctx, tok))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Consume(ctx, tok.Token); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
}

func TestTokenRedis_DeleteExpiredIsNoop(t *testing.T) {
	n, err := NewTokenRedis(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})).DeleteExpired(context.Background(), time.Now())
	assert.NoError(t, err)
	assert.Zero(t, n)
}
