// Package memory keeps download tokens in process memory. Suitable for a
// single instance or for tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"docvault/internal/model"
	"docvault/internal/repository"
)

type TokenMemory struct {
	mu     sync.Mutex
	tokens map[string]model.TemporaryToken
}

func NewTokenMemory() *TokenMemory {
	return &TokenMemory{tokens: make(map[string]model.TemporaryToken)}
}

var _ repository.TokenRepository = (*TokenMemory)(nil)

func (m *TokenMemory) Save(_ context.Context, t *model.TemporaryToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tokens[t.Token]; ok {
		return fmt.Errorf("token already exists")
	}
	m.tokens[t.Token] = *t
	return nil
}

func (m *TokenMemory) Consume(_ context.Context, token string) (*model.TemporaryToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tokens[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	delete(m.tokens, token)
	return &t, nil
}

func (m *TokenMemory) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for k, t := range m.tokens {
		if t.Expired(now) {
			delete(m.tokens, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored tokens.
func (m *TokenMemory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}
