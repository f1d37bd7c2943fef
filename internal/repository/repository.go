// Package repository contains data access layer abstractions.
// Implementations live in subpackages (postgres, redis, memory) inside this directory.
package repository

import (
	"context"
	"errors"
	"time"

	"docvault/internal/model"
)

// ErrNotFound is returned by every implementation when the requested row or key does not exist.
var ErrNotFound = errors.New("record not found")

// TokenRepository stores single-use download tokens.
type TokenRepository interface {
	// Save persists a new token.
	Save(ctx context.Context, t *model.TemporaryToken) error
	// Consume atomically removes the token and returns it. Two concurrent calls
	// with the same token never both succeed; the loser gets ErrNotFound.
	Consume(ctx context.Context, token string) (*model.TemporaryToken, error)
	// DeleteExpired removes tokens that expired before now and returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}

// Paginate slices items according to pq. Total is len(items).
func Paginate[T any](items []T, pq PageQuery) PageResult[T] {
	total := len(items)
	if pq.Offset < 0 {
		pq.Offset = 0
	}
	if pq.Offset >= total {
		return PageResult[T]{Items: []T{}, Total: total}
	}
	end := total
	if pq.Limit > 0 && pq.Offset+pq.Limit < total {
		end = pq.Offset + pq.Limit
	}
	return PageResult[T]{Items: items[pq.Offset:end], Total: total}
}
