package mocks

import (
	"context"
	"time"

	"docvault/internal/model"
	"docvault/internal/repository"
	"github.com/stretchr/testify/mock"
)

type MockViewRepository struct {
	mock.Mock
}

var _ repository.ViewRepository = (*MockViewRepository)(nil)

func (m *MockViewRepository) Create(ctx context.Context, v *model.DocumentView) (*model.DocumentView, error) {
	args := m.Called(ctx, v)
	if f, ok := args.Get(0).(func(context.Context, *model.DocumentView) *model.DocumentView); ok {
		return f(ctx, v), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DocumentView), args.Error(1)
}

type MockCatalogRepository struct {
	mock.Mock
}

var _ repository.CatalogRepository = (*MockCatalogRepository)(nil)

func (m *MockCatalogRepository) FindCategories(ctx context.Context, companyID string, ids []int64) ([]model.Category, error) {
	args := m.Called(ctx, companyID, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Category), args.Error(1)
}

func (m *MockCatalogRepository) FindDepartments(ctx context.Context, companyID string, ids []int64) ([]model.Department, error) {
	args := m.Called(ctx, companyID, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Department), args.Error(1)
}

type MockUserRepository struct {
	mock.Mock
}

var _ repository.UserRepository = (*MockUserRepository)(nil)

func (m *MockUserRepository) FindPrincipal(ctx context.Context, userID string) (*model.Principal, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Principal), args.Error(1)
}

type MockTokenRepository struct {
	mock.Mock
}

var _ repository.TokenRepository = (*MockTokenRepository)(nil)

func (m *MockTokenRepository) Save(ctx context.Context, t *model.TemporaryToken) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTokenRepository) Consume(ctx context.Context, token string) (*model.TemporaryToken, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TemporaryToken), args.Error(1)
}

func (m *MockTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}
