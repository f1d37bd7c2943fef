package mocks

import (
	"context"

	"docvault/internal/model"
	"docvault/internal/service"

	"github.com/stretchr/testify/mock"
)

type MockDocumentService struct {
	mock.Mock
}

var _ service.DocumentService = (*MockDocumentService)(nil)

func (m *MockDocumentService) Upload(ctx context.Context, p model.Principal, in service.UploadInput) (*model.Document, error) {
	args := m.Called(ctx, p, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) AddVersion(ctx context.Context, p model.Principal, id string, in service.UploadInput) (*model.DocumentVersion, error) {
	args := m.Called(ctx, p, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DocumentVersion), args.Error(1)
}

func (m *MockDocumentService) List(ctx context.Context, p model.Principal, q service.ListQuery) (*service.DocumentListResult, error) {
	args := m.Called(ctx, p, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DocumentListResult), args.Error(1)
}

func (m *MockDocumentService) ListMine(ctx context.Context, p model.Principal) ([]model.Document, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Document), args.Error(1)
}

func (m *MockDocumentService) Get(ctx context.Context, p model.Principal, id string) (*model.Document, error) {
	args := m.Called(ctx, p, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) Versions(ctx context.Context, p model.Principal, id string) ([]model.DocumentVersion, error) {
	args := m.Called(ctx, p, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.DocumentVersion), args.Error(1)
}

func (m *MockDocumentService) LogView(ctx context.Context, p model.Principal, id string) (*model.DocumentView, error) {
	args := m.Called(ctx, p, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DocumentView), args.Error(1)
}

func (m *MockDocumentService) Approve(ctx context.Context, p model.Principal, id string) (*model.Document, error) {
	args := m.Called(ctx, p, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) Reject(ctx context.Context, p model.Principal, id string) (*model.Document, error) {
	args := m.Called(ctx, p, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) Authorize(ctx context.Context, p model.Principal, id string) (*model.Document, error) {
	args := m.Called(ctx, p, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

type MockDeliveryService struct {
	mock.Mock
}

var _ service.DeliveryService = (*MockDeliveryService)(nil)

func (m *MockDeliveryService) IssueSignedURL(ctx context.Context, p model.Principal, documentID string) (*service.SignedURL, error) {
	args := m.Called(ctx, p, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SignedURL), args.Error(1)
}

func (m *MockDeliveryService) Open(ctx context.Context, documentID, token string, disposition service.Disposition) (*service.Delivery, error) {
	args := m.Called(ctx, documentID, token, disposition)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Delivery), args.Error(1)
}
