package services

import (
	"context"
	"sync"

	"github.com/BradenHooton/totpgate/internal/models"
)

// MockPrincipalRepository implements PrincipalRepository for testing
type MockPrincipalRepository struct {
	GetByIDFunc          func(ctx context.Context, id string) (*models.Principal, error)
	FindByIdentifierFunc func(ctx context.Context, identifier string) (*models.Principal, error)
	CreateFunc           func(ctx context.Context, p *models.Principal) (*models.Principal, error)
	PutFunc              func(ctx context.Context, p *models.Principal) (*models.Principal, error)
}

func (m *MockPrincipalRepository) GetByID(ctx context.Context, id string) (*models.Principal, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockPrincipalRepository) FindByIdentifier(ctx context.Context, identifier string) (*models.Principal, error) {
	if m.FindByIdentifierFunc != nil {
		return m.FindByIdentifierFunc(ctx, identifier)
	}
	return nil, models.ErrNotFound
}

func (m *MockPrincipalRepository) Create(ctx context.Context, p *models.Principal) (*models.Principal, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, p)
	}
	return nil, models.ErrInternalServer
}

func (m *MockPrincipalRepository) Put(ctx context.Context, p *models.Principal) (*models.Principal, error) {
	if m.PutFunc != nil {
		return m.PutFunc(ctx, p)
	}
	return nil, models.ErrInternalServer
}

// RecordingDispatcher keeps dispatched notifications for assertions
type RecordingDispatcher struct {
	mu   sync.Mutex
	sent []Notification
}

func (d *RecordingDispatcher) Dispatch(n Notification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, n)
}

func (d *RecordingDispatcher) Sent() []Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Notification(nil), d.sent...)
}
