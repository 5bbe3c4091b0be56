package repositories

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/totpgate/internal/models"
	"github.com/google/uuid"
)

// MemoryPrincipalRepository keeps principals in process memory.
// Used with STORAGE_BACKEND=memory and in tests.
type MemoryPrincipalRepository struct {
	mu           sync.RWMutex
	byID         map[string]*models.Principal
	byIdentifier map[string]string
}

func NewMemoryPrincipalRepository() *MemoryPrincipalRepository {
	return &MemoryPrincipalRepository{
		byID:         make(map[string]*models.Principal),
		byIdentifier: make(map[string]string),
	}
}

func (r *MemoryPrincipalRepository) GetByID(_ context.Context, id string) (*models.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return clonePrincipal(p), nil
}

func (r *MemoryPrincipalRepository) FindByIdentifier(_ context.Context, identifier string) (*models.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byIdentifier[strings.ToLower(strings.TrimSpace(identifier))]
	if !ok {
		return nil, models.ErrNotFound
	}
	return clonePrincipal(r.byID[id]), nil
}

func (r *MemoryPrincipalRepository) Create(_ context.Context, p *models.Principal) (*models.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identifier := strings.ToLower(strings.TrimSpace(p.Identifier))
	if _, taken := r.byIdentifier[identifier]; taken {
		return nil, models.ErrConflict
	}

	stored := clonePrincipal(p)
	stored.ID = uuid.New().String()
	stored.Identifier = identifier
	stored.CreatedAt = time.Now().UTC()
	stored.UpdatedAt = stored.CreatedAt

	r.byID[stored.ID] = stored
	r.byIdentifier[identifier] = stored.ID

	return clonePrincipal(stored), nil
}

// Put replaces the stored record. Identifier changes are not supported.
func (r *MemoryPrincipalRepository) Put(_ context.Context, p *models.Principal) (*models.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[p.ID]
	if !ok {
		return nil, models.ErrNotFound
	}

	stored := clonePrincipal(p)
	stored.Identifier = existing.Identifier
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = time.Now().UTC()
	r.byID[p.ID] = stored

	return clonePrincipal(stored), nil
}

func clonePrincipal(p *models.Principal) *models.Principal {
	c := *p
	if p.TOTPSecret != nil {
		s := *p.TOTPSecret
		c.TOTPSecret = &s
	}
	if p.TOTPEnabledAt != nil {
		t := *p.TOTPEnabledAt
		c.TOTPEnabledAt = &t
	}
	return &c
}
