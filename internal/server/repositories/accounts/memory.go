package accounts

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/photokeeper/internal/common"
	"github.com/dmitrijs2005/photokeeper/internal/server/models"
)

// InMemoryRepository keeps accounts in process memory. Uniqueness of email and
// federated subject id is checked under the same lock as the write, so it
// behaves like the unique indexes of the Postgres schema.
type InMemoryRepository struct {
	mu        sync.RWMutex
	byID      map[string]*models.Account
	byEmail   map[string]string
	bySubject map[string]string
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		byID:      make(map[string]*models.Account),
		byEmail:   make(map[string]string),
		bySubject: make(map[string]string),
	}
}

func (r *InMemoryRepository) Insert(_ context.Context, acc *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[acc.ID]; ok {
		return fmt.Errorf("%w: accounts_pkey", common.ErrorConflict)
	}
	if _, ok := r.byEmail[acc.Email]; ok {
		return fmt.Errorf("%w: accounts_email_key", common.ErrorConflict)
	}
	if acc.FederatedSubjectID != "" {
		if _, ok := r.bySubject[acc.FederatedSubjectID]; ok {
			return fmt.Errorf("%w: accounts_federated_subject_id_key", common.ErrorConflict)
		}
	}

	stored := acc.Clone()
	r.byID[stored.ID] = stored
	r.byEmail[stored.Email] = stored.ID
	if stored.FederatedSubjectID != "" {
		r.bySubject[stored.FederatedSubjectID] = stored.ID
	}
	return nil
}

func (r *InMemoryRepository) FindByID(_ context.Context, id string) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.get(id)
}

func (r *InMemoryRepository) FindByIDForUpdate(ctx context.Context, id string) (*models.Account, error) {
	return r.FindByID(ctx, id)
}

func (r *InMemoryRepository) FindByEmail(_ context.Context, email string) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return r.get(id)
}

func (r *InMemoryRepository) FindByFederatedSubjectID(_ context.Context, subjectID string) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.bySubject[subjectID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return r.get(id)
}

func (r *InMemoryRepository) Update(_ context.Context, id string, f Fields) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.byID[id]
	if !ok {
		return common.ErrorNotFound
	}

	if f.FederatedSubjectID != nil && *f.FederatedSubjectID != acc.FederatedSubjectID {
		if owner, taken := r.bySubject[*f.FederatedSubjectID]; taken && owner != id {
			return fmt.Errorf("%w: accounts_federated_subject_id_key", common.ErrorConflict)
		}
		delete(r.bySubject, acc.FederatedSubjectID)
		acc.FederatedSubjectID = *f.FederatedSubjectID
		if acc.FederatedSubjectID != "" {
			r.bySubject[acc.FederatedSubjectID] = id
		}
	}
	if f.PasswordDigest != nil {
		acc.PasswordDigest = *f.PasswordDigest
	}
	if f.DisplayName != nil {
		acc.DisplayName = *f.DisplayName
	}
	if f.ProfilePictureURL != nil {
		acc.ProfilePictureURL = *f.ProfilePictureURL
	}
	if f.StorageNamespace != nil {
		acc.StorageNamespace = *f.StorageNamespace
	}
	if f.LastAuthenticatedAt != nil {
		acc.LastAuthenticatedAt = *f.LastAuthenticatedAt
	}
	if f.NamespaceProvisionedAt != nil {
		t := *f.NamespaceProvisionedAt
		acc.NamespaceProvisionedAt = &t
	}
	return nil
}

func (r *InMemoryRepository) ListUnprovisioned(_ context.Context, createdBefore time.Time, limit int) ([]*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Account
	for _, acc := range r.byID {
		if acc.NamespaceProvisionedAt == nil && acc.CreatedAt.Before(createdBefore) {
			out = append(out, acc.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of stored accounts.
func (r *InMemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *InMemoryRepository) get(id string) (*models.Account, error) {
	acc, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return acc.Clone(), nil
}
