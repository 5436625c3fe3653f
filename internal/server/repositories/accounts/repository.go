// Package accounts is the identity store: durable account records with
// uniqueness enforced on email and on federated subject id.
package accounts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/photokeeper/internal/server/models"
)

// Fields is a partial update. Nil members are left untouched.
type Fields struct {
	PasswordDigest         *string
	FederatedSubjectID     *string
	DisplayName            *string
	ProfilePictureURL      *string
	StorageNamespace       *string
	LastAuthenticatedAt    *time.Time
	NamespaceProvisionedAt *time.Time
}

// Empty reports whether the update would change nothing.
func (f Fields) Empty() bool {
	return f.PasswordDigest == nil && f.FederatedSubjectID == nil && f.DisplayName == nil &&
		f.ProfilePictureURL == nil && f.StorageNamespace == nil && f.LastAuthenticatedAt == nil &&
		f.NamespaceProvisionedAt == nil
}

// Repository is the identity store contract.
//
// Lookups return common.ErrorNotFound when nothing matches. Insert and Update
// return an error wrapping common.ErrorConflict when a write would break the
// email or federated subject uniqueness.
type Repository interface {
	Insert(ctx context.Context, acc *models.Account) error
	FindByID(ctx context.Context, id string) (*models.Account, error)
	// FindByIDForUpdate locks the row until the surrounding transaction ends.
	FindByIDForUpdate(ctx context.Context, id string) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindByFederatedSubjectID(ctx context.Context, subjectID string) (*models.Account, error)
	Update(ctx context.Context, id string, f Fields) error
	// ListUnprovisioned returns accounts created before the cutoff whose
	// storage namespace marker has not been written yet, oldest first.
	ListUnprovisioned(ctx context.Context, createdBefore time.Time, limit int) ([]*models.Account, error)
}
