package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/photokeeper/internal/common"
	"github.com/dmitrijs2005/photokeeper/internal/dbx"
	"github.com/dmitrijs2005/photokeeper/internal/server/models"
)

const selectColumns = `id, email, password_digest, federated_subject_id, auth_mode, company, display_name,
		 profile_picture_url, registration_code, storage_namespace, credits_granted, credits_consumed,
		 unlimited_access, created_at, last_authenticated_at, namespace_provisioned_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, acc *models.Account) error {
	query :=
		`INSERT INTO accounts (id, email, password_digest, federated_subject_id, auth_mode, company,
		 display_name, profile_picture_url, registration_code, storage_namespace, credits_granted,
		 credits_consumed, unlimited_access, created_at, last_authenticated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 `

	_, err := r.db.ExecContext(ctx, query,
		acc.ID, acc.Email, nullString(acc.PasswordDigest), nullString(acc.FederatedSubjectID),
		string(acc.AuthMode), acc.Company, acc.DisplayName, acc.ProfilePictureURL,
		nullString(acc.RegistrationCode), acc.StorageNamespace, acc.CreditsGranted,
		acc.CreditsConsumed, acc.UnlimitedAccess, acc.CreatedAt, acc.LastAuthenticatedAt)

	if err != nil {
		return mapWriteError(err)
	}

	return nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	return r.findOne(ctx, `SELECT `+selectColumns+` FROM accounts
		 WHERE id = $1
		 `, id)
}

func (r *PostgresRepository) FindByIDForUpdate(ctx context.Context, id string) (*models.Account, error) {
	return r.findOne(ctx, `SELECT `+selectColumns+` FROM accounts
		 WHERE id = $1
		 FOR UPDATE
		 `, id)
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.findOne(ctx, `SELECT `+selectColumns+` FROM accounts
		 WHERE email = $1
		 `, email)
}

func (r *PostgresRepository) FindByFederatedSubjectID(ctx context.Context, subjectID string) (*models.Account, error) {
	return r.findOne(ctx, `SELECT `+selectColumns+` FROM accounts
		 WHERE federated_subject_id = $1
		 `, subjectID)
}

func (r *PostgresRepository) Update(ctx context.Context, id string, f Fields) error {
	if f.Empty() {
		return nil
	}

	var (
		sets []string
		args []any
	)
	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if f.PasswordDigest != nil {
		add("password_digest", nullString(*f.PasswordDigest))
	}
	if f.FederatedSubjectID != nil {
		add("federated_subject_id", nullString(*f.FederatedSubjectID))
	}
	if f.DisplayName != nil {
		add("display_name", *f.DisplayName)
	}
	if f.ProfilePictureURL != nil {
		add("profile_picture_url", *f.ProfilePictureURL)
	}
	if f.StorageNamespace != nil {
		add("storage_namespace", *f.StorageNamespace)
	}
	if f.LastAuthenticatedAt != nil {
		add("last_authenticated_at", *f.LastAuthenticatedAt)
	}
	if f.NamespaceProvisionedAt != nil {
		add("namespace_provisioned_at", *f.NamespaceProvisionedAt)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE accounts SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapWriteError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}

	return nil
}

func (r *PostgresRepository) ListUnprovisioned(ctx context.Context, createdBefore time.Time, limit int) ([]*models.Account, error) {
	query := `SELECT ` + selectColumns + ` FROM accounts
		 WHERE namespace_provisioned_at IS NULL AND created_at < $1
		 ORDER BY created_at
		 LIMIT $2
		 `

	rows, err := r.db.QueryContext(ctx, query, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return out, nil
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, arg any) (*models.Account, error) {
	acc, err := scanAccount(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return acc, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (*models.Account, error) {
	var (
		acc                   models.Account
		digest, subject, code sql.NullString
		authMode              string
		provisionedAt         sql.NullTime
	)

	err := s.Scan(&acc.ID, &acc.Email, &digest, &subject, &authMode, &acc.Company, &acc.DisplayName,
		&acc.ProfilePictureURL, &code, &acc.StorageNamespace, &acc.CreditsGranted, &acc.CreditsConsumed,
		&acc.UnlimitedAccess, &acc.CreatedAt, &acc.LastAuthenticatedAt, &provisionedAt)
	if err != nil {
		return nil, err
	}

	acc.PasswordDigest = digest.String
	acc.FederatedSubjectID = subject.String
	acc.RegistrationCode = code.String
	acc.AuthMode = models.AuthMode(authMode)
	if provisionedAt.Valid {
		t := provisionedAt.Time
		acc.NamespaceProvisionedAt = &t
	}

	return &acc, nil
}

func mapWriteError(err error) error {
	if constraint, ok := dbx.IsUniqueViolation(err); ok {
		return fmt.Errorf("%w: %s", common.ErrorConflict, constraint)
	}
	return fmt.Errorf("db error: %w", err)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
