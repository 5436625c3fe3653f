package accounts

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/photokeeper/internal/common"
	"github.com/dmitrijs2005/photokeeper/internal/server/models"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

var accountColumns = []string{"id", "email", "password_digest", "federated_subject_id", "auth_mode", "company",
	"display_name", "profile_picture_url", "registration_code", "storage_namespace", "credits_granted",
	"credits_consumed", "unlimited_access", "created_at", "last_authenticated_at", "namespace_provisioned_at"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestInsert_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	acc := &models.Account{
		ID: "a-1", Email: "alice@example.com", PasswordDigest: "digest", AuthMode: models.AuthModePassword,
		Company: "Acme", StorageNamespace: "a-1", CreditsGranted: 10, CreatedAt: now, LastAuthenticatedAt: now,
	}

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+accounts\s*\(id,\s*email,.*VALUES\s*\(\$1,.*\$15\)\s*$`).
		WithArgs("a-1", "alice@example.com", "digest", nil, "password", "Acme", "", "", nil, "a-1",
			int64(10), int64(0), false, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Insert(context.Background(), acc); err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsert_UniqueViolation(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO accounts`).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "accounts_email_key"})

	err := repo.Insert(context.Background(), &models.Account{ID: "a-1", Email: "alice@example.com"})
	if !errors.Is(err, common.ErrorConflict) {
		t.Fatalf("want common.ErrorConflict, got %v", err)
	}
	if !regexp.MustCompile(`accounts_email_key`).MatchString(err.Error()) {
		t.Fatalf("constraint name missing from %v", err)
	}
}

func TestInsert_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO accounts`).WillReturnError(errors.New("db down"))

	err := repo.Insert(context.Background(), &models.Account{ID: "a-1"})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestFindByEmail_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := sqlmock.NewRows(accountColumns).AddRow(
		"a-1", "alice@example.com", "digest", nil, "password", "Acme", "", "", nil, "a-1",
		int64(10), int64(3), false, created, created, created)
	mock.ExpectQuery(`(?s)^SELECT\s+id,\s*email,.*FROM\s+accounts\s+WHERE\s+email\s*=\s*\$1\s*$`).
		WithArgs("alice@example.com").
		WillReturnRows(rows)

	got, err := repo.FindByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("FindByEmail error: %v", err)
	}
	if got.ID != "a-1" || got.PasswordDigest != "digest" || got.FederatedSubjectID != "" {
		t.Fatalf("unexpected account: %+v", got)
	}
	if got.AuthMode != models.AuthModePassword || got.CreditsConsumed != 3 {
		t.Fatalf("unexpected account: %+v", got)
	}
	if got.NamespaceProvisionedAt == nil || !got.NamespaceProvisionedAt.Equal(created) {
		t.Fatalf("provisioned timestamp not scanned: %+v", got.NamespaceProvisionedAt)
	}
}

func TestFindByFederatedSubjectID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)FROM\s+accounts\s+WHERE\s+federated_subject_id\s*=\s*\$1`).
		WithArgs("g-404").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByFederatedSubjectID(context.Background(), "g-404")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestFindByIDForUpdate_LocksRow(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows(accountColumns).AddRow(
		"a-1", "alice@example.com", nil, "g-1", "federated", "example.com", "Alice", "", nil, "a-1",
		int64(10), int64(0), false, now, now, nil)
	mock.ExpectQuery(`(?s)WHERE\s+id\s*=\s*\$1\s+FOR\s+UPDATE`).
		WithArgs("a-1").
		WillReturnRows(rows)

	got, err := repo.FindByIDForUpdate(context.Background(), "a-1")
	if err != nil {
		t.Fatalf("FindByIDForUpdate error: %v", err)
	}
	if got.FederatedSubjectID != "g-1" || got.HasPassword() || got.NamespaceProvisionedAt != nil {
		t.Fatalf("unexpected account: %+v", got)
	}
}

func TestFindByID_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+accounts`).WithArgs("a-1").WillReturnError(errors.New("db err"))

	_, err := repo.FindByID(context.Background(), "a-1")
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestUpdate_BuildsSetClause(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	subject, name, now := "g-1", "Alice", time.Now()

	mock.ExpectExec(regexp.QuoteMeta(
		`UPDATE accounts SET federated_subject_id = $1, display_name = $2, last_authenticated_at = $3 WHERE id = $4`)).
		WithArgs("g-1", "Alice", now, "a-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "a-1", Fields{FederatedSubjectID: &subject, DisplayName: &name, LastAuthenticatedAt: &now})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdate_NoRows(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	ns := "a-1"
	mock.ExpectExec(`UPDATE accounts SET storage_namespace`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), "a-1", Fields{StorageNamespace: &ns})
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestUpdate_Conflict(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	subject := "g-taken"
	mock.ExpectExec(`UPDATE accounts`).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "accounts_federated_subject_id_key"})

	err := repo.Update(context.Background(), "a-1", Fields{FederatedSubjectID: &subject})
	if !errors.Is(err, common.ErrorConflict) {
		t.Fatalf("want common.ErrorConflict, got %v", err)
	}
}

func TestUpdate_EmptyIsNoop(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	if err := repo.Update(context.Background(), "a-1", Fields{}); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no statement expected: %v", err)
	}
}

func TestListUnprovisioned(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	cutoff := time.Now()
	older := cutoff.Add(-time.Hour)
	rows := sqlmock.NewRows(accountColumns).
		AddRow("a-1", "a@example.com", "d", nil, "password", "Acme", "", "", nil, "a-1", int64(10), int64(0), false, older, older, nil).
		AddRow("a-2", "b@example.com", nil, "g-2", "federated", "example.com", "", "", nil, "a-2", int64(10), int64(0), false, older, older, nil)

	mock.ExpectQuery(`(?s)WHERE\s+namespace_provisioned_at\s+IS\s+NULL\s+AND\s+created_at\s*<\s*\$1\s+ORDER\s+BY\s+created_at\s+LIMIT\s+\$2`).
		WithArgs(cutoff, 50).
		WillReturnRows(rows)

	got, err := repo.ListUnprovisioned(context.Background(), cutoff, 50)
	if err != nil {
		t.Fatalf("ListUnprovisioned error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a-1" || got[1].FederatedSubjectID != "g-2" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestListUnprovisioned_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`namespace_provisioned_at`).WillReturnError(errors.New("db err"))

	if _, err := repo.ListUnprovisioned(context.Background(), time.Now(), 10); err == nil {
		t.Fatal("expected error")
	}
}
