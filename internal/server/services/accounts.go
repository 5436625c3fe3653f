// Package services contains server-side business logic. This file implements
// AccountService: password registration and login, federated identity
// resolution and linking, and the account view used by authenticated calls.
package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/photokeeper/internal/common"
	"github.com/dmitrijs2005/photokeeper/internal/logging"
	"github.com/dmitrijs2005/photokeeper/internal/server/auth"
	"github.com/dmitrijs2005/photokeeper/internal/server/metrics"
	"github.com/dmitrijs2005/photokeeper/internal/server/models"
	"github.com/dmitrijs2005/photokeeper/internal/server/quota"
	"github.com/dmitrijs2005/photokeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/photokeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
	"github.com/samber/oops"
)

// AccessCodeLength is the number of hex characters of a registration code.
const AccessCodeLength = 32

// NamespaceProvisioner creates the storage namespace of a new account.
type NamespaceProvisioner interface {
	ProvisionAccount(ctx context.Context, acc *models.Account) error
}

// Session is the result of a successful registration or login.
type Session struct {
	Token   string
	Account *models.Account
}

// RegisterInput is the password registration request.
type RegisterInput struct {
	Email      string
	Password   string
	Company    string
	AccessCode string
}

// Options tunes AccountService policy.
type Options struct {
	// FederatedAutoLink attaches a federated identity to an existing
	// password account with the same verified email. When false such logins
	// fail with ErrLinkRequired and the user goes through PrepareLink.
	FederatedAutoLink bool
}

type AccountService struct {
	repos       repomanager.RepositoryManager
	hasher      auth.PasswordHasher
	issuer      *auth.Issuer
	provisioner NamespaceProvisioner
	logger      logging.Logger
	metrics     *metrics.Metrics
	opts        Options

	now   func() time.Time
	newID func() string

	dummyOnce   sync.Once
	dummyDigest string
}

// NewAccountService wires the service from already constructed collaborators.
func NewAccountService(
	repos repomanager.RepositoryManager,
	hasher auth.PasswordHasher,
	issuer *auth.Issuer,
	provisioner NamespaceProvisioner,
	l logging.Logger,
	m *metrics.Metrics,
	opts Options,
) *AccountService {
	return &AccountService{
		repos:       repos,
		hasher:      hasher,
		issuer:      issuer,
		provisioner: provisioner,
		logger:      l.With("module", "accounts"),
		metrics:     m,
		opts:        opts,
		now:         time.Now,
		newID:       func() string { return uuid.NewString() },
	}
}

// NormalizeEmail is the canonical form used as the reconciliation key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a password account and returns a session for it.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	email := NormalizeEmail(in.Email)
	company := strings.TrimSpace(in.Company)
	code := in.AccessCode

	if email == "" || in.Password == "" || company == "" {
		return nil, oops.Code("VALIDATION_ERROR").Wrap(ErrValidation)
	}
	if len(in.Password) > auth.MaxPasswordBytes {
		return nil, oops.Code("VALIDATION_ERROR").With("reason", "password too long").Wrap(ErrValidation)
	}

	unlimited := false
	if code != "" {
		if !common.IsHexString(code, AccessCodeLength) {
			return nil, oops.Code("INVALID_CODE_FORMAT").Wrap(ErrInvalidCodeFormat)
		}
		// Placeholder policy: any well-formed code unlocks unlimited access.
		// TODO: check codes against a registry once one exists.
		unlimited = true
	}

	repo := s.repos.Accounts()

	_, err := repo.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, oops.Code("DUPLICATE_EMAIL").With("email", email).Wrap(ErrDuplicateEmail)
	case !errors.Is(err, common.ErrorNotFound):
		return nil, storageError("find by email", err)
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.Code("REGISTRATION_FAILED").With("operation", "hash password").Wrap(err)
	}

	acc := s.newAccount(email, models.AuthModePassword, unlimited)
	acc.PasswordDigest = digest
	acc.Company = company
	acc.RegistrationCode = code

	if err := repo.Insert(ctx, acc); err != nil {
		if errors.Is(err, common.ErrorConflict) {
			return nil, oops.Code("DUPLICATE_EMAIL").With("email", email).Wrap(ErrDuplicateEmail)
		}
		return nil, storageError("insert account", err)
	}

	s.metrics.AccountCreated(string(models.AuthModePassword))
	s.logger.Info(ctx, "account registered", "account_id", acc.ID, "unlimited", unlimited)

	s.provision(ctx, acc)

	return s.session(acc)
}

// Login verifies a password and returns a session.
func (s *AccountService) Login(ctx context.Context, email, password string) (*Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, oops.Code("VALIDATION_ERROR").Wrap(ErrValidation)
	}

	acc, err := s.Verify(ctx, email, password)
	if err != nil {
		return nil, err
	}

	return s.session(acc)
}

// Verify resolves a password assertion to an account. An unknown email, an
// account without a password and a wrong password all produce the same
// common.ErrorUnauthorized.
func (s *AccountService) Verify(ctx context.Context, email, password string) (*models.Account, error) {
	acc, err := s.repos.Accounts().FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, storageError("find by email", err)
		}
		// Spend the same time as a real comparison.
		s.hasher.Verify(password, s.dummy())
		s.metrics.Login(string(models.AuthModePassword), false)
		return nil, invalidCredentials()
	}

	if !acc.HasPassword() {
		s.hasher.Verify(password, s.dummy())
		s.metrics.Login(string(models.AuthModePassword), false)
		return nil, invalidCredentials()
	}
	if !s.hasher.Verify(password, acc.PasswordDigest) {
		s.metrics.Login(string(models.AuthModePassword), false)
		return nil, invalidCredentials()
	}

	s.metrics.Login(string(models.AuthModePassword), true)
	s.touch(ctx, acc)
	return acc, nil
}

// ResolveFederated maps a third-party identity to a local account. The first
// matching rule wins:
//
//  1. an account already bound to the subject id;
//  2. a password account with the same email, which gets the identity
//     attached (subject to Options.FederatedAutoLink);
//  3. a new federated account.
//
// Only storage failures and unresolvable uniqueness clashes are returned.
func (s *AccountService) ResolveFederated(ctx context.Context, id models.FederatedIdentity) (*models.Account, error) {
	if strings.TrimSpace(id.SubjectID) == "" || strings.TrimSpace(id.Email) == "" {
		return nil, oops.Code("VALIDATION_ERROR").Wrap(ErrValidation)
	}
	id.Email = NormalizeEmail(id.Email)

	acc, err := s.lookupFederated(ctx, id)
	if err != nil || acc != nil {
		return acc, err
	}

	acc, err = s.createFederated(ctx, id)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, common.ErrorConflict) {
		return nil, err
	}

	// Another request created the account between our lookup and insert.
	s.logger.Debug(ctx, "federated create lost a race, retrying as lookup", "subject_id", id.SubjectID)
	acc, err = s.lookupFederated(ctx, id)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, oops.Code("CONFLICT").With("subject_id", id.SubjectID).Wrap(ErrConflict)
	}
	return acc, nil
}

// lookupFederated applies rules 1 and 2. A nil account with a nil error
// means nothing matched.
func (s *AccountService) lookupFederated(ctx context.Context, id models.FederatedIdentity) (*models.Account, error) {
	repo := s.repos.Accounts()

	acc, err := repo.FindByFederatedSubjectID(ctx, id.SubjectID)
	if err == nil {
		s.touch(ctx, acc)
		s.metrics.FederatedResolved(metrics.OutcomeExisting)
		s.metrics.Login(string(models.AuthModeFederated), true)
		return acc, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, storageError("find by subject", err)
	}

	acc, err = repo.FindByEmail(ctx, id.Email)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("find by email", err)
	}

	if acc.AuthMode != models.AuthModePassword || acc.HasFederated() {
		return nil, oops.Code("CONFLICT").With("account_id", acc.ID).With("subject_id", id.SubjectID).Wrap(ErrConflict)
	}
	// An unverified address could claim someone else's account.
	if !id.EmailVerified {
		return nil, oops.Code("UNVERIFIED_EMAIL").With("account_id", acc.ID).With("subject_id", id.SubjectID).Wrap(ErrUnverifiedEmail)
	}
	if !s.opts.FederatedAutoLink {
		return nil, oops.Code("LINK_REQUIRED").With("account_id", acc.ID).Wrap(ErrLinkRequired)
	}

	linked, err := s.link(ctx, acc.ID, id)
	if err != nil {
		return nil, err
	}
	s.metrics.FederatedResolved(metrics.OutcomeLinked)
	s.metrics.Login(string(models.AuthModeFederated), true)
	s.logger.Info(ctx, "federated identity linked by email", "account_id", linked.ID)
	return linked, nil
}

func (s *AccountService) createFederated(ctx context.Context, id models.FederatedIdentity) (*models.Account, error) {
	acc := s.newAccount(id.Email, models.AuthModeFederated, false)
	acc.FederatedSubjectID = id.SubjectID
	acc.DisplayName = id.DisplayName
	acc.ProfilePictureURL = id.PictureURL
	acc.Company = companyFromEmail(id.Email)

	if err := s.repos.Accounts().Insert(ctx, acc); err != nil {
		if errors.Is(err, common.ErrorConflict) {
			return nil, err
		}
		return nil, storageError("insert account", err)
	}

	s.metrics.AccountCreated(string(models.AuthModeFederated))
	s.metrics.FederatedResolved(metrics.OutcomeCreated)
	s.metrics.Login(string(models.AuthModeFederated), true)
	s.logger.Info(ctx, "federated account created", "account_id", acc.ID)

	s.provision(ctx, acc)
	return acc, nil
}

// PrepareLink checks a password assertion and mints the short-lived token
// that lets the following federated login attach to this account.
func (s *AccountService) PrepareLink(ctx context.Context, email, password string) (string, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return "", oops.Code("VALIDATION_ERROR").Wrap(ErrValidation)
	}

	acc, err := s.Verify(ctx, email, password)
	if err != nil {
		return "", err
	}
	if acc.HasFederated() {
		return "", oops.Code("CONFLICT").With("account_id", acc.ID).Wrap(ErrConflict)
	}

	token, err := s.issuer.IssueLink(acc.ID)
	if err != nil {
		return "", oops.Code("TOKEN_FAILED").Wrap(err)
	}
	return token, nil
}

// LinkFederated attaches id to the account the link token was issued for,
// regardless of the email the provider reports.
func (s *AccountService) LinkFederated(ctx context.Context, accountID string, id models.FederatedIdentity) (*models.Account, error) {
	if strings.TrimSpace(id.SubjectID) == "" {
		return nil, oops.Code("VALIDATION_ERROR").Wrap(ErrValidation)
	}

	owner, err := s.repos.Accounts().FindByFederatedSubjectID(ctx, id.SubjectID)
	switch {
	case err == nil && owner.ID != accountID:
		return nil, oops.Code("CONFLICT").With("account_id", accountID).With("owner_id", owner.ID).Wrap(ErrConflict)
	case err != nil && !errors.Is(err, common.ErrorNotFound):
		return nil, storageError("find by subject", err)
	}

	acc, err := s.link(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	s.metrics.FederatedResolved(metrics.OutcomeLinked)
	s.logger.Info(ctx, "federated identity linked by handshake", "account_id", acc.ID)
	return acc, nil
}

// link binds the identity inside a transaction holding the account row.
func (s *AccountService) link(ctx context.Context, accountID string, id models.FederatedIdentity) (*models.Account, error) {
	var out *models.Account

	err := s.repos.WithTx(ctx, func(ctx context.Context, repo accounts.Repository) error {
		acc, err := repo.FindByIDForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if acc.HasFederated() && acc.FederatedSubjectID != id.SubjectID {
			return oops.Code("CONFLICT").With("account_id", acc.ID).Wrap(ErrConflict)
		}

		now := s.now()
		f := accounts.Fields{FederatedSubjectID: &id.SubjectID, LastAuthenticatedAt: &now}
		if acc.DisplayName == "" && id.DisplayName != "" {
			f.DisplayName = &id.DisplayName
			acc.DisplayName = id.DisplayName
		}
		if acc.ProfilePictureURL == "" && id.PictureURL != "" {
			f.ProfilePictureURL = &id.PictureURL
			acc.ProfilePictureURL = id.PictureURL
		}

		if err := repo.Update(ctx, acc.ID, f); err != nil {
			return err
		}
		acc.FederatedSubjectID = id.SubjectID
		acc.LastAuthenticatedAt = now
		out = acc
		return nil
	})

	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, ErrConflict):
		return nil, err
	case errors.Is(err, common.ErrorConflict):
		return nil, oops.Code("CONFLICT").With("account_id", accountID).Wrap(ErrConflict)
	case errors.Is(err, common.ErrorNotFound):
		return nil, oops.Code("NOT_FOUND").With("account_id", accountID).Wrap(common.ErrorNotFound)
	default:
		return nil, storageError("link identity", err)
	}
}

// Account returns the account a session belongs to.
func (s *AccountService) Account(ctx context.Context, accountID string) (*models.Account, error) {
	acc, err := s.repos.Accounts().FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, oops.Code("NOT_FOUND").With("account_id", accountID).Wrap(common.ErrorNotFound)
		}
		return nil, storageError("find by id", err)
	}
	return acc, nil
}

// IssueSession mints a session token for acc.
func (s *AccountService) IssueSession(acc *models.Account) (*Session, error) {
	return s.session(acc)
}

// --- helpers below ---

func (s *AccountService) newAccount(email string, mode models.AuthMode, unlimited bool) *models.Account {
	now := s.now()
	id := s.newID()
	return &models.Account{
		ID:    id,
		Email: email,
		// The id is generated here, so the namespace is final on the first write.
		StorageNamespace:    id,
		AuthMode:            mode,
		CreditsGranted:      quota.Grant(unlimited),
		UnlimitedAccess:     unlimited,
		CreatedAt:           now,
		LastAuthenticatedAt: now,
	}
}

func (s *AccountService) session(acc *models.Account) (*Session, error) {
	token, err := s.issuer.Issue(acc.ID)
	if err != nil {
		return nil, oops.Code("TOKEN_FAILED").Wrap(err)
	}
	return &Session{Token: token, Account: acc}, nil
}

// provision never fails the caller; unprovisioned accounts are picked up by
// the sweeper.
func (s *AccountService) provision(ctx context.Context, acc *models.Account) {
	if s.provisioner == nil {
		return
	}
	if err := s.provisioner.ProvisionAccount(ctx, acc); err != nil {
		s.logger.Warn(ctx, "account left unprovisioned", "account_id", acc.ID, "error", err)
	}
}

// touch refreshes LastAuthenticatedAt. A failed write is logged only.
func (s *AccountService) touch(ctx context.Context, acc *models.Account) {
	now := s.now()
	if err := s.repos.Accounts().Update(ctx, acc.ID, accounts.Fields{LastAuthenticatedAt: &now}); err != nil {
		s.logger.Warn(ctx, "last authentication not recorded", "account_id", acc.ID, "error", err)
		return
	}
	acc.LastAuthenticatedAt = now
}

func (s *AccountService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyDigest, _ = s.hasher.Hash(uuid.NewString())
	})
	return s.dummyDigest
}

func invalidCredentials() error {
	return oops.Code("INVALID_CREDENTIALS").Wrap(common.ErrorUnauthorized)
}

func storageError(operation string, err error) error {
	return oops.Code("STORAGE_FAILURE").With("operation", operation).Wrap(err)
}

func companyFromEmail(email string) string {
	if _, domain, ok := strings.Cut(email, "@"); ok && domain != "" {
		return domain
	}
	return "Google User"
}
