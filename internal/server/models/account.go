// Package models holds the server-side persistent entities.
package models

import "time"

// AuthMode is the primary path an account was registered through.
type AuthMode string

const (
	AuthModePassword  AuthMode = "password"
	AuthModeFederated AuthMode = "federated"
)

// Account is the single entity of the identity store.
//
// PasswordDigest and FederatedSubjectID are both optional; after linking an
// account carries both. StorageNamespace equals ID once the record exists.
type Account struct {
	ID                  string
	Email               string
	PasswordDigest      string
	FederatedSubjectID  string
	AuthMode            AuthMode
	Company             string
	DisplayName         string
	ProfilePictureURL   string
	RegistrationCode    string
	StorageNamespace    string
	CreditsGranted      int64
	CreditsConsumed     int64
	UnlimitedAccess     bool
	CreatedAt           time.Time
	LastAuthenticatedAt time.Time
	// NamespaceProvisionedAt is nil until the storage marker was written.
	NamespaceProvisionedAt *time.Time
}

// HasPassword reports whether the account can authenticate with a password.
func (a *Account) HasPassword() bool { return a.PasswordDigest != "" }

// HasFederated reports whether a third-party identity is attached.
func (a *Account) HasFederated() bool { return a.FederatedSubjectID != "" }

// AuthSurface lists every capability the account can log in with.
func (a *Account) AuthSurface() []AuthMode {
	var out []AuthMode
	if a.HasPassword() {
		out = append(out, AuthModePassword)
	}
	if a.HasFederated() {
		out = append(out, AuthModeFederated)
	}
	return out
}

// Clone returns a deep copy, so stores can hand out records without sharing
// the NamespaceProvisionedAt pointer.
func (a *Account) Clone() *Account {
	c := *a
	if a.NamespaceProvisionedAt != nil {
		t := *a.NamespaceProvisionedAt
		c.NamespaceProvisionedAt = &t
	}
	return &c
}

// FederatedIdentity is an assertion from a third-party identity provider.
type FederatedIdentity struct {
	SubjectID     string
	Email         string
	EmailVerified bool
	DisplayName   string
	PictureURL    string
}
