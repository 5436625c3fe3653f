package services

import "errors"

// Domain errors returned by AccountService, usually wrapped in an oops error
// carrying a code and context. Match them with errors.Is.
var (
	ErrValidation        = errors.New("missing required fields")
	ErrDuplicateEmail    = errors.New("user already exists")
	ErrInvalidCodeFormat = errors.New("invalid registration code format, must be a 32-character hexadecimal string")
	// ErrConflict reports a uniqueness clash the service could not resolve
	// by looking the winner up.
	ErrConflict = errors.New("account conflict")
	// ErrLinkRequired is returned by federated login when automatic linking
	// is disabled and a password account already owns the email.
	ErrLinkRequired    = errors.New("an account with this email already exists, sign in with your password to link it")
	ErrUnverifiedEmail = errors.New("email is not verified by the identity provider")
)
