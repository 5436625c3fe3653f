// Package auth mints and verifies session credentials and digests passwords.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/photokeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// ActionLink marks the short-lived token used by the link-accounts handshake.
const ActionLink = "link"

const (
	DefaultSessionTTL = time.Hour
	DefaultLinkTTL    = 10 * time.Minute
)

// Claims carries the account id and, for link tokens, the action.
type Claims struct {
	jwt.RegisteredClaims
	AccountID string `json:"id"`
	Action    string `json:"action,omitempty"`
}

// Issuer signs HS256 tokens for a resolved account.
type Issuer struct {
	secret     []byte
	sessionTTL time.Duration
	linkTTL    time.Duration
	now        func() time.Time
}

func NewIssuer(secret string, sessionTTL, linkTTL time.Duration) *Issuer {
	if sessionTTL == 0 {
		sessionTTL = DefaultSessionTTL
	}
	if linkTTL == 0 {
		linkTTL = DefaultLinkTTL
	}
	return &Issuer{secret: []byte(secret), sessionTTL: sessionTTL, linkTTL: linkTTL, now: time.Now}
}

// Issue mints a standard session token.
func (i *Issuer) Issue(accountID string) (string, error) {
	return i.sign(accountID, "", i.sessionTTL)
}

// IssueLink mints the short-lived token authorizing a federated identity to
// be attached to accountID.
func (i *Issuer) IssueLink(accountID string) (string, error) {
	return i.sign(accountID, ActionLink, i.linkTTL)
}

func (i *Issuer) sign(accountID, action string, ttl time.Duration) (string, error) {
	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		AccountID: accountID,
		Action:    action,
	})

	return token.SignedString(i.secret)
}

// Verify parses a token and returns its claims. Expired tokens yield
// common.ErrTokenExpired, everything else common.ErrInvalidToken.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.AccountID == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}

// VerifySession accepts only standard session tokens.
func (i *Issuer) VerifySession(tokenString string) (string, error) {
	claims, err := i.Verify(tokenString)
	if err != nil {
		return "", err
	}
	if claims.Action != "" {
		return "", common.ErrInvalidToken
	}
	return claims.AccountID, nil
}

// VerifyLink accepts only link tokens.
func (i *Issuer) VerifyLink(tokenString string) (string, error) {
	claims, err := i.Verify(tokenString)
	if err != nil {
		return "", err
	}
	if claims.Action != ActionLink {
		return "", common.ErrInvalidToken
	}
	return claims.AccountID, nil
}
