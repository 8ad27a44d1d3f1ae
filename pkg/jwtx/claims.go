package jwtx

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed = errors.New("jwtx: malformed token")
	ErrNoSubject = errors.New("jwtx: token has no user id")
)

// Claims are the access-token claims minted by the Companion API. The client
// never holds the signing key so it only ever reads these, it never trusts
// them for authorization. The server does that.
type Claims struct {
	jwt.RegisteredClaims

	// UserID is the numeric user id. Older tokens only carry it in "sub".
	UserID int64 `json:"userId,omitempty"`

	// Email the user logged in with
	Email string `json:"email,omitempty"`

	// Nickname is the display name shown in chat
	Nickname string `json:"nickname,omitempty"`
}

// Inspect decodes the claims of a JWT without verifying its signature.
func Inspect(token string) (Claims, error) {
	var c Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &c); err != nil {
		return Claims{}, errors.Join(ErrMalformed, err)
	}
	return c, nil
}

// User returns the user id, falling back to a numeric "sub" claim.
func (c *Claims) User() (int64, error) {
	if c.UserID != 0 {
		return c.UserID, nil
	}
	if c.Subject == "" {
		return 0, ErrNoSubject
	}
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, ErrNoSubject
	}
	return id, nil
}

// Expiry returns the exp claim, or the zero time if the token never expires.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// ExpiresWithin reports whether the token expires before now+window. Tokens
// without exp never do.
func (c *Claims) ExpiresWithin(now time.Time, window time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !now.Add(window).Before(c.ExpiresAt.Time)
}
