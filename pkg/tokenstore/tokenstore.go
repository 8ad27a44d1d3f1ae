// Package tokenstore persists the access/refresh token pair for the current
// user. A login with "remember me" lands in the durable tier and survives a
// restart; otherwise the tokens live in the session tier and die with the
// process.
package tokenstore

import (
	"context"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("tokenstore: not found")

// Token is the credential pair plus the tier it lives in.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`

	// Persistent is true when the token was stored durably ("remember me").
	Persistent bool `json:"-"`
}

// Store is what the HTTP client and the CLI depend on.
type Store interface {
	// Get returns the current token. ok is false when no session exists.
	Get(ctx context.Context) (tok Token, ok bool, err error)

	// Set stores a fresh pair in the tier picked by persistent, clearing the
	// other tier first.
	Set(ctx context.Context, access, refresh string, persistent bool) error

	// Clear removes the token from every tier.
	Clear(ctx context.Context) error
}

// Tier is a single storage backend. Load returns ErrNotFound when empty.
type Tier interface {
	Load(ctx context.Context) (Token, error)
	Save(ctx context.Context, tok Token) error
	Delete(ctx context.Context) error
}

// Tiered is the Store implementation over a durable and a session tier.
type Tiered struct {
	durable Tier
	session Tier
}

var _ Store = (*Tiered)(nil)

// New returns a Store over the two tiers. Both are required.
func New(durable, session Tier) *Tiered {
	return &Tiered{durable: durable, session: session}
}

func (t *Tiered) Get(ctx context.Context) (Token, bool, error) {
	tok, err := t.durable.Load(ctx)
	switch {
	case err == nil:
		tok.Persistent = true
		return tok, true, nil
	case !errors.Is(err, ErrNotFound):
		return Token{}, false, fmt.Errorf("load durable token: %w", err)
	}

	tok, err = t.session.Load(ctx)
	switch {
	case err == nil:
		tok.Persistent = false
		return tok, true, nil
	case errors.Is(err, ErrNotFound):
		return Token{}, false, nil
	default:
		return Token{}, false, fmt.Errorf("load session token: %w", err)
	}
}

func (t *Tiered) Set(ctx context.Context, access, refresh string, persistent bool) error {
	target, other := t.session, t.durable
	if persistent {
		target, other = t.durable, t.session
	}

	if err := other.Delete(ctx); err != nil {
		return fmt.Errorf("clear other tier: %w", err)
	}

	tok := Token{AccessToken: access, RefreshToken: refresh, Persistent: persistent}
	if err := target.Save(ctx, tok); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

func (t *Tiered) Clear(ctx context.Context) error {
	return errors.Join(t.durable.Delete(ctx), t.session.Delete(ctx))
}
