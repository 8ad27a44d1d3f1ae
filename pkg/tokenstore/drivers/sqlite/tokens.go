package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/aussiebroadwan/companion/pkg/cryptox"
	"github.com/aussiebroadwan/companion/pkg/tokenstore"
)

// ErrSealed is returned when a sealed row is read without a Sealer.
var ErrSealed = errors.New("sqlite: token is sealed and no key was provided")

// TokenTier stores at most one token pair. When a Sealer is set both tokens
// are encrypted at rest.
type TokenTier struct {
	db     *sql.DB
	sealer *cryptox.Sealer
}

var _ tokenstore.Tier = (*TokenTier)(nil)

// Tokens returns the token tier. sealer may be nil to store plaintext.
func (s *Store) Tokens(sealer *cryptox.Sealer) *TokenTier {
	return &TokenTier{db: s.db, sealer: sealer}
}

func (t *TokenTier) Load(ctx context.Context) (tokenstore.Token, error) {
	var (
		access, refresh []byte
		sealed          bool
	)
	err := t.db.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, sealed FROM tokens WHERE id = 1`,
	).Scan(&access, &refresh, &sealed)
	if err != nil {
		return tokenstore.Token{}, mapNotFound(err)
	}

	if sealed {
		if t.sealer == nil {
			return tokenstore.Token{}, ErrSealed
		}
		if access, err = t.sealer.Open(access); err != nil {
			return tokenstore.Token{}, wrap("open access token", err)
		}
		if refresh, err = t.sealer.Open(refresh); err != nil {
			return tokenstore.Token{}, wrap("open refresh token", err)
		}
	}

	return tokenstore.Token{
		AccessToken:  string(access),
		RefreshToken: string(refresh),
	}, nil
}

func (t *TokenTier) Save(ctx context.Context, tok tokenstore.Token) error {
	access, refresh := []byte(tok.AccessToken), []byte(tok.RefreshToken)

	sealed := t.sealer != nil
	if sealed {
		var err error
		if access, err = t.sealer.Seal(access); err != nil {
			return wrap("seal access token", err)
		}
		if refresh, err = t.sealer.Seal(refresh); err != nil {
			return wrap("seal refresh token", err)
		}
	}

	_, err := t.db.ExecContext(ctx, `
		INSERT INTO tokens (id, access_token, refresh_token, sealed, updated_at)
		VALUES (1, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET
			access_token  = excluded.access_token,
			refresh_token = excluded.refresh_token,
			sealed        = excluded.sealed,
			updated_at    = excluded.updated_at`,
		access, refresh, sealed,
	)
	return wrap("save token", err)
}

func (t *TokenTier) Delete(ctx context.Context) error {
	_, err := t.db.ExecContext(ctx, `DELETE FROM tokens WHERE id = 1`)
	return wrap("delete token", err)
}
