package sqlite

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"

	"github.com/aussiebroadwan/companion/pkg/cryptox"
)

// Known setting keys.
const (
	SettingTheme     = "theme"
	SettingVaultSalt = "vault_salt"
)

// Setting returns the value stored under key, or tokenstore.ErrNotFound.
func (s *Store) Setting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", mapNotFound(err)
	}
	return value, nil
}

// SetSetting upserts key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value,
	)
	return wrap("set setting", err)
}

// VaultSalt returns the KDF salt for sealing tokens, creating and persisting
// one on first use.
func (s *Store) VaultSalt(ctx context.Context) ([]byte, error) {
	var salt []byte
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var encoded string
		err := tx.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, SettingVaultSalt).Scan(&encoded)
		switch {
		case err == nil:
			salt, err = base64.RawStdEncoding.DecodeString(encoded)
			return err
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		if salt, err = cryptox.NewSalt(); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO settings (key, value) VALUES (?, ?)`,
			SettingVaultSalt, base64.RawStdEncoding.EncodeToString(salt),
		)
		return err
	})
	if err != nil {
		return nil, wrap("vault salt", err)
	}
	return salt, nil
}
