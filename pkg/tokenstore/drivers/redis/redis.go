// Package redis is a durable token tier backed by Redis, for headless agents
// that share one login across several hosts.
package redis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/companion/pkg/cryptox"
	"github.com/aussiebroadwan/companion/pkg/tokenstore"
	"github.com/redis/go-redis/v9"
)

const DefaultKey = "companion:token"

// ErrSealed is returned when a sealed pair is read without a Sealer.
var ErrSealed = errors.New("redis: token is sealed and no key was provided")

// Config contains configuration options for the Redis tier.
type Config struct {
	// Client is the Redis client instance.
	Client *redis.Client

	// Key is where the token pair is stored.
	// Default: "companion:token"
	Key string

	// TTL expires the stored pair. Zero keeps it until Delete.
	TTL time.Duration

	// Sealer encrypts both tokens before they leave the process. Nil stores
	// them in the clear.
	Sealer *cryptox.Sealer
}

type Tier struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	sealer *cryptox.Sealer
}

var _ tokenstore.Tier = (*Tier)(nil)

// storedToken is the JSON payload kept under the key.
type storedToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Sealed       bool      `json:"sealed,omitempty"`
	StoredAt     time.Time `json:"stored_at"`
}

func New(cfg Config) (*Tier, error) {
	if cfg.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	return &Tier{client: cfg.Client, key: cfg.Key, ttl: cfg.TTL, sealer: cfg.Sealer}, nil
}

// VaultSalt returns the KDF salt shared by every host using key, creating it
// on first use. The first writer wins.
func VaultSalt(ctx context.Context, client *redis.Client, key string) ([]byte, error) {
	if key == "" {
		key = DefaultKey
	}
	saltKey := key + ":salt"

	salt, err := cryptox.NewSalt()
	if err != nil {
		return nil, err
	}
	if err := client.SetNX(ctx, saltKey, base64.RawStdEncoding.EncodeToString(salt), 0).Err(); err != nil {
		return nil, fmt.Errorf("failed to set key %s: %w", saltKey, err)
	}

	encoded, err := client.Get(ctx, saltKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", saltKey, err)
	}
	return base64.RawStdEncoding.DecodeString(encoded)
}

func (t *Tier) Load(ctx context.Context) (tokenstore.Token, error) {
	raw, err := t.client.Get(ctx, t.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return tokenstore.Token{}, tokenstore.ErrNotFound
		}
		return tokenstore.Token{}, fmt.Errorf("failed to get key %s: %w", t.key, err)
	}

	var item storedToken
	if err := json.Unmarshal(raw, &item); err != nil {
		return tokenstore.Token{}, fmt.Errorf("failed to unmarshal stored token: %w", err)
	}
	if !item.Sealed {
		return tokenstore.Token{AccessToken: item.AccessToken, RefreshToken: item.RefreshToken}, nil
	}

	if t.sealer == nil {
		return tokenstore.Token{}, ErrSealed
	}
	access, err := t.open(item.AccessToken)
	if err != nil {
		return tokenstore.Token{}, err
	}
	refresh, err := t.open(item.RefreshToken)
	if err != nil {
		return tokenstore.Token{}, err
	}
	return tokenstore.Token{AccessToken: access, RefreshToken: refresh}, nil
}

func (t *Tier) Save(ctx context.Context, tok tokenstore.Token) error {
	item := storedToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		StoredAt:     time.Now().UTC(),
	}
	if t.sealer != nil {
		var err error
		if item.AccessToken, err = t.seal(tok.AccessToken); err != nil {
			return err
		}
		if item.RefreshToken, err = t.seal(tok.RefreshToken); err != nil {
			return err
		}
		item.Sealed = true
	}

	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := t.client.Set(ctx, t.key, raw, t.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", t.key, err)
	}
	return nil
}

func (t *Tier) Delete(ctx context.Context) error {
	if err := t.client.Del(ctx, t.key).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", t.key, err)
	}
	return nil
}

func (t *Tier) seal(plain string) (string, error) {
	sealed, err := t.sealer.Seal([]byte(plain))
	if err != nil {
		return "", fmt.Errorf("failed to seal token: %w", err)
	}
	return base64.RawStdEncoding.EncodeToString(sealed), nil
}

func (t *Tier) open(encoded string) (string, error) {
	sealed, err := base64.RawStdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode sealed token: %w", err)
	}
	plain, err := t.sealer.Open(sealed)
	if err != nil {
		return "", fmt.Errorf("failed to open sealed token: %w", err)
	}
	return string(plain), nil
}
