package app

import (
	"context"
	"fmt"
	"os"

	"github.com/aussiebroadwan/companion/pkg/cryptox"
	"github.com/aussiebroadwan/companion/pkg/tokenstore"
	"github.com/aussiebroadwan/companion/pkg/tokenstore/drivers/memory"
	"github.com/aussiebroadwan/companion/pkg/tokenstore/drivers/redis"
	"github.com/aussiebroadwan/companion/pkg/tokenstore/drivers/sqlite"
	goredis "github.com/redis/go-redis/v9"
)

// initDatabase opens the local sqlite file and applies migrations. It holds
// settings even when tokens live in Redis.
func (app *Application) initDatabase() error {
	if err := os.MkdirAll(app.cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	db, err := sqlite.NewStore(app.cfg.TokenDBPath())
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Debug("database ready", "path", app.cfg.TokenDBPath())
	return nil
}

// initTokenStore picks the durable tier and pairs it with an in-memory
// session tier.
func (app *Application) initTokenStore(ctx context.Context) error {
	var durable tokenstore.Tier

	if app.cfg.RedisAddr != "" {
		app.redis = goredis.NewClient(&goredis.Options{Addr: app.cfg.RedisAddr})
		if err := app.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to reach redis at %s: %w", app.cfg.RedisAddr, err)
		}

		// The salt lives next to the tokens so every host derives the same key.
		sealer, err := app.vaultSealer(ctx, func(ctx context.Context) ([]byte, error) {
			return redis.VaultSalt(ctx, app.redis, app.cfg.RedisKey)
		})
		if err != nil {
			return err
		}

		tier, err := redis.New(redis.Config{Client: app.redis, Key: app.cfg.RedisKey, Sealer: sealer})
		if err != nil {
			return err
		}
		durable = tier
		app.logger.Debug("durable tokens in redis", "addr", app.cfg.RedisAddr, "sealed", sealer != nil)
	} else {
		sealer, err := app.vaultSealer(ctx, app.db.VaultSalt)
		if err != nil {
			return err
		}
		durable = app.db.Tokens(sealer)
	}

	app.store = tokenstore.New(durable, memory.New())
	return nil
}

// vaultSealer derives the token sealing key from the configured passphrase
// and the durable tier's salt, or returns nil when tokens are stored in the
// clear.
func (app *Application) vaultSealer(ctx context.Context, vaultSalt func(context.Context) ([]byte, error)) (*cryptox.Sealer, error) {
	if app.cfg.VaultPassphrase == "" {
		return nil, nil
	}

	salt, err := vaultSalt(ctx)
	if err != nil {
		return nil, err
	}

	sealer, err := cryptox.NewPassphraseSealer(app.cfg.VaultPassphrase, salt)
	if err != nil {
		return nil, fmt.Errorf("failed to derive vault key: %w", err)
	}
	return sealer, nil
}
