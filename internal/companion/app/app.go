package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/aussiebroadwan/companion/pkg/chat"
	"github.com/aussiebroadwan/companion/pkg/chat/stompws"
	"github.com/aussiebroadwan/companion/pkg/companionsdk"
	"github.com/aussiebroadwan/companion/pkg/slogx"
	"github.com/aussiebroadwan/companion/pkg/tokenstore"
	"github.com/aussiebroadwan/companion/pkg/tokenstore/drivers/sqlite"
	goredis "github.com/redis/go-redis/v9"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

var ErrBadTheme = errors.New("theme must be light or dark")

// Application wires the token store, the REST client and the chat manager
// for one user process.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db    *sqlite.Store
	redis *goredis.Client
	store tokenstore.Store

	client  *companionsdk.SDKClient
	manager *chat.Manager

	// session is the live Session, nil while logged out.
	session atomic.Pointer[companionsdk.Session]

	stateMu      sync.Mutex
	stateChanged chan struct{}
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	return NewWithLogger(cfg, slogx.New(slogx.Config{
		Service: "companion",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	}))
}

// NewWithLogger is New with a caller supplied logger.
func NewWithLogger(cfg Config, logger *slog.Logger) (*Application, error) {
	app := &Application{
		cfg:          cfg,
		logger:       logger,
		stateChanged: make(chan struct{}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := app.initTokenStore(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}

	if err := app.initChat(); err != nil {
		_ = app.Close()
		return nil, err
	}

	if err := app.initClient(); err != nil {
		_ = app.Close()
		return nil, err
	}

	return app, nil
}

func (app *Application) initChat() error {
	dialer, err := stompws.NewDialer(stompws.Config{
		BaseURL: app.cfg.APIURL,
		Path:    app.cfg.WSPath,
		SockJS:  app.cfg.SockJS,
		Logger:  app.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize chat transport: %w", err)
	}

	app.manager, err = chat.NewManager(chat.Config{
		Dialer:           dialer,
		Tokens:           chat.TokenFunc(app.accessToken),
		Logger:           app.logger,
		ReconnectBackoff: app.cfg.ReconnectBackoff,
		OnStateChange:    app.onStateChange,
	})
	return err
}

func (app *Application) initClient() error {
	client, err := companionsdk.NewSDKClient(companionsdk.Config{
		BaseURL:     app.cfg.APIURL,
		Store:       app.store,
		Logger:      app.logger,
		RefreshPath: app.cfg.RefreshPath,
		Timeout:     app.cfg.HTTPTimeout,
		RateLimit:   app.cfg.RateLimit,
		Hooks: companionsdk.Hooks{
			OnLogin:          app.onLogin,
			OnLogout:         app.onLogout,
			OnSessionExpired: app.onSessionExpired,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize api client: %w", err)
	}
	app.client = client
	return nil
}

// Close tears the chat connection down and releases local storage.
func (app *Application) Close() error {
	if app.manager != nil {
		app.manager.Disconnect()
	}

	var errs []error
	if app.redis != nil {
		errs = append(errs, app.redis.Close())
	}
	if app.db != nil {
		errs = append(errs, app.db.Close())
	}
	return errors.Join(errs...)
}

func (app *Application) Logger() *slog.Logger           { return app.logger }
func (app *Application) Client() *companionsdk.SDKClient { return app.client }
func (app *Application) Manager() *chat.Manager          { return app.manager }

// Login authenticates and keeps the resulting Session.
func (app *Application) Login(ctx context.Context, email, password string, remember bool) (*companionsdk.Session, error) {
	sess, err := app.client.Login(ctx, email, password, remember)
	if err != nil {
		return nil, err
	}
	app.session.Store(sess)
	return sess, nil
}

// Session returns the live Session, resuming one from stored tokens if
// needed.
func (app *Application) Session(ctx context.Context) (*companionsdk.Session, error) {
	if sess := app.session.Load(); sess != nil {
		return sess, nil
	}

	sess, err := app.client.Resume(ctx)
	if err != nil {
		return nil, err
	}
	// Concurrent callers may all resume; everyone gets the first one stored.
	if app.session.CompareAndSwap(nil, sess) {
		return sess, nil
	}
	if winner := app.session.Load(); winner != nil {
		return winner, nil
	}
	return sess, nil
}

// Logout clears the stored tokens. The chat connection goes down through the
// OnLogout hook.
func (app *Application) Logout(ctx context.Context) error {
	sess, err := app.Session(ctx)
	if err != nil {
		return err
	}
	return sess.Logout(ctx)
}

// ConnectChat starts the chat connection for the session's user and waits
// until it is established.
func (app *Application) ConnectChat(ctx context.Context) error {
	sess, err := app.Session(ctx)
	if err != nil {
		return err
	}

	identity, err := sess.Identity(ctx)
	if err != nil {
		return err
	}

	if err := app.manager.Connect(ctx, identity.Chat()); err != nil {
		return err
	}
	return app.waitConnected(ctx)
}

// OpenRoom connects chat if needed and opens roomID.
func (app *Application) OpenRoom(ctx context.Context, roomID int64, onMessage func(chat.Message)) (*chat.Room, error) {
	if err := app.ConnectChat(ctx); err != nil {
		return nil, err
	}

	sess, err := app.Session(ctx)
	if err != nil {
		return nil, err
	}

	// History requests log with the room attached.
	ctx = slogx.WithRoom(slogx.WithContext(ctx, app.logger), roomID)
	return chat.OpenRoom(ctx, app.manager, sess.ChatHistory, roomID, chat.RoomOptions{
		OnMessage:    onMessage,
		Upload:       sess.UploadChatImage,
		AnnounceJoin: true,
	})
}

// Theme returns the stored theme preference, "light" when unset.
func (app *Application) Theme(ctx context.Context) (string, error) {
	theme, err := app.db.Setting(ctx, sqlite.SettingTheme)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return "light", nil
	}
	return theme, err
}

func (app *Application) SetTheme(ctx context.Context, theme string) error {
	if theme != "light" && theme != "dark" {
		return ErrBadTheme
	}
	return app.db.SetSetting(ctx, sqlite.SettingTheme, theme)
}

// accessToken feeds the chat handshake.
func (app *Application) accessToken(ctx context.Context) (string, error) {
	sess := app.session.Load()
	if sess == nil {
		return "", companionsdk.ErrNoSession
	}
	return sess.AccessToken(ctx)
}

func (app *Application) onLogin(identity companionsdk.Identity) {
	app.logger.Info("signed in", "user_id", identity.UserID, "nickname", identity.Nickname)
}

func (app *Application) onLogout() {
	app.session.Store(nil)
	app.manager.Disconnect()
}

func (app *Application) onSessionExpired(err error) {
	app.logger.Warn("session expired", "error", err)
	app.session.Store(nil)
	app.manager.Disconnect()
}

// onStateChange runs under the manager's lock; it only wakes waiters.
func (app *Application) onStateChange(state chat.State) {
	app.logger.Debug("chat state", "state", state.String())

	app.stateMu.Lock()
	close(app.stateChanged)
	app.stateChanged = make(chan struct{})
	app.stateMu.Unlock()
}

func (app *Application) waitConnected(ctx context.Context) error {
	for {
		app.stateMu.Lock()
		changed := app.stateChanged
		app.stateMu.Unlock()

		if app.manager.State() == chat.Connected {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}
