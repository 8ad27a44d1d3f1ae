package companionsdk

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/companion/pkg/httpx"
	"github.com/aussiebroadwan/companion/pkg/slogx"
	"github.com/aussiebroadwan/companion/pkg/tokenstore"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultRefreshPath = "/api/auth/refresh"
	DefaultRefreshSkew = 30 * time.Second
	DefaultTimeout     = 10 * time.Second
)

// Hooks are lifecycle callbacks. They run synchronously on the goroutine that
// caused the event, so keep them short.
type Hooks struct {
	// OnLogin fires after Login or Resume produced a Session.
	OnLogin func(Identity)

	// OnLogout fires after Logout cleared the stored tokens.
	OnLogout func()

	// OnSessionExpired fires once per failed refresh, after the Token Store
	// was cleared. Treat it as "send the user back to login".
	OnSessionExpired func(error)
}

// Config configures an SDKClient. Only BaseURL and Store are required.
type Config struct {
	BaseURL string
	Store   tokenstore.Store
	Hooks   Hooks
	Logger  *slog.Logger

	// RefreshPath is the token refresh endpoint.
	// Default: "/api/auth/refresh"
	RefreshPath string

	// RefreshSkew is how close to exp an access token may get before
	// Session.AccessToken refreshes it proactively.
	// Default: 30s
	RefreshSkew time.Duration

	// HTTPClient overrides the default client. When nil a client with
	// Timeout, a throttled transport and request logging is built.
	HTTPClient *http.Client
	Timeout    time.Duration
	RateLimit  httpx.RateLimitConfig
}

// SDKClient is a client for the Companion API. It serves unauthenticated
// operations and creates authenticated Sessions.
type SDKClient struct {
	BaseURL     string
	HTTPClient  *http.Client
	RefreshPath string
	RefreshSkew time.Duration

	store  tokenstore.Store
	hooks  Hooks
	logger *slog.Logger
	now    func() time.Time

	// refreshes collapses concurrent refresh attempts from every Session
	// into one call.
	refreshes singleflight.Group
}

// NewSDKClient builds a client from cfg.
func NewSDKClient(cfg Config) (*SDKClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("companionsdk: base url is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("companionsdk: token store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.RefreshPath == "" {
		cfg.RefreshPath = DefaultRefreshPath
	}
	if cfg.RefreshSkew <= 0 {
		cfg.RefreshSkew = DefaultRefreshSkew
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: slogx.NewTransport(httpx.NewThrottledTransport(nil, cfg.RateLimit), logger),
		}
	}

	return &SDKClient{
		BaseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		HTTPClient:  httpClient,
		RefreshPath: cfg.RefreshPath,
		RefreshSkew: cfg.RefreshSkew,
		store:       cfg.Store,
		hooks:       cfg.Hooks,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// Store exposes the token store the client writes to.
func (c *SDKClient) Store() tokenstore.Store { return c.store }
