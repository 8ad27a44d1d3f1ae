package companionsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/companion/pkg/cryptox"
	"github.com/aussiebroadwan/companion/pkg/httpx"
)

// Login exchanges credentials for a token pair. With remember set the pair
// goes to the durable tier and survives a restart; otherwise it only lives as
// long as the session tier does.
func (c *SDKClient) Login(ctx context.Context, email, password string, remember bool) (*Session, error) {
	body, contentType, err := httpx.MultipartBody(map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/login", bytes.NewReader(body), map[string]string{
		"Content-Type": contentType,
	})
	if err != nil {
		return nil, err
	}

	pair, err := decodeTokenPair(resp)
	if err != nil {
		return nil, err
	}

	identity, err := IdentityFromToken(pair.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("decode access token: %w", err)
	}

	if err := c.store.Set(ctx, pair.AccessToken, pair.RefreshToken, remember); err != nil {
		return nil, fmt.Errorf("store tokens: %w", err)
	}

	c.logger.Info("login",
		"user_id", identity.UserID,
		"remember", remember,
		"token_fp", cryptox.FingerprintToken(pair.AccessToken),
	)

	if c.hooks.OnLogin != nil {
		c.hooks.OnLogin(identity)
	}
	return newSession(c), nil
}

// Resume rebuilds a Session from stored tokens, the way a reopened tab picks
// up where it left off. Returns ErrNoSession when nothing is stored.
func (c *SDKClient) Resume(ctx context.Context) (*Session, error) {
	tok, ok, err := c.store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tokens: %w", err)
	}
	if !ok {
		return nil, ErrNoSession
	}

	identity, err := IdentityFromToken(tok.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("decode access token: %w", err)
	}

	if c.hooks.OnLogin != nil {
		c.hooks.OnLogin(identity)
	}
	return newSession(c), nil
}

// SignUp registers a new account. The request is validated locally first and
// nothing is sent when it fails.
func (c *SDKClient) SignUp(ctx context.Context, req SignUpRequest) (*User, error) {
	if errs := req.Validate(); errs != nil {
		return nil, &ValidationError{Fields: errs}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/api/users", bytes.NewReader(payload), map[string]string{
		"Content-Type": "application/json",
	})
	if err != nil {
		return nil, err
	}

	var user User
	if err := decodeJSON(resp, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// refreshGrant trades a refresh token for a new pair. It never goes through
// the interceptor.
func (c *SDKClient) refreshGrant(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, errors.New("no refresh token")
	}

	payload, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, http.MethodPost, c.RefreshPath, bytes.NewReader(payload), map[string]string{
		"Content-Type": "application/json",
	})
	if err != nil {
		return nil, err
	}

	pair, err := decodeTokenPair(resp)
	if err != nil {
		return nil, err
	}
	if pair.RefreshToken == "" {
		// Servers that don't rotate refresh tokens only send the access token.
		pair.RefreshToken = refreshToken
	}
	return pair, nil
}

// decodeTokenPair reads tokens from a JSON body, falling back to the
// Authorization and Authorization-Refresh headers.
func decodeTokenPair(resp *http.Response) (*TokenPair, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseErrorResponse(resp, body)
	}

	var pair TokenPair
	if len(bytes.TrimSpace(body)) > 0 {
		// A non-JSON body is fine as long as the headers carry the tokens.
		_ = json.Unmarshal(body, &pair)
	}

	if pair.AccessToken == "" {
		pair.AccessToken = bearer(resp.Header.Get("Authorization"))
	}
	if pair.RefreshToken == "" {
		pair.RefreshToken = bearer(resp.Header.Get("Authorization-Refresh"))
	}

	if pair.AccessToken == "" {
		return nil, ErrNoTokens
	}
	return &pair, nil
}

func bearer(h string) string {
	h = strings.TrimSpace(h)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return h
}
