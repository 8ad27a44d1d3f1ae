package companionsdk

import (
	"context"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/companion/pkg/cryptox"
	"github.com/aussiebroadwan/companion/pkg/jwtx"
)

// Session is an authenticated view over the stored tokens. It holds no
// tokens itself: the Token Store is the single source of truth, so several
// Sessions over one store see the same rotation and share one refresh.
type Session struct {
	client *SDKClient
}

func newSession(client *SDKClient) *Session {
	return &Session{client: client}
}

// Identity returns who the current access token belongs to.
func (s *Session) Identity(ctx context.Context) (Identity, error) {
	tok, err := s.current(ctx)
	if err != nil {
		return Identity{}, err
	}
	return IdentityFromToken(tok)
}

// AccessToken returns an access token that is good for at least the refresh
// skew, refreshing first when the stored one is about to expire. Opaque
// tokens are returned as they are.
func (s *Session) AccessToken(ctx context.Context) (string, error) {
	tok, err := s.current(ctx)
	if err != nil {
		return "", err
	}

	claims, err := jwtx.Inspect(tok)
	if err != nil {
		return tok, nil
	}
	if !claims.ExpiresWithin(s.client.now(), s.client.RefreshSkew) {
		return tok, nil
	}

	return s.refresh(ctx, tok)
}

// Logout forgets the stored tokens and fires OnLogout.
func (s *Session) Logout(ctx context.Context) error {
	if err := s.client.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}

	s.client.logger.Info("logout")
	if s.client.hooks.OnLogout != nil {
		s.client.hooks.OnLogout()
	}
	return nil
}

func (s *Session) current(ctx context.Context) (string, error) {
	tok, ok, err := s.client.store.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("load tokens: %w", err)
	}
	if !ok {
		return "", ErrNoSession
	}
	return tok.AccessToken, nil
}

// refresh returns an access token newer than stale. Only one refresh per
// SDKClient is ever in flight; callers that arrive while it runs share its result, and callers
// that arrive after it finished find the rotated token in the store and skip
// the network entirely.
func (s *Session) refresh(ctx context.Context, stale string) (string, error) {
	ch := s.client.refreshes.DoChan("refresh", func() (any, error) {
		// The shared call must not die with whichever caller started it.
		ctx := context.WithoutCancel(ctx)

		tok, ok, err := s.client.store.Get(ctx)
		if err != nil {
			return "", fmt.Errorf("load tokens: %w", err)
		}
		if !ok {
			// An earlier refresh already failed and ended the session.
			return "", ErrSessionExpired
		}
		if tok.AccessToken != stale {
			return tok.AccessToken, nil
		}

		pair, err := s.client.refreshGrant(ctx, tok.RefreshToken)
		if err != nil {
			return "", s.expire(ctx, err)
		}

		if err := s.client.store.Set(ctx, pair.AccessToken, pair.RefreshToken, tok.Persistent); err != nil {
			return "", fmt.Errorf("store refreshed tokens: %w", err)
		}

		s.client.logger.Info("token_refreshed",
			"old_fp", cryptox.FingerprintToken(stale),
			"new_fp", cryptox.FingerprintToken(pair.AccessToken),
		)
		return pair.AccessToken, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// expire ends the session after a failed refresh.
func (s *Session) expire(ctx context.Context, cause error) error {
	s.client.logger.Warn("token_refresh_failed", "error", cause)

	if err := s.client.store.Clear(ctx); err != nil {
		s.client.logger.Error("failed to clear tokens", "error", err)
	}
	if s.client.hooks.OnSessionExpired != nil {
		s.client.hooks.OnSessionExpired(cause)
	}
	return errors.Join(ErrSessionExpired, cause)
}
