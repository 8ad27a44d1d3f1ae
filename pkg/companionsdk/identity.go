package companionsdk

import (
	"time"

	"github.com/aussiebroadwan/companion/pkg/chat"
	"github.com/aussiebroadwan/companion/pkg/jwtx"
)

// Identity is who an access token belongs to. It is decoded without
// verifying the signature and is only used to scope client state.
type Identity struct {
	UserID    int64
	Email     string
	Nickname  string
	ExpiresAt time.Time
}

// IdentityFromToken decodes the identity claims of an access token.
func IdentityFromToken(token string) (Identity, error) {
	claims, err := jwtx.Inspect(token)
	if err != nil {
		return Identity{}, err
	}

	id, err := claims.User()
	if err != nil {
		return Identity{}, err
	}

	return Identity{
		UserID:    id,
		Email:     claims.Email,
		Nickname:  claims.Nickname,
		ExpiresAt: claims.Expiry(),
	}, nil
}

// Chat returns the identity the chat connection is scoped to.
func (i Identity) Chat() chat.Identity {
	return chat.Identity{UserID: i.UserID, Nickname: i.Nickname}
}
