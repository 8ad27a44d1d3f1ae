package companionsdk

import (
	"context"
	"net/http"
)

func (s *Session) Follow(ctx context.Context, userID int64) error {
	return s.sendJSON(ctx, http.MethodPost, pathID("/api/follow/%s", userID), nil, nil)
}

func (s *Session) Unfollow(ctx context.Context, userID int64) error {
	return s.sendJSON(ctx, http.MethodDelete, pathID("/api/follow/%s", userID), nil, nil)
}

// Followers lists who follows userID.
func (s *Session) Followers(ctx context.Context, userID int64) ([]FollowUser, error) {
	var users []FollowUser
	if err := s.getJSON(ctx, pathID("/api/follow/%s/followers", userID), &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Followings lists who userID follows.
func (s *Session) Followings(ctx context.Context, userID int64) ([]FollowUser, error) {
	var users []FollowUser
	if err := s.getJSON(ctx, pathID("/api/follow/%s/followings", userID), &users); err != nil {
		return nil, err
	}
	return users, nil
}
