package companionsdk

import (
	"context"
	"net/http"
)

// GetUser fetches a user profile.
func (s *Session) GetUser(ctx context.Context, userID int64) (*User, error) {
	var user User
	if err := s.getJSON(ctx, pathID("/api/users/%s", userID), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Me fetches the profile of the logged in user.
func (s *Session) Me(ctx context.Context) (*User, error) {
	identity, err := s.Identity(ctx)
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, identity.UserID)
}

// UpdateUser changes the non-nil fields of req. The request is validated
// locally first.
func (s *Session) UpdateUser(ctx context.Context, userID int64, req UpdateUserRequest) (*User, error) {
	if errs := req.Validate(); errs != nil {
		return nil, &ValidationError{Fields: errs}
	}

	var user User
	if err := s.sendJSON(ctx, http.MethodPut, pathID("/api/users/%s", userID), req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteUser removes an account. Deleting your own account also ends the
// session.
func (s *Session) DeleteUser(ctx context.Context, userID int64) error {
	if err := s.sendJSON(ctx, http.MethodDelete, pathID("/api/users/%s", userID), nil, nil); err != nil {
		return err
	}

	if identity, err := s.Identity(ctx); err == nil && identity.UserID == userID {
		return s.Logout(ctx)
	}
	return nil
}
