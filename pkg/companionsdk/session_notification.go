package companionsdk

import (
	"context"
	"errors"
	"net/http"
)

func (s *Session) ListNotifications(ctx context.Context) ([]Notification, error) {
	var out []Notification
	if err := s.getJSON(ctx, "/api/notifications", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Session) MarkNotificationRead(ctx context.Context, notificationID int64) error {
	return s.sendJSON(ctx, http.MethodPatch, pathID("/api/notifications/%s/read", notificationID), nil, nil)
}

// RegisterPushToken hands the server a device push token. Delivery itself is
// the push provider's job.
func (s *Session) RegisterPushToken(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("companionsdk: empty push token")
	}
	req := struct {
		Token string `json:"token"`
	}{Token: token}
	return s.sendJSON(ctx, http.MethodPost, "/api/notifications/token", req, nil)
}
