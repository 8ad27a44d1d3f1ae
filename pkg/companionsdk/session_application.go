package companionsdk

import (
	"context"
	"net/http"
)

// Apply asks to join the trip behind a post.
func (s *Session) Apply(ctx context.Context, postID int64, message string) (*Application, error) {
	req := struct {
		PostID  int64  `json:"postId"`
		Message string `json:"message,omitempty"`
	}{PostID: postID, Message: message}

	var app Application
	if err := s.sendJSON(ctx, http.MethodPost, "/api/applications", req, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// ListApplications lists the applications to a post. Only its author may.
func (s *Session) ListApplications(ctx context.Context, postID int64) ([]Application, error) {
	var apps []Application
	if err := s.getJSON(ctx, pathID("/api/applications/post/%s", postID), &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

// UpdateApplicationStatus accepts or rejects an application.
func (s *Session) UpdateApplicationStatus(ctx context.Context, applicationID int64, status ApplicationStatus) (*Application, error) {
	req := struct {
		Status ApplicationStatus `json:"status"`
	}{Status: status}

	var app Application
	if err := s.sendJSON(ctx, http.MethodPut, pathID("/api/applications/%s/status", applicationID), req, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// CancelApplication withdraws your own application.
func (s *Session) CancelApplication(ctx context.Context, applicationID int64) error {
	return s.sendJSON(ctx, http.MethodDelete, pathID("/api/applications/%s", applicationID), nil, nil)
}
