package companionsdk

import (
	"context"
	"fmt"
	"net/http"
)

func (s *Session) CreateReview(ctx context.Context, req ReviewRequest) (*Review, error) {
	if req.Rating < 1 || req.Rating > 5 {
		return nil, &ValidationError{Fields: map[string]string{"rating": fmt.Sprintf("must be 1-5, got %d", req.Rating)}}
	}

	var review Review
	if err := s.sendJSON(ctx, http.MethodPost, "/api/reviews", req, &review); err != nil {
		return nil, err
	}
	return &review, nil
}

// ListReviews lists the reviews written about a user.
func (s *Session) ListReviews(ctx context.Context, userID int64) ([]Review, error) {
	var reviews []Review
	if err := s.getJSON(ctx, pathID("/api/reviews/user/%s", userID), &reviews); err != nil {
		return nil, err
	}
	return reviews, nil
}
