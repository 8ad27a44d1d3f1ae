package companionsdk

import (
	"context"
	"fmt"
	"net/http"
)

// DefaultPageSize is used by ListPosts when size is not positive.
const DefaultPageSize = 10

// ListPosts returns one page of posts, newest first. Keep calling with the
// next page until Page.Last for infinite scroll.
func (s *Session) ListPosts(ctx context.Context, page, size int) (*Page[Post], error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = DefaultPageSize
	}

	var out Page[Post]
	if err := s.getJSON(ctx, fmt.Sprintf("/api/posts?page=%d&size=%d", page, size), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) GetPost(ctx context.Context, postID int64) (*Post, error) {
	var post Post
	if err := s.getJSON(ctx, pathID("/api/posts/%s", postID), &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (s *Session) CreatePost(ctx context.Context, req PostRequest) (*Post, error) {
	var post Post
	if err := s.sendJSON(ctx, http.MethodPost, "/api/posts", req, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (s *Session) UpdatePost(ctx context.Context, postID int64, req PostRequest) (*Post, error) {
	var post Post
	if err := s.sendJSON(ctx, http.MethodPut, pathID("/api/posts/%s", postID), req, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (s *Session) DeletePost(ctx context.Context, postID int64) error {
	return s.sendJSON(ctx, http.MethodDelete, pathID("/api/posts/%s", postID), nil, nil)
}
