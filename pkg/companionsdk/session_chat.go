package companionsdk

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/companion/pkg/chat"
	"github.com/aussiebroadwan/companion/pkg/httpx"
)

// ListChatRooms lists the rooms a user is a member of.
func (s *Session) ListChatRooms(ctx context.Context, userID int64) ([]ChatRoom, error) {
	var rooms []ChatRoom
	if err := s.getJSON(ctx, pathID("/api/chats/chat/%s", userID), &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// ChatHistory returns a room's messages, oldest first.
func (s *Session) ChatHistory(ctx context.Context, roomID int64) ([]chat.Message, error) {
	var msgs chat.Messages
	if err := s.getJSON(ctx, pathID("/api/chats/chat/%s/messages", roomID), &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// ChatMembers lists the members of a room.
func (s *Session) ChatMembers(ctx context.Context, chatID int64) ([]ChatMember, error) {
	var members []ChatMember
	if err := s.getJSON(ctx, pathID("/api/chats/chat/%s/members", chatID), &members); err != nil {
		return nil, err
	}
	return members, nil
}

// UploadChatImage uploads an image for a room and returns its URL. Publish an
// IMAGE message with the URL to share it.
func (s *Session) UploadChatImage(ctx context.Context, roomID int64, filename string, r io.Reader) (string, error) {
	body, contentType, err := httpx.MultipartBody(
		map[string]string{"roomId": strconv.FormatInt(roomID, 10)},
		httpx.FilePart{Field: "file", Filename: filename, Content: r},
	)
	if err != nil {
		return "", err
	}

	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/api/chats/chat/message/image", body, map[string]string{
		"Content-Type": contentType,
	})
	if err != nil {
		return "", err
	}

	var out struct {
		ImageURL string `json:"imageUrl"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return "", err
	}
	return out.ImageURL, nil
}
