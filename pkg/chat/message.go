package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind discriminates the Message variants on the wire.
type Kind string

const (
	KindChat  Kind = "CHAT"
	KindImage Kind = "IMAGE"
	KindJoin  Kind = "JOIN"
	KindLeave Kind = "LEAVE"
)

var ErrUnknownMessageType = errors.New("chat: unknown message type")

// Envelope is the metadata every message carries.
type Envelope struct {
	RoomID     int64
	SenderID   int64
	SenderName string
	Timestamp  time.Time
}

// Meta returns the envelope. It is promoted onto every variant.
func (e Envelope) Meta() Envelope { return e }

// Message is one of Chat, Image, Join or Leave. The set is closed: switch on
// the concrete type and every case is known.
type Message interface {
	Kind() Kind
	Meta() Envelope
	isMessage()
}

// Chat is a text message.
type Chat struct {
	Envelope
	Body string
}

// Image is a message pointing at an uploaded image. Body is an optional
// caption.
type Image struct {
	Envelope
	Body     string
	ImageURL string
}

// Join announces a member entering the room.
type Join struct {
	Envelope
}

// Leave announces a member leaving the room.
type Leave struct {
	Envelope
}

func (Chat) Kind() Kind  { return KindChat }
func (Image) Kind() Kind { return KindImage }
func (Join) Kind() Kind  { return KindJoin }
func (Leave) Kind() Kind { return KindLeave }

func (Chat) isMessage()  {}
func (Image) isMessage() {}
func (Join) isMessage()  {}
func (Leave) isMessage() {}

// wireMessage is the JSON shape shared with the server.
type wireMessage struct {
	MessageType Kind   `json:"messageType"`
	RoomID      int64  `json:"roomId"`
	SenderID    int64  `json:"senderId"`
	SenderName  string `json:"senderName,omitempty"`
	Message     string `json:"message,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
}

// localDateTime is how the server renders timestamps without a zone. They are
// UTC.
const localDateTime = "2006-01-02T15:04:05.999999999"

// Encode renders m in the wire format.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, ErrUnknownMessageType
	}

	env := m.Meta()
	w := wireMessage{
		MessageType: m.Kind(),
		RoomID:      env.RoomID,
		SenderID:    env.SenderID,
		SenderName:  env.SenderName,
	}
	if !env.Timestamp.IsZero() {
		w.Timestamp = env.Timestamp.UTC().Format(time.RFC3339Nano)
	}

	switch v := m.(type) {
	case Chat:
		w.Message = v.Body
	case Image:
		w.Message = v.Body
		w.ImageURL = v.ImageURL
	case Join, Leave:
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessageType, m)
	}

	return json.Marshal(w)
}

// Decode parses one wire message.
func Decode(b []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("chat: decode message: %w", err)
	}
	return w.message()
}

// Messages is a decodable list of messages, oldest first.
type Messages []Message

// UnmarshalJSON decodes a JSON array of wire messages.
func (ms *Messages) UnmarshalJSON(b []byte) error {
	var raw []wireMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("chat: decode messages: %w", err)
	}

	out := make(Messages, 0, len(raw))
	for i, w := range raw {
		m, err := w.message()
		if err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		out = append(out, m)
	}
	*ms = out
	return nil
}

func (w wireMessage) message() (Message, error) {
	ts, err := parseTimestamp(w.Timestamp)
	if err != nil {
		return nil, err
	}

	env := Envelope{
		RoomID:     w.RoomID,
		SenderID:   w.SenderID,
		SenderName: w.SenderName,
		Timestamp:  ts,
	}

	switch Kind(strings.ToUpper(string(w.MessageType))) {
	case KindChat:
		return Chat{Envelope: env, Body: w.Message}, nil
	case KindImage:
		return Image{Envelope: env, Body: w.Message, ImageURL: w.ImageURL}, nil
	case KindJoin:
		return Join{Envelope: env}, nil
	case KindLeave:
		return Leave{Envelope: env}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, w.MessageType)
	}
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation(localDateTime, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("chat: bad timestamp %q: %w", s, err)
	}
	return t, nil
}
