package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// HistoryFunc loads a room's messages, oldest first.
type HistoryFunc func(ctx context.Context, roomID int64) ([]Message, error)

// UploadFunc uploads an image for a room and returns its URL.
type UploadFunc func(ctx context.Context, roomID int64, filename string, r io.Reader) (string, error)

type RoomOptions struct {
	// OnMessage is called for every appended message, history included, in
	// order.
	OnMessage func(Message)

	// Upload is required by SendImage.
	Upload UploadFunc

	// AnnounceJoin publishes a JOIN once the room is open.
	AnnounceJoin bool

	// Now stamps outgoing messages. Defaults to time.Now.
	Now func() time.Time
}

var ErrRoomClosed = errors.New("chat: room closed")

// Room is one room's ordered message list: history first, live after.
type Room struct {
	id      int64
	manager *Manager
	sub     *Subscription
	opts    RoomOptions

	// emit serializes OnMessage calls so the initial batch and live
	// messages can't interleave.
	emit sync.Mutex

	mu       sync.Mutex
	loaded   bool
	closed   bool
	messages []Message
	held     []Message
}

// OpenRoom subscribes to the room before loading its history so nothing
// sent in between is missed. Live messages that arrive while history is
// loading are held and appended after it.
func OpenRoom(ctx context.Context, m *Manager, history HistoryFunc, roomID int64, opts RoomOptions) (*Room, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	r := &Room{id: roomID, manager: m, opts: opts}

	sub, err := m.SubscribeRoom(roomID, r.receive)
	if err != nil {
		return nil, err
	}
	r.sub = sub

	past, err := history(ctx, roomID)
	if err != nil {
		sub.Unsubscribe()
		return nil, fmt.Errorf("load history: %w", err)
	}

	r.emit.Lock()
	r.mu.Lock()
	r.messages = append(append(make([]Message, 0, len(past)+len(r.held)), past...), r.held...)
	r.held = nil
	r.loaded = true
	batch := r.messages
	r.mu.Unlock()

	r.notify(batch...)
	r.emit.Unlock()

	if opts.AnnounceJoin {
		r.publish(Join{Envelope: r.envelope()})
	}
	return r, nil
}

func (r *Room) receive(msg Message) {
	r.emit.Lock()
	defer r.emit.Unlock()

	r.mu.Lock()
	switch {
	case r.closed:
		r.mu.Unlock()
		return
	case !r.loaded:
		r.held = append(r.held, msg)
		r.mu.Unlock()
		return
	}
	r.messages = append(r.messages, msg)
	r.mu.Unlock()

	r.notify(msg)
}

func (r *Room) notify(msgs ...Message) {
	if r.opts.OnMessage == nil {
		return
	}
	for _, msg := range msgs {
		r.opts.OnMessage(msg)
	}
}

func (r *Room) ID() int64 { return r.id }

// Messages returns a snapshot of the room, oldest first.
func (r *Room) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Send publishes a text message. The server echoes it back on the room
// topic, which is when it shows up in Messages.
func (r *Room) Send(text string) Outcome {
	return r.publish(Chat{Envelope: r.envelope(), Body: text})
}

// SendImage uploads the image and then publishes an IMAGE message with its
// URL.
func (r *Room) SendImage(ctx context.Context, filename string, img io.Reader) (Outcome, error) {
	if r.opts.Upload == nil {
		return Dropped, errors.New("chat: room has no uploader")
	}
	if r.isClosed() {
		return Dropped, ErrRoomClosed
	}

	url, err := r.opts.Upload(ctx, r.id, filename, img)
	if err != nil {
		return Dropped, fmt.Errorf("upload image: %w", err)
	}
	return r.publish(Image{Envelope: r.envelope(), ImageURL: url}), nil
}

// Leave announces that the user left and closes the room.
func (r *Room) Leave() Outcome {
	out := r.publish(Leave{Envelope: r.envelope()})
	r.Close()
	return out
}

// Close stops the room's delivery. The shared connection stays up.
func (r *Room) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.sub.Unsubscribe()
}

func (r *Room) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Room) publish(msg Message) Outcome {
	if r.isClosed() {
		return Dropped
	}
	return r.manager.PublishMessage(msg)
}

func (r *Room) envelope() Envelope {
	id, _ := r.manager.Identity()
	return Envelope{
		RoomID:     r.id,
		SenderID:   id.UserID,
		SenderName: id.Nickname,
		Timestamp:  r.opts.Now().UTC(),
	}
}
