package chat

import "context"

// Dialer opens a transport connection. Dial returns once the server has
// acknowledged the connection (STOMP CONNECTED), or fails.
type Dialer interface {
	Dial(ctx context.Context, token string) (Conn, error)
}

// Conn is one live transport connection.
//
// deliver callbacks for a single subscription are called one at a time, in
// the order the transport received the messages.
type Conn interface {
	Subscribe(destination string, deliver func(payload []byte)) (cancel func(), err error)
	Send(destination string, payload []byte) error

	// Done is closed when the connection drops. Err then reports why.
	Done() <-chan struct{}
	Err() error

	Close() error
}

// TokenSource hands out a usable access token for the connect handshake.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) AccessToken(ctx context.Context) (string, error) { return f(ctx) }
