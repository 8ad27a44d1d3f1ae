// Package stompws is the chat transport: STOMP over a websocket, optionally
// wrapped in the SockJS websocket framing the chat server speaks.
package stompws

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/companion/pkg/chat"
	"github.com/go-stomp/stomp/v3"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	DefaultPath             = "/ws/chat"
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultHeartBeat        = 10 * time.Second

	contentTypeJSON = "application/json"
)

type Config struct {
	// BaseURL is the API base URL; http(s) is mapped to ws(s).
	BaseURL string

	// Path is the STOMP endpoint.
	// Default: "/ws/chat"
	Path string

	// SockJS selects the SockJS websocket transport URL and framing.
	SockJS bool

	HandshakeTimeout time.Duration
	HeartBeat        time.Duration
	Logger           *slog.Logger
}

// Dialer dials STOMP connections. It implements chat.Dialer.
type Dialer struct {
	base      *url.URL
	path      string
	sockjs    bool
	heartBeat time.Duration
	ws        *websocket.Dialer
	logger    *slog.Logger
}

var _ chat.Dialer = (*Dialer)(nil)

func NewDialer(cfg Config) (*Dialer, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("stompws: bad base url: %w", err)
	}
	switch base.Scheme {
	case "http":
		base.Scheme = "ws"
	case "https":
		base.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("stompws: unsupported scheme %q", base.Scheme)
	}

	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.HeartBeat < 0 {
		cfg.HeartBeat = 0
	} else if cfg.HeartBeat == 0 {
		cfg.HeartBeat = DefaultHeartBeat
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Dialer{
		base:      base,
		path:      "/" + strings.Trim(cfg.Path, "/"),
		sockjs:    cfg.SockJS,
		heartBeat: cfg.HeartBeat,
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger: cfg.Logger.With("component", "stompws"),
	}, nil
}

// Endpoint returns a websocket URL for a new connection. SockJS URLs carry a
// random server id and session id.
func (d *Dialer) Endpoint() string {
	u := *d.base
	prefix := strings.TrimSuffix(u.Path, "/") + d.path
	if d.sockjs {
		u.Path = fmt.Sprintf("%s/%03d/%s/websocket", prefix, rand.IntN(1000), uuid.NewString())
	} else {
		u.Path = prefix + "/websocket"
	}
	return u.String()
}

// Dial opens the websocket, performs the STOMP handshake and returns once
// the server answered CONNECTED.
func (d *Dialer) Dial(ctx context.Context, token string) (chat.Conn, error) {
	endpoint := d.Endpoint()

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	ws, resp, err := d.ws.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("stompws: dial %s: %s: %w", endpoint, resp.Status, err)
		}
		return nil, fmt.Errorf("stompws: dial %s: %w", endpoint, err)
	}

	s := newStream(ws, d.sockjs)

	// Neither the SockJS open frame nor the STOMP handshake take a context.
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	if d.sockjs {
		if err := s.awaitOpen(); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("stompws: sockjs open: %w", err)
		}
	}

	opts := []func(*stomp.Conn) error{
		stomp.ConnOpt.Host(d.base.Hostname()),
		stomp.ConnOpt.HeartBeat(d.heartBeat, d.heartBeat),
	}
	if token != "" {
		opts = append(opts, stomp.ConnOpt.Header("Authorization", "Bearer "+token))
	}

	sc, err := stomp.Connect(s, opts...)
	if err != nil {
		_ = s.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("stompws: stomp connect: %w", err)
	}

	d.logger.Debug("stomp_connected", "endpoint", endpoint)
	return &conn{stomp: sc, stream: s, logger: d.logger}, nil
}

// conn implements chat.Conn over a go-stomp connection.
type conn struct {
	stomp  *stomp.Conn
	stream *stream
	logger *slog.Logger
}

// Subscribe delivers each message of destination on a dedicated goroutine,
// in the order they arrived.
func (c *conn) Subscribe(destination string, deliver func([]byte)) (func(), error) {
	sub, err := c.stomp.Subscribe(destination, stomp.AckAuto)
	if err != nil {
		return nil, fmt.Errorf("stompws: subscribe %s: %w", destination, err)
	}

	go func() {
		for msg := range sub.C {
			if msg.Err != nil {
				c.logger.Debug("stomp_subscription_ended", "destination", destination, "error", msg.Err)
				return
			}
			deliver(msg.Body)
		}
	}()

	// Unsubscribe waits for the server's RECEIPT, which must never block a
	// delivery callback that cancels its own subscription.
	return func() {
		go func() {
			if err := sub.Unsubscribe(); err != nil {
				c.logger.Debug("stomp_unsubscribe_failed", "destination", destination, "error", err)
			}
		}()
	}, nil
}

func (c *conn) Send(destination string, payload []byte) error {
	return c.stomp.Send(destination, contentTypeJSON, payload)
}

func (c *conn) Done() <-chan struct{} { return c.stream.Done() }
func (c *conn) Err() error            { return c.stream.Err() }

func (c *conn) Close() error {
	_ = c.stomp.MustDisconnect()
	return c.stream.Close()
}

func deadlineSoon() time.Time { return time.Now().Add(time.Second) }
