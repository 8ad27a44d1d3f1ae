package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Destinations used by the chat server.
const (
	PublishDestination = "/pub/chat/message"
	roomTopicFormat    = "/topic/chat/room/%d"
)

const (
	DefaultReconnectBackoff = 5 * time.Second
	DefaultQueueSize        = 64
)

var (
	ErrNotConnected = errors.New("chat: not connected")
	ErrNoIdentity   = errors.New("chat: identity has no user id")
)

// RoomTopic is the destination a room's messages are broadcast on.
func RoomTopic(roomID int64) string { return fmt.Sprintf(roomTopicFormat, roomID) }

// Identity is the user a connection is scoped to.
type Identity struct {
	UserID   int64
	Nickname string
}

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Outcome reports what Publish did with a message.
type Outcome int

const (
	Dropped Outcome = iota
	Queued
	Sent
)

func (o Outcome) String() string {
	switch o {
	case Dropped:
		return "dropped"
	case Queued:
		return "queued"
	case Sent:
		return "sent"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

type Config struct {
	Dialer Dialer
	Tokens TokenSource
	Logger *slog.Logger

	// ReconnectBackoff is the minimum gap between connect attempts.
	// Default: 5s
	ReconnectBackoff time.Duration

	// QueueSize bounds how many publishes are held while connecting.
	// Default: 64
	QueueSize int

	// OnStateChange is called with the manager's lock held, so it must not
	// call back into the Manager.
	OnStateChange func(State)
}

type pending struct {
	destination string
	payload     []byte
}

// Manager owns the chat connection of the current identity.
type Manager struct {
	dialer        Dialer
	tokens        TokenSource
	logger        *slog.Logger
	backoff       time.Duration
	queueSize     int
	onStateChange func(State)

	// gen changes every time a connection is attached or torn down. Delivery
	// callbacks capture it and stay silent once it moves on.
	gen atomic.Uint64

	mu       sync.Mutex
	state    State
	identity Identity
	conn     Conn
	queue    []pending
	subs     map[*Subscription]struct{}
	stop     context.CancelFunc
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dialer == nil {
		return nil, errors.New("chat: dialer is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("chat: token source is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = DefaultReconnectBackoff
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	return &Manager{
		dialer:        cfg.Dialer,
		tokens:        cfg.Tokens,
		logger:        cfg.Logger.With("component", "chat"),
		backoff:       cfg.ReconnectBackoff,
		queueSize:     cfg.QueueSize,
		onStateChange: cfg.OnStateChange,
		subs:          make(map[*Subscription]struct{}),
	}, nil
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Identity returns the identity the manager is connecting for, if any.
func (m *Manager) Identity() (Identity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity, m.stop != nil
}

// Connect starts connecting for id. Calling it again for the same user is a
// no-op; calling it for a different user tears the current connection and
// all its subscriptions down first. The connection outlives ctx: only
// Disconnect or another identity ends it.
func (m *Manager) Connect(ctx context.Context, id Identity) error {
	if id.UserID == 0 {
		return ErrNoIdentity
	}

	m.mu.Lock()
	if m.stop != nil && m.identity.UserID == id.UserID {
		m.identity = id
		m.mu.Unlock()
		return nil
	}

	var old Conn
	if m.stop != nil {
		m.logger.Info("chat_identity_changed", "from", m.identity.UserID, "to", id.UserID)
		old = m.teardownLocked()
	}

	loopCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	m.stop = stop
	m.identity = id
	m.setStateLocked(Connecting)
	m.mu.Unlock()

	closeConn(old)

	limiter := rate.NewLimiter(rate.Every(m.backoff), 1)
	go m.run(loopCtx, limiter, m.logger.With("user_id", id.UserID))
	return nil
}

// Disconnect closes the connection and forgets the identity, the
// subscriptions and anything queued. Use it on logout.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	conn := m.teardownLocked()
	m.mu.Unlock()

	closeConn(conn)
}

// teardownLocked ends the current connection loop. The returned Conn must be
// closed once the lock is released.
func (m *Manager) teardownLocked() Conn {
	if m.stop != nil {
		m.stop()
		m.stop = nil
	}

	m.gen.Add(1)
	conn := m.conn
	m.conn = nil

	for sub := range m.subs {
		sub.active.Store(false)
	}
	clear(m.subs)

	if n := len(m.queue); n > 0 {
		m.logger.Warn("chat_queue_dropped", "count", n)
	}
	m.queue = nil

	m.identity = Identity{}
	m.setStateLocked(Disconnected)
	return conn
}

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.logger.Debug("chat_state", "from", m.state.String(), "to", s.String())
	m.state = s
	if m.onStateChange != nil {
		m.onStateChange(s)
	}
}

// run keeps one connection alive until ctx is cancelled.
func (m *Manager) run(ctx context.Context, limiter *rate.Limiter, logger *slog.Logger) {
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		if !m.transition(ctx, Connecting) {
			return
		}

		token, err := m.tokens.AccessToken(ctx)
		if err != nil {
			m.connectFailed(ctx, logger, fmt.Errorf("access token: %w", err))
			continue
		}

		conn, err := m.dialer.Dial(ctx, token)
		if err != nil {
			m.connectFailed(ctx, logger, err)
			continue
		}

		gen, ok := m.attach(ctx, conn)
		if !ok {
			closeConn(conn)
			return
		}
		logger.Info("chat_connected")

		select {
		case <-conn.Done():
			logger.Warn("chat_connection_lost", "error", conn.Err())
			m.detach(ctx, gen)
			closeConn(conn)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) transition(ctx context.Context, s State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ctx.Err() != nil {
		return false
	}
	m.setStateLocked(s)
	return true
}

func (m *Manager) connectFailed(ctx context.Context, logger *slog.Logger, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	logger.Warn("chat_connect_failed", "error", err, "retry_in", m.backoff)

	if n := len(m.queue); n > 0 {
		logger.Warn("chat_queue_dropped", "count", n)
	}
	m.queue = nil
	m.setStateLocked(Disconnected)
}

// attach makes conn current. Queued publishes are flushed in order before
// the state flips to Connected, then known subscriptions are replayed.
func (m *Manager) attach(ctx context.Context, conn Conn) (uint64, bool) {
	m.mu.Lock()
	if ctx.Err() != nil {
		m.mu.Unlock()
		return 0, false
	}
	gen := m.gen.Add(1)
	m.conn = conn
	subs := make([]*Subscription, 0, len(m.subs))
	for sub := range m.subs {
		subs = append(subs, sub)
	}
	m.mu.Unlock()

	for {
		m.mu.Lock()
		if m.gen.Load() != gen {
			m.mu.Unlock()
			return gen, true
		}
		batch := m.queue
		m.queue = nil
		if len(batch) == 0 {
			m.setStateLocked(Connected)
			m.mu.Unlock()
			break
		}
		m.mu.Unlock()

		for _, p := range batch {
			if err := conn.Send(p.destination, p.payload); err != nil {
				m.logger.Warn("chat_publish_dropped", "destination", p.destination, "error", err)
			}
		}
	}

	for _, sub := range subs {
		m.bind(sub, conn, gen)
	}
	return gen, true
}

// detach marks the connection of generation gen as gone. Subscriptions are
// kept so the next attach can replay them.
func (m *Manager) detach(ctx context.Context, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ctx.Err() != nil || m.gen.Load() != gen {
		return
	}
	m.gen.Add(1)
	m.conn = nil
	m.setStateLocked(Disconnected)
}

// Publish sends payload to destination. It never blocks on a missing
// connection and never retries.
func (m *Manager) Publish(destination string, payload []byte) Outcome {
	m.mu.Lock()
	switch m.state {
	case Connected:
		conn := m.conn
		m.mu.Unlock()

		if err := conn.Send(destination, payload); err != nil {
			m.logger.Warn("chat_publish_dropped", "destination", destination, "error", err)
			return Dropped
		}
		return Sent

	case Connecting:
		defer m.mu.Unlock()
		if len(m.queue) >= m.queueSize {
			m.logger.Warn("chat_publish_dropped", "destination", destination, "reason", "queue full")
			return Dropped
		}
		m.queue = append(m.queue, pending{destination: destination, payload: payload})
		return Queued

	default:
		m.mu.Unlock()
		m.logger.Warn("chat_publish_dropped", "destination", destination, "reason", "not connected")
		return Dropped
	}
}

// PublishMessage encodes msg and publishes it to the chat server.
func (m *Manager) PublishMessage(msg Message) Outcome {
	payload, err := Encode(msg)
	if err != nil {
		m.logger.Warn("chat_publish_dropped", "error", err)
		return Dropped
	}
	return m.Publish(PublishDestination, payload)
}

// Subscribe registers handler for destination. It fails with ErrNotConnected
// unless the connection is up. The subscription survives reconnects until
// Unsubscribe, Disconnect or an identity change.
func (m *Manager) Subscribe(destination string, handler func(payload []byte)) (*Subscription, error) {
	return m.subscribe(destination, func(payload []byte) (func(), error) {
		return func() { handler(payload) }, nil
	})
}

// SubscribeRoom subscribes to a room topic and decodes each message.
// Messages that fail to decode are logged and skipped.
func (m *Manager) SubscribeRoom(roomID int64, handler func(Message)) (*Subscription, error) {
	return m.subscribe(RoomTopic(roomID), func(payload []byte) (func(), error) {
		msg, err := Decode(payload)
		if err != nil {
			return nil, err
		}
		return func() { handler(msg) }, nil
	})
}

// subscribe registers prepare for destination. prepare turns a payload into
// the handler call; it runs before the final liveness check so a slow decode
// cannot outlive Unsubscribe or Disconnect.
func (m *Manager) subscribe(destination string, prepare func([]byte) (func(), error)) (*Subscription, error) {
	m.mu.Lock()
	if m.state != Connected {
		m.mu.Unlock()
		return nil, ErrNotConnected
	}
	sub := &Subscription{m: m, destination: destination, prepare: prepare}
	sub.active.Store(true)
	m.subs[sub] = struct{}{}
	conn, gen := m.conn, m.gen.Load()
	m.mu.Unlock()

	cancel, err := conn.Subscribe(destination, m.deliver(sub, gen))
	if err != nil {
		sub.active.Store(false)
		m.forget(sub)
		return nil, fmt.Errorf("subscribe %s: %w", destination, err)
	}
	sub.bind(gen, cancel)
	return sub, nil
}

func (m *Manager) bind(sub *Subscription, conn Conn, gen uint64) {
	if !sub.active.Load() {
		return
	}
	cancel, err := conn.Subscribe(sub.destination, m.deliver(sub, gen))
	if err != nil {
		m.logger.Warn("chat_resubscribe_failed", "destination", sub.destination, "error", err)
		return
	}
	sub.bind(gen, cancel)
}

func (m *Manager) deliver(sub *Subscription, gen uint64) func([]byte) {
	return func(payload []byte) {
		if !sub.live(gen) {
			return
		}
		call, err := sub.prepare(payload)
		if err != nil {
			m.logger.Warn("chat_message_skipped", "destination", sub.destination, "error", err)
			return
		}
		// Unsubscribe or a teardown may have landed while decoding.
		if !sub.live(gen) {
			return
		}
		call()
	}
}

func (m *Manager) forget(sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, sub)
}

// Subscription is a consumer's registration on one destination.
type Subscription struct {
	m           *Manager
	destination string
	prepare     func([]byte) (func(), error)
	active      atomic.Bool

	// mu guards the transport binding only. It is never held while the
	// handler runs.
	mu     sync.Mutex
	gen    uint64
	cancel func()
}

func (s *Subscription) Destination() string { return s.destination }

// Active reports whether the subscription still delivers.
func (s *Subscription) Active() bool { return s.active.Load() }

// Unsubscribe stops delivery. No handler call starts after it returns:
// messages not yet handed to the handler are discarded, including ones the
// transport already received or is still decoding. A call that already
// started runs to completion; Unsubscribe does not wait for it, so it is safe
// to call from the handler and more than once.
func (s *Subscription) Unsubscribe() {
	if !s.active.CompareAndSwap(true, false) {
		return
	}
	s.m.forget(s)

	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// live reports whether a delivery bound at gen may still reach the handler.
func (s *Subscription) live(gen uint64) bool {
	return s.active.Load() && s.m.gen.Load() == gen
}

func (s *Subscription) bind(gen uint64, cancel func()) {
	s.mu.Lock()
	if !s.active.Load() || gen < s.gen {
		s.mu.Unlock()
		cancel()
		return
	}
	s.gen, s.cancel = gen, cancel
	s.mu.Unlock()
}

func closeConn(c Conn) {
	if c != nil {
		_ = c.Close()
	}
}
