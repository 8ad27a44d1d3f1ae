package chat_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/companion/pkg/chat"
	"github.com/aussiebroadwan/companion/pkg/slogx"
	"github.com/stretchr/testify/require"
)

type sent struct {
	destination string
	payload     string
}

type fakeSub struct {
	deliver   func([]byte)
	cancelled bool
}

// fakeConn is an in-memory transport connection. push delivers
// synchronously on the caller's goroutine.
type fakeConn struct {
	mu     sync.Mutex
	subs   map[string][]*fakeSub
	sent   []sent
	closed bool
	err    error
	done   chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{subs: map[string][]*fakeSub{}, done: make(chan struct{})}
}

func (c *fakeConn) Subscribe(destination string, deliver func([]byte)) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.New("connection closed")
	}
	s := &fakeSub{deliver: deliver}
	c.subs[destination] = append(c.subs[destination], s)
	return func() {
		c.mu.Lock()
		s.cancelled = true
		c.mu.Unlock()
	}, nil
}

func (c *fakeConn) Send(destination string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.New("connection closed")
	}
	c.sent = append(c.sent, sent{destination: destination, payload: string(payload)})
	return nil
}

func (c *fakeConn) Done() <-chan struct{} { return c.done }

func (c *fakeConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *fakeConn) Close() error {
	c.drop(nil)
	return nil
}

// drop simulates the socket going away.
func (c *fakeConn) drop(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.err = err
	close(c.done)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// push delivers to live transport subscriptions of destination.
func (c *fakeConn) push(destination string, payload []byte) {
	c.deliver(destination, payload, false)
}

// pushInFlight also delivers to cancelled subscriptions, as a transport does
// for messages it read before the cancel landed.
func (c *fakeConn) pushInFlight(destination string, payload []byte) {
	c.deliver(destination, payload, true)
}

func (c *fakeConn) deliver(destination string, payload []byte, includeCancelled bool) {
	c.mu.Lock()
	var targets []func([]byte)
	for _, s := range c.subs[destination] {
		if includeCancelled || !s.cancelled {
			targets = append(targets, s.deliver)
		}
	}
	c.mu.Unlock()

	for _, deliver := range targets {
		deliver(payload)
	}
}

func (c *fakeConn) sentMessages() []sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sent(nil), c.sent...)
}

func (c *fakeConn) liveSubs(destination string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, s := range c.subs[destination] {
		if !s.cancelled {
			n++
		}
	}
	return n
}

type fakeDialer struct {
	mu     sync.Mutex
	conns  []*fakeConn
	tokens []string
	fail   int

	// hold, when set, blocks Dial until closed.
	hold chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context, token string) (chat.Conn, error) {
	d.mu.Lock()
	d.tokens = append(d.tokens, token)
	hold := d.hold
	d.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fail > 0 {
		d.fail--
		return nil, errors.New("connection refused")
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tokens)
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) connCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

type stateLog struct {
	mu     sync.Mutex
	states []chat.State
}

func (l *stateLog) record(s chat.State) {
	l.mu.Lock()
	l.states = append(l.states, s)
	l.mu.Unlock()
}

func (l *stateLog) snapshot() []chat.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]chat.State(nil), l.states...)
}

func newManager(t *testing.T, d *fakeDialer, mutate ...func(*chat.Config)) (*chat.Manager, *stateLog) {
	t.Helper()

	log := &stateLog{}
	cfg := chat.Config{
		Dialer:           d,
		Tokens:           chat.TokenFunc(func(context.Context) (string, error) { return "access-token", nil }),
		Logger:           slogx.Discard(),
		ReconnectBackoff: 10 * time.Millisecond,
		OnStateChange:    log.record,
	}
	for _, fn := range mutate {
		fn(&cfg)
	}

	m, err := chat.NewManager(cfg)
	require.NoError(t, err)
	t.Cleanup(m.Disconnect)
	return m, log
}

var kim = chat.Identity{UserID: 1, Nickname: "kim"}

func connected(t *testing.T, m *chat.Manager) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State() == chat.Connected }, 2*time.Second, time.Millisecond)
}
