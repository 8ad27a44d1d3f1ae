package companion_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/companion/internal/companion/app"
	"github.com/aussiebroadwan/companion/pkg/chat"
	"github.com/aussiebroadwan/companion/pkg/chat/stompws"
	"github.com/aussiebroadwan/companion/pkg/httpx"
	"github.com/aussiebroadwan/companion/pkg/idx"
	"github.com/aussiebroadwan/companion/pkg/jwtx"
	"github.com/aussiebroadwan/companion/pkg/slogx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

/*
 * A fake Companion backend for end-to-end tests: the REST endpoints the chat
 * flow touches plus a STOMP broker behind the SockJS websocket transport.
 */

const (
	testUserID   = 7
	testNickname = "kim"
	testPassword = "Secret123!"
)

// backend is the fake Companion server.
type backend struct {
	t   *testing.T
	srv *httptest.Server

	mu      sync.Mutex
	conns   map[*brokerConn]struct{}
	history map[int64][]string

	// beforeHistory runs inside the history handler, before it answers.
	beforeHistory func(roomID int64)
}

type brokerConn struct {
	ws *websocket.Conn

	wmu  sync.Mutex
	mu   sync.Mutex
	subs map[string]string // id -> destination
}

func (c *brokerConn) send(frames ...string) error {
	data, err := stompws.Frame{Type: stompws.FrameArray, Messages: frames}.Encode()
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *brokerConn) subscribedTo(destination string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []string
	for id, dest := range c.subs {
		if dest == destination {
			ids = append(ids, id)
		}
	}
	return ids
}

func newBackend(t *testing.T) *backend {
	t.Helper()

	b := &backend{t: t, conns: map[*brokerConn]struct{}{}, history: map[int64][]string{}}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", b.handleLogin)
	mux.HandleFunc("GET /api/chats/chat/{roomId}/messages", b.handleHistory)
	mux.HandleFunc("GET /ws/chat/{server}/{session}/websocket", b.handleWebsocket)

	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil || r.FormValue("password") != testPassword {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	now := time.Now()
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        idx.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		UserID:   testUserID,
		Nickname: testNickname,
	}).SignedString([]byte("e2e-key"))
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"accessToken":  access,
		"refreshToken": "refresh-" + idx.New().String(),
	})
}

func (b *backend) handleHistory(w http.ResponseWriter, r *http.Request) {
	var roomID int64
	if _, err := fmt.Sscan(r.PathValue("roomId"), &roomID); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	hook := b.beforeHistory
	msgs := b.history[roomID]
	b.mu.Unlock()

	if hook != nil {
		hook(roomID)
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, "[%s]", strings.Join(msgs, ","))
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func (b *backend) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	c := &brokerConn{ws: ws, subs: map[string]string{}}
	b.mu.Lock()
	b.conns[c] = struct{}{}
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.conns, c)
		b.mu.Unlock()
	}()

	c.wmu.Lock()
	err = ws.WriteMessage(websocket.TextMessage, []byte("o"))
	c.wmu.Unlock()
	if err != nil {
		return
	}

	var pending strings.Builder
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msgs []string
		if json.Unmarshal(data, &msgs) != nil {
			return
		}
		for _, m := range msgs {
			pending.WriteString(m)
		}

		for {
			buf := pending.String()
			end := strings.IndexByte(buf, 0)
			if end < 0 {
				break
			}
			pending.Reset()
			pending.WriteString(buf[end+1:])

			if !b.handleFrame(c, buf[:end]) {
				return
			}
		}
	}
}

func (b *backend) handleFrame(c *brokerConn, raw string) bool {
	raw = strings.TrimLeft(raw, "\r\n")
	if raw == "" {
		return true
	}
	head, body, _ := strings.Cut(raw, "\n\n")
	lines := strings.Split(head, "\n")
	headers := map[string]string{}
	for _, l := range lines[1:] {
		if k, v, ok := strings.Cut(l, ":"); ok {
			if _, seen := headers[k]; !seen {
				headers[k] = v
			}
		}
	}

	switch lines[0] {
	case "CONNECT", "STOMP":
		if err := c.send("CONNECTED\nversion:1.2\nheart-beat:0,0\n\n\x00"); err != nil {
			return false
		}
	case "SUBSCRIBE":
		c.mu.Lock()
		c.subs[headers["id"]] = headers["destination"]
		c.mu.Unlock()
	case "UNSUBSCRIBE":
		c.mu.Lock()
		delete(c.subs, headers["id"])
		c.mu.Unlock()
	case "SEND":
		if headers["destination"] == chat.PublishDestination {
			var env struct {
				RoomID int64 `json:"roomId"`
			}
			if json.Unmarshal([]byte(body), &env) == nil {
				b.broadcast(env.RoomID, body)
			}
		}
	case "DISCONNECT":
		return false
	}

	if r := headers["receipt"]; r != "" {
		if err := c.send("RECEIPT\nreceipt-id:" + r + "\n\n\x00"); err != nil {
			return false
		}
	}
	return true
}

// broadcast delivers body to every subscriber of the room topic.
func (b *backend) broadcast(roomID int64, body string) {
	dest := chat.RoomTopic(roomID)

	b.mu.Lock()
	conns := make([]*brokerConn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	for _, c := range conns {
		for _, id := range c.subscribedTo(dest) {
			_ = c.send(fmt.Sprintf(
				"MESSAGE\ndestination:%s\nsubscription:%s\nmessage-id:%s\ncontent-type:application/json\n\n%s\x00",
				dest, id, idx.New(), body,
			))
		}
	}
}

// subscribers counts live subscriptions to the room topic.
func (b *backend) subscribers(roomID int64) int {
	dest := chat.RoomTopic(roomID)

	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for c := range b.conns {
		n += len(c.subscribedTo(dest))
	}
	return n
}

// kick closes every chat connection with a SockJS close frame. The
// connections stop counting as subscribers immediately.
func (b *backend) kick() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.conns {
		c.wmu.Lock()
		_ = c.ws.WriteMessage(websocket.TextMessage, []byte(`c[3000,"Go away!"]`))
		c.wmu.Unlock()
		_ = c.ws.Close()
		delete(b.conns, c)
	}
}

// waitFor polls cond. Server handlers use it where require can't run.
func waitFor(d time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func (b *backend) setHistory(roomID int64, msgs ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history[roomID] = msgs
}

func (b *backend) onHistory(fn func(roomID int64)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.beforeHistory = fn
}

// chatJSON renders a CHAT message the way the server stores it.
func chatJSON(roomID int64, sender, body string, at time.Time) string {
	b, _ := json.Marshal(map[string]any{
		"messageType": "CHAT",
		"roomId":      roomID,
		"senderId":    99,
		"senderName":  sender,
		"message":     body,
		"timestamp":   at.UTC().Format(time.RFC3339Nano),
	})
	return string(b)
}

// setupApp builds an Application against the backend and logs in.
func setupApp(t *testing.T, b *backend) *app.Application {
	t.Helper()

	a, err := app.NewWithLogger(app.Config{
		APIURL:           b.srv.URL,
		WSPath:           "/ws/chat",
		SockJS:           true,
		DataDir:          t.TempDir(),
		TokenDB:          "companion.db",
		ReconnectBackoff: 20 * time.Millisecond,
		HTTPTimeout:      5 * time.Second,
		RateLimit:        httpx.DefaultAPILimit,
	}, slogx.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	_, err = a.Login(t.Context(), "kim@example.com", testPassword, false)
	require.NoError(t, err)
	return a
}

// describe renders a message as "KIND sender body" for order assertions.
func describe(m chat.Message) string {
	switch msg := m.(type) {
	case chat.Chat:
		return fmt.Sprintf("CHAT %s %s", msg.SenderName, msg.Body)
	default:
		return fmt.Sprintf("%s %s", m.Kind(), m.Meta().SenderName)
	}
}

func describeAll(ms []chat.Message) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = describe(m)
	}
	return out
}
