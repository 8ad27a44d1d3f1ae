package companionsdk_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/companion/pkg/companionsdk"
	"github.com/aussiebroadwan/companion/pkg/idx"
	"github.com/aussiebroadwan/companion/pkg/jwtx"
	"github.com/aussiebroadwan/companion/pkg/slogx"
	"github.com/aussiebroadwan/companion/pkg/tokenstore"
	"github.com/aussiebroadwan/companion/pkg/tokenstore/drivers/memory"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testUserID = 42

// mintToken signs a throwaway access token. Every call yields a distinct
// token thanks to the jti.
func mintToken(t *testing.T, userID int64, ttl time.Duration) string {
	t.Helper()

	now := time.Now()
	claims := jwtx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        idx.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:   userID,
		Nickname: "kim",
		Email:    "kim@example.com",
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return tok
}

// apiCall is one authenticated request as the server saw it.
type apiCall struct {
	method string
	uri    string
	body   string
}

// fakeAPI is a minimal Companion API. Access tokens it minted are accepted,
// everything else gets a 401.
type fakeAPI struct {
	t   *testing.T
	srv *httptest.Server

	mu           sync.Mutex
	valid        map[string]bool
	refreshFail  bool
	headerTokens bool
	bodies       [][]byte
	calls        []apiCall

	// onUnauthorized runs just before a 401 is written.
	onUnauthorized func()

	requests     atomic.Int32
	refreshCalls atomic.Int32

	// When gate > 0, 401 responses are held until that many arrived.
	gate    int
	arrived int
	release chan struct{}
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()

	f := &fakeAPI{t: t, valid: map[string]bool{}, release: make(chan struct{})}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", f.handleLogin)
	mux.HandleFunc("POST /api/auth/refresh", f.handleRefresh)
	mux.HandleFunc("POST /api/users", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, companionsdk.User{ID: 7, Email: "new@example.com", Nickname: "new"})
	})
	mux.HandleFunc("GET /api/regions", f.authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []companionsdk.Region{{ID: 1, Name: "Seoul"}})
	}))
	mux.HandleFunc("POST /api/posts", f.authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, companionsdk.Post{ID: 99, Title: "Jeju"})
	}))
	mux.HandleFunc("GET /api/posts/{id}", f.authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"code": "POST_NOT_FOUND", "message": "no such post"})
	}))
	mux.HandleFunc("GET /api/chats/chat/{roomId}/messages", f.authed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[
			{"messageType":"JOIN","roomId":3,"senderId":1,"senderName":"lee"},
			{"messageType":"CHAT","roomId":3,"senderId":1,"senderName":"lee","message":"hello"}
		]`)
	}))
	mux.HandleFunc("POST /api/chats/chat/message/image", f.authed(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		file, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		writeJSON(w, http.StatusOK, map[string]string{
			"imageUrl": "https://cdn.example/" + r.FormValue("roomId") + "/" + hdr.Filename,
		})
	}))

	f.resourceRoutes(mux)

	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

// issue mints a pair the server will accept.
func (f *fakeAPI) issue(ttl time.Duration) (access, refresh string) {
	access = mintToken(f.t, testUserID, ttl)
	refresh = "refresh-" + idx.New().String()

	f.mu.Lock()
	f.valid[access] = true
	f.mu.Unlock()
	return access, refresh
}

// revoke makes the server reject a previously valid access token.
func (f *fakeAPI) revoke(access string) {
	f.mu.Lock()
	delete(f.valid, access)
	f.mu.Unlock()
}

func (f *fakeAPI) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.bodies = append(f.bodies, body)
		f.calls = append(f.calls, apiCall{method: r.Method, uri: r.URL.RequestURI(), body: string(body)})
		ok := f.valid[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
		f.mu.Unlock()

		if ok {
			r.Body = io.NopCloser(strings.NewReader(string(body)))
			next(w, r)
			return
		}

		f.mu.Lock()
		if f.gate > 0 {
			f.arrived++
			if f.arrived == f.gate {
				close(f.release)
			}
		}
		gated := f.gate > 0
		hook := f.onUnauthorized
		f.mu.Unlock()

		if gated {
			select {
			case <-f.release:
			case <-time.After(5 * time.Second):
			}
		}
		if hook != nil {
			hook()
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"code": "TOKEN_EXPIRED", "message": "expired"})
	}
}

// configure mutates server state under its lock.
func (f *fakeAPI) configure(fn func(f *fakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeAPI) recordedBodies() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.bodies...)
}

func (f *fakeAPI) recordedCalls() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]apiCall(nil), f.calls...)
}

func (f *fakeAPI) lastCall() apiCall {
	f.t.Helper()
	calls := f.recordedCalls()
	require.NotEmpty(f.t, calls)
	return calls[len(calls)-1]
}

// resourceRoutes serves the plain REST resources. Bodies are canned; tests
// check what was sent through recordedCalls.
func (f *fakeAPI) resourceRoutes(mux *http.ServeMux) {
	reply := func(status int, body func(r *http.Request) any) http.HandlerFunc {
		return f.authed(func(w http.ResponseWriter, r *http.Request) {
			if body == nil {
				w.WriteHeader(status)
				return
			}
			writeJSON(w, status, body(r))
		})
	}
	id := func(r *http.Request) int64 {
		n, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
		return n
	}

	mux.HandleFunc("GET /api/posts", reply(http.StatusOK, func(r *http.Request) any {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		size, _ := strconv.Atoi(r.URL.Query().Get("size"))
		return companionsdk.Page[companionsdk.Post]{
			Content:       []companionsdk.Post{{ID: int64(page*size + 1), Title: "Busan"}},
			Number:        page,
			Size:          size,
			TotalElements: 3 * size,
			TotalPages:    3,
			Last:          page >= 2,
		}
	}))
	mux.HandleFunc("PUT /api/posts/{id}", reply(http.StatusOK, func(r *http.Request) any {
		return companionsdk.Post{ID: id(r), Title: "Jeju again"}
	}))
	mux.HandleFunc("DELETE /api/posts/{id}", reply(http.StatusNoContent, nil))

	mux.HandleFunc("POST /api/applications", reply(http.StatusCreated, func(r *http.Request) any {
		return companionsdk.Application{ID: 11, PostID: 5, ApplicantID: testUserID, Status: companionsdk.ApplicationPending}
	}))
	mux.HandleFunc("GET /api/applications/post/{id}", reply(http.StatusOK, func(r *http.Request) any {
		return []companionsdk.Application{{ID: 11, PostID: id(r), Status: companionsdk.ApplicationPending}}
	}))
	mux.HandleFunc("PUT /api/applications/{id}/status", reply(http.StatusOK, func(r *http.Request) any {
		return companionsdk.Application{ID: id(r), Status: companionsdk.ApplicationAccepted}
	}))
	mux.HandleFunc("DELETE /api/applications/{id}", reply(http.StatusNoContent, nil))

	mux.HandleFunc("POST /api/reviews", reply(http.StatusCreated, func(r *http.Request) any {
		return companionsdk.Review{ID: 21, ReviewerID: testUserID, RevieweeID: 8, Rating: 5}
	}))
	mux.HandleFunc("GET /api/reviews/user/{id}", reply(http.StatusOK, func(r *http.Request) any {
		return []companionsdk.Review{{ID: 21, RevieweeID: id(r), Rating: 4}}
	}))

	mux.HandleFunc("GET /api/planners/user/{id}", reply(http.StatusOK, func(r *http.Request) any {
		return []companionsdk.Planner{{ID: 31, UserID: id(r), Title: "Gangneung"}}
	}))
	mux.HandleFunc("GET /api/planners/{id}", reply(http.StatusOK, func(r *http.Request) any {
		return companionsdk.Planner{ID: id(r), Title: "Gangneung"}
	}))
	mux.HandleFunc("POST /api/planners", reply(http.StatusCreated, func(r *http.Request) any {
		return companionsdk.Planner{ID: 32, UserID: testUserID, Title: "Gyeongju"}
	}))
	mux.HandleFunc("PUT /api/planners/{id}", reply(http.StatusOK, func(r *http.Request) any {
		return companionsdk.Planner{ID: id(r), Title: "Gyeongju"}
	}))
	mux.HandleFunc("DELETE /api/planners/{id}", reply(http.StatusNoContent, nil))

	mux.HandleFunc("POST /api/follow/{id}", reply(http.StatusOK, nil))
	mux.HandleFunc("DELETE /api/follow/{id}", reply(http.StatusNoContent, nil))
	mux.HandleFunc("GET /api/follow/{id}/followers", reply(http.StatusOK, func(r *http.Request) any {
		return []companionsdk.FollowUser{{UserID: 8, Nickname: "park"}}
	}))
	mux.HandleFunc("GET /api/follow/{id}/followings", reply(http.StatusOK, func(r *http.Request) any {
		return []companionsdk.FollowUser{{UserID: 9, Nickname: "choi"}, {UserID: 10, Nickname: "jung"}}
	}))

	mux.HandleFunc("GET /api/notifications", reply(http.StatusOK, func(r *http.Request) any {
		return []companionsdk.Notification{{ID: 41, Type: "APPLICATION", Message: "new applicant"}}
	}))
	mux.HandleFunc("PATCH /api/notifications/{id}/read", reply(http.StatusNoContent, nil))
	mux.HandleFunc("POST /api/notifications/token", reply(http.StatusOK, nil))

	mux.HandleFunc("GET /api/users/{id}", reply(http.StatusOK, func(r *http.Request) any {
		return companionsdk.User{ID: id(r), Email: "kim@example.com", Nickname: "kim"}
	}))
	mux.HandleFunc("PUT /api/users/{id}", reply(http.StatusOK, func(r *http.Request) any {
		return companionsdk.User{ID: id(r), Nickname: "kimchi"}
	}))
	mux.HandleFunc("DELETE /api/users/{id}", reply(http.StatusNoContent, nil))
}

func (f *fakeAPI) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.FormValue("email") != "kim@example.com" || r.FormValue("password") != "pw" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"code": "BAD_CREDENTIALS", "message": "wrong email or password"})
		return
	}

	access, refresh := f.issue(time.Hour)
	f.mu.Lock()
	viaHeaders := f.headerTokens
	f.mu.Unlock()
	if viaHeaders {
		w.Header().Set("Authorization", "Bearer "+access)
		w.Header().Set("Authorization-Refresh", "Bearer "+refresh)
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, companionsdk.TokenPair{AccessToken: access, RefreshToken: refresh})
}

func (f *fakeAPI) handleRefresh(w http.ResponseWriter, r *http.Request) {
	f.refreshCalls.Add(1)

	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		http.Error(w, "missing refresh token", http.StatusBadRequest)
		return
	}

	// Keep the refresh in flight long enough for callers to pile up.
	time.Sleep(20 * time.Millisecond)

	f.mu.Lock()
	fail := f.refreshFail
	f.mu.Unlock()
	if fail {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"code": "REFRESH_EXPIRED", "message": "log in again"})
		return
	}

	access, refresh := f.issue(time.Hour)
	writeJSON(w, http.StatusOK, companionsdk.TokenPair{AccessToken: access, RefreshToken: refresh})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type recorder struct {
	logins   atomic.Int32
	logouts  atomic.Int32
	expiries atomic.Int32
	identity atomic.Value
}

func (r *recorder) hooks() companionsdk.Hooks {
	return companionsdk.Hooks{
		OnLogin: func(id companionsdk.Identity) {
			r.logins.Add(1)
			r.identity.Store(id)
		},
		OnLogout:         func() { r.logouts.Add(1) },
		OnSessionExpired: func(error) { r.expiries.Add(1) },
	}
}

func newClient(t *testing.T, api *fakeAPI, store tokenstore.Store, rec *recorder) *companionsdk.SDKClient {
	t.Helper()

	if store == nil {
		store = tokenstore.New(memory.New(), memory.New())
	}
	if rec == nil {
		rec = &recorder{}
	}

	client, err := companionsdk.NewSDKClient(companionsdk.Config{
		BaseURL: api.srv.URL,
		Store:   store,
		Hooks:   rec.hooks(),
		Logger:  slogx.Discard(),
	})
	require.NoError(t, err)
	return client
}

// seed stores a server-accepted pair and resumes a session over it.
func seed(t *testing.T, api *fakeAPI, client *companionsdk.SDKClient, ttl time.Duration) (*companionsdk.Session, string) {
	t.Helper()

	access, refresh := api.issue(ttl)
	require.NoError(t, client.Store().Set(context.Background(), access, refresh, true))

	session, err := client.Resume(context.Background())
	require.NoError(t, err)
	return session, access
}
