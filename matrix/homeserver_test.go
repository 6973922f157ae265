package matrix

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/alexjbarnes/mxlink/internal/logging"
	"github.com/stretchr/testify/require"
)

const (
	testUser     = "@bot:example.org"
	testDevice   = "DEVICEONE"
	testToken    = "syt_test_token"
	testPassword = "hunter2"
)

type typingCall struct {
	RoomID string
	Typing bool
}

// fakeHomeserver implements the handful of client-server endpoints the
// adapter calls.
type fakeHomeserver struct {
	srv *httptest.Server

	mu         sync.Mutex
	revoked    bool
	global     map[string]json.RawMessage
	room       map[string]json.RawMessage
	syncBody   string
	syncQuery  []map[string]string
	typing     []typingCall
	joins      []string
	leaves     []string
	members    map[string][]string
	loginLabel string
}

func newFakeHomeserver(t *testing.T) *fakeHomeserver {
	t.Helper()

	f := &fakeHomeserver{
		global:  make(map[string]json.RawMessage),
		room:    make(map[string]json.RawMessage),
		members: make(map[string][]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /_matrix/client/v3/login", f.handleLogin)
	mux.HandleFunc("GET /_matrix/client/v3/account/whoami", f.authed(f.handleWhoami))
	mux.HandleFunc("GET /_matrix/client/v3/sync", f.authed(f.handleSync))
	mux.HandleFunc("GET /_matrix/client/v3/user/{user}/account_data/{type}", f.authed(f.handleGetGlobal))
	mux.HandleFunc("PUT /_matrix/client/v3/user/{user}/account_data/{type}", f.authed(f.handlePutGlobal))
	mux.HandleFunc("GET /_matrix/client/v3/user/{user}/rooms/{room}/account_data/{type}", f.authed(f.handleGetRoom))
	mux.HandleFunc("PUT /_matrix/client/v3/user/{user}/rooms/{room}/account_data/{type}", f.authed(f.handlePutRoom))
	mux.HandleFunc("PUT /_matrix/client/v3/rooms/{room}/typing/{user}", f.authed(f.handleTyping))
	mux.HandleFunc("POST /_matrix/client/v3/rooms/{room}/join", f.authed(f.handleJoin))
	mux.HandleFunc("POST /_matrix/client/v3/join/{room}", f.authed(f.handleJoin))
	mux.HandleFunc("POST /_matrix/client/v3/rooms/{room}/leave", f.authed(f.handleLeave))
	mux.HandleFunc("GET /_matrix/client/v3/rooms/{room}/joined_members", f.authed(f.handleMembers))

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	return f
}

func (f *fakeHomeserver) revoke() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = true
}

func (f *fakeHomeserver) setSyncBody(body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncBody = body
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"errcode": code, "error": msg})
}

func (f *fakeHomeserver) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		revoked := f.revoked
		f.mu.Unlock()

		if revoked || r.Header.Get("Authorization") != "Bearer "+testToken {
			writeErr(w, http.StatusUnauthorized, "M_UNKNOWN_TOKEN", "Invalid access token passed.")
			return
		}

		next(w, r)
	}
}

func (f *fakeHomeserver) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier struct {
			User string `json:"user"`
		} `json:"identifier"`
		Password string `json:"password"`
		Label    string `json:"initial_device_display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "M_BAD_JSON", err.Error())
		return
	}

	if req.Password != testPassword {
		writeErr(w, http.StatusForbidden, "M_FORBIDDEN", "Invalid username or password")
		return
	}

	f.mu.Lock()
	f.loginLabel = req.Label
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{
		"user_id":      testUser,
		"device_id":    testDevice,
		"access_token": testToken,
	})
}

func (f *fakeHomeserver) handleWhoami(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"user_id": testUser, "device_id": testDevice})
}

func (f *fakeHomeserver) handleSync(w http.ResponseWriter, r *http.Request) {
	q := map[string]string{}
	for k := range r.URL.Query() {
		q[k] = r.URL.Query().Get(k)
	}

	f.mu.Lock()
	f.syncQuery = append(f.syncQuery, q)
	body := f.syncBody
	f.mu.Unlock()

	if body == "" {
		body = `{"next_batch":"s1"}`
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

func (f *fakeHomeserver) handleGetGlobal(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	raw, ok := f.global[r.PathValue("type")]
	f.mu.Unlock()

	if !ok {
		writeErr(w, http.StatusNotFound, "M_NOT_FOUND", "Account data not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(raw)
}

func (f *fakeHomeserver) handlePutGlobal(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.global[r.PathValue("type")] = body
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{})
}

func roomKey(roomID, eventType string) string {
	return roomID + "|" + eventType
}

func (f *fakeHomeserver) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	raw, ok := f.room[roomKey(r.PathValue("room"), r.PathValue("type"))]
	f.mu.Unlock()

	if !ok {
		writeErr(w, http.StatusNotFound, "M_NOT_FOUND", "Room account data not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(raw)
}

func (f *fakeHomeserver) handlePutRoom(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.room[roomKey(r.PathValue("room"), r.PathValue("type"))] = body
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{})
}

func (f *fakeHomeserver) handleTyping(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Typing bool `json:"typing"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	f.typing = append(f.typing, typingCall{RoomID: r.PathValue("room"), Typing: req.Typing})
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{})
}

func (f *fakeHomeserver) handleJoin(w http.ResponseWriter, r *http.Request) {
	room := r.PathValue("room")
	if strings.HasPrefix(room, "!forbidden") {
		writeErr(w, http.StatusForbidden, "M_FORBIDDEN", "You are not invited to this room.")
		return
	}

	f.mu.Lock()
	f.joins = append(f.joins, room)
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"room_id": room})
}

func (f *fakeHomeserver) handleLeave(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.leaves = append(f.leaves, r.PathValue("room"))
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{})
}

func (f *fakeHomeserver) handleMembers(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	users := f.members[r.PathValue("room")]
	f.mu.Unlock()

	joined := make(map[string]map[string]string, len(users))
	for _, u := range users {
		joined[u] = map[string]string{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"joined": joined})
}

// newTestClient builds a client against f with a fresh store directory.
func newTestClient(t *testing.T, f *fakeHomeserver) *Client {
	t.Helper()

	c, err := Build(t.Context(), BuildConfig{
		Homeserver:      f.srv.URL,
		StoreDir:        t.TempDir(),
		StorePassphrase: "store-passphrase",
		HTTPClient:      f.srv.Client(),
		Logger:          logging.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return c
}

// newLoggedInClient builds a client and restores the canned session.
func newLoggedInClient(t *testing.T, f *fakeHomeserver) *Client {
	t.Helper()

	c := newTestClient(t, f)
	require.NoError(t, c.Restore(t.Context(), Session{
		UserID:      testUser,
		DeviceID:    testDevice,
		AccessToken: testToken,
	}))

	return c
}

func (f *fakeHomeserver) globalData(eventType string) json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.global[eventType]
}

func (f *fakeHomeserver) snapshot() (joins, leaves []string, typing []typingCall, queries []map[string]string, label string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.joins...),
		append([]string(nil), f.leaves...),
		append([]typingCall(nil), f.typing...),
		append([]map[string]string(nil), f.syncQuery...),
		f.loginLabel
}
