package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/firechat/internal/auth"
	"gwi.com/firechat/internal/core"
	"gwi.com/firechat/internal/store"
)

type testEnv struct {
	server *httptest.Server
	tokens *auth.Manager
	db     *store.SQLiteStore
}

func newTestEnv(t *testing.T, devLogin bool) *testEnv {
	t.Helper()
	db, err := store.NewSQLiteStore(":memory:", 20*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens := auth.NewManager("test-secret", time.Hour)
	svc := core.NewChatService(db, nil, core.TimestampFormatter{Location: time.UTC})
	server := httptest.NewServer(NewRouter(NewAPIHandler(svc, tokens, devLogin)))
	t.Cleanup(server.Close)

	return &testEnv{server: server, tokens: tokens, db: db}
}

func (e *testEnv) token(t *testing.T, email string) string {
	t.Helper()
	token, err := e.tokens.GenerateJWT(email)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, user string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, user))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (e *testEnv) createConversation(t *testing.T, user, recipient string) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/conversations", user, CreateConversationRequest{Recipient: recipient})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[map[string]string](t, resp)["id"]
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, false)
	resp := env.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t, false)

	resp := env.do(t, http.MethodGet, "/api/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/api/conversations", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer garbage")
	bad, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, bad.StatusCode)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, false)
	resp := env.do(t, http.MethodPost, "/api/login", "", LoginRequest{Email: "a@x.com"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "dev login is off by default")

	env = newTestEnv(t, true)
	resp = env.do(t, http.MethodPost, "/api/login", "", LoginRequest{Email: "a@x.com", PhotoURL: "https://img/a.png"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := decode[map[string]string](t, resp)["token"]
	id, err := env.tokens.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", id.Email)

	resp = env.do(t, http.MethodPost, "/api/login", "", LoginRequest{Email: "broken"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestConversationFlow(t *testing.T) {
	env := newTestEnv(t, false)
	id := env.createConversation(t, "a@x.com", "b@x.com")

	resp := env.do(t, http.MethodPost, "/api/conversations", "a@x.com", CreateConversationRequest{Recipient: "b@x.com"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "duplicate")

	resp = env.do(t, http.MethodPost, "/api/conversations", "a@x.com", CreateConversationRequest{Recipient: "a@x.com"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "self")

	resp = env.do(t, http.MethodPost, "/api/conversations/"+id+"/messages", "a@x.com", PostMessageRequest{Text: " hello "})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/conversations/"+id+"/messages", "a@x.com", PostMessageRequest{Text: "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/conversations", "b@x.com", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]core.ConversationSummary](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, "a@x.com", list[0].Recipient.Email)
	assert.NotNil(t, list[0].Recipient.Profile, "sending a message created a's profile")

	resp = env.do(t, http.MethodGet, "/api/conversations/"+id, "b@x.com", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	details := decode[core.ConversationDetails](t, resp)
	require.Len(t, details.Messages, 1)
	assert.Equal(t, "hello", details.Messages[0].Text)
	assert.NotNil(t, details.Messages[0].SentAt)
}

func TestConversationAccess(t *testing.T) {
	env := newTestEnv(t, false)
	id := env.createConversation(t, "a@x.com", "b@x.com")

	resp := env.do(t, http.MethodGet, "/api/conversations/"+id, "mallory@x.com", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/conversations/missing", "a@x.com", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/conversations/"+id+"/messages", "mallory@x.com", PostMessageRequest{Text: "hi"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestPresence(t *testing.T) {
	env := newTestEnv(t, false)
	resp := env.do(t, http.MethodPost, "/api/presence", "a@x.com", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	users, err := env.db.QueryUsers(t.Context(), store.From(store.CollectionUsers).Where(store.FieldEmail, store.OpEqual, "a@x.com"))
	require.NoError(t, err)
	require.Len(t, users, 1)
}

func (e *testEnv) dial(t *testing.T, path, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + path + "?token=" + e.token(t, user)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

type frame struct {
	Type          string                     `json:"type"`
	Loading       bool                       `json:"loading"`
	Messages      []core.DisplayMessage      `json:"messages"`
	Recipient     core.Recipient             `json:"recipient"`
	Conversations []core.ConversationSummary `json:"conversations"`
}

func readFrame(t *testing.T, conn *websocket.Conn, want string) frame {
	t.Helper()
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == want {
			return f
		}
	}
}

func TestConversationLive(t *testing.T) {
	env := newTestEnv(t, false)
	id := env.createConversation(t, "a@x.com", "b@x.com")
	resp := env.do(t, http.MethodPost, "/api/conversations/"+id+"/messages", "b@x.com", PostMessageRequest{Text: "before"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	conn := env.dial(t, "/api/conversations/"+id+"/live", "a@x.com")

	// The snapshot arrives first, flagged as loading.
	first := readFrame(t, conn, "messages")
	assert.True(t, first.Loading)
	require.Len(t, first.Messages, 1)
	assert.Equal(t, "before", first.Messages[0].Text)

	loaded := readFrame(t, conn, "messages")
	assert.False(t, loaded.Loading)
	require.Len(t, loaded.Messages, 1)

	resp = env.do(t, http.MethodPost, "/api/conversations/"+id+"/messages", "a@x.com", PostMessageRequest{Text: "after"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var next frame
	for len(next.Messages) < 2 {
		next = readFrame(t, conn, "messages")
	}
	assert.Equal(t, "before", next.Messages[0].Text)
	assert.Equal(t, "after", next.Messages[1].Text)
}

func TestConversationLive_Forbidden(t *testing.T) {
	env := newTestEnv(t, false)
	id := env.createConversation(t, "a@x.com", "b@x.com")

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/api/conversations/" + id + "/live?token=" + env.token(t, "mallory@x.com")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestConversationsLive(t *testing.T) {
	env := newTestEnv(t, false)
	conn := env.dial(t, "/api/conversations/live", "a@x.com")

	first := readFrame(t, conn, "conversations")
	assert.Empty(t, first.Conversations)

	env.createConversation(t, "b@x.com", "a@x.com")
	next := readFrame(t, conn, "conversations")
	require.Len(t, next.Conversations, 1)
	assert.Equal(t, "b@x.com", next.Conversations[0].Recipient.Email)
}
