package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/pliu/simquery/internal/chat"
	"github.com/pliu/simquery/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scoreHandler(score string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"similarity_score":"` + score + `"}`))
	}
}

func TestMessageScenario(t *testing.T) {
	srv := newTestServer(t, serverOptions{requireVerified: true, aiHandler: scoreHandler("0.42")})
	pair := srv.signup("u1@example.com")

	rr := srv.do("POST", "/chats", ChatRequest{Title: "trip planning"}, pair.AccessToken)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	c := decode[models.Chat](t, rr)
	assert.Equal(t, "trip planning", c.Title)

	rr = srv.do("POST", "/messages", CreateMessageRequest{ChatExternalID: c.ExternalID, Content: "hello"}, pair.AccessToken)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	res := decode[chat.MessageResult](t, rr)
	assert.Equal(t, "hello", res.UserMessage.Content)
	assert.Equal(t, models.SenderUser, res.UserMessage.Sender)
	require.NotNil(t, res.AIMessage)
	assert.Equal(t, "0.42", res.AIMessage.Content)
	assert.Equal(t, models.SenderAIModel, res.AIMessage.Sender)

	rr = srv.do("GET", "/chats/"+c.ExternalID+"/messages", nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, rr.Code)
	msgs := decode[[]models.Message](t, rr)
	require.Len(t, msgs, 2)
	assert.Equal(t, "0.42", msgs[0].Content)
	assert.Equal(t, "hello", msgs[1].Content)
}

func TestMessageScenarioAITimeout(t *testing.T) {
	slow := func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}
	srv := newTestServer(t, serverOptions{requireVerified: true, aiHandler: slow, aiTimeout: 50 * time.Millisecond})
	pair := srv.signup("u1@example.com")

	rr := srv.do("POST", "/chats", ChatRequest{Title: "trip planning"}, pair.AccessToken)
	require.Equal(t, http.StatusCreated, rr.Code)
	c := decode[models.Chat](t, rr)

	rr = srv.do("POST", "/messages", CreateMessageRequest{ChatExternalID: c.ExternalID, Content: "hello"}, pair.AccessToken)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	body := decode[map[string]json.RawMessage](t, rr)
	assert.Contains(t, body, "userMessage")
	assert.NotContains(t, body, "aiMessage")

	rr = srv.do("GET", "/chats/"+c.ExternalID+"/messages", nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, rr.Code)
	msgs := decode[[]models.Message](t, rr)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Content)
}

func TestMessageWithAIDown(t *testing.T) {
	down := func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}
	srv := newTestServer(t, serverOptions{aiHandler: down})
	pair := srv.signup("u1@example.com")

	rr := srv.do("POST", "/chats", ChatRequest{Title: "c"}, pair.AccessToken)
	c := decode[models.Chat](t, rr)

	rr = srv.do("POST", "/messages", CreateMessageRequest{ChatExternalID: c.ExternalID, Content: "hello"}, pair.AccessToken)
	require.Equal(t, http.StatusCreated, rr.Code)
	res := decode[chat.MessageResult](t, rr)
	assert.Nil(t, res.AIMessage)
}

func TestChatCRUD(t *testing.T) {
	srv := newTestServer(t, serverOptions{aiHandler: scoreHandler("0.9")})
	pair := srv.signup("u1@example.com")
	token := pair.AccessToken

	rr := srv.do("POST", "/chats", ChatRequest{Title: ""}, token)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = srv.do("POST", "/chats", ChatRequest{Title: "first"}, token)
	require.Equal(t, http.StatusCreated, rr.Code)
	c := decode[models.Chat](t, rr)

	rr = srv.do("GET", "/chats", nil, token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]models.Chat](t, rr), 1)

	rr = srv.do("PUT", "/chats/"+c.ExternalID, ChatRequest{Title: "renamed"}, token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "renamed", decode[models.Chat](t, rr).Title)

	rr = srv.do("GET", "/chats/"+c.ExternalID, nil, token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "renamed", decode[models.Chat](t, rr).Title)

	rr = srv.do("POST", "/messages", CreateMessageRequest{ChatExternalID: c.ExternalID, Content: "hi"}, token)
	require.Equal(t, http.StatusCreated, rr.Code)
	res := decode[chat.MessageResult](t, rr)

	rr = srv.do("GET", "/messages/"+res.UserMessage.ExternalID, nil, token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, c.ExternalID, decode[models.Message](t, rr).ChatExternalID)

	rr = srv.do("DELETE", "/messages/"+res.UserMessage.ExternalID, nil, token)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = srv.do("GET", "/messages/"+res.UserMessage.ExternalID, nil, token)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "message not found", decode[errorBody](t, rr).Error)

	rr = srv.do("DELETE", "/chats/"+c.ExternalID, nil, token)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = srv.do("GET", "/chats/"+c.ExternalID, nil, token)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = srv.do("GET", "/messages/"+res.AIMessage.ExternalID, nil, token)
	assert.Equal(t, http.StatusNotFound, rr.Code, "chat deletion cascades to messages")
}

func TestCrossOwnerAccessIsNotFound(t *testing.T) {
	srv := newTestServer(t, serverOptions{aiHandler: scoreHandler("0.5")})
	alice := srv.signup("alice@example.com").AccessToken
	bob := srv.signup("bob@example.com").AccessToken

	rr := srv.do("POST", "/chats", ChatRequest{Title: "alice only"}, alice)
	require.Equal(t, http.StatusCreated, rr.Code)
	c := decode[models.Chat](t, rr)

	rr = srv.do("POST", "/messages", CreateMessageRequest{ChatExternalID: c.ExternalID, Content: "secret"}, alice)
	require.Equal(t, http.StatusCreated, rr.Code)
	msg := decode[chat.MessageResult](t, rr).UserMessage

	requests := []struct {
		method, path string
		body         any
	}{
		{"GET", "/chats/" + c.ExternalID, nil},
		{"PUT", "/chats/" + c.ExternalID, ChatRequest{Title: "stolen"}},
		{"DELETE", "/chats/" + c.ExternalID, nil},
		{"GET", "/chats/" + c.ExternalID + "/messages", nil},
		{"POST", "/messages", CreateMessageRequest{ChatExternalID: c.ExternalID, Content: "hi"}},
		{"GET", "/messages/" + msg.ExternalID, nil},
		{"DELETE", "/messages/" + msg.ExternalID, nil},
		{"GET", "/chats/not-a-uuid", nil},
	}
	for _, req := range requests {
		t.Run(req.method+" "+req.path, func(t *testing.T) {
			rr := srv.do(req.method, req.path, req.body, bob)
			assert.Equal(t, http.StatusNotFound, rr.Code)
		})
	}

	rr = srv.do("GET", "/chats", nil, bob)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[[]models.Chat](t, rr))

	rr = srv.do("GET", "/chats/"+c.ExternalID+"/messages", nil, alice)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]models.Message](t, rr), 2, "alice's chat is untouched")
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t, serverOptions{})

	for _, path := range []string{"/chats", "/users/me", "/messages/x", "/ws"} {
		rr := srv.do("GET", path, nil, "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}

	rr := srv.do("GET", "/chats", nil, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
