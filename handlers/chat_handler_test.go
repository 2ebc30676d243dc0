package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vitachat-backend/auth"
	"vitachat-backend/llm"
	"vitachat-backend/middleware"
	"vitachat-backend/models"
	"vitachat-backend/repository"
	"vitachat-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserStore struct {
	users map[uuid.UUID]*models.User
}

func (f *fakeUserStore) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeUserStore) UpdateProfile(_ context.Context, id uuid.UUID, age int, gender string) error {
	if user, ok := f.users[id]; ok {
		user.Age = &age
		user.Gender = &gender
	}
	return nil
}

type fakeConversationStore struct {
	nextID    int64
	created   []*models.Conversation
	finalized map[int64]string
	savedIDs  map[int64]bool
	ownerByID map[int64]uuid.UUID
	listed    []*models.Conversation
}

func newFakeConversationStore() *fakeConversationStore {
	return &fakeConversationStore{
		nextID:    1,
		finalized: map[int64]string{},
		savedIDs:  map[int64]bool{},
		ownerByID: map[int64]uuid.UUID{},
	}
}

func (f *fakeConversationStore) CreatePlaceholder(_ context.Context, conv *models.Conversation) error {
	conv.ID = f.nextID
	f.nextID++
	f.created = append(f.created, conv)
	f.ownerByID[conv.ID] = conv.UserID
	return nil
}

func (f *fakeConversationStore) Finalize(_ context.Context, id int64, fullReply string) error {
	f.finalized[id] = fullReply
	return nil
}

func (f *fakeConversationStore) GetOwned(_ context.Context, id int64, ownerID uuid.UUID) (*models.Conversation, error) {
	if owner, ok := f.ownerByID[id]; ok && owner == ownerID {
		for _, conv := range f.created {
			if conv.ID == id {
				return conv, nil
			}
		}
	}
	return nil, repository.ErrConversationNotFound
}

func (f *fakeConversationStore) ListByUser(_ context.Context, _ uuid.UUID, _ string) ([]*models.Conversation, error) {
	return f.listed, nil
}

func (f *fakeConversationStore) MarkSaved(_ context.Context, id int64, ownerID uuid.UUID) (bool, error) {
	if owner, ok := f.ownerByID[id]; !ok || owner != ownerID {
		return false, nil
	}
	f.savedIDs[id] = true
	return true, nil
}

type fakeStream struct {
	fragments []string
	err       error
}

func (f *fakeStream) Recv() (string, error) {
	if len(f.fragments) == 0 {
		if f.err != nil {
			return "", f.err
		}
		return "", io.EOF
	}
	fragment := f.fragments[0]
	f.fragments = f.fragments[1:]
	return fragment, nil
}

func (f *fakeStream) Close() error { return nil }

type fakeStreamer struct {
	stream *fakeStream
}

func (f *fakeStreamer) StreamCompletion(_ context.Context, _, _ string) (llm.CompletionStream, error) {
	return f.stream, nil
}

func (f *fakeStreamer) Model() string { return "gpt-3.5-turbo" }

type fakeSender struct {
	to      string
	subject string
	sendErr error
}

func (f *fakeSender) Send(to, subject, _ string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.to = to
	f.subject = subject
	return nil
}

type testEnv struct {
	router *gin.Engine
	users  *fakeUserStore
	convs  *fakeConversationStore
	sender *fakeSender
}

func setupEnv(t *testing.T, stream *fakeStream) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		users:  &fakeUserStore{users: map[uuid.UUID]*models.User{}},
		convs:  newFakeConversationStore(),
		sender: &fakeSender{},
	}

	chatService := service.NewChatService(
		service.WithUserStore(env.users),
		service.WithConversationStore(env.convs),
		service.WithCompletionStreamer(&fakeStreamer{stream: stream}),
		service.WithMailSender(env.sender),
	)
	handler := NewChatHandler(chatService)

	r := gin.New()
	api := r.Group("/api").Use(middleware.AuthMiddleware())
	{
		api.POST("/chat", handler.Chat)
		api.GET("/chat", handler.ChatPage)
		api.POST("/send_email", handler.SendEmail)
		api.POST("/save_note", handler.SaveNote)
		api.GET("/history", handler.History)
	}
	env.router = r
	return env
}

func (e *testEnv) addUser(t *testing.T, email string) (uuid.UUID, string) {
	t.Helper()
	id := uuid.New()
	e.users.users[id] = &models.User{ID: id, Email: email}
	token, err := auth.GenerateToken(id, email)
	require.NoError(t, err)
	return id, token
}

func (e *testEnv) do(method, path, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestChatHandler_Chat(t *testing.T) {
	t.Run("happy path - streams fragments then completion marker", func(t *testing.T) {
		env := setupEnv(t, &fakeStream{fragments: []string{"Vitamin", " B2 ", "helps"}})
		_, token := env.addUser(t, "a@example.com")

		w := env.do(http.MethodPost, "/api/chat", token, `{"message":"headache","age":30,"gender":"male"}`)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
		assert.Equal(t, "Vitamin B2 helps__CONV_ID__1", w.Body.String())
		assert.Equal(t, "Vitamin B2 helps", env.convs.finalized[1])
	})

	t.Run("sad path - missing fields is a 400 with no row", func(t *testing.T) {
		env := setupEnv(t, &fakeStream{})
		_, token := env.addUser(t, "a@example.com")

		w := env.do(http.MethodPost, "/api/chat", token, `{"message":"","age":30,"gender":"male"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "symptom, age, and gender")
		assert.Empty(t, env.convs.created)
	})

	t.Run("sad path - generation failure ends the stream without a marker", func(t *testing.T) {
		env := setupEnv(t, &fakeStream{fragments: []string{"Partial"}, err: errors.New("upstream dropped")})
		_, token := env.addUser(t, "a@example.com")

		w := env.do(http.MethodPost, "/api/chat", token, `{"message":"headache","age":30,"gender":"male"}`)

		require.Equal(t, http.StatusOK, w.Code)
		body := w.Body.String()
		assert.True(t, strings.HasPrefix(body, "Partial"))
		assert.Contains(t, body, "stream processing error")
		assert.NotContains(t, body, service.CompletionMarkerPrefix)
		assert.Empty(t, env.convs.finalized)
	})

	t.Run("sad path - missing token is a 401", func(t *testing.T) {
		env := setupEnv(t, &fakeStream{})

		w := env.do(http.MethodPost, "/api/chat", "", `{"message":"headache","age":30,"gender":"male"}`)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestChatHandler_ChatPage(t *testing.T) {
	env := setupEnv(t, &fakeStream{})
	id, token := env.addUser(t, "a@example.com")
	age := 30
	gender := "male"
	env.users.users[id].Age = &age
	env.users.users[id].Gender = &gender
	env.convs.listed = []*models.Conversation{{ID: 1, UserID: id, UserMessage: "headache"}}

	w := env.do(http.MethodGet, "/api/chat", token, "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_age":30`)
	assert.Contains(t, w.Body.String(), `"user_gender":"male"`)
	assert.Contains(t, w.Body.String(), `"headache"`)
}

func TestChatHandler_SaveNote(t *testing.T) {
	t.Run("happy path - owned conversation", func(t *testing.T) {
		env := setupEnv(t, &fakeStream{})
		id, token := env.addUser(t, "a@example.com")
		env.convs.created = append(env.convs.created, &models.Conversation{ID: 5, UserID: id})
		env.convs.ownerByID[5] = id

		w := env.do(http.MethodPost, "/api/save_note", token, `{"conv_id":5}`)

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"success":true}`, w.Body.String())
		assert.True(t, env.convs.savedIDs[5])
	})

	t.Run("sad path - another user's conversation is a 404", func(t *testing.T) {
		env := setupEnv(t, &fakeStream{})
		owner, _ := env.addUser(t, "owner@example.com")
		_, strangerToken := env.addUser(t, "stranger@example.com")
		env.convs.created = append(env.convs.created, &models.Conversation{ID: 5, UserID: owner})
		env.convs.ownerByID[5] = owner

		w := env.do(http.MethodPost, "/api/save_note", strangerToken, `{"conv_id":5}`)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.False(t, env.convs.savedIDs[5])
	})
}

func TestChatHandler_SendEmail(t *testing.T) {
	t.Run("happy path - owned conversation is mailed", func(t *testing.T) {
		env := setupEnv(t, &fakeStream{})
		id, token := env.addUser(t, "a@example.com")
		env.convs.created = append(env.convs.created, &models.Conversation{
			ID: 9, UserID: id, BotReply: "Vitamin B2 helps",
		})
		env.convs.ownerByID[9] = id

		w := env.do(http.MethodPost, "/api/send_email", token, `{"conv_id":9}`)

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"success":true}`, w.Body.String())
		assert.Equal(t, "a@example.com", env.sender.to)
	})

	t.Run("sad path - unknown conversation is a 404", func(t *testing.T) {
		env := setupEnv(t, &fakeStream{})
		_, token := env.addUser(t, "a@example.com")

		w := env.do(http.MethodPost, "/api/send_email", token, `{"conv_id":42}`)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), `"success":false`)
	})
}

func TestChatHandler_History(t *testing.T) {
	env := setupEnv(t, &fakeStream{})
	id, token := env.addUser(t, "a@example.com")
	env.convs.listed = []*models.Conversation{
		{ID: 2, UserID: id, BotReply: "Vitamin C"},
		{ID: 1, UserID: id, BotReply: "Vitamin B2"},
	}

	w := env.do(http.MethodGet, "/api/history?q=vitamin", token, "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"history"`)
	assert.Contains(t, w.Body.String(), "Vitamin C")
}
