package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"vitachat-backend/llm"
	"vitachat-backend/mailer"
	"vitachat-backend/models"
	"vitachat-backend/repository"

	"github.com/google/uuid"
)

var (
	ErrInvalidRequest       = errors.New("symptom, age, and gender are all required")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrUserNotFound         = errors.New("user not found")
)

// CompletionMarkerPrefix is the reserved prefix of the out-of-band marker
// appended to a successful stream. The client parses the conversation ID out
// of it for follow-up save/email actions, so it must never appear in
// generated content.
const CompletionMarkerPrefix = "__CONV_ID__"

// CompletionMarker formats the completion marker for a conversation.
func CompletionMarker(conversationID int64) string {
	return fmt.Sprintf("%s%d", CompletionMarkerPrefix, conversationID)
}

// ConversationStore is the persistence surface the chat service needs for
// conversations. *repository.ConversationRepository satisfies it.
type ConversationStore interface {
	CreatePlaceholder(ctx context.Context, conv *models.Conversation) error
	Finalize(ctx context.Context, id int64, fullReply string) error
	GetOwned(ctx context.Context, id int64, ownerID uuid.UUID) (*models.Conversation, error)
	ListByUser(ctx context.Context, ownerID uuid.UUID, searchTerm string) ([]*models.Conversation, error)
	MarkSaved(ctx context.Context, id int64, ownerID uuid.UUID) (bool, error)
}

// UserStore is the persistence surface the chat service needs for users.
// *repository.UserRepository satisfies it.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, age int, gender string) error
}

// ChatService orchestrates the chat turn lifecycle: validation, placeholder
// creation, stream relay, finalization, and the follow-up actions on
// persisted conversations.
type ChatService struct {
	userStore UserStore
	convStore ConversationStore
	streamer  llm.CompletionStreamer
	sender    mailer.Sender
}

// ChatServiceOption is a functional option for ChatService
type ChatServiceOption func(*ChatService)

// WithUserStore sets the user store
func WithUserStore(store UserStore) ChatServiceOption {
	return func(s *ChatService) {
		s.userStore = store
	}
}

// WithConversationStore sets the conversation store
func WithConversationStore(store ConversationStore) ChatServiceOption {
	return func(s *ChatService) {
		s.convStore = store
	}
}

// WithCompletionStreamer sets the generation backend
func WithCompletionStreamer(streamer llm.CompletionStreamer) ChatServiceOption {
	return func(s *ChatService) {
		s.streamer = streamer
	}
}

// WithMailSender sets the email sender
func WithMailSender(sender mailer.Sender) ChatServiceOption {
	return func(s *ChatService) {
		s.sender = sender
	}
}

// NewChatService creates a new chat service
func NewChatService(opts ...ChatServiceOption) *ChatService {
	s := &ChatService{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartChatTurnRequest represents a request to start a chat turn
type StartChatTurnRequest struct {
	UserID  uuid.UUID
	Message string
	Age     int
	Gender  string
}

// StartChatTurnResult represents the result of starting a chat turn
type StartChatTurnResult struct {
	Turn *ChatTurn
}

// StartChatTurn validates the request, syncs the user's cached profile,
// creates the placeholder conversation, and opens the completion stream. Any
// failure here happens before the response starts streaming, so the caller
// can still produce a clean error response.
func (s *ChatService) StartChatTurn(ctx context.Context, req StartChatTurnRequest) (*StartChatTurnResult, error) {
	message := strings.TrimSpace(req.Message)
	gender := strings.TrimSpace(req.Gender)
	if message == "" || req.Age <= 0 || gender == "" {
		return nil, ErrInvalidRequest
	}

	user, err := s.userStore.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	// Keep the cached profile fresh for UI pre-fill.
	if user.Age == nil || *user.Age != req.Age || user.Gender == nil || *user.Gender != gender {
		if err := s.userStore.UpdateProfile(ctx, req.UserID, req.Age, gender); err != nil {
			return nil, fmt.Errorf("failed to update profile: %w", err)
		}
	}

	conv := &models.Conversation{
		UserID:      req.UserID,
		UserMessage: message,
		SymptomText: message,
		ModelUsed:   s.streamer.Model(),
		Age:         req.Age,
		Gender:      gender,
	}
	if err := s.convStore.CreatePlaceholder(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	stream, err := s.streamer.StreamCompletion(ctx, systemPrompt, buildUserPrompt(req.Age, gender, message))
	if err != nil {
		log.Printf("Conversation %d: failed to open completion stream: %v", conv.ID, err)
		return nil, fmt.Errorf("failed to open completion stream: %w", err)
	}

	return &StartChatTurnResult{
		Turn: &ChatTurn{
			ConversationID: conv.ID,
			stream:         stream,
			convStore:      s.convStore,
		},
	}, nil
}

// ChatTurn is the in-flight state of one started chat turn: the placeholder
// row exists and the completion stream is open but unconsumed.
type ChatTurn struct {
	ConversationID int64

	stream    llm.CompletionStream
	convStore ConversationStore
}

// Relay consumes the completion stream, forwarding each fragment to emit in
// arrival order while accumulating the full reply. On a clean end it
// finalizes the conversation and emits the completion marker as the last
// item, exactly once. All failures are handled here; the returned error is
// for logging, not for the transport, which is already streaming.
func (t *ChatTurn) Relay(ctx context.Context, emit func(string) error) error {
	defer t.stream.Close()

	var reply strings.Builder
	for {
		fragment, err := t.stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Printf("Conversation %d: generation stream failed: %v", t.ConversationID, err)
			if emitErr := emit(fmt.Sprintf("stream processing error: %v", err)); emitErr != nil {
				log.Printf("Conversation %d: failed to emit error fragment: %v", t.ConversationID, emitErr)
			}
			return fmt.Errorf("generation stream failed: %w", err)
		}

		reply.WriteString(fragment)
		if err := emit(fragment); err != nil {
			// Client is gone; stop consuming tokens nobody will receive.
			// The partial reply is discarded, not persisted.
			log.Printf("Conversation %d: client write failed, aborting stream: %v", t.ConversationID, err)
			return fmt.Errorf("client write failed: %w", err)
		}
	}

	if err := t.convStore.Finalize(ctx, t.ConversationID, reply.String()); err != nil {
		log.Printf("Conversation %d: failed to finalize reply: %v", t.ConversationID, err)
		if emitErr := emit(fmt.Sprintf("stream processing error: %v", err)); emitErr != nil {
			log.Printf("Conversation %d: failed to emit error fragment: %v", t.ConversationID, emitErr)
		}
		return fmt.Errorf("failed to finalize reply: %w", err)
	}

	if err := emit(CompletionMarker(t.ConversationID)); err != nil {
		log.Printf("Conversation %d: failed to emit completion marker: %v", t.ConversationID, err)
		return fmt.Errorf("failed to emit completion marker: %w", err)
	}
	return nil
}

// HistoryRequest represents a request to list a user's conversations
type HistoryRequest struct {
	UserID     uuid.UUID
	SearchTerm string
}

// HistoryResult represents the result of listing conversations
type HistoryResult struct {
	Conversations []*models.Conversation
}

// History lists the user's conversations newest first, optionally filtered
// by a case-insensitive substring match on message or reply.
func (s *ChatService) History(ctx context.Context, req HistoryRequest) (*HistoryResult, error) {
	conversations, err := s.convStore.ListByUser(ctx, req.UserID, strings.TrimSpace(req.SearchTerm))
	if err != nil {
		return nil, err
	}
	return &HistoryResult{Conversations: conversations}, nil
}

// ChatPageRequest represents a request for the chat page data
type ChatPageRequest struct {
	UserID uuid.UUID
}

// ChatPageResult carries the user's conversation history and cached profile
type ChatPageResult struct {
	Conversations []*models.Conversation
	Age           *int
	Gender        *string
}

// ChatPage returns the data backing the chat page: full history plus the
// cached age/gender for form pre-fill.
func (s *ChatService) ChatPage(ctx context.Context, req ChatPageRequest) (*ChatPageResult, error) {
	user, err := s.userStore.GetByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	conversations, err := s.convStore.ListByUser(ctx, req.UserID, "")
	if err != nil {
		return nil, err
	}

	return &ChatPageResult{
		Conversations: conversations,
		Age:           user.Age,
		Gender:        user.Gender,
	}, nil
}

// SaveNoteRequest represents a request to favorite a conversation
type SaveNoteRequest struct {
	UserID         uuid.UUID
	ConversationID int64
}

// SaveNoteResult represents the result of favoriting a conversation
type SaveNoteResult struct{}

// SaveNote marks an owned conversation as saved. Saving an already-saved
// conversation succeeds.
func (s *ChatService) SaveNote(ctx context.Context, req SaveNoteRequest) (*SaveNoteResult, error) {
	ok, err := s.convStore.MarkSaved(ctx, req.ConversationID, req.UserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConversationNotFound
	}
	return &SaveNoteResult{}, nil
}

// EmailConversationRequest represents a request to email a saved reply
type EmailConversationRequest struct {
	UserID         uuid.UUID
	ConversationID int64
}

// EmailConversationResult represents the result of emailing a reply
type EmailConversationResult struct {
	Sent bool
}

// EmailConversation sends the conversation's reply to the owner's account
// email. A delivery failure is reported in the result, not as an error.
func (s *ChatService) EmailConversation(ctx context.Context, req EmailConversationRequest) (*EmailConversationResult, error) {
	conv, err := s.convStore.GetOwned(ctx, req.ConversationID, req.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	user, err := s.userStore.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	subject := fmt.Sprintf("[Vitamin Recommendation] %s", conv.Timestamp.Format("2006-01-02 15:04:05"))
	if err := s.sender.Send(user.Email, subject, conv.BotReply); err != nil {
		log.Printf("Conversation %d: failed to send email: %v", conv.ID, err)
		return &EmailConversationResult{Sent: false}, nil
	}
	return &EmailConversationResult{Sent: true}, nil
}
