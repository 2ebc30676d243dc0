package repository

import (
	"context"
	"errors"

	"vitachat-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrConversationNotFound is returned when a conversation does not exist or
// is owned by a different user. The two cases are deliberately not
// distinguishable to the caller.
var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository handles database operations for conversations
type ConversationRepository struct {
	db *pgxpool.Pool
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(db *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// CreatePlaceholder inserts a conversation row with an empty reply and
// returns once the row is committed. The assigned ID is the correlation key
// handed to the client through the completion marker, so the insert must be
// durable before any generation output is produced.
func (r *ConversationRepository) CreatePlaceholder(ctx context.Context, conv *models.Conversation) error {
	query := `
		INSERT INTO conversations (
			user_id, user_message, bot_reply, symptom_text, model_used, age, gender, saved
		) VALUES ($1, $2, '', $3, $4, $5, $6, false)
		RETURNING id, timestamp`

	return r.db.QueryRow(
		ctx, query,
		conv.UserID,
		conv.UserMessage,
		conv.SymptomText,
		conv.ModelUsed,
		conv.Age,
		conv.Gender,
	).Scan(&conv.ID, &conv.Timestamp)
}

// Finalize writes the accumulated reply for a conversation. A missing row is
// a no-op, not an error.
func (r *ConversationRepository) Finalize(ctx context.Context, id int64, fullReply string) error {
	query := `
		UPDATE conversations SET
			bot_reply = $2
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, fullReply)
	return err
}

// GetOwned retrieves a conversation by ID, enforcing ownership. A row owned
// by another user yields ErrConversationNotFound.
func (r *ConversationRepository) GetOwned(ctx context.Context, id int64, ownerID uuid.UUID) (*models.Conversation, error) {
	conv := &models.Conversation{}
	query := `
		SELECT id, user_id, timestamp, user_message, bot_reply, symptom_text,
			model_used, age, gender, saved
		FROM conversations
		WHERE id = $1 AND user_id = $2`

	err := r.db.QueryRow(ctx, query, id, ownerID).Scan(
		&conv.ID,
		&conv.UserID,
		&conv.Timestamp,
		&conv.UserMessage,
		&conv.BotReply,
		&conv.SymptomText,
		&conv.ModelUsed,
		&conv.Age,
		&conv.Gender,
		&conv.Saved,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return conv, nil
}

// ListByUser lists a user's conversations newest first. When searchTerm is
// non-empty, only rows whose message or reply contains it (case-insensitive)
// are returned.
func (r *ConversationRepository) ListByUser(ctx context.Context, ownerID uuid.UUID, searchTerm string) ([]*models.Conversation, error) {
	query := `
		SELECT id, user_id, timestamp, user_message, bot_reply, symptom_text,
			model_used, age, gender, saved
		FROM conversations
		WHERE user_id = $1`

	args := []interface{}{ownerID}
	if searchTerm != "" {
		query += ` AND (user_message ILIKE $2 OR bot_reply ILIKE $2)`
		args = append(args, "%"+searchTerm+"%")
	}
	query += ` ORDER BY timestamp DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []*models.Conversation
	for rows.Next() {
		conv := &models.Conversation{}
		if err := rows.Scan(
			&conv.ID,
			&conv.UserID,
			&conv.Timestamp,
			&conv.UserMessage,
			&conv.BotReply,
			&conv.SymptomText,
			&conv.ModelUsed,
			&conv.Age,
			&conv.Gender,
			&conv.Saved,
		); err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// MarkSaved sets the saved flag on an owned conversation. Returns false when
// the conversation does not exist or belongs to another user.
func (r *ConversationRepository) MarkSaved(ctx context.Context, id int64, ownerID uuid.UUID) (bool, error) {
	query := `
		UPDATE conversations SET
			saved = true
		WHERE id = $1 AND user_id = $2`

	tag, err := r.db.Exec(ctx, query, id, ownerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
