package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation represents one symptom-query/generated-reply turn.
//
// The row is created as a placeholder with an empty BotReply before any
// generation output exists; BotReply is written exactly once when the stream
// finishes. Age and Gender are snapshots of the profile supplied with the
// request, independent of later edits to the owning User.
type Conversation struct {
	ID          int64     `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Timestamp   time.Time `json:"timestamp"`
	UserMessage string    `json:"user_message"`
	BotReply    string    `json:"bot_reply"`
	SymptomText string    `json:"symptom_text"`
	ModelUsed   string    `json:"model_used"`
	Age         int       `json:"age"`
	Gender      string    `json:"gender"`
	Saved       bool      `json:"saved"`
}
