package repositories

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"talkflow-service/internal/models"
)

// MessageRepository is the append-only message store.
type MessageRepository interface {
	CreatePrivateMessage(ctx context.Context, senderID, recipientID int64, content string) (models.Message, error)
	CreateGroupMessage(ctx context.Context, senderID, groupID int64, content string) (models.Message, error)
	ListByChatID(ctx context.Context, chatID string) ([]models.Message, error)
	// LatestByChatIDs returns the newest message per chat id; chats with no
	// messages are absent from the result.
	LatestByChatIDs(ctx context.Context, chatIDs []string) (map[string]models.Message, error)
}

// MessageRepo is a sqlx implementation of MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, chat_id, sender_id, recipient_id, group_id, type, content, created_at`

// CreatePrivateMessage stores a direct message under the canonical pair key.
func (r *MessageRepo) CreatePrivateMessage(ctx context.Context, senderID, recipientID int64, content string) (models.Message, error) {
	chatID := models.PrivateChatID(senderID, recipientID)
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (chat_id, sender_id, recipient_id, type, content)
        VALUES ($1, $2, $3, $4, $5) RETURNING `+messageColumns,
		chatID, senderID, sql.NullInt64{Int64: recipientID, Valid: true}, models.MessageTypeText, content).
		StructScan(&msg)
	return msg, err
}

// CreateGroupMessage stores a group message under the group-scoped key.
func (r *MessageRepo) CreateGroupMessage(ctx context.Context, senderID, groupID int64, content string) (models.Message, error) {
	chatID := models.GroupChatID(groupID)
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (chat_id, sender_id, group_id, type, content)
        VALUES ($1, $2, $3, $4, $5) RETURNING `+messageColumns,
		chatID, senderID, sql.NullInt64{Int64: groupID, Valid: true}, models.MessageTypeText, content).
		StructScan(&msg)
	return msg, err
}

// LatestByChatIDs fetches the most recent message of each chat in one query.
func (r *MessageRepo) LatestByChatIDs(ctx context.Context, chatIDs []string) (map[string]models.Message, error) {
	latest := make(map[string]models.Message, len(chatIDs))
	if len(chatIDs) == 0 {
		return latest, nil
	}

	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT DISTINCT ON (chat_id) `+messageColumns+` FROM messages
        WHERE chat_id = ANY($1) ORDER BY chat_id, created_at DESC, id DESC`, pq.Array(chatIDs))
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		latest[m.ChatID] = m
	}
	return latest, nil
}

// ListByChatID returns a chat's messages ordered by creation time.
func (r *MessageRepo) ListByChatID(ctx context.Context, chatID string) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE chat_id=$1 ORDER BY created_at ASC, id ASC`, chatID)
	return msgs, err
}
