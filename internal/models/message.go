package models

import (
	"database/sql"
	"strconv"
	"time"
)

// MessageType discriminates persisted message kinds. Signaling frames are
// never persisted, so TEXT is currently the only stored type.
type MessageType string

const MessageTypeText MessageType = "TEXT"

// Message is one immutable sent unit of content. Exactly one of RecipientID
// and GroupID is set: recipient for private chats, group for group chats.
type Message struct {
	ID          int64         `db:"id" json:"message_id"`
	ChatID      string        `db:"chat_id" json:"chat_id"`
	SenderID    int64         `db:"sender_id" json:"sender_id"`
	RecipientID sql.NullInt64 `db:"recipient_id" json:"-"`
	GroupID     sql.NullInt64 `db:"group_id" json:"-"`
	Type        MessageType   `db:"type" json:"type"`
	Content     string        `db:"content" json:"content"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
}

// PrivateChatID derives the canonical chat key for two users: the ids sorted
// ascending and joined with an underscore, e.g. "3_5".
func PrivateChatID(a, b int64) string {
	if b < a {
		a, b = b, a
	}
	return strconv.FormatInt(a, 10) + "_" + strconv.FormatInt(b, 10)
}

// GroupChatID derives the chat key for a group.
func GroupChatID(groupID int64) string {
	return "group_" + strconv.FormatInt(groupID, 10)
}
