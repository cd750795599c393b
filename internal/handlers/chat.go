package handlers

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"talkflow-service/internal/models"
	"talkflow-service/internal/repositories"
)

// ChatHandler serves message history and the chat overview.
type ChatHandler struct {
	messageRepo    repositories.MessageRepository
	groupRepo      repositories.GroupRepository
	userRepo       repositories.UserRepository
	connectionRepo repositories.ConnectionRepository
}

// NewChatHandler constructs a ChatHandler.
func NewChatHandler(messageRepo repositories.MessageRepository, groupRepo repositories.GroupRepository,
	userRepo repositories.UserRepository, connectionRepo repositories.ConnectionRepository) *ChatHandler {
	return &ChatHandler{
		messageRepo:    messageRepo,
		groupRepo:      groupRepo,
		userRepo:       userRepo,
		connectionRepo: connectionRepo,
	}
}

// GetChatMessages handles GET /chats/:chat_id/messages for both private
// ("3_5") and group ("group_7") chat keys. The caller must be a participant
// of the private chat or a member of the group.
func (h *ChatHandler) GetChatMessages(c *gin.Context) {
	chatID := c.Param("chat_id")
	ctx := c.Request.Context()
	userID := userIDFromContext(c)

	if groupPart, ok := strings.CutPrefix(chatID, "group_"); ok {
		groupID, err := strconv.ParseInt(groupPart, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
			return
		}
		member, err := h.groupRepo.IsMember(ctx, groupID, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
			return
		}
		if !member {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
			return
		}
	} else {
		userA, userB, ok := parsePrivateChatID(chatID)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
			return
		}
		if userID != userA && userID != userB {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a chat participant"})
			return
		}
	}

	msgs, err := h.messageRepo.ListByChatID(ctx, chatID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	senderEmails, err := h.senderEmails(c, msgs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load senders"})
		return
	}

	type messageResponse struct {
		models.Message
		SenderEmail string `json:"sender_email,omitempty"`
	}
	resp := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		resp = append(resp, messageResponse{Message: m, SenderEmail: senderEmails[m.SenderID]})
	}

	c.JSON(http.StatusOK, gin.H{"messages": resp})
}

// chatPreview is one row of the chat overview screen: the counterpart of an
// accepted connection plus the latest exchanged message.
type chatPreview struct {
	ChatID        string     `json:"chat_id"`
	UserID        int64      `json:"user_id"`
	FirstName     string     `json:"first_name"`
	MiddleName    string     `json:"middle_name,omitempty"`
	LastName      string     `json:"last_name"`
	Email         string     `json:"email"`
	CanSendMsg    bool       `json:"can_send_msg"`
	LastMessage   string     `json:"last_message,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

// GetChatPreviews handles GET /chats/previews: one entry per accepted
// connection, most recently active chat first. Connections without any
// exchanged message sort last. CanSendMsg reflects the counterpart's active
// flag, so clients can grey out chats with deactivated accounts.
func (h *ChatHandler) GetChatPreviews(c *gin.Context) {
	ctx := c.Request.Context()
	userID := userIDFromContext(c)

	conns, err := h.connectionRepo.ListByStatusInvolving(ctx, userID, models.StatusAccepted)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load connections"})
		return
	}

	otherIDs := make([]int64, 0, len(conns))
	chatIDs := make([]string, 0, len(conns))
	for _, conn := range conns {
		other := conn.OtherParty(userID)
		otherIDs = append(otherIDs, other)
		chatIDs = append(chatIDs, models.PrivateChatID(userID, other))
	}

	users, err := h.userRepo.BulkByIDs(ctx, otherIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return
	}
	userByID := make(map[int64]models.User, len(users))
	for _, u := range users {
		userByID[u.ID] = u
	}

	latest, err := h.messageRepo.LatestByChatIDs(ctx, chatIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	previews := make([]chatPreview, 0, len(conns))
	for _, conn := range conns {
		other, ok := userByID[conn.OtherParty(userID)]
		if !ok {
			continue
		}
		preview := chatPreview{
			ChatID:     models.PrivateChatID(userID, other.ID),
			UserID:     other.ID,
			FirstName:  other.FirstName,
			MiddleName: other.MiddleName,
			LastName:   other.LastName,
			Email:      other.Email,
			CanSendMsg: other.IsActive,
		}
		if msg, ok := latest[preview.ChatID]; ok {
			preview.LastMessage = msg.Content
			at := msg.CreatedAt
			preview.LastMessageAt = &at
		}
		previews = append(previews, preview)
	}

	sort.SliceStable(previews, func(i, j int) bool {
		a, b := previews[i].LastMessageAt, previews[j].LastMessageAt
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.After(*b)
	})

	c.JSON(http.StatusOK, gin.H{"previews": previews})
}

func (h *ChatHandler) senderEmails(c *gin.Context, msgs []models.Message) (map[int64]string, error) {
	ids := make([]int64, 0, len(msgs))
	seen := map[int64]struct{}{}
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			ids = append(ids, m.SenderID)
		}
	}

	users, err := h.userRepo.BulkByIDs(c.Request.Context(), ids)
	if err != nil {
		return nil, err
	}
	emails := make(map[int64]string, len(users))
	for _, u := range users {
		emails[u.ID] = u.Email
	}
	return emails, nil
}

func parsePrivateChatID(chatID string) (int64, int64, bool) {
	parts := strings.SplitN(chatID, "_", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	userA, errA := strconv.ParseInt(parts[0], 10, 64)
	userB, errB := strconv.ParseInt(parts[1], 10, 64)
	if errA != nil || errB != nil {
		return 0, 0, false
	}
	return userA, userB, true
}
