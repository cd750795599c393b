package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"talkflow-service/internal/connections"
	"talkflow-service/internal/repositories"
	"talkflow-service/internal/telemetry"
)

// GroupHandler manages group endpoints.
type GroupHandler struct {
	groupRepo   repositories.GroupRepository
	userRepo    repositories.UserRepository
	connections *connections.Service
	audit       *telemetry.AuditEmitter
}

// NewGroupHandler constructs a GroupHandler.
func NewGroupHandler(groupRepo repositories.GroupRepository, userRepo repositories.UserRepository,
	connService *connections.Service, audit *telemetry.AuditEmitter) *GroupHandler {
	return &GroupHandler{
		groupRepo:   groupRepo,
		userRepo:    userRepo,
		connections: connService,
		audit:       audit,
	}
}

// CreateGroup handles POST /groups. The creator auto-joins as admin.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	var req struct {
		GroupName string `json:"group_name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := userIDFromContext(c)
	group, err := h.groupRepo.CreateGroup(c.Request.Context(), req.GroupName, userID)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}

	h.emitAudit(c, "INFO", "group created")
	c.JSON(http.StatusCreated, gin.H{"group_id": group.ID})
}

// AddMember handles POST /groups/:group_id/members. Only the group admin may
// add, the target must hold an ACCEPTED connection with the admin, be active,
// and not already be a member.
func (h *GroupHandler) AddMember(c *gin.Context) {
	groupID, err := strconv.ParseInt(c.Param("group_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	var req struct {
		UserID int64 `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	userID := userIDFromContext(c)

	group, err := h.groupRepo.GetGroup(ctx, groupID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrGroupNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "group not found"})
		return
	}
	if group.CreatedBy != userID {
		h.emitAudit(c, "ERROR", "non-admin member add rejected")
		c.JSON(http.StatusForbidden, gin.H{"error": "only the group admin can add members"})
		return
	}

	target, err := h.userRepo.GetByID(ctx, req.UserID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "user not found"})
		return
	}
	if !target.IsActive {
		c.JSON(http.StatusConflict, gin.H{"error": "user has no active account"})
		return
	}

	connected, err := h.connections.IsAccepted(ctx, userID, target.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "connection check failed"})
		return
	}
	if !connected {
		c.JSON(http.StatusForbidden, gin.H{"error": "cannot add user without accepted connection"})
		return
	}

	member, err := h.groupRepo.IsMember(ctx, groupID, target.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return
	}
	if member {
		c.JSON(http.StatusConflict, gin.H{"error": "user is already a member"})
		return
	}

	if err := h.groupRepo.AddMember(ctx, groupID, target.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not add member"})
		return
	}

	h.emitAudit(c, "INFO", "group member added")
	c.Status(http.StatusNoContent)
}

// ListGroups handles GET /groups.
func (h *GroupHandler) ListGroups(c *gin.Context) {
	userID := userIDFromContext(c)
	groups, err := h.groupRepo.ListGroupsForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load groups"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// ListMembers handles GET /groups/:group_id/members; members only.
func (h *GroupHandler) ListMembers(c *gin.Context) {
	groupID, err := strconv.ParseInt(c.Param("group_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	ctx := c.Request.Context()
	userID := userIDFromContext(c)
	member, err := h.groupRepo.IsMember(ctx, groupID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
		return
	}

	members, err := h.groupRepo.Members(ctx, groupID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load members"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

// DeleteGroup handles DELETE /groups/:group_id; admin only, soft delete.
func (h *GroupHandler) DeleteGroup(c *gin.Context) {
	groupID, err := strconv.ParseInt(c.Param("group_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	ctx := c.Request.Context()
	userID := userIDFromContext(c)

	group, err := h.groupRepo.GetGroup(ctx, groupID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrGroupNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "group not found"})
		return
	}
	if group.CreatedBy != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the group admin can delete the group"})
		return
	}

	if err := h.groupRepo.DeleteGroup(ctx, groupID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete group"})
		return
	}

	h.emitAudit(c, "INFO", "group deleted")
	c.Status(http.StatusNoContent)
}

func (h *GroupHandler) emitAudit(c *gin.Context, level, text string) {
	userID := userIDFromContext(c)
	var userPtr *int64
	if userID != 0 {
		userPtr = &userID
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userPtr)
}
