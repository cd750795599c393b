package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"talkflow-service/internal/connections"
	"talkflow-service/internal/models"
	"talkflow-service/internal/telemetry"
)

// ConnectionHandler manages connection lifecycle endpoints.
type ConnectionHandler struct {
	service *connections.Service
	audit   *telemetry.AuditEmitter
}

// NewConnectionHandler constructs a ConnectionHandler.
func NewConnectionHandler(service *connections.Service, audit *telemetry.AuditEmitter) *ConnectionHandler {
	return &ConnectionHandler{service: service, audit: audit}
}

// Request handles POST /connections/request.
func (h *ConnectionHandler) Request(c *gin.Context) {
	var req struct {
		ReceiverID int64 `json:"receiver_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := userIDFromContext(c)
	conn, err := h.service.Request(c.Request.Context(), userID, req.ReceiverID)
	if err != nil {
		h.emitAudit(c, "ERROR", "connection request rejected")
		c.JSON(connectionErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	h.emitAudit(c, "INFO", "connection requested")
	c.JSON(http.StatusCreated, gin.H{"connection_id": conn.ID, "status": conn.Status})
}

// Block handles POST /connections/block.
func (h *ConnectionHandler) Block(c *gin.Context) {
	var req struct {
		UserID int64 `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := userIDFromContext(c)
	conn, err := h.service.Block(c.Request.Context(), userID, req.UserID)
	if err != nil {
		h.emitAudit(c, "ERROR", "block request rejected")
		c.JSON(connectionErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	h.emitAudit(c, "INFO", "user blocked")
	c.JSON(http.StatusOK, gin.H{"connection_id": conn.ID, "status": conn.Status})
}

// UpdateStatus handles PATCH /connections/:connection_id/status.
func (h *ConnectionHandler) UpdateStatus(c *gin.Context) {
	connectionID, err := strconv.ParseInt(c.Param("connection_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid connection id"})
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	newStatus := models.ConnectionStatus(strings.ToUpper(req.Status))
	if !newStatus.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status: " + req.Status})
		return
	}

	userID := userIDFromContext(c)
	conn, err := h.service.UpdateStatus(c.Request.Context(), userID, connectionID, newStatus)
	if err != nil {
		h.emitAudit(c, "ERROR", "status transition rejected")
		c.JSON(connectionErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	h.emitAudit(c, "INFO", "connection status updated")
	c.JSON(http.StatusOK, gin.H{"connection_id": conn.ID, "status": conn.Status})
}

// List handles GET /connections?kind=sent|pending|accepted|blocked.
func (h *ConnectionHandler) List(c *gin.Context) {
	kind := connections.ListKind(c.DefaultQuery("kind", string(connections.ListAccepted)))

	userID := userIDFromContext(c)
	summaries, err := h.service.List(c.Request.Context(), userID, kind)
	if err != nil {
		c.JSON(connectionErrorStatus(err), gin.H{"error": "failed to load connections"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"connections": summaries})
}

func (h *ConnectionHandler) emitAudit(c *gin.Context, level, text string) {
	userID := userIDFromContext(c)
	var userPtr *int64
	if userID != 0 {
		userPtr = &userID
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userPtr)
}
