package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"talkflow-service/internal/connections"
	"talkflow-service/internal/repositories"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) int64 {
	if val, ok := c.Get("userID"); ok {
		if id, ok := val.(int64); ok {
			return id
		}
	}
	return 0
}

// connectionErrorStatus maps state-machine and store errors onto the HTTP
// taxonomy: 400 bad request, 403 authorization, 404 not-found, 409 conflict.
func connectionErrorStatus(err error) int {
	switch {
	case errors.Is(err, connections.ErrSelfAction),
		errors.Is(err, connections.ErrUnsupportedStatus):
		return http.StatusBadRequest
	case errors.Is(err, connections.ErrNotParticipant),
		errors.Is(err, connections.ErrNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, repositories.ErrConnectionNotFound),
		errors.Is(err, repositories.ErrUserNotFound),
		errors.Is(err, repositories.ErrGroupNotFound):
		return http.StatusNotFound
	case errors.Is(err, connections.ErrAlreadyConnected),
		errors.Is(err, connections.ErrAlreadyBlocked),
		errors.Is(err, connections.ErrInvalidTransition),
		errors.Is(err, repositories.ErrStatusMoved):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
