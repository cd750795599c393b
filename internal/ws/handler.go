package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"talkflow-service/internal/auth"
	"talkflow-service/internal/observability"
	"talkflow-service/internal/repositories"
)

// Handler performs the websocket handshake and runs the per-session read
// loop. A connection attempt that cannot be resolved to an active identity
// is refused before any session exists.
type Handler struct {
	registry  *Registry
	router    *Router
	watchdog  *CallWatchdog
	validator auth.TokenValidator
	users     repositories.UserRepository
	logger    *zap.Logger
}

// NewHandler constructs a websocket Handler.
func NewHandler(registry *Registry, router *Router, watchdog *CallWatchdog,
	validator auth.TokenValidator, users repositories.UserRepository, logger *zap.Logger) *Handler {
	return &Handler{
		registry:  registry,
		router:    router,
		watchdog:  watchdog,
		validator: validator,
		users:     users,
		logger:    logger,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection, binds it to the authenticated identity and
// dispatches inbound frames in arrival order until the peer goes away.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("talkflow-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	email, err := h.validator.Validate(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	user, err := h.users.GetByEmail(ctx, email)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}
	if !user.IsActive {
		c.JSON(http.StatusForbidden, gin.H{"error": "account deactivated"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	sess := newWSSession(conn)
	meta := observability.MetaFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      sess.ID(),
		UserID:      user.ID,
		Email:       user.Email,
		DeviceID:    meta.DeviceID,
		IP:          meta.IP,
		RequestID:   meta.RequestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	h.registry.Register(user.Email, sess)
	// Any liveness watchdog waiting on this identity is now moot: the
	// ringing call-request reaches the freshly connected device.
	h.watchdog.CancelFor(user.Email)

	observability.IncWSEvent("ws_connect")
	h.publishWSEvent(ctx, "ws_connect", info, "")

	go h.readLoop(ctx, user.Email, sess, conn, info)
}

func (h *Handler) readLoop(ctx context.Context, email string, sess Session, conn *websocket.Conn, info ConnInfo) {
	var closeReason string
	defer func() {
		h.registry.Unregister(email, sess)
		conn.Close()
		observability.IncWSEvent("ws_disconnect")
		h.publishWSEvent(ctx, "ws_disconnect", info, closeReason)
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				h.publishWSEvent(ctx, "ws_error", info, closeReason)
			}
			return
		}
		h.router.Dispatch(ctx, email, payload)
	}
}

func (h *Handler) publishWSEvent(ctx context.Context, event string, info ConnInfo, reason string) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"email":     info.Email,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
	if err := observability.PublishEvent(ctx, "ws_events.sessions", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, observability.BuildHeaders(info.RequestID, info.TraceID)); err != nil {
		h.logger.Warn("ws event publish failed", zap.String("event", event), zap.Error(err))
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		const prefix = "Bearer "
		if len(header) > len(prefix) && header[:len(prefix)] == prefix {
			return header[len(prefix):]
		}
		return ""
	}
	return c.Query("token")
}
