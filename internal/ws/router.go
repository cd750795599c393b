package ws

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"talkflow-service/internal/observability"
	"talkflow-service/internal/repositories"
)

// Frame type discriminators on the wire.
const (
	TypePrivate     = "private"
	TypeGroup       = "group"
	TypeCallRequest = "call-request"
	TypeCallAccept  = "call-accept"
	TypeCallDecline = "call-decline"
	TypeCallEnd     = "call-end"
	TypeSignal      = "signal"
)

// Frame is the decoded wire envelope. Only the routing fields are decoded;
// raw retains the sender's exact bytes because forwarded frames must reach
// recipients verbatim.
type Frame struct {
	Type    string `json:"type"`
	To      string `json:"to"`
	GroupID int64  `json:"groupId"`
	Content string `json:"content"`

	raw []byte
}

// ConnectionGate reports whether two users hold an ACCEPTED connection,
// independent of which side initiated it.
type ConnectionGate interface {
	IsAccepted(ctx context.Context, userA, userB int64) (bool, error)
}

// Router classifies inbound frames, applies authorization, persists canonical
// message records and fans frames out via the session registry. The whole
// messaging path is fire-and-forget: a rejected frame is dropped with a log
// line and nothing is returned to the sender, so a blocked or unconnected
// sender cannot probe relationship state.
type Router struct {
	registry *Registry
	watchdog *CallWatchdog
	users    repositories.UserRepository
	groups   repositories.GroupRepository
	messages repositories.MessageRepository
	gate     ConnectionGate
	logger   *zap.Logger
}

// NewRouter constructs a Router.
func NewRouter(registry *Registry, watchdog *CallWatchdog, users repositories.UserRepository,
	groups repositories.GroupRepository, messages repositories.MessageRepository,
	gate ConnectionGate, logger *zap.Logger) *Router {
	return &Router{
		registry: registry,
		watchdog: watchdog,
		users:    users,
		groups:   groups,
		messages: messages,
		gate:     gate,
		logger:   logger,
	}
}

// Dispatch routes one inbound frame from the session bound to senderEmail.
// Unrecognized or absent types route as private.
func (r *Router) Dispatch(ctx context.Context, senderEmail string, raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		r.drop(TypePrivate, "malformed frame", zap.Error(err))
		return
	}
	frame.raw = raw

	observability.IncRouterFrame(frameKind(frame.Type))

	switch frame.Type {
	case TypeGroup:
		r.handleGroup(ctx, senderEmail, frame)
	case TypeCallRequest, TypeCallAccept, TypeCallDecline, TypeCallEnd:
		r.handleCallSignal(ctx, senderEmail, frame)
	case TypeSignal:
		r.handleSignal(frame)
	default:
		r.handlePrivate(ctx, senderEmail, frame)
	}
}

// handlePrivate delivers a direct message. It requires an ACCEPTED connection
// between sender and recipient; absent that, the frame is silently dropped.
func (r *Router) handlePrivate(ctx context.Context, senderEmail string, frame Frame) {
	sender, err := r.users.GetByEmail(ctx, senderEmail)
	if err != nil {
		r.drop(TypePrivate, "sender not resolvable", zap.String("sender", senderEmail), zap.Error(err))
		return
	}
	recipient, err := r.users.GetByEmail(ctx, frame.To)
	if err != nil {
		r.drop(TypePrivate, "recipient not found", zap.String("to", frame.To), zap.Error(err))
		return
	}

	accepted, err := r.gate.IsAccepted(ctx, sender.ID, recipient.ID)
	if err != nil {
		r.drop(TypePrivate, "connection lookup failed", zap.Error(err))
		return
	}
	if !accepted {
		r.drop(TypePrivate, "no accepted connection",
			zap.Int64("sender_id", sender.ID), zap.Int64("recipient_id", recipient.ID))
		return
	}

	if _, err := r.messages.CreatePrivateMessage(ctx, sender.ID, recipient.ID, frame.Content); err != nil {
		r.drop(TypePrivate, "persist failed", zap.Error(err))
		return
	}

	r.registry.Send(senderEmail, frame.raw)
	r.registry.Send(recipient.Email, frame.raw)
}

// handleGroup delivers a group message to every current member. The sender
// must be a live member of the group.
func (r *Router) handleGroup(ctx context.Context, senderEmail string, frame Frame) {
	sender, err := r.users.GetByEmail(ctx, senderEmail)
	if err != nil {
		r.drop(TypeGroup, "sender not resolvable", zap.String("sender", senderEmail), zap.Error(err))
		return
	}
	group, err := r.groups.GetGroup(ctx, frame.GroupID)
	if err != nil {
		r.drop(TypeGroup, "group not found", zap.Int64("group_id", frame.GroupID), zap.Error(err))
		return
	}

	member, err := r.groups.IsMember(ctx, group.ID, sender.ID)
	if err != nil {
		r.drop(TypeGroup, "membership lookup failed", zap.Error(err))
		return
	}
	if !member {
		r.drop(TypeGroup, "sender not a member",
			zap.Int64("sender_id", sender.ID), zap.Int64("group_id", group.ID))
		return
	}

	if _, err := r.messages.CreateGroupMessage(ctx, sender.ID, group.ID, frame.Content); err != nil {
		r.drop(TypeGroup, "persist failed", zap.Error(err))
		return
	}

	members, err := r.groups.Members(ctx, group.ID)
	if err != nil {
		r.drop(TypeGroup, "member listing failed", zap.Int64("group_id", group.ID), zap.Error(err))
		return
	}
	// Fan out to every member with live sessions, the sender included.
	// Inactive accounts still receive while their sessions last.
	for _, m := range members {
		r.registry.Send(m.Email, frame.raw)
	}
}

// handleCallSignal forwards call negotiation frames to the addressed
// recipient only, never back to the sender. Nothing is persisted. A
// call-request to an offline recipient arms the liveness watchdog.
func (r *Router) handleCallSignal(_ context.Context, senderEmail string, frame Frame) {
	if frame.To == "" {
		r.drop(frame.Type, "missing recipient")
		return
	}

	if frame.Type == TypeCallRequest && !r.registry.IsOnline(frame.To) {
		r.watchdog.Arm(senderEmail, frame.To)
	}

	r.registry.Send(frame.To, frame.raw)
}

// handleSignal forwards peer-connection negotiation payloads verbatim.
func (r *Router) handleSignal(frame Frame) {
	if frame.To == "" {
		r.drop(TypeSignal, "missing recipient")
		return
	}
	r.registry.Send(frame.To, frame.raw)
}

func (r *Router) drop(frameType, reason string, fields ...zap.Field) {
	observability.IncRouterDrop(frameKind(frameType), reason)
	r.logger.Warn("frame dropped",
		append([]zap.Field{zap.String("frame_type", frameType), zap.String("reason", reason)}, fields...)...)
}

// frameKind collapses the empty/default discriminator onto private for
// metrics labels.
func frameKind(frameType string) string {
	if frameType == "" {
		return TypePrivate
	}
	return frameType
}
