package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"talkflow-service/internal/mocks"
)

func TestEmitPublishesEnvelope(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(publisher, "audit.talkflow", "talkflow-service", "test", zap.NewNop())

	userID := int64(3)
	publisher.On("PublishJSON", mock.Anything, "audit.talkflow",
		mock.MatchedBy(func(msg interface{}) bool {
			envelope, ok := msg.(AuditEnvelope)
			return ok &&
				envelope.SchemaVersion == 1 &&
				envelope.EventType == "audit_log" &&
				envelope.Service == "talkflow-service" &&
				envelope.RequestID == "req-1" &&
				envelope.UserID != nil && *envelope.UserID == 3 &&
				envelope.Payload.Level == "INFO" &&
				envelope.Payload.Text == "connection requested"
		}), mock.Anything).Return(nil).Once()

	emitter.Emit(context.Background(), "INFO", "connection requested", "req-1", &userID)
	publisher.AssertExpectations(t)
}

func TestEmitSwallowsPublishFailure(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(publisher, "audit.talkflow", "talkflow-service", "test", zap.NewNop())
	publisher.On("PublishJSON", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("broker down")).Once()

	emitter.Emit(context.Background(), "ERROR", "something failed", "req-2", nil)
	publisher.AssertExpectations(t)
}

func TestEmitOnNilEmitterIsNoop(t *testing.T) {
	var emitter *AuditEmitter
	require.NotPanics(t, func() {
		emitter.Emit(context.Background(), "INFO", "ignored", "req-3", nil)
	})
}
