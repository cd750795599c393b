package connections

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"talkflow-service/internal/models"
)

func pendingConn(senderID, receiverID int64) models.Connection {
	return models.Connection{ID: 1, SenderID: senderID, ReceiverID: receiverID, Status: models.StatusPending}
}

func blockedConn(senderID, receiverID, blockerID int64) models.Connection {
	return models.Connection{
		ID: 1, SenderID: senderID, ReceiverID: receiverID,
		Status:          models.StatusBlocked,
		BlockedByUserID: sql.NullInt64{Int64: blockerID, Valid: true},
	}
}

func TestReissueReassignsRoles(t *testing.T) {
	for _, status := range []models.ConnectionStatus{models.StatusUnblocked, models.StatusRejected, models.StatusWithdrawn} {
		conn := models.Connection{ID: 1, SenderID: 1, ReceiverID: 2, Status: status}

		// The former receiver reissues the request; roles swap.
		updated, err := Reissue(conn, 2, 1)
		require.NoError(t, err, "status %s", status)
		require.Equal(t, int64(2), updated.SenderID)
		require.Equal(t, int64(1), updated.ReceiverID)
		require.Equal(t, models.StatusPending, updated.Status)
		require.False(t, updated.BlockedByUserID.Valid)
	}
}

func TestReissueRejectedWhileLive(t *testing.T) {
	for _, status := range []models.ConnectionStatus{models.StatusPending, models.StatusAccepted, models.StatusBlocked} {
		conn := models.Connection{ID: 1, SenderID: 1, ReceiverID: 2, Status: status}
		_, err := Reissue(conn, 1, 2)
		require.ErrorIs(t, err, ErrAlreadyConnected, "status %s", status)
	}
}

func TestAcceptByReceiver(t *testing.T) {
	updated, err := Transition(pendingConn(1, 2), 2, models.StatusAccepted)
	require.NoError(t, err)
	require.Equal(t, models.StatusAccepted, updated.Status)
}

func TestAcceptBySenderRejected(t *testing.T) {
	_, err := Transition(pendingConn(1, 2), 1, models.StatusAccepted)
	require.ErrorIs(t, err, ErrNotAllowed)
}

func TestRejectByReceiver(t *testing.T) {
	updated, err := Transition(pendingConn(1, 2), 2, models.StatusRejected)
	require.NoError(t, err)
	require.Equal(t, models.StatusRejected, updated.Status)
}

func TestAcceptNonPendingConflicts(t *testing.T) {
	conn := pendingConn(1, 2)
	conn.Status = models.StatusAccepted
	_, err := Transition(conn, 2, models.StatusAccepted)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestWithdrawBySenderOnly(t *testing.T) {
	updated, err := Transition(pendingConn(1, 2), 1, models.StatusWithdrawn)
	require.NoError(t, err)
	require.Equal(t, models.StatusWithdrawn, updated.Status)

	_, err = Transition(pendingConn(1, 2), 2, models.StatusWithdrawn)
	require.ErrorIs(t, err, ErrNotAllowed)
}

func TestWithdrawNonPendingConflicts(t *testing.T) {
	conn := pendingConn(1, 2)
	conn.Status = models.StatusAccepted
	_, err := Transition(conn, 1, models.StatusWithdrawn)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUnblockByBlockerOnly(t *testing.T) {
	updated, err := Transition(blockedConn(1, 2, 1), 1, models.StatusUnblocked)
	require.NoError(t, err)
	require.Equal(t, models.StatusUnblocked, updated.Status)
	require.False(t, updated.BlockedByUserID.Valid)

	_, err = Transition(blockedConn(1, 2, 1), 2, models.StatusUnblocked)
	require.ErrorIs(t, err, ErrNotAllowed)
}

func TestUnblockNonBlockedConflicts(t *testing.T) {
	_, err := Transition(pendingConn(1, 2), 1, models.StatusUnblocked)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransitionToPendingAlwaysRejected(t *testing.T) {
	for _, status := range []models.ConnectionStatus{
		models.StatusPending, models.StatusAccepted, models.StatusRejected,
		models.StatusWithdrawn, models.StatusBlocked, models.StatusUnblocked,
	} {
		conn := models.Connection{ID: 1, SenderID: 1, ReceiverID: 2, Status: status}
		_, err := Transition(conn, 1, models.StatusPending)
		require.ErrorIs(t, err, ErrInvalidTransition, "from %s", status)
	}
}

func TestTransitionByOutsiderRejected(t *testing.T) {
	_, err := Transition(pendingConn(1, 2), 3, models.StatusAccepted)
	require.ErrorIs(t, err, ErrNotParticipant)
}

func TestApplyBlockFromAnyState(t *testing.T) {
	for _, status := range []models.ConnectionStatus{
		models.StatusPending, models.StatusAccepted, models.StatusRejected,
		models.StatusWithdrawn, models.StatusUnblocked,
	} {
		conn := models.Connection{ID: 1, SenderID: 1, ReceiverID: 2, Status: status}
		updated, err := ApplyBlock(conn, 2)
		require.NoError(t, err, "from %s", status)
		require.Equal(t, models.StatusBlocked, updated.Status)
		require.Equal(t, int64(2), updated.BlockedByUserID.Int64)
	}
}

func TestApplyBlockAlreadyBlocked(t *testing.T) {
	_, err := ApplyBlock(blockedConn(1, 2, 1), 2)
	require.ErrorIs(t, err, ErrAlreadyBlocked)
}

func TestApplyBlockByOutsiderRejected(t *testing.T) {
	_, err := ApplyBlock(pendingConn(1, 2), 9)
	require.ErrorIs(t, err, ErrNotParticipant)
}
