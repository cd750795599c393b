package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrivateChatIDOrderIndependent(t *testing.T) {
	require.Equal(t, "3_5", PrivateChatID(3, 5))
	require.Equal(t, "3_5", PrivateChatID(5, 3))
	require.Equal(t, "7_7", PrivateChatID(7, 7))
}

func TestGroupChatID(t *testing.T) {
	require.Equal(t, "group_7", GroupChatID(7))
}
