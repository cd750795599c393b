package ws

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSession struct {
	id string

	mu       sync.Mutex
	frames   [][]byte
	failSend bool
	closed   bool
}

func newFakeSession(id string) *fakeSession {
	return &fakeSession{id: id}
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSend {
		return errors.New("write on dead socket")
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	s.frames = append(s.frames, buf)
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.frames))
	copy(out, s.frames)
	return out
}

func TestRegistryRegisterAndUnregister(t *testing.T) {
	registry := NewRegistry(zaptest.NewLogger(t))
	sess := newFakeSession("s1")

	require.False(t, registry.IsOnline("alice@example.com"))

	registry.Register("alice@example.com", sess)
	require.True(t, registry.IsOnline("alice@example.com"))
	require.Equal(t, 1, registry.SessionCount("alice@example.com"))

	registry.Unregister("alice@example.com", sess)
	require.False(t, registry.IsOnline("alice@example.com"))
	require.Equal(t, 0, registry.SessionCount("alice@example.com"))
}

func TestRegistrySendToAllSessions(t *testing.T) {
	registry := NewRegistry(zaptest.NewLogger(t))
	phone := newFakeSession("phone")
	laptop := newFakeSession("laptop")
	registry.Register("alice@example.com", phone)
	registry.Register("alice@example.com", laptop)

	registry.Send("alice@example.com", []byte(`{"type":"private"}`))

	require.Len(t, phone.received(), 1)
	require.Len(t, laptop.received(), 1)
}

func TestRegistrySendOfflineIsNoop(t *testing.T) {
	registry := NewRegistry(zaptest.NewLogger(t))
	registry.Send("ghost@example.com", []byte("hello"))
	require.False(t, registry.IsOnline("ghost@example.com"))
}

func TestRegistryEvictsFailedSession(t *testing.T) {
	registry := NewRegistry(zaptest.NewLogger(t))
	dead := newFakeSession("dead")
	dead.failSend = true
	live := newFakeSession("live")
	registry.Register("alice@example.com", dead)
	registry.Register("alice@example.com", live)

	registry.Send("alice@example.com", []byte("ping"))

	require.True(t, dead.closed)
	require.Equal(t, 1, registry.SessionCount("alice@example.com"))
	require.Len(t, live.received(), 1)

	// Delivery keeps working for the surviving session.
	registry.Send("alice@example.com", []byte("pong"))
	require.Len(t, live.received(), 2)
}

func TestRegistryUnregisterUnknownSession(t *testing.T) {
	registry := NewRegistry(zaptest.NewLogger(t))
	sess := newFakeSession("s1")
	registry.Register("alice@example.com", sess)

	registry.Unregister("alice@example.com", newFakeSession("other"))
	require.Equal(t, 1, registry.SessionCount("alice@example.com"))

	registry.Unregister("bob@example.com", sess)
	require.True(t, registry.IsOnline("alice@example.com"))
}

func TestRegistryConcurrentChurn(t *testing.T) {
	registry := NewRegistry(zaptest.NewLogger(t))

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			email := fmt.Sprintf("user%d@example.com", n%4)
			for j := 0; j < 50; j++ {
				sess := newFakeSession(fmt.Sprintf("s-%d-%d", n, j))
				registry.Register(email, sess)
				registry.Send(email, []byte("tick"))
				registry.Unregister(email, sess)
			}
		}(i)
	}
	wg.Wait()

	for n := 0; n < 4; n++ {
		email := fmt.Sprintf("user%d@example.com", n)
		require.Equal(t, 0, registry.SessionCount(email))
		require.False(t, registry.IsOnline(email))
	}
}
