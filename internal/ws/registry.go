package ws

import (
	"sync"

	"go.uber.org/zap"

	"talkflow-service/internal/observability"
)

// Registry maps identity addresses to their live sessions. The map itself is
// a sync.Map and each identity's session list carries its own mutex, so
// traffic for one identity never serializes traffic for another.
type Registry struct {
	entries sync.Map // email -> *registryEntry
	logger  *zap.Logger
}

type registryEntry struct {
	mu       sync.Mutex
	sessions []Session
	// removed marks an entry that lost its last session and was deleted
	// from the map; a racing Register must not append to it.
	removed bool
}

// NewRegistry constructs an empty Registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds a session to the identity's live set.
func (r *Registry) Register(email string, s Session) {
	for {
		val, _ := r.entries.LoadOrStore(email, &registryEntry{})
		entry := val.(*registryEntry)
		entry.mu.Lock()
		if entry.removed {
			entry.mu.Unlock()
			continue
		}
		entry.sessions = append(entry.sessions, s)
		count := len(entry.sessions)
		entry.mu.Unlock()

		observability.IncWSActive()
		r.logger.Info("session registered",
			zap.String("email", email), zap.String("conn_id", s.ID()), zap.Int("sessions", count))
		return
	}
}

// Unregister removes a session; the identity's entry is dropped entirely
// once its last session is gone.
func (r *Registry) Unregister(email string, s Session) {
	val, ok := r.entries.Load(email)
	if !ok {
		return
	}
	entry := val.(*registryEntry)

	entry.mu.Lock()
	found := false
	for i, sess := range entry.sessions {
		if sess == s {
			entry.sessions = append(entry.sessions[:i], entry.sessions[i+1:]...)
			found = true
			break
		}
	}
	remaining := len(entry.sessions)
	if found && remaining == 0 {
		entry.removed = true
		r.entries.Delete(email)
	}
	entry.mu.Unlock()

	if found {
		observability.DecWSActive()
		r.logger.Info("session unregistered",
			zap.String("email", email), zap.String("conn_id", s.ID()), zap.Int("sessions", remaining))
	}
}

// Send delivers payload to every currently-open session of the identity,
// best-effort and at most once per session. Sessions that fail to accept the
// write are closed and evicted; the failure never reaches the caller. An
// offline identity is a logged no-op.
func (r *Registry) Send(email string, payload []byte) {
	val, ok := r.entries.Load(email)
	if !ok {
		r.logger.Info("recipient offline, payload skipped", zap.String("email", email))
		return
	}
	entry := val.(*registryEntry)

	// Snapshot under the entry lock; writes happen outside it so a slow or
	// dead socket cannot block register/unregister for this identity.
	entry.mu.Lock()
	snapshot := make([]Session, len(entry.sessions))
	copy(snapshot, entry.sessions)
	entry.mu.Unlock()

	for _, sess := range snapshot {
		if err := sess.Send(payload); err != nil {
			r.logger.Warn("session write failed, evicting",
				zap.String("email", email), zap.String("conn_id", sess.ID()), zap.Error(err))
			sess.Close()
			r.Unregister(email, sess)
			observability.IncWSEvent("ws_error")
		}
	}
}

// IsOnline reports whether the identity has at least one live session.
func (r *Registry) IsOnline(email string) bool {
	val, ok := r.entries.Load(email)
	if !ok {
		return false
	}
	entry := val.(*registryEntry)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return len(entry.sessions) > 0
}

// SessionCount returns the identity's live session count.
func (r *Registry) SessionCount(email string) int {
	val, ok := r.entries.Load(email)
	if !ok {
		return 0
	}
	entry := val.(*registryEntry)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return len(entry.sessions)
}
