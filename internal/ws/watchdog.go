package ws

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"talkflow-service/internal/observability"
)

// DefaultCallTimeout is how long an unanswered call-request to an offline
// recipient waits before the caller is notified.
const DefaultCallTimeout = 20 * time.Second

const reasonRecipientUnavailable = "Recipient not available"

// CallWatchdog arms one-shot liveness checks for call requests addressed to
// offline recipients. Each timer is independent per call-request. Timers are
// cancelled when the recipient comes online; if one fires anyway it re-checks
// liveness before synthesizing anything, so a duplicate or late call-end is
// the worst possible outcome and peers must treat call-end as idempotent.
type CallWatchdog struct {
	registry *Registry
	timeout  time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	pending map[string]map[string]*time.Timer // recipient -> watchdog id -> timer
}

// NewCallWatchdog constructs a CallWatchdog with the default 20s timeout.
func NewCallWatchdog(registry *Registry, logger *zap.Logger) *CallWatchdog {
	return &CallWatchdog{
		registry: registry,
		timeout:  DefaultCallTimeout,
		logger:   logger,
		pending:  make(map[string]map[string]*time.Timer),
	}
}

// SetTimeout overrides the liveness timeout. Intended for tests.
func (w *CallWatchdog) SetTimeout(d time.Duration) { w.timeout = d }

// Arm schedules a liveness check for a call from caller to recipient and
// returns the watchdog id.
func (w *CallWatchdog) Arm(caller, recipient string) string {
	id := newConnID()

	w.mu.Lock()
	timers, ok := w.pending[recipient]
	if !ok {
		timers = make(map[string]*time.Timer)
		w.pending[recipient] = timers
	}
	timers[id] = time.AfterFunc(w.timeout, func() { w.fire(id, caller, recipient) })
	w.mu.Unlock()

	w.logger.Info("call watchdog armed",
		zap.String("caller", caller), zap.String("recipient", recipient), zap.String("watchdog_id", id))
	return id
}

// CancelFor stops every pending watchdog addressed to the recipient. Called
// when the recipient registers a session: the caller's client now delivers
// the ringing call itself, and a synthesized call-end would be a lie.
func (w *CallWatchdog) CancelFor(recipient string) {
	w.mu.Lock()
	timers := w.pending[recipient]
	delete(w.pending, recipient)
	w.mu.Unlock()

	for id, timer := range timers {
		if timer.Stop() {
			observability.IncCallWatchdog("cancelled")
			w.logger.Info("call watchdog cancelled",
				zap.String("recipient", recipient), zap.String("watchdog_id", id))
		}
	}
}

// PendingFor returns the number of armed watchdogs for the recipient.
func (w *CallWatchdog) PendingFor(recipient string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending[recipient])
}

func (w *CallWatchdog) fire(id, caller, recipient string) {
	w.mu.Lock()
	timers, ok := w.pending[recipient]
	if ok {
		if _, armed := timers[id]; !armed {
			// Lost the race against CancelFor.
			w.mu.Unlock()
			return
		}
		delete(timers, id)
		if len(timers) == 0 {
			delete(w.pending, recipient)
		}
	}
	w.mu.Unlock()

	if w.registry.IsOnline(recipient) {
		w.logger.Info("call watchdog fired but recipient is online",
			zap.String("recipient", recipient), zap.String("watchdog_id", id))
		observability.IncCallWatchdog("recipient_online")
		return
	}

	payload, err := json.Marshal(map[string]string{
		"type":   TypeCallEnd,
		"to":     caller,
		"reason": reasonRecipientUnavailable,
	})
	if err != nil {
		return
	}
	w.registry.Send(caller, payload)
	observability.IncCallWatchdog("fired")
	w.logger.Info("call ended automatically, recipient still offline",
		zap.String("caller", caller), zap.String("recipient", recipient), zap.String("watchdog_id", id))
}
