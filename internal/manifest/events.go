package manifest

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// EventType enumerates the four valid manifest lifecycle events
// (spec §4.D "Event hooks").
type EventType string

const (
	EventStartup      EventType = "startup"
	EventConfigChange EventType = "config_change"
	EventServerHealth EventType = "server_health"
	EventManual       EventType = "manual"
)

func (e EventType) valid() bool {
	switch e {
	case EventStartup, EventConfigChange, EventServerHealth, EventManual:
		return true
	default:
		return false
	}
}

// CallbackStatus is a fired callback's outcome, captured into its
// [CallbackResult] (spec §3 "EventRecord" -> "results[]").
type CallbackStatus string

const (
	CallbackSuccess CallbackStatus = "success"
	CallbackError   CallbackStatus = "error"
)

// CallbackResult is one registered callback's outcome from a single event
// firing, mirroring spec §3's `{callback_id, status, result|error}`.
type CallbackResult struct {
	CallbackID int            `json:"callback_id"`
	Status     CallbackStatus `json:"status"`
	Result     any            `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// EventRecord is one entry in the bounded event history ring (spec §3
// "EventRecord"), carrying the event's data payload plus every registered
// callback's captured outcome.
type EventRecord struct {
	Type        EventType        `json:"type"`
	Data        Manifest         `json:"data"`
	At          time.Time        `json:"at"`
	ServerCount int              `json:"server_count"`
	Results     []CallbackResult `json:"results"`
}

// maxEventHistory bounds the in-memory event ring (spec §4.D).
const maxEventHistory = 100

// Callback is a user-registered side effect invoked after the built-in
// handling for an event type. Its return value and error are captured into
// the firing [EventRecord]'s Results (spec §4.D "capturing each callback's
// return or exception into the event record"). A callback's panic or error
// never aborts the firing of subsequent callbacks.
type Callback func(EventType, Manifest) (any, error)

// HookManager dispatches manifest lifecycle events to a built-in side
// effect plus any number of registered callbacks, while retaining a
// bounded history of fired events.
type HookManager struct {
	mu        sync.Mutex
	callbacks map[EventType][]Callback
	nextID    int
	history   []EventRecord
}

// NewHookManager constructs an empty HookManager.
func NewHookManager() *HookManager {
	return &HookManager{callbacks: make(map[EventType][]Callback)}
}

// On registers cb to run whenever evt fires. Registering against an event
// type outside the fixed set (spec §4.D "Registering a callback for an
// unknown type is an error") returns an error and leaves the manager
// unchanged.
func (h *HookManager) On(evt EventType, cb Callback) error {
	if !evt.valid() {
		return fmt.Errorf("manifest: unknown event type %q", evt)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callbacks[evt] = append(h.callbacks[evt], cb)
	return nil
}

// Fire runs evt's built-in side effect (a structured log line) followed by
// every registered callback for evt in registration order, isolating each
// callback's panic or error so one broken callback cannot prevent the others
// from running, then records the event plus every callback's outcome into
// the bounded history ring.
func (h *HookManager) Fire(evt EventType, m Manifest) {
	if !evt.valid() {
		return
	}

	slog.Info("manifest: event fired", "event", evt, "server_count", len(m.Servers))

	h.mu.Lock()
	callbacks := append([]Callback{}, h.callbacks[evt]...)
	firstID := h.nextID
	h.nextID += len(callbacks)
	h.mu.Unlock()

	results := make([]CallbackResult, len(callbacks))
	for i, cb := range callbacks {
		results[i] = runCallback(firstID+i, evt, m, cb)
	}

	record := EventRecord{Type: evt, Data: m, At: time.Now(), ServerCount: len(m.Servers), Results: results}
	h.mu.Lock()
	h.history = append(h.history, record)
	if len(h.history) > maxEventHistory {
		h.history = h.history[len(h.history)-maxEventHistory:]
	}
	h.mu.Unlock()
}

func runCallback(id int, evt EventType, m Manifest, cb Callback) (result CallbackResult) {
	result = CallbackResult{CallbackID: id, Status: CallbackSuccess}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("manifest: event callback panicked, continuing", "event", evt, "recover", r)
			result = CallbackResult{CallbackID: id, Status: CallbackError, Error: fmt.Sprintf("panic: %v", r)}
		}
	}()
	out, err := cb(evt, m)
	if err != nil {
		return CallbackResult{CallbackID: id, Status: CallbackError, Error: err.Error()}
	}
	return CallbackResult{CallbackID: id, Status: CallbackSuccess, Result: out}
}

// History returns a copy of the bounded event history, oldest first.
func (h *HookManager) History() []EventRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]EventRecord, len(h.history))
	copy(out, h.history)
	return out
}
