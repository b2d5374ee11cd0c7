package realtime

import (
	"log"
	"sync"

	"github.com/google/uuid"
	"studyhall/pkg/types"
)

// listenerEntry pairs a subscription id with its callback to preserve
// registration order during dispatch
type listenerEntry struct {
	id       string
	callback func(types.NotificationEvent)
}

// Registry multiplexes one connection's inbound event stream to N
// independently-registered listeners
// ARCHITECTURAL DISCOVERY: Pure fan-out without connection lifecycle logic -
// the channel stays open while UI components subscribe and unsubscribe freely,
// so a transient unmount never drops the underlying connection
type Registry struct {
	mu        sync.RWMutex // TECHNICAL DISCOVERY: RWMutex optimizes for dispatch-heavy access
	listeners []listenerEntry
}

// NewRegistry creates a new subscription registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Subscribe registers a listener and returns an opaque subscription id
// immediately usable for Unsubscribe
func (r *Registry) Subscribe(callback func(types.NotificationEvent)) (string, error) {
	if callback == nil {
		return "", ErrNilListener
	}

	id := uuid.New().String()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, listenerEntry{id: id, callback: callback})

	return id, nil
}

// Unsubscribe removes a listener
// FUNCTIONAL DISCOVERY: Idempotent - safe to call multiple times from
// component unmount races; unknown ids are a no-op, not an error
func (r *Registry) Unsubscribe(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, entry := range r.listeners {
		if entry.id == id {
			r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
			return
		}
	}
}

// Dispatch invokes every currently-registered callback with the event in
// registration order
// ARCHITECTURAL DISCOVERY: The listener set is snapshotted before invocation
// so a listener unsubscribing itself (or others subscribing) mid-dispatch
// cannot corrupt iteration or skip/duplicate deliveries for other listeners
func (r *Registry) Dispatch(event types.NotificationEvent) {
	r.mu.RLock()
	snapshot := make([]listenerEntry, len(r.listeners))
	copy(snapshot, r.listeners)
	r.mu.RUnlock()

	for _, entry := range snapshot {
		r.invoke(entry, event)
	}
}

// invoke delivers to one listener, containing panics so one failing callback
// never prevents delivery to the remaining listeners
func (r *Registry) invoke(entry listenerEntry, event types.NotificationEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Listener %s panicked during dispatch: %v", entry.id, rec)
		}
	}()
	entry.callback(event)
}

// Count returns the number of registered listeners
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}
