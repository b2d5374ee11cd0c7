package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"studyhall/pkg/interfaces"
	"studyhall/pkg/types"
)

// Severity orders user-facing urgency: Stop > Warning > Info
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityStop
)

func (s Severity) String() string {
	switch s {
	case SeverityStop:
		return "stop"
	case SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

// SeverityOf maps an event kind to its urgency
// FUNCTIONAL DISCOVERY: Unknown kinds degrade to informational rather than
// alarming the user over a frame the decoder let through
func SeverityOf(kind string) Severity {
	switch kind {
	case types.EventKindStop:
		return SeverityStop
	case types.EventKindWarning:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Alert is the immediate user-facing feedback produced for each event;
// presentation (toast rendering) is a UI concern outside this core
type Alert struct {
	Event    types.NotificationEvent
	Severity Severity
}

// archiveTimeout bounds fire-and-forget archive writes
const archiveTimeout = 10 * time.Second

// Router turns decoded events into user feedback and maintains the bounded
// notification history
// ARCHITECTURAL DISCOVERY: The history buffer is mutated only here - no other
// component writes to it, so a single mutex suffices with no ordering hazards
type Router struct {
	mu         sync.Mutex
	maxHistory int
	history    []*types.NotificationEvent // oldest first; newest appended

	alerts chan Alert

	// optional write-through persistence
	archive interfaces.HistoryArchive
	userID  string
}

// NewRouter creates a router with the given history bound
func NewRouter(maxHistory int) *Router {
	if maxHistory <= 0 {
		maxHistory = 50
	}
	return &Router{
		maxHistory: maxHistory,
		// TECHNICAL DISCOVERY: Buffer sized to the history bound so a UI that
		// stalls briefly does not block the dispatch path
		alerts: make(chan Alert, maxHistory),
	}
}

// WithArchive enables write-through persistence of notifications for a user
func (r *Router) WithArchive(archive interfaces.HistoryArchive, userID string) *Router {
	r.archive = archive
	r.userID = userID
	return r
}

// Subscriber is the minimal registry surface the router needs to attach itself
type Subscriber interface {
	Subscribe(callback func(types.NotificationEvent)) (string, error)
}

// Attach registers the router as a listener on the subscription registry
func (r *Router) Attach(registry Subscriber) (string, error) {
	return registry.Subscribe(r.OnEvent)
}

// OnEvent classifies one event, emits the immediate alert, appends to the
// bounded history and writes through to the archive when configured
func (r *Router) OnEvent(event types.NotificationEvent) {
	stored := event // history owns its own copy
	stored.Read = false

	r.mu.Lock()
	r.history = append(r.history, &stored)
	// FUNCTIONAL DISCOVERY: FIFO eviction - oldest entries drop first once
	// the bound is exceeded
	if len(r.history) > r.maxHistory {
		overflow := len(r.history) - r.maxHistory
		r.history = append([]*types.NotificationEvent{}, r.history[overflow:]...)
	}
	r.mu.Unlock()

	alert := Alert{Event: stored, Severity: SeverityOf(stored.Kind)}
	select {
	case r.alerts <- alert:
	default:
		log.Printf("Alert channel full, dropping immediate alert for event %s", stored.ID)
	}

	if r.archive != nil {
		// TECHNICAL DISCOVERY: Archive write is fire-and-forget so local
		// persistence latency never blocks event fan-out
		go func(userID string, event types.NotificationEvent) {
			ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
			defer cancel()
			if err := r.archive.StoreNotification(ctx, userID, &event); err != nil {
				log.Printf("Failed to archive notification %s: %v", event.ID, err)
			}
		}(r.userID, stored)
	}
}

// Alerts exposes the immediate feedback stream to the UI
func (r *Router) Alerts() <-chan Alert {
	return r.alerts
}

// Seed preloads history entries (most recent first, as the archive returns
// them) without producing alerts; used once after login
func (r *Router) Seed(events []*types.NotificationEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Convert to oldest-first internal order and respect the bound
	for i := len(events) - 1; i >= 0; i-- {
		copied := *events[i]
		r.history = append(r.history, &copied)
	}
	if len(r.history) > r.maxHistory {
		overflow := len(r.history) - r.maxHistory
		r.history = append([]*types.NotificationEvent{}, r.history[overflow:]...)
	}
}

// GetHistory returns the history most recent first
// ARCHITECTURAL DISCOVERY: Returns copies - callers can never mutate the
// buffer behind the router's back
func (r *Router) GetHistory() []types.NotificationEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]types.NotificationEvent, 0, len(r.history))
	for i := len(r.history) - 1; i >= 0; i-- {
		out = append(out, *r.history[i])
	}
	return out
}

// GetUnreadCount returns the number of unread history entries
func (r *Router) GetUnreadCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, event := range r.history {
		if !event.Read {
			count++
		}
	}
	return count
}

// MarkRead flips the read flag for one event; idempotent, unknown ids are a no-op
func (r *Router) MarkRead(eventID string) {
	r.mu.Lock()
	var found bool
	for _, event := range r.history {
		if event.ID == eventID {
			event.Read = true
			found = true
			break
		}
	}
	r.mu.Unlock()

	if found && r.archive != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
			defer cancel()
			if err := r.archive.MarkNotificationRead(ctx, eventID); err != nil {
				log.Printf("Failed to archive read flag for %s: %v", eventID, err)
			}
		}()
	}
}

// MarkAllRead flips the read flag for every history entry
func (r *Router) MarkAllRead() {
	r.mu.Lock()
	for _, event := range r.history {
		event.Read = true
	}
	r.mu.Unlock()

	if r.archive != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
			defer cancel()
			if err := r.archive.MarkAllNotificationsRead(ctx, r.userID); err != nil {
				log.Printf("Failed to archive mark-all-read: %v", err)
			}
		}()
	}
}

// Clear empties the history
func (r *Router) Clear() {
	r.mu.Lock()
	r.history = nil
	r.mu.Unlock()

	if r.archive != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
			defer cancel()
			if err := r.archive.ClearNotifications(ctx, r.userID); err != nil {
				log.Printf("Failed to clear archived notifications: %v", err)
			}
		}()
	}
}
