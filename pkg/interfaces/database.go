package interfaces

import (
	"context"

	"studyhall/pkg/types"
)

// HistoryArchive handles persistent notification storage
// ARCHITECTURAL DISCOVERY: Single interface for all persistence operations
// enables consistent transaction handling and connection management
type HistoryArchive interface {
	// StoreNotification persists one decoded notification for a user
	// FUNCTIONAL DISCOVERY: Storage happens on the dispatch path but must
	// never block it - implementations queue writes internally
	StoreNotification(ctx context.Context, userID string, event *types.NotificationEvent) error

	// MarkNotificationRead flips the read flag for a single notification
	MarkNotificationRead(ctx context.Context, eventID string) error

	// MarkAllNotificationsRead flips the read flag for every notification of a user
	MarkAllNotificationsRead(ctx context.Context, userID string) error

	// ClearNotifications removes all stored notifications for a user
	ClearNotifications(ctx context.Context, userID string) error

	// LoadRecentNotifications returns up to limit notifications for a user,
	// most recent first
	// TECHNICAL DISCOVERY: Returns slice of pointers for memory efficiency
	// when seeding the in-memory history after login
	LoadRecentNotifications(ctx context.Context, userID string, limit int) ([]*types.NotificationEvent, error)

	// HealthCheck verifies database connectivity and basic operations
	HealthCheck(ctx context.Context) error

	// Close closes the database connection and cleans up resources
	// TECHNICAL DISCOVERY: Synchronous close ensures all pending operations
	// complete before application shutdown
	Close() error
}
