package history

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	dbconfig "studyhall/pkg/database"
	"studyhall/pkg/interfaces"
	"studyhall/pkg/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	config := dbconfig.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "archive.db")

	manager, err := NewManager(config)
	if err != nil {
		t.Fatalf("Failed to create archive manager: %v", err)
	}
	t.Cleanup(func() { _ = manager.Close() })

	return manager
}

func storedEvent(id int, kind string, receivedAt time.Time) *types.NotificationEvent {
	return &types.NotificationEvent{
		ID:         fmt.Sprintf("event-%d", id),
		Kind:       kind,
		Message:    fmt.Sprintf("message %d", id),
		ReceivedAt: receivedAt,
	}
}

func TestManager_StoreAndLoadRoundtrip(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	attemptID := 42
	event := storedEvent(1, types.EventKindWarning, time.Now().Truncate(time.Second))
	event.RelatedAttemptID = &attemptID

	if err := manager.StoreNotification(ctx, "student-1", event); err != nil {
		t.Fatalf("StoreNotification failed: %v", err)
	}

	loaded, err := manager.LoadRecentNotifications(ctx, "student-1", 10)
	if err != nil {
		t.Fatalf("LoadRecentNotifications failed: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("Loaded %d notifications, want 1", len(loaded))
	}

	got := loaded[0]
	if got.ID != event.ID || got.Kind != event.Kind || got.Message != event.Message {
		t.Errorf("Loaded notification differs: %+v", got)
	}
	if got.RelatedAttemptID == nil || *got.RelatedAttemptID != 42 {
		t.Error("Attempt reference lost in roundtrip")
	}
	if got.Read {
		t.Error("Notification should load unread")
	}
}

func TestManager_LoadOrderAndLimit(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	for i := 1; i <= 5; i++ {
		event := storedEvent(i, types.EventKindInfo, base.Add(time.Duration(i)*time.Minute))
		if err := manager.StoreNotification(ctx, "student-1", event); err != nil {
			t.Fatalf("StoreNotification failed: %v", err)
		}
	}

	loaded, err := manager.LoadRecentNotifications(ctx, "student-1", 3)
	if err != nil {
		t.Fatalf("LoadRecentNotifications failed: %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("Loaded %d notifications, want limit 3", len(loaded))
	}

	// Most recent first: event-5, event-4, event-3
	for i, want := range []string{"event-5", "event-4", "event-3"} {
		if loaded[i].ID != want {
			t.Errorf("loaded[%d].ID = %q, want %q", i, loaded[i].ID, want)
		}
	}
}

func TestManager_UserIsolation(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Second)
	if err := manager.StoreNotification(ctx, "student-1", storedEvent(1, types.EventKindInfo, now)); err != nil {
		t.Fatalf("StoreNotification failed: %v", err)
	}
	if err := manager.StoreNotification(ctx, "student-2", storedEvent(2, types.EventKindInfo, now)); err != nil {
		t.Fatalf("StoreNotification failed: %v", err)
	}

	loaded, err := manager.LoadRecentNotifications(ctx, "student-1", 10)
	if err != nil {
		t.Fatalf("LoadRecentNotifications failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].ID != "event-1" {
		t.Errorf("student-1 should only see their own notification, got %d", len(loaded))
	}
}

func TestManager_MarkReadFlags(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Second)
	for i := 1; i <= 3; i++ {
		if err := manager.StoreNotification(ctx, "student-1", storedEvent(i, types.EventKindInfo, now.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("StoreNotification failed: %v", err)
		}
	}

	if err := manager.MarkNotificationRead(ctx, "event-2"); err != nil {
		t.Fatalf("MarkNotificationRead failed: %v", err)
	}

	loaded, err := manager.LoadRecentNotifications(ctx, "student-1", 10)
	if err != nil {
		t.Fatalf("LoadRecentNotifications failed: %v", err)
	}
	for _, event := range loaded {
		if event.ID == "event-2" && !event.Read {
			t.Error("event-2 should be read")
		}
		if event.ID != "event-2" && event.Read {
			t.Errorf("%s should be unread", event.ID)
		}
	}

	if err := manager.MarkAllNotificationsRead(ctx, "student-1"); err != nil {
		t.Fatalf("MarkAllNotificationsRead failed: %v", err)
	}
	loaded, err = manager.LoadRecentNotifications(ctx, "student-1", 10)
	if err != nil {
		t.Fatalf("LoadRecentNotifications failed: %v", err)
	}
	for _, event := range loaded {
		if !event.Read {
			t.Errorf("%s should be read after mark-all", event.ID)
		}
	}
}

func TestManager_MarkReadUnknownID(t *testing.T) {
	manager := newTestManager(t)

	err := manager.MarkNotificationRead(context.Background(), "no-such-event")
	if !errors.Is(err, interfaces.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestManager_ClearNotifications(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Second)
	if err := manager.StoreNotification(ctx, "student-1", storedEvent(1, types.EventKindStop, now)); err != nil {
		t.Fatalf("StoreNotification failed: %v", err)
	}
	if err := manager.StoreNotification(ctx, "student-2", storedEvent(2, types.EventKindStop, now)); err != nil {
		t.Fatalf("StoreNotification failed: %v", err)
	}

	if err := manager.ClearNotifications(ctx, "student-1"); err != nil {
		t.Fatalf("ClearNotifications failed: %v", err)
	}

	loaded, _ := manager.LoadRecentNotifications(ctx, "student-1", 10)
	if len(loaded) != 0 {
		t.Errorf("student-1 notifications = %d after clear, want 0", len(loaded))
	}

	other, _ := manager.LoadRecentNotifications(ctx, "student-2", 10)
	if len(other) != 1 {
		t.Errorf("Clearing one user must not touch another, got %d", len(other))
	}
}

func TestManager_StoreSameIDReplaces(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Second)
	event := storedEvent(1, types.EventKindInfo, now)
	if err := manager.StoreNotification(ctx, "student-1", event); err != nil {
		t.Fatalf("StoreNotification failed: %v", err)
	}

	event.Message = "updated message"
	event.Read = true
	if err := manager.StoreNotification(ctx, "student-1", event); err != nil {
		t.Fatalf("Replacing store failed: %v", err)
	}

	loaded, err := manager.LoadRecentNotifications(ctx, "student-1", 10)
	if err != nil {
		t.Fatalf("LoadRecentNotifications failed: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("Loaded %d notifications after replace, want 1", len(loaded))
	}
	if loaded[0].Message != "updated message" || !loaded[0].Read {
		t.Errorf("Replace did not update fields: %+v", loaded[0])
	}
}

func TestManager_HealthCheck(t *testing.T) {
	manager := newTestManager(t)

	if err := manager.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed on a live database: %v", err)
	}
}

func TestManager_CloseRejectsWrites(t *testing.T) {
	config := dbconfig.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "archive.db")

	manager, err := NewManager(config)
	if err != nil {
		t.Fatalf("Failed to create archive manager: %v", err)
	}

	if err := manager.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := manager.Close(); err != nil {
		t.Errorf("Second close should be a no-op, got %v", err)
	}

	err = manager.StoreNotification(context.Background(), "student-1", storedEvent(1, types.EventKindInfo, time.Now()))
	if err == nil {
		t.Error("Store after close should fail")
	}
}

func TestManager_InvalidConfigRejected(t *testing.T) {
	config := dbconfig.DefaultConfig()
	config.DatabasePath = ""

	if _, err := NewManager(config); err == nil {
		t.Error("Empty database path should be rejected")
	}
}
