package interfaces_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"studyhall/pkg/interfaces"
	"studyhall/pkg/types"
)

// Mock implementations for compile-time interface verification

type mockTokenSource struct{}

func (m *mockTokenSource) GetValidSession(ctx context.Context) (*types.Session, error) {
	return nil, nil
}
func (m *mockTokenSource) SessionEnded() <-chan struct{} { return nil }

type mockSocket struct{}

func (m *mockSocket) ReadMessage() (int, []byte, error)            { return 0, nil, nil }
func (m *mockSocket) WriteMessage(messageType int, d []byte) error { return nil }
func (m *mockSocket) SetReadDeadline(t time.Time) error            { return nil }
func (m *mockSocket) SetWriteDeadline(t time.Time) error           { return nil }
func (m *mockSocket) Close() error                                 { return nil }

type mockTransport struct{}

func (m *mockTransport) Dial(ctx context.Context, url string, header http.Header) (interfaces.Socket, error) {
	return &mockSocket{}, nil
}

type mockArchive struct{}

func (m *mockArchive) StoreNotification(ctx context.Context, userID string, event *types.NotificationEvent) error {
	return nil
}
func (m *mockArchive) MarkNotificationRead(ctx context.Context, eventID string) error { return nil }
func (m *mockArchive) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	return nil
}
func (m *mockArchive) ClearNotifications(ctx context.Context, userID string) error { return nil }
func (m *mockArchive) LoadRecentNotifications(ctx context.Context, userID string, limit int) ([]*types.NotificationEvent, error) {
	return nil, nil
}
func (m *mockArchive) HealthCheck(ctx context.Context) error { return nil }
func (m *mockArchive) Close() error                          { return nil }

// Interface compliance checks - these fail to compile if the interfaces drift
func TestInterfaceCompliance(t *testing.T) {
	var _ interfaces.TokenSource = (*mockTokenSource)(nil)
	var _ interfaces.Socket = (*mockSocket)(nil)
	var _ interfaces.Transport = (*mockTransport)(nil)
	var _ interfaces.HistoryArchive = (*mockArchive)(nil)

	t.Log("All mock implementations satisfy their interfaces")
}
