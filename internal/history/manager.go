package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	// ARCHITECTURAL DISCOVERY: Import SQLite driver but only reference in connection string
	_ "github.com/mattn/go-sqlite3"
	dbconfig "studyhall/pkg/database"
	"studyhall/pkg/interfaces"
	"studyhall/pkg/types"
)

// Manager implements the HistoryArchive interface over SQLite
// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write
// contention while reads stay concurrent through the pool
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // protects closed status
}

// writeOperation represents one queued database write
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the archive database, applies migrations and starts the
// write loop
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid archive config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// FUNCTIONAL DISCOVERY: Connection pool configuration critical for concurrent reads
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplyOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	if err := dbconfig.NewMigrationManager(db).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	if err := dbconfig.NewSchemaValidator(db).ValidateTablesExist(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100), // buffer prevents blocking on write bursts
		shutdown:     make(chan struct{}),
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			// FUNCTIONAL DISCOVERY: Retry exactly once after 5 seconds for
			// transient lock contention; not-found is a definitive answer,
			// never retried
			err := op.operation(m.db)
			if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
				log.Printf("Archive write failed, retrying in 5 seconds: %v", err)
				time.Sleep(5 * time.Second)
				err = op.operation(m.db)
				if err != nil {
					log.Printf("Archive write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("archive manager is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("archive manager is shutting down")
	}
}

// StoreNotification persists one notification for a user
func (m *Manager) StoreNotification(ctx context.Context, userID string, event *types.NotificationEvent) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT OR REPLACE INTO notifications (id, user_id, kind, message, attempt_id, received_at, read)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`

		var attemptID sql.NullInt64
		if event.RelatedAttemptID != nil {
			attemptID = sql.NullInt64{Int64: int64(*event.RelatedAttemptID), Valid: true}
		}

		_, err := db.ExecContext(ctx, query,
			event.ID,
			userID,
			event.Kind,
			event.Message,
			attemptID,
			event.ReceivedAt,
			boolToInt(event.Read),
		)
		if err != nil {
			return fmt.Errorf("failed to insert notification: %w", err)
		}

		return nil
	})
}

// MarkNotificationRead flips the read flag for one notification
func (m *Manager) MarkNotificationRead(ctx context.Context, eventID string) error {
	return m.executeWrite(func(db *sql.DB) error {
		result, err := db.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE id = ?`, eventID)
		if err != nil {
			return fmt.Errorf("failed to mark notification read: %w", err)
		}
		if affected, err := result.RowsAffected(); err == nil && affected == 0 {
			return interfaces.ErrNotFound
		}
		return nil
	})
}

// MarkAllNotificationsRead flips the read flag for every notification of a user
func (m *Manager) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE user_id = ?`, userID)
		if err != nil {
			return fmt.Errorf("failed to mark notifications read: %w", err)
		}
		return nil
	})
}

// ClearNotifications removes all stored notifications for a user
func (m *Manager) ClearNotifications(ctx context.Context, userID string) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `DELETE FROM notifications WHERE user_id = ?`, userID)
		if err != nil {
			return fmt.Errorf("failed to clear notifications: %w", err)
		}
		return nil
	})
}

// LoadRecentNotifications returns up to limit notifications, most recent first
// ARCHITECTURAL DISCOVERY: Read operations stay concurrent - no writeChannel
func (m *Manager) LoadRecentNotifications(ctx context.Context, userID string, limit int) ([]*types.NotificationEvent, error) {
	query := `
		SELECT id, kind, message, attempt_id, received_at, read
		FROM notifications
		WHERE user_id = ?
		ORDER BY received_at DESC
		LIMIT ?
	`

	rows, err := m.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*types.NotificationEvent

	for rows.Next() {
		var event types.NotificationEvent
		var attemptID sql.NullInt64
		var read int

		err := rows.Scan(
			&event.ID,
			&event.Kind,
			&event.Message,
			&attemptID,
			&event.ReceivedAt,
			&read,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}

		if attemptID.Valid {
			id := int(attemptID.Int64)
			event.RelatedAttemptID = &id
		}
		event.Read = read != 0

		events = append(events, &event)
	}

	return events, rows.Err()
}

// HealthCheck verifies database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// Close shuts down the write loop and closes the database
// TECHNICAL DISCOVERY: Synchronous close ensures all pending operations
// complete before application shutdown
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	return m.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
