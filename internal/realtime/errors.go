package realtime

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrAlreadyOpened    = errors.New("connection already opened")
	ErrHandshakeFailed  = errors.New("realtime handshake rejected")
	ErrHandshakeTimeout = errors.New("realtime handshake timed out")
	ErrHeartbeatTimeout = errors.New("no heartbeat within interval")
	ErrWriteTimeout     = errors.New("write timeout")
)

// Registry-related errors
var (
	ErrNilListener = errors.New("listener callback cannot be nil")
)

// Supervisor-related errors
var (
	ErrSupervisorAlreadyRunning = errors.New("supervisor is already running")
	ErrSupervisorNotRunning     = errors.New("supervisor is not running")
)
