package realtime

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"studyhall/internal/config"
	"studyhall/pkg/interfaces"
	"studyhall/pkg/types"
)

// Supervisor is the only component that decides when a realtime connection
// should exist, wiring session lifecycle to connection lifecycle
// ARCHITECTURAL DISCOVERY: Single goroutine coordination through channels
// prevents race conditions between state reports, retry timers, health polls
// and session teardown
type Supervisor struct {
	cfg       *config.RealtimeConfig
	tokens    interfaces.TokenSource
	transport interfaces.Transport
	registry  *Registry
	policy    *ReconnectPolicy

	// FUNCTIONAL DISCOVERY: Buffered report channel absorbs transition bursts;
	// anything dropped is recovered by the health poll
	reports    chan types.ConnectionState
	shutdownCh chan struct{}

	mu      sync.RWMutex
	running bool
	conn    *Connection
	status  types.ConnectionState
}

// NewSupervisor creates a supervisor with injected dependencies
// ARCHITECTURAL DISCOVERY: Constructed per session via dependency injection
// rather than a process-wide singleton, so tests can run independent instances
func NewSupervisor(cfg *config.RealtimeConfig, tokens interfaces.TokenSource,
	transport interfaces.Transport, registry *Registry) *Supervisor {

	return &Supervisor{
		cfg:        cfg,
		tokens:     tokens,
		transport:  transport,
		registry:   registry,
		policy:     NewReconnectPolicy(cfg.ReconnectBaseDelay, cfg.ReconnectMaxDelay, cfg.MaxReconnectAttempts),
		reports:    make(chan types.ConnectionState, 16),
		shutdownCh: make(chan struct{}),
		status:     types.ConnectionState{Kind: types.StateDisconnected},
	}
}

// Start opens the realtime channel for the current session and begins
// supervising it
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSupervisorAlreadyRunning
	}
	s.running = true
	// FUNCTIONAL DISCOVERY: Fresh shutdown channel per start - the previous
	// one stays closed, so a stopped supervisor can be started again
	s.shutdownCh = make(chan struct{})
	shutdownCh := s.shutdownCh
	s.mu.Unlock()

	log.Println("Starting realtime supervisor...")

	go s.run(ctx, shutdownCh)
	return nil
}

// Stop tears the channel down and stops supervising
// FUNCTIONAL DISCOVERY: Safe channel close using select to prevent panic
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrSupervisorNotRunning
	}
	s.running = false

	log.Println("Stopping realtime supervisor...")

	select {
	case <-s.shutdownCh:
	default:
		close(s.shutdownCh)
	}

	return nil
}

// Status returns the supervisor's view of the connection state, including
// the terminal "disconnected, give up" surface after policy exhaustion
func (s *Supervisor) Status() types.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// run is the main supervision loop
// TECHNICAL DISCOVERY: Single select loop handles all coordination - retry
// timers live here, never inside the connection, keeping retry policy
// independent from connection mechanics
func (s *Supervisor) run(ctx context.Context, shutdownCh <-chan struct{}) {
	defer log.Println("Realtime supervision stopped")

	healthTicker := time.NewTicker(s.cfg.HealthPollInterval)
	defer healthTicker.Stop()

	// attempt is the retry number assigned to the next launched connection
	attempt := 0
	var retryC <-chan time.Time

	go s.launch(ctx, attempt)

	for {
		select {
		case state := <-s.reports:
			s.setStatus(state)

			switch state.Kind {
			case types.StateConnected:
				// FUNCTIONAL DISCOVERY: Handshake success resets the retry
				// counter so the next outage starts backoff from scratch
				attempt = 0

			case types.StateReconnecting:
				log.Printf("Connection lost (attempt %d), retrying in %v: %s",
					state.Attempt, state.NextDelay, state.Reason)
				attempt = state.Attempt + 1
				retryC = time.After(state.NextDelay)

			case types.StateFailed:
				// FUNCTIONAL DISCOVERY: Failed is terminal - no further timers,
				// only the persistent give-up status for observability
				log.Printf("Realtime connection failed permanently: %s", state.Reason)
				retryC = nil
			}

		case <-retryC:
			retryC = nil
			// Always close before reopening - at most one non-terminal
			// connection instance may exist per session
			s.closeConn()
			go s.launch(ctx, attempt)

		case <-healthTicker.C:
			// ARCHITECTURAL DISCOVERY: Polling-based health check layered on
			// top of event-driven transitions - a defensive measure against
			// missed transition notifications, kept deliberately
			if !s.healthy() {
				log.Println("Health poll mismatch: expected connected, socket is not")
				s.closeConn()

				var state types.ConnectionState
				if s.policy.ShouldGiveUp(attempt) {
					state = types.ConnectionState{Kind: types.StateFailed, Attempt: attempt, Reason: "health poll mismatch"}
					retryC = nil
				} else {
					state = types.ConnectionState{
						Kind:      types.StateReconnecting,
						Attempt:   attempt,
						NextDelay: s.policy.NextDelay(attempt),
						Reason:    "health poll mismatch",
					}
					retryC = time.After(state.NextDelay)
					attempt++
				}
				s.setStatus(state)
			}

		case <-s.tokens.SessionEnded():
			// Session over (logout or fatal renewal failure): tear down,
			// cancel any pending retry, never reconnect
			log.Println("Session ended, closing realtime channel")
			s.teardown(shutdownCh)
			return

		case <-shutdownCh:
			s.teardown(shutdownCh)
			return

		case <-ctx.Done():
			s.teardown(shutdownCh)
			return
		}
	}
}

// launch fetches the current session and opens a fresh connection instance
// FUNCTIONAL DISCOVERY: The session is re-fetched before every open because
// the token may have rotated since the last attempt
func (s *Supervisor) launch(ctx context.Context, attempt int) {
	session, err := s.tokens.GetValidSession(ctx)
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionExpired) || errors.Is(err, interfaces.ErrRefreshFailed) {
			// SessionEnded signal will tear the loop down
			return
		}

		// Transient token fetch failure rides the same reconnect path
		var state types.ConnectionState
		if s.policy.ShouldGiveUp(attempt) {
			state = types.ConnectionState{Kind: types.StateFailed, Attempt: attempt, Reason: err.Error()}
		} else {
			state = types.ConnectionState{
				Kind:      types.StateReconnecting,
				Attempt:   attempt,
				NextDelay: s.policy.NextDelay(attempt),
				Reason:    err.Error(),
			}
		}
		// FUNCTIONAL DISCOVERY: This report is the only thing that schedules
		// the next retry, so it must never be dropped - launch runs outside
		// the run loop and may block until the loop consumes it
		select {
		case s.reports <- state:
		case <-ctx.Done():
		}
		return
	}

	conn := NewConnection(s.cfg, s.transport, s.policy, attempt, s.registry.Dispatch, s.reports)
	s.setConn(conn)

	// Open reports its own outcome through the reports channel
	_ = conn.Open(ctx, session)
}

// healthy reports whether the supervisor's expectation matches the socket
func (s *Supervisor) healthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.status.Kind != types.StateConnected {
		return true // nothing to cross-check while not expecting a live socket
	}
	return s.conn != nil && s.conn.Connected()
}

func (s *Supervisor) setStatus(state types.ConnectionState) {
	s.mu.Lock()
	s.status = state
	s.mu.Unlock()
}

func (s *Supervisor) setConn(conn *Connection) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

func (s *Supervisor) closeConn() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// teardown closes the connection and settles to Disconnected
func (s *Supervisor) teardown(shutdownCh <-chan struct{}) {
	s.closeConn()
	s.setStatus(types.ConnectionState{Kind: types.StateDisconnected})

	s.mu.Lock()
	// FUNCTIONAL DISCOVERY: Only the current generation may mark the
	// supervisor stopped - a restart swaps in a fresh shutdown channel, and
	// the old loop's late teardown must not flag the new one as not running
	if s.shutdownCh == shutdownCh {
		s.running = false
	}
	s.mu.Unlock()
}
