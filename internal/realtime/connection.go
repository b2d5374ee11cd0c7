package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"studyhall/internal/config"
	"studyhall/pkg/interfaces"
	"studyhall/pkg/types"
)

// writeWait bounds how long a single frame write may take
const writeWait = 5 * time.Second

// Connection owns exactly one transport instance and its framed
// sub-protocol session
// ARCHITECTURAL DISCOVERY: A Connection is single-use - reconnection always
// creates a fresh instance, so a cancelled context doubles as the generation
// guard that suppresses late handshake callbacks from resurrecting a closed
// connection
type Connection struct {
	cfg       *config.RealtimeConfig
	transport interfaces.Transport
	policy    *ReconnectPolicy
	attempt   int // retry attempt this instance represents, assigned by the supervisor
	dispatch  func(types.NotificationEvent)
	reports   chan<- types.ConnectionState

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	failOnce  sync.Once

	writeCh chan types.Frame

	mu     sync.RWMutex
	state  types.ConnectionState
	socket interfaces.Socket
	opened bool
}

// NewConnection creates a connection for one open attempt
// FUNCTIONAL DISCOVERY: The supervisor passes the current attempt number so
// failure reports carry the correct backoff computed by the shared policy
func NewConnection(cfg *config.RealtimeConfig, transport interfaces.Transport, policy *ReconnectPolicy,
	attempt int, dispatch func(types.NotificationEvent), reports chan<- types.ConnectionState) *Connection {

	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		cfg:       cfg,
		transport: transport,
		policy:    policy,
		attempt:   attempt,
		dispatch:  dispatch,
		reports:   reports,
		ctx:       ctx,
		cancel:    cancel,
		writeCh:   make(chan types.Frame, 100), // TECHNICAL DISCOVERY: 100 buffer prevents blocking during bursts
		state:     types.ConnectionState{Kind: types.StateDisconnected},
	}
}

// Open establishes the transport, performs the authenticated handshake and
// subscribes to the caller's private event queue. Blocks until the handshake
// completes or fails.
func (c *Connection) Open(ctx context.Context, session *types.Session) error {
	c.mu.Lock()
	if c.opened {
		c.mu.Unlock()
		return ErrAlreadyOpened
	}
	c.opened = true
	c.state = types.ConnectionState{Kind: types.StateConnecting}
	c.mu.Unlock()

	c.report(types.ConnectionState{Kind: types.StateConnecting})

	dialCtx, dialCancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer dialCancel()

	// FUNCTIONAL DISCOVERY: The access token is read once at open time - each
	// reconnect re-fetches the current session, so the connection never holds
	// a live credential reference that could rotate underneath it
	header := http.Header{}
	header.Set("Authorization", "Bearer "+session.AccessToken)

	socket, err := c.transport.Dial(dialCtx, c.cfg.URL, header)
	if err != nil {
		return c.handshakeFailed(fmt.Errorf("%w: %v", ErrHandshakeFailed, err))
	}

	c.mu.Lock()
	c.socket = socket
	c.mu.Unlock()

	// Close during handshake cancels the in-flight attempt
	if c.ctx.Err() != nil {
		socket.Close()
		return ErrConnectionClosed
	}

	if err := c.handshake(socket, session); err != nil {
		socket.Close()
		return c.handshakeFailed(err)
	}

	// Handshake success resets the retry counter - a failure after a period of
	// stable connectivity restarts backoff from the base delay
	c.attempt = 0

	c.setState(types.ConnectionState{Kind: types.StateConnected})
	c.report(types.ConnectionState{Kind: types.StateConnected})

	go c.writeLoop(socket)
	go c.readLoop(socket)
	go c.heartbeatLoop()

	return nil
}

// handshake performs the framed protocol exchange on an established socket:
// connect frame with the bearer token, wait for the server's connected frame,
// then subscribe to the per-user attempt queue
func (c *Connection) handshake(socket interfaces.Socket, session *types.Session) error {
	deadline := time.Now().Add(c.cfg.HandshakeTimeout)

	connect := types.Frame{Type: types.FrameTypeConnect, Token: session.AccessToken}
	if err := writeFrame(socket, connect, deadline); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	if err := socket.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	_, data, err := socket.ReadMessage()
	if err != nil {
		if isTimeout(err) {
			return ErrHandshakeTimeout
		}
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	var reply types.Frame
	if err := json.Unmarshal(data, &reply); err != nil {
		return fmt.Errorf("%w: malformed handshake reply", ErrHandshakeFailed)
	}

	switch reply.Type {
	case types.FrameTypeConnected:
		// handshake accepted
	case types.FrameTypeError:
		return fmt.Errorf("%w: %s", ErrHandshakeFailed, reply.Error)
	default:
		return fmt.Errorf("%w: unexpected frame %q", ErrHandshakeFailed, reply.Type)
	}

	// FUNCTIONAL DISCOVERY: Subscription happens only after a successful
	// handshake so a rejected credential never leaves a dangling server-side
	// subscription for a stale session
	subscribe := types.Frame{
		Type:        types.FrameTypeSubscribe,
		Destination: fmt.Sprintf("/queue/attempt/%s", session.User.ID),
	}
	if err := writeFrame(socket, subscribe, time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	return nil
}

// writeLoop serializes all post-handshake frame writes
// ARCHITECTURAL DISCOVERY: Single writer goroutine pattern eliminates races
func (c *Connection) writeLoop(socket interfaces.Socket) {
	for {
		select {
		case frame := <-c.writeCh:
			if err := writeFrame(socket, frame, time.Now().Add(writeWait)); err != nil {
				if isTimeout(err) {
					c.fail(ErrWriteTimeout)
				} else {
					c.fail(fmt.Errorf("write failed: %w", err))
				}
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// readLoop decodes inbound frames and hands events to the dispatcher
func (c *Connection) readLoop(socket interfaces.Socket) {
	for {
		// FUNCTIONAL DISCOVERY: The read deadline is refreshed on every
		// inbound frame and spans one heartbeat interval, so a silent
		// half-open connection is detected within a single interval
		if err := socket.SetReadDeadline(time.Now().Add(c.cfg.HeartbeatInterval)); err != nil {
			c.fail(fmt.Errorf("read deadline: %w", err))
			return
		}

		_, data, err := socket.ReadMessage()
		if err != nil {
			if c.ctx.Err() != nil {
				return // closed locally, not a failure
			}
			if isTimeout(err) {
				c.fail(ErrHeartbeatTimeout)
			} else {
				c.fail(fmt.Errorf("connection lost: %w", err))
			}
			return
		}

		c.handleFrame(data)
	}
}

// handleFrame parses one inbound frame
// FUNCTIONAL DISCOVERY: Malformed frames are dropped and logged - they must
// never crash the connection or propagate a partially-parsed event
func (c *Connection) handleFrame(data []byte) {
	var frame types.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		log.Printf("Dropping malformed frame: %v", err)
		return
	}

	if err := frame.Validate(); err != nil {
		log.Printf("Dropping invalid frame (type=%q): %v", frame.Type, err)
		return
	}

	switch frame.Type {
	case types.FrameTypeHeartbeat:
		// liveness only, deadline already refreshed

	case types.FrameTypeEvent:
		event := types.NotificationEvent{
			ID:               uuid.New().String(),
			Kind:             frame.Payload.Action,
			Message:          frame.Payload.Message,
			RelatedAttemptID: frame.Payload.AttemptID,
			ReceivedAt:       time.Now(),
		}
		if c.dispatch != nil {
			c.dispatch(event)
		}

	case types.FrameTypeError:
		log.Printf("Server error frame: %s", frame.Error)

	default:
		log.Printf("Ignoring unexpected frame type %q", frame.Type)
	}
}

// heartbeatLoop sends outbound heartbeats at the fixed interval
func (c *Connection) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			select {
			case c.writeCh <- types.Frame{Type: types.FrameTypeHeartbeat}:
			case <-c.ctx.Done():
				return
			default:
				// TECHNICAL DISCOVERY: A full write channel means the writer
				// is wedged; the next read deadline will catch it
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// fail routes a transport failure through the reconnect policy exactly once
// per instance and reports the resulting state to the supervisor
func (c *Connection) fail(reason error) {
	c.failOnce.Do(func() {
		if c.ctx.Err() != nil {
			return // already closed locally, suppress late failure
		}

		var next types.ConnectionState
		if c.policy.ShouldGiveUp(c.attempt) {
			next = types.ConnectionState{Kind: types.StateFailed, Attempt: c.attempt, Reason: reason.Error()}
		} else {
			next = types.ConnectionState{
				Kind:      types.StateReconnecting,
				Attempt:   c.attempt,
				NextDelay: c.policy.NextDelay(c.attempt),
				Reason:    reason.Error(),
			}
		}

		log.Printf("Realtime connection failure (attempt %d): %v -> %s", c.attempt, reason, next.Kind)

		c.setState(next)
		c.teardown()
		c.report(next)
	})
}

// handshakeFailed is the Open-path variant of fail that also returns the error
func (c *Connection) handshakeFailed(err error) error {
	if c.ctx.Err() != nil {
		return ErrConnectionClosed // Close raced the handshake, suppress
	}
	c.fail(err)
	return err
}

// Close tears the connection down explicitly
// FUNCTIONAL DISCOVERY: Idempotent - closing an already-closed connection is
// a no-op, not an error; an in-flight handshake is cancelled and its late
// result suppressed
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.setState(types.ConnectionState{Kind: types.StateDisconnected})
		c.teardown()
	})
	return nil
}

// teardown cancels the instance context and closes the socket
func (c *Connection) teardown() {
	c.cancel()

	c.mu.RLock()
	socket := c.socket
	c.mu.RUnlock()

	if socket != nil {
		socket.Close()
	}
}

// State returns the current state machine value
func (c *Connection) State() types.ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Connected reports whether the connection is currently established; used by
// the supervisor's health polling
func (c *Connection) Connected() bool {
	return c.State().Kind == types.StateConnected
}

func (c *Connection) setState(state types.ConnectionState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// report sends a state transition to the supervisor without ever blocking
// TECHNICAL DISCOVERY: Dropped reports are tolerable because the supervisor's
// health polling re-derives the connection status every poll interval
func (c *Connection) report(state types.ConnectionState) {
	if c.reports == nil {
		return
	}
	select {
	case c.reports <- state:
	default:
		log.Printf("State report dropped (supervisor busy): %s", state.Kind)
	}
}

// writeFrame marshals and writes one frame before the deadline
func writeFrame(socket interfaces.Socket, frame types.Frame, deadline time.Time) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if err := socket.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return socket.WriteMessage(textMessage, data)
}

// isTimeout reports whether err is a network timeout (heartbeat expiry)
func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
