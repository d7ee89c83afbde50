// Package transport owns the persistent realtime connection to the chat
// gateway: lifecycle, typed event dispatch, fire-and-forget emits, and
// bounded-exponential-backoff reconnection.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/flicksocial/flick/internal/bus"
	"github.com/flicksocial/flick/internal/session"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Reconnect policy: delay min(1s·2^attempt, 30s), at most 5 attempts.
// After the cap the connection stays down until an explicit Connect.
const (
	baseRetryDelay   = time.Second
	maxRetryDelay    = 30 * time.Second
	maxRetryAttempts = 5

	dialTimeout  = 15 * time.Second
	writeTimeout = 10 * time.Second
)

// ErrNotConnected is handed to an emit's ack when the connection is down.
// Emits are never queued: one explicit Connect is the only retry path.
var ErrNotConnected = errors.New("transport: not connected")

// HandlerID identifies a registered event handler. Ids start at 1, so
// the zero value never names a live registration and can be used as a
// not-subscribed sentinel.
type HandlerID int

// Conn is the connection manager. It is constructed once per session and
// injected into the synchronizers; it is not a package-level singleton.
type Conn struct {
	url     string
	token   session.TokenSource
	logger  *zap.Logger
	machine *stateMachine

	mu             sync.Mutex
	ws             *websocket.Conn
	readCancel     context.CancelFunc
	reconnectTimer *time.Timer
	attempt        int
	intentional    bool

	writeMu sync.Mutex

	handlersMu     sync.RWMutex
	handlers       map[EventKind]map[HandlerID]func(InboundEvent)
	statusHandlers map[HandlerID]func(bool)
	nextHandlerID  HandlerID
}

// New creates a connection manager for the given gateway URL. The token
// source supplies the credential attached to the handshake.
func New(gatewayURL string, token session.TokenSource, b *bus.Bus, logger *zap.Logger) *Conn {
	return &Conn{
		url:            gatewayURL,
		token:          token,
		logger:         logger,
		machine:        newStateMachine(b),
		handlers:       make(map[EventKind]map[HandlerID]func(InboundEvent)),
		statusHandlers: make(map[HandlerID]func(bool)),
	}
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	return c.machine.Current()
}

// Connect establishes the connection. It is idempotent: a no-op while
// already connected or connecting. A successful connect resets the
// reconnect attempt counter and notifies status observers with true.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.intentional = false
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.mu.Unlock()

	if err := c.machine.Transition(Connecting); err != nil {
		// Already connecting or connected.
		return nil
	}
	return c.dial(ctx)
}

func (c *Conn) dial(ctx context.Context) error {
	token, err := c.token.Token()
	if err != nil {
		_ = c.machine.Transition(Disconnected)
		return fmt.Errorf("transport: %w", err)
	}

	ws, _, err := websocket.Dial(ctx, c.dialURL(token), nil)
	if err != nil {
		_ = c.machine.Transition(Disconnected)
		return fmt.Errorf("transport: dial %s: %w", c.url, err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.ws = ws
	c.readCancel = cancel
	c.attempt = 0
	c.mu.Unlock()

	_ = c.machine.Transition(Connected)
	c.logger.Info("realtime connected", zap.String("gateway", c.url))
	c.notifyStatus(true)

	go c.readLoop(readCtx, ws)
	return nil
}

func (c *Conn) dialURL(token string) string {
	u := strings.Replace(c.url, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "token=" + url.QueryEscape(token)
}

// Disconnect closes the connection, cancels any pending reconnect timer,
// and notifies status observers with false.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	c.intentional = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.attempt = 0
	ws := c.ws
	c.ws = nil
	cancel := c.readCancel
	c.readCancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ws != nil {
		_ = ws.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	if err := c.machine.Transition(Disconnected); err == nil {
		c.logger.Info("realtime disconnected")
		c.notifyStatus(false)
	}
}

// Emit sends an event if connected. When not connected the event is not
// queued; the ack (if any) receives ErrNotConnected. With a nil ack a
// failed send is logged and otherwise dropped.
func (c *Conn) Emit(event EventKind, payload any, ack func(error)) {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()

	if ws == nil || c.machine.Current() != Connected {
		c.finishEmit(event, ErrNotConnected, ack)
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		c.finishEmit(event, fmt.Errorf("marshal payload: %w", err), ack)
		return
	}
	frame, err := json.Marshal(envelope{Event: string(event), Payload: raw})
	if err != nil {
		c.finishEmit(event, fmt.Errorf("marshal envelope: %w", err), ack)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	c.writeMu.Lock()
	err = ws.Write(ctx, websocket.MessageText, frame)
	c.writeMu.Unlock()

	c.finishEmit(event, err, ack)
}

func (c *Conn) finishEmit(event EventKind, err error, ack func(error)) {
	if ack != nil {
		ack(err)
		return
	}
	if err != nil {
		c.logger.Warn("emit failed", zap.String("event", string(event)), zap.Error(err))
	}
}

// On registers a handler for an inbound event kind.
func (c *Conn) On(kind EventKind, fn func(InboundEvent)) HandlerID {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.nextHandlerID++
	id := c.nextHandlerID
	if c.handlers[kind] == nil {
		c.handlers[kind] = make(map[HandlerID]func(InboundEvent))
	}
	c.handlers[kind][id] = fn
	return id
}

// Off removes a previously registered handler. Removing an unknown or
// already removed id is a no-op and never touches other handlers.
func (c *Conn) Off(kind EventKind, id HandlerID) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	delete(c.handlers[kind], id)
}

// OnStatus registers an observer for connection up/down notifications.
func (c *Conn) OnStatus(fn func(up bool)) HandlerID {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.nextHandlerID++
	id := c.nextHandlerID
	c.statusHandlers[id] = fn
	return id
}

// OffStatus removes a status observer. Repeated removal is a no-op.
func (c *Conn) OffStatus(id HandlerID) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	delete(c.statusHandlers, id)
}

func (c *Conn) readLoop(ctx context.Context, ws *websocket.Conn) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			c.handleClosed(err)
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("malformed frame", zap.Error(err))
			continue
		}
		evt, err := decodeInbound(env)
		if err != nil {
			c.logger.Warn("dropping inbound event", zap.Error(err))
			continue
		}
		c.dispatch(evt)
	}
}

func (c *Conn) handleClosed(cause error) {
	c.mu.Lock()
	intentional := c.intentional
	c.ws = nil
	c.readCancel = nil
	c.mu.Unlock()

	if err := c.machine.Transition(Disconnected); err == nil {
		c.notifyStatus(false)
	}
	if intentional {
		return
	}

	c.logger.Warn("realtime connection lost", zap.Error(cause))
	c.scheduleReconnect()
}

func (c *Conn) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.intentional {
		return
	}
	if c.attempt >= maxRetryAttempts {
		c.logger.Warn("reconnect attempts exhausted", zap.Int("attempts", c.attempt))
		return
	}
	c.attempt++
	delay := retryDelay(c.attempt)
	c.logger.Info("scheduling reconnect",
		zap.Int("attempt", c.attempt), zap.Duration("delay", delay))
	c.reconnectTimer = time.AfterFunc(delay, c.tryReconnect)
}

func (c *Conn) tryReconnect() {
	c.mu.Lock()
	if c.intentional {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if err := c.machine.Transition(Connecting); err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := c.dial(ctx); err != nil {
		c.logger.Warn("reconnect failed", zap.Error(err))
		c.scheduleReconnect()
	}
}

// retryDelay returns min(baseRetryDelay·2^attempt, maxRetryDelay).
func retryDelay(attempt int) time.Duration {
	d := baseRetryDelay << uint(attempt)
	if d <= 0 || d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}

func (c *Conn) dispatch(evt InboundEvent) {
	c.handlersMu.RLock()
	fns := make([]func(InboundEvent), 0, len(c.handlers[evt.Kind]))
	for _, fn := range c.handlers[evt.Kind] {
		fns = append(fns, fn)
	}
	c.handlersMu.RUnlock()

	for _, fn := range fns {
		fn(evt)
	}
}

func (c *Conn) notifyStatus(up bool) {
	c.handlersMu.RLock()
	fns := make([]func(bool), 0, len(c.statusHandlers))
	for _, fn := range c.statusHandlers {
		fns = append(fns, fn)
	}
	c.handlersMu.RUnlock()

	for _, fn := range fns {
		fn(up)
	}
}
