// Package bridge keeps a durable logical connection to one running
// visualizer instance and correlates commands with their responses.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gm-agent-org/neuralmap-bridge/pkg/protocol"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/types"
)

// ConnectionState of the bridge.
type ConnectionState int32

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

var (
	ErrNotConnected   = errors.New("bridge not connected")
	ErrCommandTimeout = errors.New("command timed out")
	ErrAlreadyRunning = errors.New("bridge already running")
)

// RemoteError is returned when the remote answers a command with an error.
type RemoteError struct {
	Command   string
	RequestID int64
	Message   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote rejected %s (request %d): %s", e.Command, e.RequestID, e.Message)
}

// Config controls connection and reconnection behaviour.
type Config struct {
	URL              string        `yaml:"url" envconfig:"URL"`
	ClientName       string        `yaml:"client_name" envconfig:"CLIENT_NAME"`
	BaseDelay        time.Duration `yaml:"base_delay" envconfig:"BASE_DELAY"`
	MaxDelay         time.Duration `yaml:"max_delay" envconfig:"MAX_DELAY"`
	BackoffCap       int           `yaml:"backoff_cap" envconfig:"BACKOFF_CAP"`
	CommandTimeout   time.Duration `yaml:"command_timeout" envconfig:"COMMAND_TIMEOUT"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" envconfig:"HANDSHAKE_TIMEOUT"`
}

var DefaultConfig = Config{
	URL:              "ws://localhost:3001/agent",
	ClientName:       "neuralmap-bridge",
	BaseDelay:        time.Second,
	MaxDelay:         10 * time.Second,
	BackoffCap:       10,
	CommandTimeout:   10 * time.Second,
	HandshakeTimeout: 5 * time.Second,
}

func (c Config) withDefaults() Config {
	if c.ClientName == "" {
		c.ClientName = DefaultConfig.ClientName
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultConfig.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultConfig.MaxDelay
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = DefaultConfig.BackoffCap
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultConfig.CommandTimeout
	}
	return c
}

// SnapshotHandler is invoked after every state push, outside any lock.
type SnapshotHandler func(snapshot types.ApplicationSnapshot)

// StateHandler is invoked on every connection state transition.
type StateHandler func(state ConnectionState)

type pendingRequest struct {
	command string
	done    chan *protocol.CommandResponse
}

// Client is an explicitly constructed bridge. Each Client owns its own
// connection, pending-request table and backoff counter.
type Client struct {
	cfg     Config
	backoff Backoff
	dialer  Dialer
	log     *slog.Logger

	state    atomic.Int32
	attempts atomic.Int64
	nextID   atomic.Int64
	running  atomic.Bool

	writeMu sync.Mutex
	conn    Conn

	mu       sync.Mutex
	pending  map[int64]*pendingRequest
	snapshot *types.ApplicationSnapshot

	onSnapshot SnapshotHandler
	onState    StateHandler

	// sleep waits out a reconnect delay; it returns false when ctx ends first.
	sleep func(ctx context.Context, d time.Duration) bool
}

// New creates a disconnected client. Call Run to connect.
func New(cfg Config, dialer Dialer, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	if dialer == nil {
		dialer = NewWebsocketDialer(cfg.HandshakeTimeout)
	}
	return &Client{
		cfg:     cfg,
		backoff: Backoff{Base: cfg.BaseDelay, Max: cfg.MaxDelay, Cap: cfg.BackoffCap},
		dialer:  dialer,
		log:     logger.With("component", "bridge"),
		pending: make(map[int64]*pendingRequest),
		sleep:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// OnSnapshot registers the snapshot handler. Must be called before Run.
func (c *Client) OnSnapshot(fn SnapshotHandler) {
	c.onSnapshot = fn
}

// OnStateChange registers the state handler. Must be called before Run.
func (c *Client) OnStateChange(fn StateHandler) {
	c.onState = fn
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// Attempts returns the number of consecutive closes since the last open.
func (c *Client) Attempts() int {
	return int(c.attempts.Load())
}

// Snapshot returns the latest pushed snapshot, if any.
func (c *Client) Snapshot() (types.ApplicationSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return types.ApplicationSnapshot{}, false
	}
	return *c.snapshot, true
}

func (c *Client) setState(s ConnectionState) {
	if ConnectionState(c.state.Swap(int32(s))) == s {
		return
	}
	c.log.Debug("bridge state changed", "state", s.String())
	if c.onState != nil {
		c.onState(s)
	}
}

// Run connects and keeps reconnecting until ctx is cancelled. The loop is
// the only place a reconnect wait exists, so at most one is ever pending.
func (c *Client) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)

	for {
		c.setState(Connecting)
		conn, err := c.dialer.Dial(ctx, c.cfg.URL)
		if err != nil {
			c.log.Warn("bridge connect failed", "url", c.cfg.URL, "error", err)
		} else {
			c.serve(ctx, conn)
		}
		c.setState(Disconnected)

		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempts := c.attempts.Add(1)
		delay := c.backoff.Delay(int(attempts))
		c.log.Info("bridge reconnect scheduled", "attempt", attempts, "delay", delay)

		if !c.sleep(ctx, delay) {
			return ctx.Err()
		}
	}
}

// serve owns conn until it fails or ctx is cancelled.
func (c *Client) serve(ctx context.Context, conn Conn) {
	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()

	c.attempts.Store(0)
	c.setState(Connected)
	c.log.Info("bridge connected", "url", c.cfg.URL)

	if err := c.write(protocol.NewIdentify(c.cfg.ClientName)); err != nil {
		c.log.Warn("identify failed", "error", err)
	}
	c.RequestStateRefresh()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn("bridge connection lost", "error", err)
			}
			break
		}
		c.handle(data)
	}

	c.setState(Disconnected)
	c.writeMu.Lock()
	c.conn = nil
	c.writeMu.Unlock()
	conn.Close()
}

func (c *Client) handle(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		c.log.Warn("ignoring malformed frame", "error", err)
		return
	}

	switch m := msg.(type) {
	case *protocol.StatePush:
		c.onStatePush(m.ApplicationSnapshot)
	case *protocol.CommandResponse:
		c.settle(m)
	default:
		c.log.Debug("ignoring unexpected frame", "type", fmt.Sprintf("%T", m))
	}
}

// onStatePush replaces the stored snapshot wholesale. Last write wins.
func (c *Client) onStatePush(snapshot types.ApplicationSnapshot) {
	c.mu.Lock()
	c.snapshot = &snapshot
	c.mu.Unlock()

	c.log.Debug("snapshot received", "files", len(snapshot.Files), "view", snapshot.ActiveView)
	if c.onSnapshot != nil {
		c.onSnapshot(snapshot)
	}
}

func (c *Client) settle(resp *protocol.CommandResponse) {
	c.mu.Lock()
	p, ok := c.pending[resp.RequestID]
	delete(c.pending, resp.RequestID)
	c.mu.Unlock()

	if !ok {
		c.log.Debug("dropping response without pending request", "request_id", resp.RequestID)
		return
	}
	p.done <- resp
}

// take removes a pending request. It reports false when a response already
// claimed it.
func (c *Client) take(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	delete(c.pending, id)
	return ok
}

func (c *Client) pendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Client) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// RequestStateRefresh asks the remote to push its snapshot again. It is a
// no-op while not connected.
func (c *Client) RequestStateRefresh() {
	if c.State() != Connected {
		return
	}
	if err := c.write(protocol.NewStateRequest()); err != nil {
		c.log.Warn("state request failed", "error", err)
	}
}

// SendCommand invokes a named operation on the remote and waits for the
// matching response, the command timeout, or ctx. Commands are not queued
// across disconnects: when not connected it fails immediately without
// writing anything.
func (c *Client) SendCommand(ctx context.Context, name string, params any) (json.RawMessage, error) {
	if c.State() != Connected {
		return nil, fmt.Errorf("send %s: %w", name, ErrNotConnected)
	}

	id := c.nextID.Add(1)
	frame, err := protocol.NewCommand(id, name, params)
	if err != nil {
		return nil, err
	}

	p := &pendingRequest{command: name, done: make(chan *protocol.CommandResponse, 1)}
	c.mu.Lock()
	c.pending[id] = p
	c.mu.Unlock()

	if err := c.write(frame); err != nil {
		c.take(id)
		return nil, fmt.Errorf("send %s: %w", name, err)
	}

	timer := time.NewTimer(c.cfg.CommandTimeout)
	defer timer.Stop()

	select {
	case resp := <-p.done:
		return result(name, resp)
	case <-timer.C:
		if c.take(id) {
			c.log.Warn("command timed out", "command", name, "request_id", id, "timeout", c.cfg.CommandTimeout)
			return nil, fmt.Errorf("%s (request %d): %w", name, id, ErrCommandTimeout)
		}
		// the response claimed the entry first
		return result(name, <-p.done)
	case <-ctx.Done():
		if c.take(id) {
			return nil, fmt.Errorf("%s (request %d): %w", name, id, ctx.Err())
		}
		return result(name, <-p.done)
	}
}

func result(name string, resp *protocol.CommandResponse) (json.RawMessage, error) {
	if resp.Error != "" {
		return nil, &RemoteError{Command: name, RequestID: resp.RequestID, Message: resp.Error}
	}
	return resp.Result, nil
}
