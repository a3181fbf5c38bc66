package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/gm-agent-org/neuralmap-bridge/pkg/protocol"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeConn is an in-memory Conn. The test plays the remote by reading
// frames from out and pushing frames into in.
type fakeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.in:
		return 1, data, nil
	case <-f.closed:
		return 0, nil, io.EOF
	}
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-f.closed:
		return io.ErrClosedPipe
	default:
	}
	f.out <- data
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) push(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	f.in <- data
}

func (f *fakeConn) next(t *testing.T) any {
	t.Helper()
	select {
	case data := <-f.out:
		msg, err := protocol.Decode(data)
		if err != nil {
			t.Fatalf("decode outbound frame: %v", err)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for outbound frame")
		return nil
	}
}

// fakeDialer hands out queued conns; when the queue is empty it fails.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	dials int
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.conns) == 0 {
		return nil, errors.New("connection refused")
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		URL:            "ws://test",
		ClientName:     "test-bridge",
		BaseDelay:      time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		BackoffCap:     3,
		CommandTimeout: time.Second,
	}
}

// startConnected runs a client against one fake conn and consumes the
// identify and state-request frames sent on open.
func startConnected(t *testing.T, cfg Config) (*Client, *fakeConn, func()) {
	t.Helper()
	conn := newFakeConn()
	c := New(cfg, &fakeDialer{conns: []*fakeConn{conn}}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	if id, ok := conn.next(t).(*protocol.Identify); !ok || id.Client != cfg.ClientName {
		t.Fatalf("expected identify frame first, got %+v", id)
	}
	if _, ok := conn.next(t).(*protocol.StateRequest); !ok {
		t.Fatalf("expected state-request after identify")
	}

	stop := func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("Run did not return after cancel")
		}
	}
	return c, conn, stop
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestSendCommandNotConnected(t *testing.T) {
	conn := newFakeConn()
	c := New(testConfig(), &fakeDialer{conns: []*fakeConn{conn}}, quietLogger())

	_, err := c.SendCommand(context.Background(), "focus_node", nil)
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if len(conn.out) != 0 {
		t.Fatalf("no frame may be written while disconnected")
	}
	if c.pendingCount() != 0 {
		t.Fatalf("no pending request may be registered")
	}

	// refresh is silently ignored
	c.RequestStateRefresh()
}

func TestSendCommandResolves(t *testing.T) {
	c, conn, stop := startConnected(t, testConfig())
	defer stop()

	type reply struct {
		raw json.RawMessage
		err error
	}
	got := make(chan reply, 1)
	go func() {
		raw, err := c.SendCommand(context.Background(), "select_node", map[string]string{"id": "n1"})
		got <- reply{raw, err}
	}()

	cmd := conn.next(t).(*protocol.Command)
	if cmd.Command != "select_node" || string(cmd.Params) != `{"id":"n1"}` {
		t.Fatalf("unexpected command frame: %+v", cmd)
	}
	conn.push(t, protocol.CommandResponse{Type: protocol.TypeCommandResponse, RequestID: cmd.RequestID, Result: json.RawMessage(`{"ok":true}`)})

	r := <-got
	if r.err != nil {
		t.Fatalf("unexpected error: %v", r.err)
	}
	if string(r.raw) != `{"ok":true}` {
		t.Fatalf("unexpected result: %s", r.raw)
	}
}

func TestSendCommandRemoteError(t *testing.T) {
	c, conn, stop := startConnected(t, testConfig())
	defer stop()

	errc := make(chan error, 1)
	go func() {
		_, err := c.SendCommand(context.Background(), "delete_node", nil)
		errc <- err
	}()

	cmd := conn.next(t).(*protocol.Command)
	conn.push(t, protocol.CommandResponse{Type: protocol.TypeCommandResponse, RequestID: cmd.RequestID, Error: "node not found"})

	var remote *RemoteError
	if err := <-errc; !errors.As(err, &remote) || remote.Message != "node not found" {
		t.Fatalf("expected RemoteError, got %v", err)
	}
}

func TestResponsesCorrelateOutOfOrder(t *testing.T) {
	c, conn, stop := startConnected(t, testConfig())
	defer stop()

	results := map[string]chan string{
		"first":  make(chan string, 1),
		"second": make(chan string, 1),
	}
	for name, ch := range results {
		go func(name string, ch chan string) {
			raw, err := c.SendCommand(context.Background(), name, nil)
			if err != nil {
				ch <- "error: " + err.Error()
				return
			}
			ch <- string(raw)
		}(name, ch)
	}

	ids := map[string]int64{}
	for i := 0; i < 2; i++ {
		cmd := conn.next(t).(*protocol.Command)
		ids[cmd.Command] = cmd.RequestID
	}

	// answer the second command first
	conn.push(t, protocol.CommandResponse{Type: protocol.TypeCommandResponse, RequestID: ids["second"], Result: json.RawMessage(`"two"`)})

	select {
	case got := <-results["second"]:
		if got != `"two"` {
			t.Fatalf("second resolved with %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("second command never resolved")
	}

	select {
	case got := <-results["first"]:
		t.Fatalf("first command resolved early with %s", got)
	case <-time.After(20 * time.Millisecond):
	}
	if c.pendingCount() != 1 {
		t.Fatalf("expected first command still pending, have %d", c.pendingCount())
	}

	conn.push(t, protocol.CommandResponse{Type: protocol.TypeCommandResponse, RequestID: ids["first"], Result: json.RawMessage(`"one"`)})
	if got := <-results["first"]; got != `"one"` {
		t.Fatalf("first resolved with %s", got)
	}
}

func TestLateResponseAfterTimeoutIsDropped(t *testing.T) {
	cfg := testConfig()
	cfg.CommandTimeout = 20 * time.Millisecond
	c, conn, stop := startConnected(t, cfg)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		_, err := c.SendCommand(context.Background(), "slow", nil)
		errc <- err
	}()
	cmd := conn.next(t).(*protocol.Command)

	if err := <-errc; !errors.Is(err, ErrCommandTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if c.pendingCount() != 0 {
		t.Fatalf("timed out request must be removed")
	}

	conn.push(t, protocol.CommandResponse{Type: protocol.TypeCommandResponse, RequestID: cmd.RequestID, Result: json.RawMessage(`"late"`)})

	// the bridge keeps working after the dropped response
	go func() {
		raw, err := c.SendCommand(context.Background(), "after", nil)
		if err == nil && string(raw) != `"fresh"` {
			err = fmt.Errorf("unexpected result %s", raw)
		}
		errc <- err
	}()
	next := conn.next(t).(*protocol.Command)
	if next.RequestID == cmd.RequestID {
		t.Fatalf("request ids must not be reused")
	}
	conn.push(t, protocol.CommandResponse{Type: protocol.TypeCommandResponse, RequestID: next.RequestID, Result: json.RawMessage(`"fresh"`)})
	if err := <-errc; err != nil {
		t.Fatalf("follow-up command failed: %v", err)
	}
}

func TestSendCommandContextCancel(t *testing.T) {
	c, conn, stop := startConnected(t, testConfig())
	defer stop()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := c.SendCommand(ctx, "wait", nil)
		errc <- err
	}()
	conn.next(t)
	cancel()

	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if c.pendingCount() != 0 {
		t.Fatalf("cancelled request must be removed")
	}
}

func TestStatePushReplacesSnapshot(t *testing.T) {
	c := New(testConfig(), nil, quietLogger())
	pushes := make(chan types.ApplicationSnapshot, 2)
	c.OnSnapshot(func(s types.ApplicationSnapshot) { pushes <- s })

	conn := newFakeConn()
	c.dialer = &fakeDialer{conns: []*fakeConn{conn}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()
	conn.next(t)
	conn.next(t)

	if _, ok := c.Snapshot(); ok {
		t.Fatalf("no snapshot expected before the first push")
	}

	conn.push(t, protocol.StatePush{Type: protocol.TypeStatePush, ApplicationSnapshot: types.ApplicationSnapshot{
		Files:       []types.ProjectFile{{ID: "1", Name: "a.ts"}, {ID: "2", Name: "b.ts"}},
		SelectedIDs: []string{"1"},
		ActiveView:  "graph",
	}})
	<-pushes
	conn.push(t, protocol.StatePush{Type: protocol.TypeStatePush, ApplicationSnapshot: types.ApplicationSnapshot{
		Files:      []types.ProjectFile{{ID: "3", Name: "c.ts"}},
		ActiveView: "tree",
	}})
	<-pushes

	snap, ok := c.Snapshot()
	if !ok {
		t.Fatalf("expected snapshot")
	}
	if len(snap.Files) != 1 || snap.Files[0].ID != "3" || snap.ActiveView != "tree" || len(snap.SelectedIDs) != 0 {
		t.Fatalf("snapshot was merged instead of replaced: %+v", snap)
	}
}

func TestReconnectsAfterClose(t *testing.T) {
	first, second := newFakeConn(), newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{first, second}}
	c := New(testConfig(), dialer, quietLogger())

	var mu sync.Mutex
	var states []ConnectionState
	c.OnStateChange(func(s ConnectionState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	first.next(t)
	first.next(t)
	first.Close()

	// a fresh open sends identify again and resets the attempt counter
	if _, ok := second.next(t).(*protocol.Identify); !ok {
		t.Fatalf("expected identify on reconnect")
	}
	second.next(t)
	waitFor(t, func() bool { return c.State() == Connected })
	if c.Attempts() != 0 {
		t.Fatalf("attempts must reset on open, got %d", c.Attempts())
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled from Run, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []ConnectionState{Connecting, Connected, Disconnected, Connecting, Connected, Disconnected}
	if fmt.Sprint(states) != fmt.Sprint(want) {
		t.Fatalf("unexpected transitions %v, want %v", states, want)
	}
}

func TestReconnectKeepsTryingWhileRefused(t *testing.T) {
	dialer := &fakeDialer{}
	c := New(testConfig(), dialer, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	waitFor(t, func() bool { return dialer.dialCount() >= 5 })
	if c.Attempts() < 4 {
		t.Fatalf("attempts should grow while refused, got %d", c.Attempts())
	}
	cancel()
	<-done
	if c.State() != Disconnected {
		t.Fatalf("expected disconnected after Run returns, got %s", c.State())
	}
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	c := New(testConfig(), &fakeDialer{}, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	waitFor(t, func() bool { return c.running.Load() })

	if err := c.Run(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	cancel()
	<-done
}

func TestReconnectDelaysOverConsecutiveFailures(t *testing.T) {
	cfg := testConfig()
	cfg.BaseDelay = time.Second
	cfg.MaxDelay = 8 * time.Second
	cfg.BackoffCap = 5

	c := New(cfg, &fakeDialer{}, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var delays []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) bool {
		delays = append(delays, d)
		if len(delays) == 10 {
			cancel()
			return false
		}
		return true
	}

	if err := c.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v", err)
	}
	if len(delays) != 10 {
		t.Fatalf("expected 10 scheduled delays, got %d", len(delays))
	}

	want := []time.Duration{1, 2, 3, 4, 5, 5, 5, 5, 5, 5}
	for i, d := range delays {
		if d != want[i]*time.Second {
			t.Errorf("disconnect %d: delay %v, want %v", i+1, d, want[i]*time.Second)
		}
		if i > 0 && d < delays[i-1] {
			t.Errorf("disconnect %d: delay decreased", i+1)
		}
		if d > cfg.MaxDelay {
			t.Errorf("disconnect %d: delay %v above max", i+1, d)
		}
	}
	if c.Attempts() != 10 {
		t.Fatalf("expected 10 attempts, got %d", c.Attempts())
	}
}
