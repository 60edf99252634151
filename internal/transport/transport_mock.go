package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"
)

var (
	ErrMockClosed  = errors.New("transport: mock closed")
	ErrMockRefused = errors.New("transport: mock connection refused")
)

// MockAddr is a simple address for testing.
type MockAddr string

func (a MockAddr) Network() string { return "mock" }
func (a MockAddr) String() string  { return string(a) }

// MockConn is an in-memory stream or datagram connection that records every
// write. Reads block until the connection is closed.
type MockConn struct {
	addr MockAddr

	mu     sync.Mutex
	writes [][]byte
	err    error

	closeOnce sync.Once
	closed    chan struct{}
}

// NewMockConn creates an open MockConn.
func NewMockConn(addr string) *MockConn {
	return &MockConn{addr: MockAddr(addr), closed: make(chan struct{})}
}

// FailWrites makes every subsequent Write return err.
func (c *MockConn) FailWrites(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

// Writes returns a copy of everything written so far, one entry per call.
func (c *MockConn) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes...)
}

// Closed reports whether Close has been called.
func (c *MockConn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *MockConn) Read(b []byte) (int, error) {
	<-c.closed
	return 0, ErrMockClosed
}

func (c *MockConn) Write(b []byte) (int, error) {
	if c.Closed() {
		return 0, ErrMockClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	c.writes = append(c.writes, append([]byte(nil), b...))
	return len(b), nil
}

func (c *MockConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *MockConn) LocalAddr() net.Addr                { return MockAddr("local") }
func (c *MockConn) RemoteAddr() net.Addr               { return c.addr }
func (c *MockConn) SetDeadline(t time.Time) error      { return nil }
func (c *MockConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *MockConn) SetWriteDeadline(t time.Time) error { return nil }

// MockPacketConn is an in-memory datagram listener fed through Inject.
type MockPacketConn struct {
	inbox chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// NewMockPacketConn creates a listener with room for backlog queued datagrams.
func NewMockPacketConn(backlog int) *MockPacketConn {
	return &MockPacketConn{
		inbox:  make(chan []byte, backlog),
		closed: make(chan struct{}),
	}
}

// Inject queues a datagram for ReadFrom. It blocks while the backlog is full.
func (p *MockPacketConn) Inject(data []byte) error {
	select {
	case p.inbox <- append([]byte(nil), data...):
		return nil
	case <-p.closed:
		return ErrMockClosed
	}
}

func (p *MockPacketConn) ReadFrom(b []byte) (int, net.Addr, error) {
	select {
	case data := <-p.inbox:
		return copy(b, data), MockAddr("device"), nil
	case <-p.closed:
		return 0, nil, ErrMockClosed
	}
}

func (p *MockPacketConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	return 0, errors.New("transport: mock listener is receive-only")
}

func (p *MockPacketConn) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func (p *MockPacketConn) LocalAddr() net.Addr                { return MockAddr("video") }
func (p *MockPacketConn) SetDeadline(t time.Time) error      { return nil }
func (p *MockPacketConn) SetReadDeadline(t time.Time) error  { return nil }
func (p *MockPacketConn) SetWriteDeadline(t time.Time) error { return nil }

// MockDialer hands out mock sockets. The first FailListen ListenVideo calls and
// the first FailControl DialControl calls fail.
type MockDialer struct {
	Control *MockConn
	Video   *MockPacketConn
	Input   *MockConn

	mu           sync.Mutex
	FailListen   int
	FailControl  int
	listenCalls  int
	controlCalls int
	controlAddrs []string
	inputAddrs   []string
}

// NewMockDialer creates a dialer with fresh sockets.
func NewMockDialer() *MockDialer {
	return &MockDialer{
		Control: NewMockConn("control"),
		Video:   NewMockPacketConn(256),
		Input:   NewMockConn("input"),
	}
}

func (d *MockDialer) DialControl(ctx context.Context, addr string) (net.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.controlCalls++
	d.controlAddrs = append(d.controlAddrs, addr)
	if d.controlCalls <= d.FailControl {
		return nil, ErrMockRefused
	}
	return d.Control, nil
}

func (d *MockDialer) ListenVideo(addr string) (net.PacketConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listenCalls++
	if d.listenCalls <= d.FailListen {
		return nil, ErrMockRefused
	}
	return d.Video, nil
}

func (d *MockDialer) DialInput(addr string) (net.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inputAddrs = append(d.inputAddrs, addr)
	return d.Input, nil
}

// ControlCalls returns the number of DialControl calls.
func (d *MockDialer) ControlCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.controlCalls
}

// ListenCalls returns the number of ListenVideo calls.
func (d *MockDialer) ListenCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.listenCalls
}

// InputAddrs returns the addresses passed to DialInput.
func (d *MockDialer) InputAddrs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.inputAddrs...)
}
