// Package transport opens the sockets a session runs over: the TCP control
// stream, the UDP video listener and the UDP input sender.
package transport

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/1ureka/remoteplay/internal/protocol"
)

const (
	dialTimeout    = 5 * time.Second
	videoReadBufSz = 4 * 1024 * 1024 // absorbs bursts of a whole frame pair
)

// Dialer creates the session's sockets. NetDialer is the production
// implementation; tests substitute in-memory fakes.
type Dialer interface {
	DialControl(ctx context.Context, addr string) (net.Conn, error)
	ListenVideo(addr string) (net.PacketConn, error)
	DialInput(addr string) (net.Conn, error)
}

// Endpoints holds the ports of the three channels and the local address the
// video listener binds to.
type Endpoints struct {
	ListenHost  string
	ControlPort int
	VideoPort   int
	InputPort   int
}

// DefaultEndpoints returns the ports the device firmware uses.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		ControlPort: protocol.ControlPort,
		VideoPort:   protocol.VideoPort,
		InputPort:   protocol.InputPort,
	}
}

// Control returns the control stream address on host.
func (e Endpoints) Control(host string) string {
	return net.JoinHostPort(host, strconv.Itoa(e.ControlPort))
}

// Video returns the local video listen address.
func (e Endpoints) Video() string {
	return net.JoinHostPort(e.ListenHost, strconv.Itoa(e.VideoPort))
}

// Input returns the input datagram address on host.
func (e Endpoints) Input(host string) string {
	return net.JoinHostPort(host, strconv.Itoa(e.InputPort))
}

// NetDialer opens real sockets.
type NetDialer struct {
	Timeout time.Duration
}

// DialControl connects the TCP control stream.
func (d NetDialer) DialControl(ctx context.Context, addr string) (net.Conn, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = dialTimeout
	}
	nd := net.Dialer{Timeout: timeout}
	conn, err := nd.DialContext(ctx, "tcp4", addr)
	if err != nil {
		return nil, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}
	return conn, nil
}

// ListenVideo binds the UDP video endpoint.
func (d NetDialer) ListenVideo(addr string) (net.PacketConn, error) {
	pc, err := net.ListenPacket("udp4", addr)
	if err != nil {
		return nil, err
	}
	if udp, ok := pc.(*net.UDPConn); ok {
		// Best effort; the kernel may cap it.
		udp.SetReadBuffer(videoReadBufSz)
	}
	return pc, nil
}

// DialInput creates a connected UDP socket toward the input endpoint.
func (d NetDialer) DialInput(addr string) (net.Conn, error) {
	return net.Dial("udp4", addr)
}
