// Package session manages the control connection to the device: address
// validation, socket setup, the mode-select handshake, and heartbeats.
package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/1ureka/remoteplay/internal/protocol"
	"github.com/1ureka/remoteplay/internal/transport"
	"github.com/1ureka/remoteplay/internal/util"
)

var log = util.Scope("network")

var (
	// ErrInvalidAddress means the configured host is not an IPv4 address.
	// It is terminal: retrying cannot succeed until the configuration changes.
	ErrInvalidAddress = errors.New("session: invalid device address")

	// ErrNotConnected is returned by sends before the control stream is up.
	ErrNotConnected = errors.New("session: control channel not connected")

	// ErrNotListening is returned by ReadVideo before Listen succeeded.
	ErrNotListening = errors.New("session: video channel not bound")
)

// State is the connection state shown to the operator.
type State int32

const (
	Connecting State = iota
	ConnectedWait
	ConnectedStreaming
	ErrBadAddress
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case ConnectedWait:
		return "connected, waiting for video"
	case ConnectedStreaming:
		return "streaming"
	case ErrBadAddress:
		return "bad address"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Controller owns the session's sockets and connection state.
//
// State is written by the controller and read by anyone; readers may observe
// a value that is one transition behind.
type Controller struct {
	dialer    transport.Dialer
	endpoints transport.Endpoints

	state atomic.Int32

	mu      sync.Mutex
	host    string
	control net.Conn
	video   net.PacketConn
	input   net.Conn
}

// NewController creates a controller in the Connecting state.
func NewController(dialer transport.Dialer, endpoints transport.Endpoints) *Controller {
	return &Controller{dialer: dialer, endpoints: endpoints}
}

// State returns the current connection state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
}

// Connect validates host and dials the control stream. An unparsable host
// moves the controller to ErrBadAddress and returns ErrInvalidAddress without
// dialing. A dial failure leaves the state at Connecting so the caller can
// retry.
func (c *Controller) Connect(ctx context.Context, host string) error {
	addr, err := netip.ParseAddr(host)
	if err != nil || !addr.Unmap().Is4() {
		c.setState(ErrBadAddress)
		log.Error("address %q invalid - check your config file", host)
		return fmt.Errorf("%w: %q", ErrInvalidAddress, host)
	}
	host = addr.Unmap().String()

	c.setState(Connecting)
	conn, err := c.dialer.DialControl(ctx, c.endpoints.Control(host))
	if err != nil {
		log.Warning("can't connect to device (%s): %v", host, err)
		return fmt.Errorf("dial control %s: %w", host, err)
	}

	c.mu.Lock()
	if c.control != nil {
		c.control.Close()
	}
	c.control = conn
	c.host = host
	c.mu.Unlock()

	log.Info("control channel connected to %s", conn.RemoteAddr())
	return nil
}

// Listen binds the video endpoint. It is a no-op once bound.
func (c *Controller) Listen() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.video != nil {
		return nil
	}
	pc, err := c.dialer.ListenVideo(c.endpoints.Video())
	if err != nil {
		log.Warning("can't bind video endpoint %s: %v", c.endpoints.Video(), err)
		return fmt.Errorf("listen video: %w", err)
	}
	c.video = pc
	return nil
}

func (c *Controller) writeControl(cmd protocol.Command) error {
	c.mu.Lock()
	conn := c.control
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	if _, err := conn.Write(protocol.EncodeControl(cmd)); err != nil {
		return fmt.Errorf("write command %d: %w", cmd.ID(), err)
	}
	return nil
}

// SendModeSelect sends the one-shot set-mode command and moves the state to
// ConnectedWait.
func (c *Controller) SendModeSelect(priority, priorityFactor, quality, qos uint8) error {
	err := c.writeControl(protocol.SetMode{
		Priority:       priority,
		PriorityFactor: priorityFactor,
		Quality:        quality,
		QoS:            qos,
	})
	if err != nil {
		return err
	}
	c.setState(ConnectedWait)
	return nil
}

// Heartbeat sends one zero-argument control packet.
func (c *Controller) Heartbeat() error {
	return c.writeControl(protocol.Heartbeat{})
}

// SendInput writes one input packet to the device's input endpoint, opening
// the datagram socket on first use.
func (c *Controller) SendInput(packet []byte) error {
	c.mu.Lock()
	if c.input == nil {
		if c.host == "" {
			c.mu.Unlock()
			return ErrNotConnected
		}
		conn, err := c.dialer.DialInput(c.endpoints.Input(c.host))
		if err != nil {
			c.mu.Unlock()
			return fmt.Errorf("dial input: %w", err)
		}
		c.input = conn
	}
	conn := c.input
	c.mu.Unlock()

	_, err := conn.Write(packet)
	return err
}

// MarkStreaming records that a complete frame has arrived. Frames prove the
// device is streaming even when the mode select write failed, so any state
// but ErrBadAddress moves to ConnectedStreaming. It reports whether this call
// performed the transition.
func (c *Controller) MarkStreaming() bool {
	for {
		cur := State(c.state.Load())
		if cur == ConnectedStreaming || cur == ErrBadAddress {
			return false
		}
		if c.state.CompareAndSwap(int32(cur), int32(ConnectedStreaming)) {
			return true
		}
	}
}

// ReadVideo blocks until a datagram arrives on the video endpoint or the
// endpoint is closed.
func (c *Controller) ReadVideo(buf []byte) (int, error) {
	c.mu.Lock()
	pc := c.video
	c.mu.Unlock()

	if pc == nil {
		return 0, ErrNotListening
	}
	n, _, err := pc.ReadFrom(buf)
	return n, err
}

// Close releases every socket. The controller can be reconnected afterwards.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if c.control != nil {
		log.Debug("tearing down control socket")
		errs = append(errs, c.control.Close())
		c.control = nil
	}
	if c.video != nil {
		log.Debug("tearing down video socket")
		errs = append(errs, c.video.Close())
		c.video = nil
	}
	if c.input != nil {
		errs = append(errs, c.input.Close())
		c.input = nil
	}
	return errors.Join(errs...)
}
