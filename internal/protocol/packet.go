// Package protocol defines the wire formats spoken with the device: control
// packets on the TCP control channel, video packets on the UDP video channel,
// and input packets on the UDP input channel.
//
// Every multi-byte integer is little-endian regardless of host byte order.
package protocol

import "errors"

// Ports the device listens on (control, input) and sends to (video).
const (
	ControlPort = 8000 // TCP
	VideoPort   = 8001 // UDP, local
	InputPort   = 4950 // UDP
)

// Control packet layout: Magic(4) + Seq(4) + Type(4) + Cmd(4) + Args(64) + Length(4).
const (
	ControlMagic      uint32 = 0x12345678
	ControlArgsSize          = 64
	ControlPacketSize        = 16 + ControlArgsSize + 4
)

// Command ids carried in the control packet.
const (
	CmdHeartbeat uint32 = 0
	CmdSetMode   uint32 = 901
)

// PacketSize is the maximum video datagram size shared with the device.
// VideoHeaderSize is the fixed header: ID(1) + Flags(1) + Format(1) + Index(1).
const (
	PacketSize      = 1448
	VideoHeaderSize = 4
)

// Video flag bits.
const (
	FlagTop  uint8 = 1 << 0 // surface select: set = top, clear = bottom
	FlagLast uint8 = 1 << 4 // final packet of the frame
)

// InputPacketSize is five little-endian uint32 words.
const InputPacketSize = 20

var (
	ErrShortPacket = errors.New("protocol: packet too short")
	ErrBadMagic    = errors.New("protocol: bad magic")
)

// Surface identifies one of the two independently streamed displays.
type Surface uint8

const (
	Bottom Surface = 0
	Top    Surface = 1
)

// Surfaces lists both surfaces in index order.
var Surfaces = [...]Surface{Bottom, Top}

func (s Surface) String() string {
	if s == Top {
		return "top"
	}
	return "bottom"
}

// ParseSurface maps "top"/"bottom" to a Surface.
func ParseSurface(name string) (Surface, bool) {
	switch name {
	case "top":
		return Top, true
	case "bottom", "btm":
		return Bottom, true
	}
	return 0, false
}

// Command is the tagged argument variant of a control packet, keyed by ID.
type Command interface {
	ID() uint32
	encodeArgs(args []byte)
}

// Heartbeat carries no arguments.
type Heartbeat struct{}

func (Heartbeat) ID() uint32           { return CmdHeartbeat }
func (Heartbeat) encodeArgs(_ []byte) {}

// SetMode selects streaming priority and quality. It is sent once per session.
type SetMode struct {
	Priority       uint8
	PriorityFactor uint8
	Quality        uint8
	QoS            uint8
}

func (SetMode) ID() uint32 { return CmdSetMode }

// RawCommand holds any command id this client does not interpret.
type RawCommand struct {
	Cmd  uint32
	Args [ControlArgsSize]byte
}

func (c RawCommand) ID() uint32 { return c.Cmd }

// ControlPacket is a decoded control-channel packet.
type ControlPacket struct {
	Magic   uint32
	Seq     uint32
	Type    uint32
	Command Command
	Length  uint32
}

// VideoPacket is one decoded datagram of the video stream. Payload aliases the
// receive buffer and is only valid until the next read.
type VideoPacket struct {
	ID      uint8
	Flags   uint8
	Format  uint8 // reserved, ignored
	Index   uint8
	Payload []byte
}

// Surface returns the display this packet belongs to.
func (p *VideoPacket) Surface() Surface {
	if p.Flags&FlagTop != 0 {
		return Top
	}
	return Bottom
}

// IsLast reports whether the packet terminates its frame.
func (p *VideoPacket) IsLast() bool { return p.Flags&FlagLast != 0 }

// InputState is the full local input snapshot forwarded to the device.
// Two states are equal iff every word is equal.
type InputState struct {
	Buttons       uint32
	Touch         uint32
	Circle        uint32
	Pro           uint32 // extension controller
	SystemButtons uint32
}
