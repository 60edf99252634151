package protocol

import (
	"encoding/binary"
	"fmt"
)

var le = binary.LittleEndian

// EncodeControl serializes cmd into a fixed-size control packet.
func EncodeControl(cmd Command) []byte {
	buf := make([]byte, ControlPacketSize)
	le.PutUint32(buf[0:4], ControlMagic)
	le.PutUint32(buf[4:8], 1)
	le.PutUint32(buf[8:12], 0)
	le.PutUint32(buf[12:16], cmd.ID())
	cmd.encodeArgs(buf[16 : 16+ControlArgsSize])
	le.PutUint32(buf[16+ControlArgsSize:], 0)
	return buf
}

func (m SetMode) encodeArgs(args []byte) {
	le.PutUint32(args[0:4], uint32(m.Priority)<<8|uint32(m.PriorityFactor))
	le.PutUint32(args[4:8], uint32(m.Quality))
	le.PutUint32(args[8:12], uint32(m.QoS)*2<<16)
}

func (c RawCommand) encodeArgs(args []byte) {
	copy(args, c.Args[:])
}

// DecodeControl parses a control packet and its command-specific arguments.
func DecodeControl(data []byte) (*ControlPacket, error) {
	if len(data) < ControlPacketSize {
		return nil, fmt.Errorf("%w: %d bytes (need %d)", ErrShortPacket, len(data), ControlPacketSize)
	}
	pkt := &ControlPacket{
		Magic:  le.Uint32(data[0:4]),
		Seq:    le.Uint32(data[4:8]),
		Type:   le.Uint32(data[8:12]),
		Length: le.Uint32(data[16+ControlArgsSize:]),
	}
	if pkt.Magic != ControlMagic {
		return nil, fmt.Errorf("%w: %#08x", ErrBadMagic, pkt.Magic)
	}

	args := data[16 : 16+ControlArgsSize]
	switch id := le.Uint32(data[12:16]); id {
	case CmdHeartbeat:
		pkt.Command = Heartbeat{}
	case CmdSetMode:
		mode := le.Uint32(args[0:4])
		pkt.Command = SetMode{
			Priority:       uint8(mode >> 8),
			PriorityFactor: uint8(mode),
			Quality:        uint8(le.Uint32(args[4:8])),
			QoS:            uint8(le.Uint32(args[8:12]) >> 16 / 2),
		}
	default:
		raw := RawCommand{Cmd: id}
		copy(raw.Args[:], args)
		pkt.Command = raw
	}
	return pkt, nil
}

// DecodeVideo parses the 4-byte video header. The returned payload aliases data.
func DecodeVideo(data []byte) (*VideoPacket, error) {
	if len(data) < VideoHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes (need at least %d)", ErrShortPacket, len(data), VideoHeaderSize)
	}
	return &VideoPacket{
		ID:      data[0],
		Flags:   data[1],
		Format:  data[2],
		Index:   data[3],
		Payload: data[VideoHeaderSize:],
	}, nil
}

// EncodeVideo builds a video datagram. The client never sends these; the
// device simulator in tests and tooling does.
func EncodeVideo(id uint8, surface Surface, last bool, index uint8, payload []byte) []byte {
	var flags uint8
	if surface == Top {
		flags |= FlagTop
	}
	if last {
		flags |= FlagLast
	}
	buf := make([]byte, VideoHeaderSize+len(payload))
	buf[0] = id
	buf[1] = flags
	buf[3] = index
	copy(buf[VideoHeaderSize:], payload)
	return buf
}

// EncodeInput serializes an input snapshot into its 20-byte wire form.
func EncodeInput(s InputState) []byte {
	buf := make([]byte, InputPacketSize)
	le.PutUint32(buf[0:4], s.Buttons)
	le.PutUint32(buf[4:8], s.Touch)
	le.PutUint32(buf[8:12], s.Circle)
	le.PutUint32(buf[12:16], s.Pro)
	le.PutUint32(buf[16:20], s.SystemButtons)
	return buf
}

// DecodeInput is the inverse of EncodeInput.
func DecodeInput(data []byte) (InputState, error) {
	if len(data) < InputPacketSize {
		return InputState{}, fmt.Errorf("%w: %d bytes (need %d)", ErrShortPacket, len(data), InputPacketSize)
	}
	return InputState{
		Buttons:       le.Uint32(data[0:4]),
		Touch:         le.Uint32(data[4:8]),
		Circle:        le.Uint32(data[8:12]),
		Pro:           le.Uint32(data[12:16]),
		SystemButtons: le.Uint32(data[16:20]),
	}, nil
}

// DiffFrameIDs returns incoming-old as a signed 8-bit wraparound distance:
// positive when incoming is ahead of old, negative when it is behind.
func DiffFrameIDs(incoming, old uint8) int8 {
	return int8(incoming - old)
}
