// Package capture records completed frames to a zstd-compressed stream and
// reads them back.
//
// Record layout (little-endian), repeated until end of stream:
//
//	[0]    surface  uint8
//	[1]    frame id uint8
//	[2-5]  length   uint32
//	[6-]   data     length bytes
package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/1ureka/remoteplay/internal/protocol"
	"github.com/1ureka/remoteplay/internal/video"
)

const (
	recordHeaderSize = 6

	// MaxRecordLen bounds a single frame on read.
	MaxRecordLen = 256 * protocol.PacketSize
)

var (
	ErrClosed         = errors.New("capture: recorder closed")
	ErrRecordTooLarge = errors.New("capture: record exceeds maximum size")
	ErrBadSurface     = errors.New("capture: unknown surface")
)

// Record is one captured frame.
type Record struct {
	Surface protocol.Surface
	ID      uint8
	Data    []byte
}

// Recorder appends frames to a compressed stream. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	enc    *zstd.Encoder
	header [recordHeaderSize]byte
	frames int
	closed bool
}

// NewRecorder wraps w in a zstd encoder. Close must be called to flush the
// stream; it does not close w.
func NewRecorder(w io.Writer) (*Recorder, error) {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("capture: new encoder: %w", err)
	}
	return &Recorder{enc: enc}, nil
}

// Write appends one record.
func (r *Recorder) Write(surface protocol.Surface, id uint8, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	r.header[0] = uint8(surface)
	r.header[1] = id
	binary.LittleEndian.PutUint32(r.header[2:], uint32(len(data)))

	if _, err := r.enc.Write(r.header[:]); err != nil {
		return err
	}
	if _, err := r.enc.Write(data); err != nil {
		return err
	}
	r.frames++
	return nil
}

// WriteFrame appends f. It lets a Recorder serve as the engine's frame sink.
func (r *Recorder) WriteFrame(f video.Frame) error {
	return r.Write(f.Surface, f.ID, f.Data)
}

// Frames returns the number of records written.
func (r *Recorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Close flushes the encoder. Further writes fail with ErrClosed.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	return r.enc.Close()
}

// Reader iterates over the records of a captured stream.
type Reader struct {
	dec    *zstd.Decoder
	header [recordHeaderSize]byte
}

// NewReader opens a captured stream.
func NewReader(r io.Reader) (*Reader, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("capture: new decoder: %w", err)
	}
	return &Reader{dec: dec}, nil
}

// Next returns the next record, or io.EOF at a clean end of stream. A stream
// cut inside a record yields io.ErrUnexpectedEOF.
func (r *Reader) Next() (Record, error) {
	if _, err := io.ReadFull(r.dec, r.header[:]); err != nil {
		return Record{}, err
	}

	surface := protocol.Surface(r.header[0])
	if surface != protocol.Top && surface != protocol.Bottom {
		return Record{}, fmt.Errorf("%w: %d", ErrBadSurface, r.header[0])
	}
	n := binary.LittleEndian.Uint32(r.header[2:])
	if n > MaxRecordLen {
		return Record{}, fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, n)
	}

	data := make([]byte, n)
	if _, err := io.ReadFull(r.dec, data); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Record{}, err
	}
	return Record{Surface: surface, ID: r.header[1], Data: data}, nil
}

// Close releases the decoder.
func (r *Reader) Close() {
	r.dec.Close()
}
