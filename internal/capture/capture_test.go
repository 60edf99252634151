package capture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/1ureka/remoteplay/internal/protocol"
	"github.com/1ureka/remoteplay/internal/video"
)

func TestRecordAndReplay(t *testing.T) {
	frames := []video.Frame{
		{Surface: protocol.Top, ID: 5, Data: bytes.Repeat([]byte{0xFF, 0xD8}, 4000)},
		{Surface: protocol.Bottom, ID: 6, Data: []byte("bottom")},
		{Surface: protocol.Top, ID: 7, Data: nil},
	}

	var buf bytes.Buffer
	rec, err := NewRecorder(&buf)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	for _, f := range frames {
		if err := rec.WriteFrame(f); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}
	if rec.Frames() != len(frames) {
		t.Errorf("Frames: got %d, want %d", rec.Frames(), len(frames))
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rd, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer rd.Close()

	for i, want := range frames {
		got, err := rd.Next()
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if got.Surface != want.Surface || got.ID != want.ID || !bytes.Equal(got.Data, want.Data) {
			t.Errorf("record %d: got %v/%d (%d bytes), want %v/%d (%d bytes)",
				i, got.Surface, got.ID, len(got.Data), want.Surface, want.ID, len(want.Data))
		}
	}
	if _, err := rd.Next(); err != io.EOF {
		t.Errorf("after last record: got %v, want io.EOF", err)
	}
}

func TestRecorderCompresses(t *testing.T) {
	var buf bytes.Buffer
	rec, _ := NewRecorder(&buf)
	data := bytes.Repeat([]byte("jpeg"), 10000)
	rec.Write(protocol.Top, 1, data)
	rec.Close()

	if buf.Len() >= len(data) {
		t.Errorf("compressed size %d not smaller than %d", buf.Len(), len(data))
	}
}

func TestWriteAfterClose(t *testing.T) {
	rec, _ := NewRecorder(io.Discard)
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := rec.Write(protocol.Top, 1, []byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("got %v, want ErrClosed", err)
	}
}

// rawStream compresses hand-built record bytes.
func rawStream(t *testing.T, raw []byte) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	enc.Write(raw)
	enc.Close()
	return &buf
}

func header(surface, id uint8, n uint32) []byte {
	h := []byte{surface, id, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(h[2:], n)
	return h
}

func TestReaderRejectsBadRecords(t *testing.T) {
	testCases := []struct {
		name string
		raw  []byte
		want error
	}{
		{"truncated data", append(header(1, 3, 10), "abc"...), io.ErrUnexpectedEOF},
		{"truncated header", []byte{1, 3, 10}, io.ErrUnexpectedEOF},
		{"unknown surface", append(header(7, 3, 1), 'x'), ErrBadSurface},
		{"oversized", header(0, 3, MaxRecordLen+1), ErrRecordTooLarge},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rd, err := NewReader(rawStream(t, tc.raw))
			if err != nil {
				t.Fatalf("NewReader: %v", err)
			}
			defer rd.Close()

			if _, err := rd.Next(); !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
}
