// Package video reassembles the device's lossy UDP video stream into complete
// frames, independently for each display surface.
package video

import (
	"slices"
	"sync/atomic"
	"time"

	"github.com/1ureka/remoteplay/internal/protocol"
	"github.com/1ureka/remoteplay/internal/util"
)

const (
	// unknownIndex marks a slot whose terminal packet has not arrived.
	unknownIndex uint8 = 254
	// initialAnchor makes ids 0..127 acceptable for the first frame.
	initialAnchor uint8 = 255
	// frameCapacityHint is the first allocation for a slot's byte buffer.
	frameCapacityHint = 30000
	// neighborMarks is the number of ids before a completed frame that are
	// forced complete so their slots reset on next use.
	neighborMarks = 3
)

var log = util.Scope("video")

// Outcome is the result of ingesting one datagram.
type Outcome int

const (
	Malformed Outcome = iota // shorter than a header
	Stale                    // frame id older than the anchor
	Duplicate                // frame id equal to the anchor
	Accepted                 // applied to an in-progress frame
	Completed                // applied, and the frame is now complete
)

func (o Outcome) String() string {
	switch o {
	case Malformed:
		return "malformed"
	case Stale:
		return "stale"
	case Duplicate:
		return "duplicate"
	case Accepted:
		return "accepted"
	case Completed:
		return "completed"
	}
	return "unknown"
}

// Result describes what Ingest did with a datagram. Surface and ID are zero
// for Malformed results.
type Result struct {
	Outcome Outcome
	Surface protocol.Surface
	ID      uint8
	Bytes   int
}

// Frame is a completed, immutable frame snapshot. Seq counts completions on
// the surface starting at 1 and never repeats for the reassembler's lifetime,
// unlike ID which wraps every 256 frames.
type Frame struct {
	Surface protocol.Surface
	ID      uint8
	Seq     uint64
	Data    []byte
}

// slot tracks reassembly of one frame id.
type slot struct {
	seq       bitmap
	lastIndex uint8
	pending   bool
	complete  bool
	data      []byte
}

func (s *slot) reset() {
	s.seq = bitmap{}
	s.lastIndex = unknownIndex
	s.pending = false
	s.complete = false
	s.data = s.data[:0]
}

// put copies payload to offset, growing the buffer with zeroes as needed.
func (s *slot) put(offset int, payload []byte) {
	end := offset + len(payload)
	if n := len(s.data); end > n {
		if cap(s.data) == 0 {
			s.data = make([]byte, 0, max(end, frameCapacityHint))
		}
		s.data = slices.Grow(s.data, end-n)[:end]
		clear(s.data[n:end])
	}
	copy(s.data[offset:], payload)
}

type surfaceState struct {
	lastGoodID uint8
	slots      [256]slot
	latest     atomic.Pointer[Frame]
	completed  uint64 // survives Reset so Seq stays unique
}

func (st *surfaceState) init() {
	st.lastGoodID = initialAnchor
	for i := range st.slots {
		st.slots[i].reset()
	}
	st.latest.Store(nil)
}

// Reassembler turns video datagrams into complete frames.
//
// Each surface owns 256 slots indexed by the 8-bit frame id. A slot is only
// recycled when it is reused while marked complete, so at most 256 frames can
// be in flight per surface before wraparound corrupts a slot. This is a hard
// capacity bound, not backpressure.
//
// When a frame completes, the three ids before it are force-marked complete so
// that their slots reset the next time those ids come around. This can hide a
// genuine late packet for one of those ids; it is kept for compatibility with
// the device's pacing.
//
// Ingest, LatestID and Read must be called from a single goroutine. Latest is
// safe to call from any goroutine.
type Reassembler struct {
	payloadSize int
	surfaces    [len(protocol.Surfaces)]surfaceState

	late      *util.Throttled
	redeliver *util.Throttled
	malformed *util.Throttled
}

// NewReassembler creates a reassembler for datagrams of at most packetSize
// bytes, header included.
func NewReassembler(packetSize int) *Reassembler {
	r := &Reassembler{
		payloadSize: packetSize - protocol.VideoHeaderSize,
		late:        util.NewThrottled(log.Debug, time.Second, 5),
		redeliver:   util.NewThrottled(log.Warning, time.Second, 5),
		malformed:   util.NewThrottled(log.Warning, time.Second, 5),
	}
	r.Reset()
	return r
}

// Reset returns every slot and anchor to the initial state.
func (r *Reassembler) Reset() {
	for i := range r.surfaces {
		r.surfaces[i].init()
	}
}

// Ingest applies one datagram.
func (r *Reassembler) Ingest(data []byte) Result {
	pkt, err := protocol.DecodeVideo(data)
	if err != nil {
		r.malformed.Printf("discarding datagram: %v", err)
		return Result{Outcome: Malformed}
	}

	surface := pkt.Surface()
	st := &r.surfaces[surface]
	res := Result{Surface: surface, ID: pkt.ID, Bytes: len(pkt.Payload)}

	if diff := protocol.DiffFrameIDs(pkt.ID, st.lastGoodID); diff < 1 {
		if diff == 0 {
			r.redeliver.Printf("%s: packet %d for already completed frame %d", surface, pkt.Index, pkt.ID)
			res.Outcome = Duplicate
			return res
		}
		r.late.Printf("%s: discarding late packet %d for frame %d, last frame is %d",
			surface, pkt.Index, pkt.ID, st.lastGoodID)
		res.Outcome = Stale
		return res
	}

	s := &st.slots[pkt.ID]
	if s.complete {
		s.reset()
	}

	s.seq.set(pkt.Index)
	s.put(int(pkt.Index)*r.payloadSize, pkt.Payload)

	if pkt.IsLast() {
		s.lastIndex = pkt.Index
		s.pending = true
	}

	if !s.pending || !s.seq.allBelow(s.lastIndex) {
		res.Outcome = Accepted
		return res
	}

	s.complete = true
	st.lastGoodID = pkt.ID
	for i := uint8(1); i <= neighborMarks; i++ {
		st.slots[pkt.ID-i].complete = true
	}
	st.completed++
	st.latest.Store(&Frame{Surface: surface, ID: pkt.ID, Seq: st.completed, Data: slices.Clone(s.data)})

	res.Outcome = Completed
	return res
}

// LatestID returns the anchor: the id of the most recently completed frame.
func (r *Reassembler) LatestID(surface protocol.Surface) uint8 {
	return r.surfaces[surface].lastGoodID
}

// Read returns the working buffer of the slot for id. The buffer is reused
// once the slot is recycled.
func (r *Reassembler) Read(surface protocol.Surface, id uint8) []byte {
	return r.surfaces[surface].slots[id].data
}

// Latest returns a snapshot of the most recently completed frame, or false if
// no frame has completed on this surface yet.
func (r *Reassembler) Latest(surface protocol.Surface) (Frame, bool) {
	f := r.surfaces[surface].latest.Load()
	if f == nil {
		return Frame{}, false
	}
	return *f, true
}
