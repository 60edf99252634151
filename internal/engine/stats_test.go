package engine

import (
	"strings"
	"testing"

	"github.com/1ureka/remoteplay/internal/protocol"
	"github.com/1ureka/remoteplay/internal/video"
)

func TestStatsRecord(t *testing.T) {
	var s Stats
	for _, res := range []video.Result{
		{Outcome: video.Accepted, Surface: protocol.Top, Bytes: 8},
		{Outcome: video.Completed, Surface: protocol.Top, Bytes: 4},
		{Outcome: video.Completed, Surface: protocol.Bottom, Bytes: 10},
		{Outcome: video.Stale, Surface: protocol.Top, Bytes: 8},
		{Outcome: video.Duplicate, Surface: protocol.Bottom, Bytes: 8},
		{Outcome: video.Malformed},
	} {
		s.record(res)
	}

	if got := s.Frames[protocol.Top].Load(); got != 1 {
		t.Errorf("top frames: got %d, want 1", got)
	}
	if got := s.Frames[protocol.Bottom].Load(); got != 1 {
		t.Errorf("bottom frames: got %d, want 1", got)
	}
	if got := s.BytesRecv.Load(); got != 22 {
		t.Errorf("bytes: got %d, want 22", got)
	}
	if got := s.Dropped.Load(); got != 3 {
		t.Errorf("dropped: got %d, want 3", got)
	}
}

// The stats line is logged verbatim, so it must survive a round through the
// printf-style logger even if it ever contains a percent sign.
func TestFormatStats(t *testing.T) {
	line := formatStats(30, 29.5, 2048, 3)

	for _, want := range []string{"Top: 30.0 fps", "Bottom: 29.5 fps", "In:  2.0 KiB/s", "Dropped: 3"} {
		if !strings.Contains(line, want) {
			t.Errorf("%q missing %q", line, want)
		}
	}
	if strings.Contains(line, "%!") {
		t.Errorf("line carries a formatting error: %q", line)
	}
}
