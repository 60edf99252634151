package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/1ureka/remoteplay/internal/protocol"
	"github.com/1ureka/remoteplay/internal/util"
	"github.com/1ureka/remoteplay/internal/video"
)

const reportInterval = 10 * time.Second

// Stats is the engine's traffic counter, read by the periodic reporter.
type Stats struct {
	Frames    [len(protocol.Surfaces)]atomic.Int64 // completed frames per surface
	BytesRecv atomic.Int64                         // payload bytes applied to frames
	Dropped   atomic.Int64                         // stale, duplicate and malformed datagrams
}

func (s *Stats) record(res video.Result) {
	switch res.Outcome {
	case video.Completed:
		s.Frames[res.Surface].Add(1)
		fallthrough
	case video.Accepted:
		s.BytesRecv.Add(int64(res.Bytes))
	default:
		s.Dropped.Add(1)
	}
}

// runReporter logs frame rates and throughput every interval while traffic
// is flowing. It stops when ctx is cancelled.
func (s *Stats) runReporter(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var prevTop, prevBtm, prevRecv, prevDropped int64
	secs := interval.Seconds()
	for {
		select {
		case <-ticker.C:
			top := s.Frames[protocol.Top].Load()
			btm := s.Frames[protocol.Bottom].Load()
			recv := s.BytesRecv.Load()
			dropped := s.Dropped.Load()

			if top != prevTop || btm != prevBtm || dropped != prevDropped {
				log.Info("%s", formatStats(
					float64(top-prevTop)/secs,
					float64(btm-prevBtm)/secs,
					float64(recv-prevRecv)/secs,
					dropped-prevDropped,
				))
			}

			prevTop, prevBtm, prevRecv, prevDropped = top, btm, recv, dropped

		case <-ctx.Done():
			return
		}
	}
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(topFPS, btmFPS, inS float64, dropped int64) string {
	return fmt.Sprintf("Top: %4.1f fps | Bottom: %4.1f fps | In: %s/s | Dropped: %d",
		topFPS,
		btmFPS,
		util.FormatBytes(inS),
		dropped,
	)
}
