// Package engine drives a remote-play session: it establishes the sockets,
// performs the handshake, and runs the receive, heartbeat and input tasks
// until shutdown.
package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/1ureka/remoteplay/internal/config"
	"github.com/1ureka/remoteplay/internal/input"
	"github.com/1ureka/remoteplay/internal/protocol"
	"github.com/1ureka/remoteplay/internal/session"
	"github.com/1ureka/remoteplay/internal/transport"
	"github.com/1ureka/remoteplay/internal/util"
	"github.com/1ureka/remoteplay/internal/video"
)

var log = util.Scope("engine")

// ErrAlreadyRunning is returned by Run when the engine is already running.
var ErrAlreadyRunning = errors.New("engine: already running")

// recvBackoff is the pause after a failed receive, so a broken socket does
// not spin the loop.
const recvBackoff = 100 * time.Millisecond

// Timings are the fixed cadences of the session. Retries never back off and
// never give up.
type Timings struct {
	ListenRetry      time.Duration // between video bind attempts
	ConnectRetry     time.Duration // between control dial attempts
	Settle           time.Duration // after connect, before mode select
	Heartbeat        time.Duration // heartbeat cadence
	WarmupHeartbeats int           // heartbeats sent before the tasks start
}

// DefaultTimings returns the cadences the device expects.
func DefaultTimings() Timings {
	return Timings{
		ListenRetry:      time.Second,
		ConnectRetry:     5 * time.Second,
		Settle:           2 * time.Second,
		Heartbeat:        time.Second,
		WarmupHeartbeats: 2,
	}
}

// FrameSink receives every completed frame on the receive goroutine.
type FrameSink interface {
	WriteFrame(f video.Frame) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithDialer replaces the socket factory.
func WithDialer(d transport.Dialer) Option {
	return func(e *Engine) { e.dialer = d }
}

// WithEndpoints replaces the device ports.
func WithEndpoints(ep transport.Endpoints) Option {
	return func(e *Engine) { e.endpoints = ep }
}

// WithTimings replaces the session cadences.
func WithTimings(t Timings) Option {
	return func(e *Engine) { e.timings = t }
}

// WithPacketSize sets the maximum video datagram size.
func WithPacketSize(n int) Option {
	return func(e *Engine) { e.packetSize = n }
}

// WithRegistry registers the engine's metrics on reg instead of a private registry.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(e *Engine) { e.registry = reg }
}

// WithFrameSink forwards completed frames to sink.
func WithFrameSink(sink FrameSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// Engine owns the session controller, the frame reassembler and the input
// forwarder, and exposes their state to collaborators.
//
// Shutdown is cooperative: each task notices cancellation at its next
// suspension point, so teardown can take up to the longest in-flight wait.
type Engine struct {
	cfg        config.Config
	timings    Timings
	dialer     transport.Dialer
	endpoints  transport.Endpoints
	packetSize int
	registry   prometheus.Registerer
	sink       FrameSink
	id         uuid.UUID

	ctrl    *session.Controller
	frames  *video.Reassembler
	input   *input.Forwarder
	metrics *metrics
	stats   Stats

	attempts atomic.Int64

	recvErr *util.Throttled
	sinkErr *util.Throttled
	hbErr   *util.Throttled

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
	wg      sync.WaitGroup
}

// New creates an engine for cfg. Nothing is opened until Run.
func New(cfg config.Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:        cfg,
		timings:    DefaultTimings(),
		dialer:     transport.NetDialer{},
		endpoints:  transport.DefaultEndpoints(),
		packetSize: protocol.PacketSize,
		id:         uuid.New(),
		recvErr:    util.NewThrottled(log.Warning, 5*time.Second, 1),
		sinkErr:    util.NewThrottled(log.Warning, 5*time.Second, 1),
		hbErr:      util.NewThrottled(log.Warning, 5*time.Second, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = prometheus.NewRegistry()
	}

	e.metrics = newMetrics(e.registry)
	e.ctrl = session.NewController(e.dialer, e.endpoints)
	e.frames = video.NewReassembler(e.packetSize)
	e.input = input.NewForwarder(input.SenderFunc(e.sendInput), cfg.InputRateLimit, cfg.InputPollRate)
	return e
}

// SessionID identifies this engine instance in logs and status output.
func (e *Engine) SessionID() string { return e.id.String() }

// State returns the current connection state.
func (e *Engine) State() session.State { return e.ctrl.State() }

// ConnectionAttempts returns the number of listen and connect retries so far.
func (e *Engine) ConnectionAttempts() int { return int(e.attempts.Load()) }

// LatestFrame returns the most recently completed frame of surface, or false
// before the first one. The frame is an immutable snapshot.
func (e *Engine) LatestFrame(surface protocol.Surface) (video.Frame, bool) {
	return e.frames.Latest(surface)
}

// InputCounts returns how many input packets were sent and how many sends
// failed.
func (e *Engine) InputCounts() (sent, failed int64) {
	return e.input.Sent(), e.input.Failures()
}

// SubmitInput hands the latest local input state to the forwarder.
func (e *Engine) SubmitInput(state protocol.InputState) { e.input.Submit(state) }

// Run establishes the session and blocks in the receive loop until ctx is
// cancelled or Shutdown is called. It returns session.ErrInvalidAddress if the
// configured host cannot be parsed; the state stays queryable afterwards.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	e.running = true
	e.cancel = cancel
	e.done = make(chan struct{})
	done := e.done
	e.mu.Unlock()

	defer func() {
		cancel()
		if err := e.ctrl.Close(); err != nil {
			log.Debug("closing sockets: %v", err)
		}
		e.wg.Wait()

		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		close(done)
		log.Info("session %s closed", e.id)
	}()

	// Closing the sockets is what unblocks the receive loop.
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		<-ctx.Done()
		e.ctrl.Close()
	}()

	log.Info("session %s starting, device %s", e.id, e.cfg.Host)
	e.frames.Reset()

	if err := e.establish(ctx); err != nil {
		return err
	}
	if err := e.handshake(ctx); err != nil {
		return err
	}

	e.wg.Add(3)
	go func() {
		defer e.wg.Done()
		e.heartbeatLoop(ctx)
	}()
	go func() {
		defer e.wg.Done()
		e.input.Run(ctx)
	}()
	go func() {
		defer e.wg.Done()
		e.stats.runReporter(ctx, reportInterval)
	}()

	e.receiveLoop(ctx)
	return nil
}

// Shutdown stops a running engine and waits for every task to finish.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// establish binds the video endpoint, then connects the control stream,
// retrying each at its fixed cadence.
func (e *Engine) establish(ctx context.Context) error {
	for e.ctrl.Listen() != nil {
		if !util.Sleep(ctx, e.timings.ListenRetry) {
			return ctx.Err()
		}
		e.countAttempt()
	}

	for {
		err := e.ctrl.Connect(ctx, e.cfg.Host)
		e.metrics.setState(e.ctrl.State())
		if err == nil {
			return nil
		}
		if errors.Is(err, session.ErrInvalidAddress) {
			return err
		}
		if !util.Sleep(ctx, e.timings.ConnectRetry) {
			return ctx.Err()
		}
		e.countAttempt()
	}
}

func (e *Engine) countAttempt() {
	e.attempts.Add(1)
	e.metrics.connectionAttempts.Inc()
}

// handshake waits for the device to settle, selects the stream mode, and
// sends the warm-up heartbeats.
func (e *Engine) handshake(ctx context.Context) error {
	if !util.Sleep(ctx, e.timings.Settle) {
		return ctx.Err()
	}

	err := e.ctrl.SendModeSelect(e.cfg.Priority, e.cfg.PriorityFactor, e.cfg.JPEGQuality, e.cfg.QoS)
	if err != nil {
		log.Error("mode select failed: %v", err)
	}
	e.metrics.setState(e.ctrl.State())

	for i := 0; i < e.timings.WarmupHeartbeats; i++ {
		e.heartbeat()
		if !util.Sleep(ctx, e.timings.Heartbeat) {
			return ctx.Err()
		}
	}
	return nil
}

func (e *Engine) heartbeat() {
	if err := e.ctrl.Heartbeat(); err != nil {
		e.metrics.heartbeatErrors.Inc()
		e.hbErr.Printf("heartbeat failed: %v", err)
		return
	}
	e.metrics.heartbeatsSent.Inc()
}

// heartbeatLoop sends one heartbeat per interval until ctx is cancelled.
func (e *Engine) heartbeatLoop(ctx context.Context) {
	for {
		e.heartbeat()
		if !util.Sleep(ctx, e.timings.Heartbeat) {
			return
		}
	}
}

func (e *Engine) sendInput(packet []byte) error {
	if err := e.ctrl.SendInput(packet); err != nil {
		return err
	}
	e.metrics.inputsSent.Inc()
	return nil
}

// receiveLoop feeds datagrams to the reassembler until ctx is cancelled.
func (e *Engine) receiveLoop(ctx context.Context) {
	buf := make([]byte, e.packetSize)
	for {
		n, err := e.ctrl.ReadVideo(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.recvErr.Printf("receive failed: %v", err)
			if !util.Sleep(ctx, recvBackoff) {
				return
			}
			continue
		}

		res := e.frames.Ingest(buf[:n])
		e.metrics.observe(res)
		e.stats.record(res)

		if res.Outcome == video.Completed {
			e.frameCompleted(res.Surface)
		}
	}
}

func (e *Engine) frameCompleted(surface protocol.Surface) {
	if e.ctrl.MarkStreaming() {
		e.metrics.setState(session.ConnectedStreaming)
		log.Info("first frame received, streaming")
	}
	if e.sink == nil {
		return
	}
	f, ok := e.frames.Latest(surface)
	if !ok {
		return
	}
	if err := e.sink.WriteFrame(f); err != nil {
		e.sinkErr.Printf("frame sink: %v", err)
	}
}
