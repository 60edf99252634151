// Package preview serves the latest frames and session status over HTTP so a
// browser or a second process can watch the stream.
package preview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/1ureka/remoteplay/internal/protocol"
	"github.com/1ureka/remoteplay/internal/session"
	"github.com/1ureka/remoteplay/internal/util"
	"github.com/1ureka/remoteplay/internal/video"
)

var log = util.Scope("preview")

const (
	defaultPollInterval = 15 * time.Millisecond
	writeTimeout        = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Source is what the relay reads from. *engine.Engine satisfies it.
type Source interface {
	State() session.State
	ConnectionAttempts() int
	SessionID() string
	LatestFrame(surface protocol.Surface) (video.Frame, bool)
	InputCounts() (sent, failed int64)
}

// InputSink is implemented by sources that accept input from viewers. Each
// binary message a viewer sends is decoded as one input packet.
type InputSink interface {
	SubmitInput(state protocol.InputState)
}

// Status is the body of GET /status. Frame ids are null until the first
// frame of that surface completes.
type Status struct {
	Session   string `json:"session"`
	State     string `json:"state"`
	StateCode int    `json:"state_code"`
	Attempts  int    `json:"attempts"`
	Top       *uint8 `json:"top"`
	Bottom    *uint8 `json:"bottom"`

	InputsSent   int64 `json:"inputs_sent"`
	InputsFailed int64 `json:"inputs_failed"`
}

// Server relays frames to WebSocket viewers.
type Server struct {
	src          Source
	gatherer     prometheus.Gatherer
	pollInterval time.Duration
	router       chi.Router

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex // guards closed and streams.Add
	closed  bool
	streams sync.WaitGroup

	listener net.Listener
	http     *http.Server
}

// NewServer builds the relay. gatherer may be nil, in which case /metrics is
// not served.
func NewServer(src Source, gatherer prometheus.Gatherer) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		src:          src,
		gatherer:     gatherer,
		pollInterval: defaultPollInterval,
		ctx:          ctx,
		cancel:       cancel,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/status", s.handleStatus)
	r.Get("/ws/{surface}", s.handleStream)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	s.router = r
	return s
}

// Handler returns the relay's router.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on addr and serves in the background. It returns the bound
// address, which differs from addr when the port is 0.
func (s *Server) Start(addr string) (net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start preview server: %w", err)
	}
	s.listener = listener
	s.http = &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("serve: %v", err)
		}
	}()

	log.Info("preview listening on http://%s", listener.Addr())
	return listener.Addr(), nil
}

// Close stops accepting connections, ends every stream, and waits for them.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	var err error
	if s.http != nil {
		err = s.http.Close()
	}
	s.streams.Wait()
	return err
}

// track registers a new stream. It returns false once Close has begun.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.streams.Add(1)
	return true
}

func (s *Server) status() Status {
	state := s.src.State()
	st := Status{
		Session:   s.src.SessionID(),
		State:     state.String(),
		StateCode: int(state),
		Attempts:  s.src.ConnectionAttempts(),
	}
	st.InputsSent, st.InputsFailed = s.src.InputCounts()
	if f, ok := s.src.LatestFrame(protocol.Top); ok {
		st.Top = &f.ID
	}
	if f, ok := s.src.LatestFrame(protocol.Bottom); ok {
		st.Bottom = &f.ID
	}
	return st
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.status()); err != nil {
		log.Debug("status: %v", err)
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	surface, ok := protocol.ParseSurface(chi.URLParam(r, "surface"))
	if !ok {
		http.Error(w, "unknown surface", http.StatusNotFound)
		return
	}

	if !s.track() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.streams.Done()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	log.Debug("viewer %s attached to %s", r.RemoteAddr, surface)
	s.stream(conn, surface)
	log.Debug("viewer %s detached", r.RemoteAddr)
}

// stream sends each newly completed frame of surface as one binary message
// until the viewer disconnects or the server closes.
func (s *Server) stream(conn *websocket.Conn, surface protocol.Surface) {
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		s.readInput(conn)
	}()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-ticker.C:
			f, ok := s.src.LatestFrame(surface)
			if !ok || f.Seq == last {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.BinaryMessage, f.Data); err != nil {
				return
			}
			last = f.Seq

		case <-gone:
			return

		case <-s.ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
			return
		}
	}
}

// readInput consumes viewer messages until the connection fails. Binary
// messages are forwarded as input when the source accepts it.
func (s *Server) readInput(conn *websocket.Conn) {
	sink, _ := s.src.(InputSink)
	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if sink == nil || typ != websocket.BinaryMessage {
			continue
		}
		state, err := protocol.DecodeInput(data)
		if err != nil {
			log.Debug("ignoring input message: %v", err)
			continue
		}
		sink.SubmitInput(state)
	}
}
