// Package input forwards the latest local input state to the device,
// coalescing rapid changes and rate limiting transmissions.
package input

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/1ureka/remoteplay/internal/protocol"
	"github.com/1ureka/remoteplay/internal/util"
)

var log = util.Scope("input")

// Sender transmits one encoded input packet.
type Sender interface {
	SendInput(packet []byte) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(packet []byte) error

func (f SenderFunc) SendInput(packet []byte) error { return f(packet) }

// Forwarder holds the latest input state and a dirty flag under one lock.
// Submit is called by the input-polling collaborator; Run is the only reader.
type Forwarder struct {
	sender    Sender
	rateLimit time.Duration
	pollRate  time.Duration

	mu    sync.Mutex
	last  protocol.InputState
	dirty bool

	sent     atomic.Int64
	failures atomic.Int64
	sendErr  *util.Throttled
}

// NewForwarder creates a forwarder. After a transmission it waits rateLimit;
// while nothing changed it polls every pollRate.
func NewForwarder(sender Sender, rateLimit, pollRate time.Duration) *Forwarder {
	return &Forwarder{
		sender:    sender,
		rateLimit: rateLimit,
		pollRate:  pollRate,
		sendErr:   util.NewThrottled(log.Warning, 5*time.Second, 1),
	}
}

// Submit replaces the held state and marks it dirty, unless it is unchanged.
func (f *Forwarder) Submit(state protocol.InputState) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if state == f.last {
		return
	}
	f.last = state
	f.dirty = true
}

// Dirty reports whether a submitted state is waiting to be sent.
func (f *Forwarder) Dirty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirty
}

// Sent returns the number of successful transmissions.
func (f *Forwarder) Sent() int64 { return f.sent.Load() }

// Failures returns the number of failed transmissions.
func (f *Forwarder) Failures() int64 { return f.failures.Load() }

// Flush sends the held state if it is dirty. It reports whether a
// transmission was attempted and the send error, if any. A failed send still
// clears the dirty flag; the next change is sent as usual.
func (f *Forwarder) Flush() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.dirty {
		return false, nil
	}
	err := f.sender.SendInput(protocol.EncodeInput(f.last))
	f.dirty = false

	if err != nil {
		f.failures.Add(1)
		return true, err
	}
	f.sent.Add(1)
	return true, nil
}

// Run flushes in a loop until ctx is cancelled.
func (f *Forwarder) Run(ctx context.Context) {
	for ctx.Err() == nil {
		sent, err := f.Flush()
		if err != nil {
			f.sendErr.Printf("send failed: %v", err)
		}

		wait := f.pollRate
		if sent {
			wait = f.rateLimit
		}
		if !util.Sleep(ctx, wait) {
			return
		}
	}
}
