package input

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/1ureka/remoteplay/internal/protocol"
)

// recordingSender stores every packet it is asked to send.
type recordingSender struct {
	mu      sync.Mutex
	packets [][]byte
	err     error
}

func (s *recordingSender) SendInput(packet []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.packets = append(s.packets, bytes.Clone(packet))
	return nil
}

func (s *recordingSender) snapshot() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.packets...)
}

func TestSubmitSameValueStaysClean(t *testing.T) {
	f := NewForwarder(&recordingSender{}, time.Millisecond, time.Millisecond)

	f.Submit(protocol.InputState{})
	if f.Dirty() {
		t.Error("submitting the initial value must not mark dirty")
	}

	s := protocol.InputState{Buttons: 1}
	f.Submit(s)
	if !f.Dirty() {
		t.Fatal("a new value must mark dirty")
	}
	if _, err := f.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	f.Submit(s)
	if f.Dirty() {
		t.Error("resubmitting the held value must not mark dirty")
	}
}

func TestFlushSendsEncodedState(t *testing.T) {
	rec := &recordingSender{}
	f := NewForwarder(rec, time.Millisecond, time.Millisecond)

	if sent, _ := f.Flush(); sent {
		t.Error("clean forwarder must not send")
	}

	s := protocol.InputState{Buttons: 0xFFF, Touch: 0x2000000, Circle: 0x7FF7FF, SystemButtons: 1}
	f.Submit(s)
	sent, err := f.Flush()
	if !sent || err != nil {
		t.Fatalf("flush: sent=%v err=%v", sent, err)
	}

	packets := rec.snapshot()
	if len(packets) != 1 || !bytes.Equal(packets[0], protocol.EncodeInput(s)) {
		t.Errorf("got %x, want %x", packets, protocol.EncodeInput(s))
	}
	if f.Dirty() {
		t.Error("flush must clear dirty")
	}
	if f.Sent() != 1 {
		t.Errorf("sent counter: got %d, want 1", f.Sent())
	}
}

func TestFlushFailureClearsDirty(t *testing.T) {
	rec := &recordingSender{err: errors.New("network unreachable")}
	f := NewForwarder(rec, time.Millisecond, time.Millisecond)

	f.Submit(protocol.InputState{Touch: 9})
	sent, err := f.Flush()
	if !sent || err == nil {
		t.Fatalf("expected attempted send with error, got sent=%v err=%v", sent, err)
	}
	if f.Dirty() {
		t.Error("dirty must be cleared after a failed send")
	}
	if f.Failures() != 1 {
		t.Errorf("failure counter: got %d, want 1", f.Failures())
	}
}

// TestRunCoalescesChanges checks that changes made while the forwarder is
// rate limited are merged into a single transmission of the newest state.
func TestRunCoalescesChanges(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		rec := &recordingSender{}
		f := NewForwarder(rec, 50*time.Millisecond, 5*time.Millisecond)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		a := protocol.InputState{Buttons: 1}
		b := protocol.InputState{Buttons: 2}
		c := protocol.InputState{Buttons: 3}

		f.Submit(a)
		go f.Run(ctx)

		time.Sleep(10 * time.Millisecond)
		synctest.Wait()
		if got := rec.snapshot(); len(got) != 1 || !bytes.Equal(got[0], protocol.EncodeInput(a)) {
			t.Fatalf("after first change: got %x", got)
		}

		f.Submit(b)
		f.Submit(c)

		time.Sleep(20 * time.Millisecond)
		synctest.Wait()
		if got := rec.snapshot(); len(got) != 1 {
			t.Fatalf("rate limit violated: %d packets", len(got))
		}

		time.Sleep(40 * time.Millisecond)
		synctest.Wait()
		got := rec.snapshot()
		if len(got) != 2 {
			t.Fatalf("expected 2 packets, got %d", len(got))
		}
		if !bytes.Equal(got[1], protocol.EncodeInput(c)) {
			t.Errorf("second packet: got %x, want latest state %x", got[1], protocol.EncodeInput(c))
		}

		cancel()
	})
}

// TestRunIdlePollSendsNewValue checks that a change made while idle goes out
// on the next poll.
func TestRunIdlePollSendsNewValue(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		rec := &recordingSender{}
		f := NewForwarder(rec, time.Second, 10*time.Millisecond)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go f.Run(ctx)

		time.Sleep(100 * time.Millisecond)
		synctest.Wait()
		if n := len(rec.snapshot()); n != 0 {
			t.Fatalf("idle forwarder sent %d packets", n)
		}

		s := protocol.InputState{Pro: 0x80}
		f.Submit(s)
		time.Sleep(10 * time.Millisecond)
		synctest.Wait()

		got := rec.snapshot()
		if len(got) != 1 || !bytes.Equal(got[0], protocol.EncodeInput(s)) {
			t.Errorf("got %x, want one packet %x", got, protocol.EncodeInput(s))
		}
		cancel()
	})
}
