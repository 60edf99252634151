package transport

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestDefaultEndpoints(t *testing.T) {
	e := DefaultEndpoints()

	testCases := []struct {
		name, got, want string
	}{
		{"control", e.Control("10.0.0.2"), "10.0.0.2:8000"},
		{"video", e.Video(), ":8001"},
		{"input", e.Input("10.0.0.2"), "10.0.0.2:4950"},
	}
	for _, tc := range testCases {
		if tc.got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, tc.got, tc.want)
		}
	}
}

// TestNetDialerLoopback opens all three sockets against loopback listeners.
func TestNetDialerLoopback(t *testing.T) {
	var d NetDialer

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err == nil {
			c.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ctrl, err := d.DialControl(ctx, ln.Addr().String())
	if err != nil {
		t.Fatalf("dial control: %v", err)
	}
	ctrl.Close()

	video, err := d.ListenVideo("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen video: %v", err)
	}
	defer video.Close()

	in, err := d.DialInput(video.LocalAddr().String())
	if err != nil {
		t.Fatalf("dial input: %v", err)
	}
	defer in.Close()

	if _, err := in.Write([]byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 16)
	video.SetReadDeadline(time.Now().Add(5 * time.Second))
	n, _, err := video.ReadFrom(buf)
	if err != nil || string(buf[:n]) != "ping" {
		t.Errorf("read: %q, %v", buf[:n], err)
	}
}
