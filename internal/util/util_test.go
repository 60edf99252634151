package util

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestFormatBytes(t *testing.T) {
	testCases := []struct {
		in   float64
		want string
	}{
		{0, " 0.0   B"},
		{99, "99.0   B"},
		{1536, " 1.5 KiB"},
		{100 * 1024, " 0.1 MiB"},
	}
	for _, tc := range testCases {
		if got := FormatBytes(tc.in); got != tc.want {
			t.Errorf("FormatBytes(%v) = %q, want %q", tc.in, got, tc.want)
		}
		if len(FormatBytes(tc.in)) != 8 {
			t.Errorf("FormatBytes(%v) is not 8 chars wide", tc.in)
		}
	}
}

func TestThrottledSuppressesBurst(t *testing.T) {
	var lines []string
	log := func(format string, args ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}

	th := NewThrottled(log, time.Hour, 2)
	for i := 0; i < 5; i++ {
		th.Printf("line %d", i)
	}

	if len(lines) != 2 {
		t.Fatalf("expected 2 lines through, got %d: %v", len(lines), lines)
	}
	if got := th.suppressed.Load(); got != 3 {
		t.Errorf("expected 3 suppressed, got %d", got)
	}
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if Sleep(ctx, time.Minute) {
		t.Error("expected Sleep to report cancellation")
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep did not return promptly after cancellation")
	}
}

func TestSleepElapses(t *testing.T) {
	if !Sleep(context.Background(), time.Millisecond) {
		t.Error("expected Sleep to complete")
	}
}
