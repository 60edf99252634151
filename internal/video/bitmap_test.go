package video

import "testing"

func TestBitmapAllBelow(t *testing.T) {
	var b bitmap
	if !b.allBelow(0) {
		t.Error("empty range must be satisfied")
	}
	if b.allBelow(1) {
		t.Error("index 0 is not set")
	}

	for i := 0; i < 130; i++ {
		b.set(uint8(i))
	}
	testCases := []struct {
		n    uint8
		want bool
	}{
		{64, true},
		{65, true},
		{128, true},
		{130, true},
		{131, false},
		{255, false},
	}
	for _, tc := range testCases {
		if got := b.allBelow(tc.n); got != tc.want {
			t.Errorf("allBelow(%d) = %v, want %v", tc.n, got, tc.want)
		}
	}
	if b.count() != 130 {
		t.Errorf("count: got %d, want 130", b.count())
	}
}

func TestBitmapGap(t *testing.T) {
	var b bitmap
	for i := 0; i < 10; i++ {
		if i != 7 {
			b.set(uint8(i))
		}
	}
	if b.allBelow(10) {
		t.Error("gap at 7 must fail the check")
	}
	if !b.allBelow(7) {
		t.Error("[0,7) is complete")
	}
	if b.has(7) || !b.has(9) {
		t.Error("has() mismatch")
	}
}

func TestBitmapHighIndex(t *testing.T) {
	var b bitmap
	b.set(255)
	if !b.has(255) || b.has(254) {
		t.Error("has() mismatch at the top of the range")
	}
}
