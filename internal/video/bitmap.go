package video

import "math/bits"

// bitmap records which packet indices of a frame have arrived.
type bitmap [4]uint64

func (b *bitmap) set(i uint8) {
	b[i>>6] |= 1 << (i & 63)
}

func (b *bitmap) has(i uint8) bool {
	return b[i>>6]&(1<<(i&63)) != 0
}

// allBelow reports whether every index in [0, n) is set.
func (b *bitmap) allBelow(n uint8) bool {
	full := int(n) >> 6
	for w := 0; w < full; w++ {
		if b[w] != ^uint64(0) {
			return false
		}
	}
	rem := n & 63
	if rem == 0 {
		return true
	}
	mask := uint64(1)<<rem - 1
	return b[full]&mask == mask
}

func (b *bitmap) count() int {
	return bits.OnesCount64(b[0]) + bits.OnesCount64(b[1]) +
		bits.OnesCount64(b[2]) + bits.OnesCount64(b[3])
}
