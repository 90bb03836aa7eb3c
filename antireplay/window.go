package antireplay

// thank you again to Wireguard-Go for helping me understand this
// most credit to https://git.zx2c4.com/wireguard-go/tree/replay/replay.go

const (
	// bits in a block
	blockBits = 64
	// log of bits in a block
	blockBitsLog = 6
	// total number of bits in the ring, must be a power of 2
	ringBits  = 1024
	numBlocks = ringBits / blockBits

	// WindowSize is how far behind the highest nonce a nonce may arrive.
	// One block is kept spare so the top block can be cleared while sliding.
	WindowSize = uint64(ringBits - blockBits)
)

// Window is a sliding window that records which nonces have been seen.
// It implements the anti-replay algorithm described in RFC 6479.
//
// Checking is split in two so a receiver can Test a nonce, authenticate the
// message, and only then Mark it. A forged message must not burn a nonce.
type Window struct {
	highest uint64
	// true once anything was marked, so nonce 0 is not mistaken as seen
	used   bool
	blocks [numBlocks]uint64
}

// Reset resets the window to its initial state
func (w *Window) Reset() {
	w.highest = 0
	w.used = false
	for i := range w.blocks {
		w.blocks[i] = 0
	}
}

// Test reports whether index is inside the window and has not been marked.
// It does not modify the window.
func (w *Window) Test(index uint64) bool {
	if !w.used {
		return true
	}
	if index > w.highest {
		return true
	}
	// too old
	if w.highest-index > WindowSize {
		return false
	}
	block, bit := position(index)
	return w.blocks[block]&bit == 0
}

// Mark records index as seen, sliding the window forward if needed.
// Indices older than the window are ignored.
func (w *Window) Mark(index uint64) {
	if w.used && index < w.highest && w.highest-index > WindowSize {
		return
	}
	if !w.used || index > w.highest {
		w.slide(index)
	}
	block, bit := position(index)
	w.blocks[block] |= bit
}

// Check records seeing index and returns true if the index is within the
// window and has not been seen before. If it returns false, the index is
// considered invalid and the window is unchanged.
func (w *Window) Check(index uint64) bool {
	if !w.Test(index) {
		return false
	}
	w.Mark(index)
	return true
}

// slide clears every block between the current top block and the one
// holding index, then makes index the highest.
func (w *Window) slide(index uint64) {
	top := w.highest >> blockBitsLog
	target := index >> blockBitsLog
	if !w.used {
		for i := range w.blocks {
			w.blocks[i] = 0
		}
	} else {
		// cap it at a full circle around the ring, at that point we clear
		// the whole thing
		steps := target - top
		if steps > numBlocks {
			steps = numBlocks
		}
		for i := uint64(1); i <= steps; i++ {
			w.blocks[(top+i)%numBlocks] = 0
		}
	}
	w.highest = index
	w.used = true
}

func position(index uint64) (block uint64, bit uint64) {
	block = (index >> blockBitsLog) % numBlocks
	bit = 1 << (index & (blockBits - 1))
	return
}
