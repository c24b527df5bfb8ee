package tickbitmap

import (
	"sort"

	uniswapv3 "github.com/defistate/arb-engine-go/protocols/uniswapv3"
)

// NextInitializedTick finds the next initialized tick from a sorted slice of
// initialized ticks. It replaces the on-chain word-bitmap walk of Uniswap V3's
// TickBitmap library with a binary search over the snapshot's tick list.
//
// When lte is true it returns the largest initialized tick <= tick (the
// boundary in the zeroForOne direction); otherwise the smallest initialized
// tick > tick. The second return value reports whether such a tick exists.
func NextInitializedTick(
	ticks []uniswapv3.TickInfo,
	tick int64,
	lte bool,
) (next int64, initialized bool) {
	if len(ticks) == 0 {
		return 0, false
	}

	if lte {
		// Smallest index i where ticks[i].Index >= tick.
		index := sort.Search(len(ticks), func(i int) bool {
			return ticks[i].Index >= tick
		})

		if index < len(ticks) && ticks[index].Index == tick {
			return tick, true
		}
		if index == 0 {
			// tick is below every initialized tick.
			return 0, false
		}
		return ticks[index-1].Index, true
	}

	// Smallest index i where ticks[i].Index > tick.
	index := sort.Search(len(ticks), func(i int) bool {
		return ticks[i].Index > tick
	})
	if index >= len(ticks) {
		return 0, false
	}
	return ticks[index].Index, true
}
