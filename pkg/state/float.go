package state

import (
	"math"
	"sync/atomic"
)

func atomicLoadFloat(bits *atomic.Uint64) float64 {
	return math.Float64frombits(bits.Load())
}

func atomicStoreFloat(bits *atomic.Uint64, v float64) {
	bits.Store(math.Float64bits(v))
}
