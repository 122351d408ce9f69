package counter

import (
	"sync/atomic"

	"github.com/aerospike/aerospike-client-go-teachable/internal/rolling"
)

type Counter int32

func (c *Counter) Add(delta int32) int32 {
	return atomic.AddInt32((*int32)(c), delta)
}

func (c *Counter) Get() int32 {
	return atomic.LoadInt32((*int32)(c))
}

// Greater, Less and Equal compare two Counters with rollover awareness
// (int32 wraps after ~2 billion increments, and the health package's
// failure Counter runs for the life of a long-lived client).
func Greater(a, b Counter) bool {
	return rolling.Compare(a.Get(), b.Get()) == rolling.Greater
}

func Less(a, b Counter) bool {
	return rolling.Compare(a.Get(), b.Get()) == rolling.Less
}

func Equal(a, b Counter) bool {
	return rolling.Compare(a.Get(), b.Get()) == rolling.Equal
}
