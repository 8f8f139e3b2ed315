package bind

import (
	"fmt"
	"io"
	"sync/atomic"
)

// Process-wide transfer statistics. They are never consulted by the
// binding logic itself.
var (
	uploadCount     atomic.Int64
	downloadCount   atomic.Int64
	copyCount       atomic.Int64
	allocationCount atomic.Int64
)

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Uploads     int64 `json:"uploads"`
	Downloads   int64 `json:"downloads"`
	Copies      int64 `json:"copies"`
	Allocations int64 `json:"allocations"`
}

// Counters returns the current counter values.
func Counters() Snapshot {
	return Snapshot{
		Uploads:     uploadCount.Load(),
		Downloads:   downloadCount.Load(),
		Copies:      copyCount.Load(),
		Allocations: allocationCount.Load(),
	}
}

// ResetCounters zeroes every counter.
func ResetCounters() {
	uploadCount.Store(0)
	downloadCount.Store(0)
	copyCount.Store(0)
	allocationCount.Store(0)
}

// Sub returns the change from an earlier snapshot.
func (s Snapshot) Sub(earlier Snapshot) Snapshot {
	return Snapshot{
		Uploads:     s.Uploads - earlier.Uploads,
		Downloads:   s.Downloads - earlier.Downloads,
		Copies:      s.Copies - earlier.Copies,
		Allocations: s.Allocations - earlier.Allocations,
	}
}

func (s Snapshot) String() string {
	return fmt.Sprintf("uploads=%d downloads=%d copies=%d allocations=%d",
		s.Uploads, s.Downloads, s.Copies, s.Allocations)
}

// PrintCounters writes the counters to w, one per line.
func PrintCounters(w io.Writer) error {
	s := Counters()
	_, err := fmt.Fprintf(w,
		"Host to device copies:   %d\nDevice to host copies:   %d\nDevice to device copies: %d\nAllocations:             %d\n",
		s.Uploads, s.Downloads, s.Copies, s.Allocations)
	return err
}
