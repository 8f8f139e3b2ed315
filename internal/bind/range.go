package bind

import "fmt"

// Range is a half-open interval [start, end) of element indices. It is
// immutable; the upper bound is checked against a buffer where it is used.
type Range struct {
	start, end int
}

// NewRange validates and returns [start, end).
func NewRange(start, end int) (Range, error) {
	if start < 0 || end <= start {
		return Range{}, newError(KindInvalidRange, "range", "[%d, %d)", start, end)
	}
	return Range{start: start, end: end}, nil
}

// FullRange returns [0, n). n must be positive.
func FullRange(n int) Range {
	return Range{start: 0, end: n}
}

func (r Range) Start() int { return r.start }
func (r Range) End() int   { return r.end }
func (r Range) Size() int  { return r.end - r.start }

// IsZero reports whether r is the zero value, which is never a valid range.
func (r Range) IsZero() bool { return r.end == 0 }

// Offset returns the byte offset of the range start for elements of elemSize bytes.
func (r Range) Offset(elemSize int) int64 { return int64(r.start) * int64(elemSize) }

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.start, r.end)
}
