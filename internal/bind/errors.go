package bind

import "fmt"

// Kind classifies a binding failure.
type Kind int

const (
	KindInvalidRange Kind = iota + 1
	KindInvalidSlot
	KindNullArgument
	KindUnsupportedType
	KindEmptyArray
	KindRangeOverrun
	KindTypeMismatch
	KindAccessModeMismatch
	KindBufferIdentityMismatch
	KindSizeMismatch
	KindDimensionMismatch
	KindIndivisibleWorkSize
	KindWorkSizeNotSet
	KindWriteOnlyUploadRejected
	KindDestinationOverrun
	KindDestinationTooSmall
	KindKernelBuildFailure
	KindInvalidWorkSize
	KindDisposed
	KindClosed
	KindDevice
)

var kindNames = map[Kind]string{
	KindInvalidRange:            "invalid range",
	KindInvalidSlot:             "invalid slot",
	KindNullArgument:            "null argument",
	KindUnsupportedType:         "unsupported type",
	KindEmptyArray:              "empty array",
	KindRangeOverrun:            "range overrun",
	KindTypeMismatch:            "type mismatch",
	KindAccessModeMismatch:      "access mode mismatch",
	KindBufferIdentityMismatch:  "buffer identity mismatch",
	KindSizeMismatch:            "size mismatch",
	KindDimensionMismatch:       "dimension mismatch",
	KindIndivisibleWorkSize:     "indivisible work size",
	KindWorkSizeNotSet:          "work size not set",
	KindWriteOnlyUploadRejected: "write-only upload rejected",
	KindDestinationOverrun:      "destination overrun",
	KindDestinationTooSmall:     "destination too small",
	KindKernelBuildFailure:      "kernel build failure",
	KindInvalidWorkSize:         "invalid work size",
	KindDisposed:                "buffer disposed",
	KindClosed:                  "closed",
	KindDevice:                  "device failure",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the structured error returned by every operation in this
// package. Match kinds with errors.Is against the Err* sentinels.
type Error struct {
	Kind Kind
	Op   string // operation that failed
	Msg  string
	Err  error // underlying driver or compiler error, if any
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrInvalidRange            = &Error{Kind: KindInvalidRange}
	ErrInvalidSlot             = &Error{Kind: KindInvalidSlot}
	ErrNullArgument            = &Error{Kind: KindNullArgument}
	ErrUnsupportedType         = &Error{Kind: KindUnsupportedType}
	ErrEmptyArray              = &Error{Kind: KindEmptyArray}
	ErrRangeOverrun            = &Error{Kind: KindRangeOverrun}
	ErrTypeMismatch            = &Error{Kind: KindTypeMismatch}
	ErrAccessModeMismatch      = &Error{Kind: KindAccessModeMismatch}
	ErrBufferIdentityMismatch  = &Error{Kind: KindBufferIdentityMismatch}
	ErrSizeMismatch            = &Error{Kind: KindSizeMismatch}
	ErrDimensionMismatch       = &Error{Kind: KindDimensionMismatch}
	ErrIndivisibleWorkSize     = &Error{Kind: KindIndivisibleWorkSize}
	ErrWorkSizeNotSet          = &Error{Kind: KindWorkSizeNotSet}
	ErrWriteOnlyUploadRejected = &Error{Kind: KindWriteOnlyUploadRejected}
	ErrDestinationOverrun      = &Error{Kind: KindDestinationOverrun}
	ErrDestinationTooSmall     = &Error{Kind: KindDestinationTooSmall}
	ErrKernelBuildFailure      = &Error{Kind: KindKernelBuildFailure}
	ErrInvalidWorkSize         = &Error{Kind: KindInvalidWorkSize}
	ErrDisposed                = &Error{Kind: KindDisposed}
	ErrClosed                  = &Error{Kind: KindClosed}
	ErrDevice                  = &Error{Kind: KindDevice}
)

func newError(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func deviceError(op string, err error) *Error {
	return &Error{Kind: KindDevice, Op: op, Err: err}
}
