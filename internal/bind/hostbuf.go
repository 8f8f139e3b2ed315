package bind

import (
	"fmt"
	"image"
	"unsafe"
)

// ElementType is the closed set of element kinds a host buffer may hold.
type ElementType int

const (
	Byte ElementType = iota + 1
	Int32
	Float32
	// PackedInt is one 32-bit ARGB value per pixel.
	PackedInt
	// PackedByte is interleaved 8-bit channels.
	PackedByte
)

// Size returns the element size in bytes.
func (t ElementType) Size() int {
	switch t {
	case Byte, PackedByte:
		return 1
	case Int32, Float32, PackedInt:
		return 4
	default:
		return 0
	}
}

func (t ElementType) String() string {
	switch t {
	case Byte:
		return "byte"
	case Int32:
		return "int32"
	case Float32:
		return "float32"
	case PackedInt:
		return "packed-int pixels"
	case PackedByte:
		return "packed-byte pixels"
	default:
		return fmt.Sprintf("ElementType(%d)", int(t))
	}
}

// HostBuffer is a host array that can back a device buffer. The set of
// implementations is closed: Bytes, Int32s, Float32s, PackedPixels and
// BytePixels.
type HostBuffer interface {
	ElementType() ElementType
	// Len returns the number of elements.
	Len() int
	// bytes returns a zero-copy byte view of the whole buffer.
	bytes() []byte
}

type (
	Bytes        []byte
	Int32s       []int32
	Float32s     []float32
	PackedPixels []int32
	BytePixels   []byte
)

func (b Bytes) ElementType() ElementType        { return Byte }
func (b Int32s) ElementType() ElementType       { return Int32 }
func (b Float32s) ElementType() ElementType     { return Float32 }
func (b PackedPixels) ElementType() ElementType { return PackedInt }
func (b BytePixels) ElementType() ElementType   { return PackedByte }

func (b Bytes) Len() int        { return len(b) }
func (b Int32s) Len() int       { return len(b) }
func (b Float32s) Len() int     { return len(b) }
func (b PackedPixels) Len() int { return len(b) }
func (b BytePixels) Len() int   { return len(b) }

func (b Bytes) bytes() []byte      { return b }
func (b BytePixels) bytes() []byte { return b }

func (b Int32s) bytes() []byte {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&b[0])), 4*len(b))
}

func (b Float32s) bytes() []byte {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&b[0])), 4*len(b))
}

func (b PackedPixels) bytes() []byte {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&b[0])), 4*len(b))
}

// span returns the bytes of the elements in r.
func span(h HostBuffer, r Range) []byte {
	size := h.ElementType().Size()
	return h.bytes()[r.start*size : r.end*size]
}

// PackedImage is an image stored as one 0xAARRGGBB int32 per pixel, row-major.
type PackedImage struct {
	Pix    []int32
	Width  int
	Height int
}

// NewPackedImage allocates a w×h packed image.
func NewPackedImage(w, h int) *PackedImage {
	return &PackedImage{Pix: make([]int32, w*h), Width: w, Height: h}
}

// NRGBA converts the packed pixels to an image.NRGBA.
func (p *PackedImage) NRGBA() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, p.Width, p.Height))
	for i, v := range p.Pix {
		u := uint32(v)
		img.Pix[4*i+0] = uint8(u >> 16)
		img.Pix[4*i+1] = uint8(u >> 8)
		img.Pix[4*i+2] = uint8(u)
		img.Pix[4*i+3] = uint8(u >> 24)
	}
	return img
}

// Wrap classifies v as a HostBuffer. Supported are the HostBuffer types
// themselves, []byte, []int32, []float32, *PackedImage and the byte-backed
// image types *image.RGBA, *image.NRGBA, *image.Gray and *image.CMYK.
func Wrap(v any) (HostBuffer, error) {
	switch x := v.(type) {
	case nil:
		return nil, newError(KindNullArgument, "wrap", "host buffer is nil")
	case HostBuffer:
		return x, nil
	case []byte:
		if x == nil {
			return nil, newError(KindNullArgument, "wrap", "slice is nil")
		}
		return Bytes(x), nil
	case []int32:
		if x == nil {
			return nil, newError(KindNullArgument, "wrap", "slice is nil")
		}
		return Int32s(x), nil
	case []float32:
		if x == nil {
			return nil, newError(KindNullArgument, "wrap", "slice is nil")
		}
		return Float32s(x), nil
	case *PackedImage:
		if x == nil {
			return nil, newError(KindNullArgument, "wrap", "image is nil")
		}
		return PackedPixels(x.Pix), nil
	case *image.RGBA:
		if x == nil {
			return nil, newError(KindNullArgument, "wrap", "image is nil")
		}
		return BytePixels(x.Pix), nil
	case *image.NRGBA:
		if x == nil {
			return nil, newError(KindNullArgument, "wrap", "image is nil")
		}
		return BytePixels(x.Pix), nil
	case *image.Gray:
		if x == nil {
			return nil, newError(KindNullArgument, "wrap", "image is nil")
		}
		return BytePixels(x.Pix), nil
	case *image.CMYK:
		if x == nil {
			return nil, newError(KindNullArgument, "wrap", "image is nil")
		}
		return BytePixels(x.Pix), nil
	}
	return nil, newError(KindUnsupportedType, "wrap", "%T", v)
}
