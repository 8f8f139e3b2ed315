package bind

import (
	"image"
	"image/color"
	"testing"
)

func TestWrap(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want ElementType
		n    int
	}{
		{"bytes", []byte{1, 2, 3}, Byte, 3},
		{"int32s", []int32{1, 2}, Int32, 2},
		{"float32s", []float32{1, 2, 3, 4}, Float32, 4},
		{"host buffer", Float32s{1}, Float32, 1},
		{"packed image", NewPackedImage(4, 3), PackedInt, 12},
		{"nrgba", image.NewNRGBA(image.Rect(0, 0, 2, 2)), PackedByte, 16},
		{"rgba", image.NewRGBA(image.Rect(0, 0, 3, 1)), PackedByte, 12},
		{"gray", image.NewGray(image.Rect(0, 0, 5, 2)), PackedByte, 10},
		{"cmyk", image.NewCMYK(image.Rect(0, 0, 1, 1)), PackedByte, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hb, err := Wrap(tt.in)
			if err != nil {
				t.Fatalf("wrap: %v", err)
			}
			if hb.ElementType() != tt.want {
				t.Errorf("element type = %v, want %v", hb.ElementType(), tt.want)
			}
			if hb.Len() != tt.n {
				t.Errorf("len = %d, want %d", hb.Len(), tt.n)
			}
			if got := len(hb.bytes()); got != tt.n*tt.want.Size() {
				t.Errorf("byte view has %d bytes, want %d", got, tt.n*tt.want.Size())
			}
		})
	}
}

func TestWrapRejects(t *testing.T) {
	_, err := Wrap(nil)
	wantKind(t, err, ErrNullArgument)

	var img *image.NRGBA
	_, err = Wrap(img)
	wantKind(t, err, ErrNullArgument)

	for _, v := range []any{[]byte(nil), []int32(nil), []float32(nil)} {
		_, err = Wrap(v)
		wantKind(t, err, ErrNullArgument)
	}

	_, err = Wrap([]float64{1})
	wantKind(t, err, ErrUnsupportedType)

	_, err = Wrap(image.NewRGBA64(image.Rect(0, 0, 1, 1)))
	wantKind(t, err, ErrUnsupportedType)
}

func TestSpanSharesMemory(t *testing.T) {
	host := []int32{1, 2, 3, 4}
	b := span(Int32s(host), mustRange(t, 1, 3))
	if len(b) != 8 {
		t.Fatalf("span has %d bytes, want 8", len(b))
	}
	b[0] = 9
	if host[1] != 9 {
		t.Errorf("span should alias host memory, host[1] = %d", host[1])
	}
}

func TestPackedImageNRGBA(t *testing.T) {
	p := NewPackedImage(2, 1)
	p.Pix[0] = int32(-16777216) // 0xFF000000
	p.Pix[1] = 0x7F102030

	img := p.NRGBA()
	if got := img.NRGBAAt(0, 0); got != (color.NRGBA{0, 0, 0, 255}) {
		t.Errorf("pixel 0 = %v", got)
	}
	if got := img.NRGBAAt(1, 0); got != (color.NRGBA{0x10, 0x20, 0x30, 0x7F}) {
		t.Errorf("pixel 1 = %v", got)
	}
}
