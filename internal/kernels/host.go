package kernels

import "github.com/cwbudde/kernelbind/internal/gpu"

func vectorAdd(item gpu.WorkItem, args gpu.Args) {
	i := item.GlobalID(0)
	a, b, c := args.Float32s(0), args.Float32s(1), args.Float32s(2)
	if i >= len(c) || i >= len(a) || i >= len(b) {
		return
	}
	c[i] = a[i] + b[i]
}

func vectorMult(item gpu.WorkItem, args gpu.Args) {
	i := item.GlobalID(0)
	a, b, c := args.Float32s(0), args.Float32s(1), args.Float32s(2)
	if i >= len(c) || i >= len(a) || i >= len(b) {
		return
	}
	c[i] = a[i] * b[i]
}

func accumulate(item gpu.WorkItem, args gpu.Args) {
	i := item.GlobalID(0)
	acc, x := args.Float32s(0), args.Float32s(1)
	if i >= len(acc) || i >= len(x) {
		return
	}
	acc[i] += x[i]
}

func scale(item gpu.WorkItem, args gpu.Args) {
	i := item.GlobalID(0)
	v := args.Float32s(0)
	if i >= len(v) {
		return
	}
	v[i] *= args.Float32(1)
}

func renderMandelbrot(item gpu.WorkItem, args gpu.Args) {
	pix := args.Int32s(0)
	width, height := int(args.Int32(1)), int(args.Int32(2))
	minX, minY := args.Float32(3), args.Float32(4)
	maxX, maxY := args.Float32(5), args.Float32(6)
	maxIter := int(args.Int32(7))

	px, py := item.GlobalID(0), item.GlobalID(1)
	if maxIter <= 0 || px >= width || py >= height || py*width+px >= len(pix) {
		return
	}

	cx := minX + (maxX-minX)*float32(px)/float32(width)
	cy := minY + (maxY-minY)*float32(py)/float32(height)
	var x, y float32
	n := 0
	for n < maxIter && x*x+y*y <= 4 {
		x, y = x*x-y*y+cx, 2*x*y+cy
		n++
	}
	pix[py*width+px] = palette(float32(n) / float32(maxIter))
}

// palette maps t in [0, 1] to an opaque 0xAARRGGBB colour; 1 is black.
func palette(t float32) int32 {
	u := 1 - t
	r := uint32(9 * u * t * t * t * 255)
	g := uint32(15 * u * u * t * t * 255)
	b := uint32(8.5 * u * u * u * t * 255)
	return int32(0xFF000000 | r<<16 | g<<8 | b)
}
