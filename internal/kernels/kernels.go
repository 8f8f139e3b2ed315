// Package kernels holds the reference kernels used by the demos and tests:
// OpenCL C programs plus equivalent Go implementations for the host
// device.
package kernels

import (
	"embed"
	"fmt"
	"path"
	"regexp"
	"sort"

	"github.com/cwbudde/kernelbind/internal/gpu"
)

// Kernel entry points.
const (
	VectorAdd  = "vectorAddKernel"
	VectorMult = "vectorMultKernel"
	Accumulate = "accumulateKernel"
	Scale      = "scaleKernel"
	Mandelbrot = "renderMandelbrot"
)

//go:embed cl/*.cl cl/*.h
var programs embed.FS

var files = map[string]string{
	VectorAdd:  "vector_add.cl",
	VectorMult: "vector_mult.cl",
	Accumulate: "accumulate.cl",
	Scale:      "scale.cl",
	Mandelbrot: "mandelbrot.cl",
}

var hostFuncs = map[string]gpu.HostKernelFunc{
	VectorAdd:  vectorAdd,
	VectorMult: vectorMult,
	Accumulate: accumulate,
	Scale:      scale,
	Mandelbrot: renderMandelbrot,
}

var includeLine = regexp.MustCompile(`(?m)^\s*#\s*include\s+"([^"]+)"\s*$`)

// Names returns the entry points of every reference kernel.
func Names() []string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Source returns the program for entry with its bundled headers inlined.
func Source(entry string) (gpu.Source, error) {
	file, ok := files[entry]
	if !ok {
		return gpu.Source{}, fmt.Errorf("unknown kernel %q", entry)
	}
	text, err := programs.ReadFile(path.Join("cl", file))
	if err != nil {
		return gpu.Source{}, fmt.Errorf("read %s: %w", file, err)
	}

	var inlineErr error
	expanded := includeLine.ReplaceAllFunc(text, func(line []byte) []byte {
		name := includeLine.FindSubmatch(line)[1]
		header, err := programs.ReadFile(path.Join("cl", string(name)))
		if err != nil {
			inlineErr = fmt.Errorf("%s: include %s: %w", file, name, err)
			return line
		}
		return header
	})
	if inlineErr != nil {
		return gpu.Source{}, inlineErr
	}
	return gpu.Source{Text: string(expanded), Entry: entry}, nil
}

// MustSource is Source for entry points known at compile time.
func MustSource(entry string) gpu.Source {
	src, err := Source(entry)
	if err != nil {
		panic(err)
	}
	return src
}

// Register installs the Go implementation of every reference kernel.
func Register(reg *gpu.Registry) {
	for name, fn := range hostFuncs {
		reg.Register(name, fn)
	}
}

// NewRegistry returns a registry holding the reference kernels.
func NewRegistry() *gpu.Registry {
	reg := gpu.NewRegistry()
	Register(reg)
	return reg
}
