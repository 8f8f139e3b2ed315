package gpu

import "fmt"

// DeviceType describes the class of a compute device.
type DeviceType string

const (
	DeviceTypeGPU         DeviceType = "GPU"
	DeviceTypeCPU         DeviceType = "CPU"
	DeviceTypeAccelerator DeviceType = "Accelerator"
	DeviceTypeDefault     DeviceType = "Default"
	DeviceTypeUnknown     DeviceType = "Unknown"
)

// DeviceInfo captures metadata about a compute device.
type DeviceInfo struct {
	Name             string
	Vendor           string
	Version          string
	DriverVersion    string
	Type             DeviceType
	MaxComputeUnits  uint32
	GlobalMemSize    int64
	MaxMemAllocSize  int64
	MaxWorkGroupSize int64
}

// PlatformInfo captures metadata about a platform and its devices.
type PlatformInfo struct {
	Name    string
	Vendor  string
	Version string
	Devices []DeviceInfo
}

// MemFlags selects how a kernel may touch a device allocation.
type MemFlags int

const (
	MemReadOnly MemFlags = iota + 1
	MemWriteOnly
	MemReadWrite
)

func (f MemFlags) String() string {
	switch f {
	case MemReadOnly:
		return "read-only"
	case MemWriteOnly:
		return "write-only"
	case MemReadWrite:
		return "read-write"
	default:
		return fmt.Sprintf("MemFlags(%d)", int(f))
	}
}

// Param names a queryable device property.
type Param int

const (
	ParamName Param = iota + 1
	ParamVendor
	ParamDriverVersion
	ParamVersion
	ParamExtensions
	ParamMaxComputeUnits
	ParamMaxClockFrequency
	ParamLocalMemSize
	ParamGlobalMemSize
	ParamMaxMemAllocSize
	ParamMaxWorkGroupSize
	ParamMaxWorkItemDimensions
	ParamMaxWorkItemSizes
)

var paramNames = map[Param]string{
	ParamName:                  "Name",
	ParamVendor:                "Vendor",
	ParamDriverVersion:         "Driver Version",
	ParamVersion:               "Version",
	ParamExtensions:            "Extensions",
	ParamMaxComputeUnits:       "Parallel Compute Units",
	ParamMaxClockFrequency:     "Max Clock Frequency",
	ParamLocalMemSize:          "Local Memory Size",
	ParamGlobalMemSize:         "Global Memory Size",
	ParamMaxMemAllocSize:       "Max Allocated Memory Size",
	ParamMaxWorkGroupSize:      "Max Local Work Group Size",
	ParamMaxWorkItemDimensions: "Max Work Dimensions",
	ParamMaxWorkItemSizes:      "Max Local Work Group Size per Dimension",
}

func (p Param) String() string {
	if name, ok := paramNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Param(%d)", int(p))
}

// BuildFlags is the fixed compiler profile every kernel is built with.
const BuildFlags = "-Werror -cl-mad-enable -cl-fast-relaxed-math -cl-unsafe-math-optimizations"

// Source describes a kernel program to compile.
type Source struct {
	// Text is the program source.
	Text string
	// Entry is the name of the kernel function to create.
	Entry string
	// IncludePath is an optional directory searched for #include'd files.
	IncludePath string
}

// Options returns the compiler flags used to build s.
func (s Source) Options() string {
	if s.IncludePath == "" {
		return BuildFlags
	}
	return BuildFlags + " -I " + s.IncludePath
}
