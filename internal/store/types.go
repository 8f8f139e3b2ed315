package store

import (
	"fmt"
	"strings"
	"time"
)

// Profile is the outcome of one local work-size search.
type Profile struct {
	Device string `json:"device"`
	Kernel string `json:"kernel"`
	Global []int  `json:"global"`

	// Local is the fastest local work size found.
	Local []int `json:"local"`
	// Baseline is the local size derived without tuning.
	Baseline []int `json:"baseline"`

	Mean         time.Duration `json:"mean"`
	BaselineMean time.Duration `json:"baselineMean"`
	Candidates   int           `json:"candidates"`
	Timestamp    time.Time     `json:"timestamp"`
}

// ProfileKey names the profile of kernel on device for a global size,
// e.g. "host-cpu_renderMandelbrot_1000x800". Characters unsafe in file
// names are replaced by '-'.
func ProfileKey(device, kernel string, global []int) string {
	dims := make([]string, len(global))
	for i, g := range global {
		dims[i] = fmt.Sprint(g)
	}
	return sanitize(device) + "_" + sanitize(kernel) + "_" + strings.Join(dims, "x")
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		}
		return '-'
	}, s)
}

// Key returns the storage key of p.
func (p *Profile) Key() string {
	return ProfileKey(p.Device, p.Kernel, p.Global)
}

// Speedup is the baseline mean over the tuned mean.
func (p *Profile) Speedup() float64 {
	if p.Mean <= 0 {
		return 1
	}
	return float64(p.BaselineMean) / float64(p.Mean)
}

// Validate checks that the profile can be applied to a session.
func (p *Profile) Validate() error {
	if p.Device == "" {
		return &ValidationError{Field: "Device", Reason: "cannot be empty"}
	}
	if p.Kernel == "" {
		return &ValidationError{Field: "Kernel", Reason: "cannot be empty"}
	}
	if len(p.Global) == 0 || len(p.Global) > 3 {
		return &ValidationError{Field: "Global", Reason: "must have 1 to 3 dimensions"}
	}
	if len(p.Local) != len(p.Global) {
		return &ValidationError{
			Field:  "Local",
			Reason: fmt.Sprintf("has %d dimensions, global has %d", len(p.Local), len(p.Global)),
		}
	}
	for i, l := range p.Local {
		if l <= 0 || p.Global[i] <= 0 || p.Global[i]%l != 0 {
			return &ValidationError{
				Field:  "Local",
				Reason: fmt.Sprintf("%v does not divide global %v", p.Local, p.Global),
			}
		}
	}
	if p.Mean < 0 || p.BaselineMean < 0 {
		return &ValidationError{Field: "Mean", Reason: "cannot be negative"}
	}
	if p.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	return nil
}

// Matches reports whether p was tuned for the same device, kernel and
// global size.
func (p *Profile) Matches(device, kernel string, global []int) error {
	if p.Device != device {
		return &CompatibilityError{Field: "Device", Expected: p.Device, Actual: device}
	}
	if p.Kernel != kernel {
		return &CompatibilityError{Field: "Kernel", Expected: p.Kernel, Actual: kernel}
	}
	if fmt.Sprint(p.Global) != fmt.Sprint(global) {
		return &CompatibilityError{
			Field:    "Global",
			Expected: fmt.Sprint(p.Global),
			Actual:   fmt.Sprint(global),
		}
	}
	return nil
}

// ValidationError represents a profile validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// CompatibilityError reports a profile that was tuned for something else.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
