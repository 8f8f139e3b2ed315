package main

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cwbudde/kernelbind/internal/bind"
	"github.com/cwbudde/kernelbind/internal/kernels"
	"github.com/cwbudde/kernelbind/internal/logging"
)

var vecSize int

var vecaddCmd = &cobra.Command{
	Use:   "vecadd",
	Short: "Add two vectors on the device",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := []float32{0.6, 0.5, 0.4, 0, 0, 0}
		b := []float32{0, 0, 0, 0.2, 0.3, 0.4}
		if vecSize > 0 {
			a, b = make([]float32, vecSize), make([]float32, vecSize)
			for i := range a {
				a[i] = float32(i)
				b[i] = float32(vecSize - i)
			}
		}
		return withContext(cmd.OutOrStdout(), func(ctx *bind.Context) ([]float32, error) {
			return vectorAdd(ctx, a, b)
		})
	},
}

var reuseCmd = &cobra.Command{
	Use:   "reuse",
	Short: "Accumulate several vectors into one device buffer",
	RunE: func(cmd *cobra.Command, args []string) error {
		inputs := [][]float32{
			{0.5, 0.5, 0.4, 0.6, 0.0, 0.7},
			{0.1, 0.0, 0.0, 0.2, 0.3, 0.1},
			{0.0, 0.5, 0.3, 0.4, 0.1, 0.4},
			{0.2, 0.0, 0.6, 0.7, 0.9, 0.3},
		}
		return withContext(cmd.OutOrStdout(), func(ctx *bind.Context) ([]float32, error) {
			return accumulate(ctx, inputs)
		})
	},
}

var shareCmd = &cobra.Command{
	Use:   "share",
	Short: "Compute (a+b)*c with one device buffer shared by two kernels",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := []float32{1, 2, 3, 4, 5, 6}
		b := []float32{3, 2, 1, 0, 1, 2}
		c := []float32{2, 1, 2, 1, 2, 3}
		return withContext(cmd.OutOrStdout(), func(ctx *bind.Context) ([]float32, error) {
			return shareMemory(ctx, a, b, c)
		})
	},
}

func init() {
	vecaddCmd.Flags().IntVar(&vecSize, "size", 0, "Vector length (0 uses the built-in six-element example)")
	rootCmd.AddCommand(vecaddCmd, reuseCmd, shareCmd)
}

// withContext runs fn against a fresh context with zeroed counters and
// prints its result followed by the counters.
func withContext(w io.Writer, fn func(*bind.Context) ([]float32, error)) error {
	ctx, closeCtx, err := openContext()
	if err != nil {
		return err
	}
	defer closeCtx()

	bind.ResetCounters()
	result, err := fn(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, formatFloats(result))
	return bind.PrintCounters(w)
}

// vectorAdd returns a+b, copying the inputs up once and the sum back once.
func vectorAdd(ctx *bind.Context, a, b []float32) ([]float32, error) {
	s, err := newSession(ctx, kernels.VectorAdd, "")
	if err != nil {
		return nil, err
	}
	defer s.Close()

	out := make([]float32, len(a))
	if _, err := s.Bind(0, a, bind.Read); err != nil {
		return nil, err
	}
	if _, err := s.Bind(1, b, bind.Read); err != nil {
		return nil, err
	}
	if _, err := s.Bind(2, out, bind.Write); err != nil {
		return nil, err
	}
	if err := s.SetGlobalWorkSize(len(a)); err != nil {
		return nil, err
	}
	if err := s.DispatchAndReadback(); err != nil {
		return nil, err
	}
	return out, nil
}

// accumulate sums inputs on the device. Each input is rebound to the
// same slot, reusing its allocation, and the sum is read back once.
func accumulate(ctx *bind.Context, inputs [][]float32) ([]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	s, err := newSession(ctx, kernels.Accumulate, "")
	if err != nil {
		return nil, err
	}
	defer s.Close()

	result := make([]float32, len(inputs[0]))
	if err := s.SetGlobalWorkSize(len(result)); err != nil {
		return nil, err
	}
	if _, err := s.Bind(0, result, bind.ReadWrite); err != nil {
		return nil, err
	}
	for i, in := range inputs {
		if _, err := s.Bind(1, in, bind.Read); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		if err := s.Dispatch(); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
	}
	if err := s.Readback(); err != nil {
		return nil, err
	}
	return result, nil
}

// shareMemory computes (a+b)*c. The intermediate sum never leaves the
// device: both kernels bind the same buffer.
func shareMemory(ctx *bind.Context, a, b, c []float32) ([]float32, error) {
	add, err := newSession(ctx, kernels.VectorAdd, "")
	if err != nil {
		return nil, err
	}
	defer add.Close()
	mult, err := newSession(ctx, kernels.VectorMult, "")
	if err != nil {
		return nil, err
	}
	defer mult.Close()

	result := make([]float32, len(a))
	shared, err := ctx.Allocate(result, bind.ReadWrite, true)
	if err != nil {
		return nil, err
	}
	defer shared.Dispose()

	if _, err := add.Bind(0, a, bind.Read); err != nil {
		return nil, err
	}
	if _, err := add.Bind(1, b, bind.Read); err != nil {
		return nil, err
	}
	if err := add.BindBuffer(2, shared); err != nil {
		return nil, err
	}
	if err := add.SetGlobalWorkSize(len(a)); err != nil {
		return nil, err
	}
	if err := add.Dispatch(); err != nil {
		return nil, err
	}

	if err := mult.BindBuffer(0, shared); err != nil {
		return nil, err
	}
	if _, err := mult.Bind(1, c, bind.Read); err != nil {
		return nil, err
	}
	if err := mult.BindBuffer(2, shared); err != nil {
		return nil, err
	}
	if err := mult.SetGlobalWorkSize(len(a)); err != nil {
		return nil, err
	}
	if err := mult.DispatchAndReadback(); err != nil {
		return nil, err
	}

	logging.Component("share").WithFields(logrus.Fields{
		"add":  add.ID(),
		"mult": mult.ID(),
	}).Debug("shared buffer between sessions")
	return result, nil
}

func formatFloats(v []float32) string {
	return fmt.Sprintf("%g", v)
}
