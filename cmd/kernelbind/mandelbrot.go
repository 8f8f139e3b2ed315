package main

import (
	"fmt"
	"image/png"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cwbudde/kernelbind/internal/bind"
	"github.com/cwbudde/kernelbind/internal/kernels"
	"github.com/cwbudde/kernelbind/internal/logging"
	"github.com/cwbudde/kernelbind/internal/store"
)

// view is the region of the complex plane rendered by the mandelbrot kernel.
type view struct {
	Width, Height          int
	MinX, MinY, MaxX, MaxY float32
	MaxIterations          int
}

func defaultView() view {
	return view{
		Width: 1000, Height: 800,
		MinX: -1.9, MaxX: 0.6,
		MinY: -1.0, MaxY: 1.0,
		MaxIterations: 80,
	}
}

var (
	mandel     = defaultView()
	mandelOut  string
	mandelFile string
	useProfile bool
)

var mandelbrotCmd = &cobra.Command{
	Use:   "mandelbrot",
	Short: "Render the Mandelbrot set to a PNG",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, closeCtx, err := openContext()
		if err != nil {
			return err
		}
		defer closeCtx()

		s, err := newSession(ctx, kernels.Mandelbrot, mandelFile)
		if err != nil {
			return err
		}
		defer s.Close()

		img, err := bindMandelbrot(s, mandel)
		if err != nil {
			return err
		}
		if useProfile {
			st, err := store.NewFSStore(cfg.Store.Dir)
			if err != nil {
				return fmt.Errorf("failed to open profile store: %w", err)
			}
			applied, err := applyProfile(st, s)
			if err != nil {
				return err
			}
			logging.Component("cli").WithFields(logrus.Fields{
				"applied": applied,
				"local":   s.LocalWorkSize(),
			}).Info("Tuned profile lookup")
		}
		start := time.Now()
		if err := s.DispatchAndReadback(); err != nil {
			return err
		}
		elapsed := time.Since(start)

		if err := writePNG(mandelOut, img); err != nil {
			return err
		}
		logging.Component("cli").WithField("output", mandelOut).Info("Wrote image")
		fmt.Fprintf(cmd.OutOrStdout(), "Rendered in %.3f milliseconds\n", float64(elapsed)/float64(time.Millisecond))
		return nil
	},
}

func init() {
	f := mandelbrotCmd.Flags()
	f.IntVar(&mandel.Width, "width", mandel.Width, "Image width")
	f.IntVar(&mandel.Height, "height", mandel.Height, "Image height")
	f.IntVar(&mandel.MaxIterations, "iters", mandel.MaxIterations, "Max iterations per pixel")
	f.Float32Var(&mandel.MinX, "min-x", mandel.MinX, "Left edge")
	f.Float32Var(&mandel.MaxX, "max-x", mandel.MaxX, "Right edge")
	f.Float32Var(&mandel.MinY, "min-y", mandel.MinY, "Bottom edge")
	f.Float32Var(&mandel.MaxY, "max-y", mandel.MaxY, "Top edge")
	f.StringVar(&mandelOut, "out", "mandelbrot.png", "Output image path")
	f.StringVar(&mandelFile, "source", "", "Load the kernel from this .cl file instead of the built-in one")
	f.BoolVar(&useProfile, "tuned", false, "Apply a stored tuning profile if one matches")
	rootCmd.AddCommand(mandelbrotCmd)
}

// bindMandelbrot binds a fresh image and the view parameters and sets a
// one work-item per pixel global size.
func bindMandelbrot(s *bind.Session, v view) (*bind.PackedImage, error) {
	img := bind.NewPackedImage(v.Width, v.Height)
	if _, err := s.Bind(0, img, bind.Write); err != nil {
		return nil, err
	}
	for _, set := range []func() error{
		func() error { return s.SetInt32(1, int32(v.Width)) },
		func() error { return s.SetInt32(2, int32(v.Height)) },
		func() error { return s.SetFloat32(3, v.MinX) },
		func() error { return s.SetFloat32(4, v.MinY) },
		func() error { return s.SetFloat32(5, v.MaxX) },
		func() error { return s.SetFloat32(6, v.MaxY) },
		func() error { return s.SetInt32(7, int32(v.MaxIterations)) },
	} {
		if err := set(); err != nil {
			return nil, err
		}
	}
	if err := s.SetGlobalWorkSize(v.Width, v.Height); err != nil {
		return nil, err
	}
	return img, nil
}

func writePNG(path string, img *bind.PackedImage) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, img.NRGBA()); err != nil {
		return fmt.Errorf("failed to encode PNG: %w", err)
	}
	return f.Close()
}
