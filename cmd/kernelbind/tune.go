package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cwbudde/kernelbind/internal/bind"
	"github.com/cwbudde/kernelbind/internal/kernels"
	"github.com/cwbudde/kernelbind/internal/logging"
	"github.com/cwbudde/kernelbind/internal/store"
	"github.com/cwbudde/kernelbind/internal/tune"
)

var (
	tuneWorkload string
	tuneSize     int
	tuneJSON     bool
	tuneIters    int
	tunePop      int
	tuneSeed     int64
	tuneSave     bool
)

var tuneCmd = &cobra.Command{
	Use:   "tune",
	Short: "Search for the fastest local work size",
	Long: `Binds a reference workload, measures the derived local work size and
searches the divisors of the global size with the mayfly optimizer.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := tune.Options{
			Iterations: cfg.Tune.Iterations,
			Population: cfg.Tune.Population,
			Repeats:    cfg.Tune.Repeats,
			Seed:       cfg.Tune.Seed,
		}
		if cmd.Flags().Changed("iters") {
			opts.Iterations = tuneIters
		}
		if cmd.Flags().Changed("pop") {
			opts.Population = tunePop
		}
		if cmd.Flags().Changed("seed") {
			opts.Seed = tuneSeed
		}

		ctx, closeCtx, err := openContext()
		if err != nil {
			return err
		}
		defer closeCtx()

		s, err := bindWorkload(ctx, tuneWorkload, tuneSize)
		if err != nil {
			return err
		}
		defer s.Close()

		res, err := tune.Run(s, opts, logging.Component("tune"))
		if err != nil {
			return err
		}
		if tuneSave {
			st, err := store.NewFSStore(cfg.Store.Dir)
			if err != nil {
				return fmt.Errorf("failed to open profile store: %w", err)
			}
			p := newProfile(s, res)
			if err := st.SaveProfile(p); err != nil {
				return fmt.Errorf("failed to save profile: %w", err)
			}
			logging.Component("cli").WithField("key", p.Key()).Info("Saved profile")
		}
		if tuneJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		return printTuneResult(cmd.OutOrStdout(), res)
	},
}

func init() {
	tuneCmd.Flags().StringVar(&tuneWorkload, "workload", "mandelbrot", "Workload to tune: mandelbrot, vecadd")
	tuneCmd.Flags().IntVar(&tuneSize, "size", 0, "Problem size (vector length, or image width with a 4:5 height)")
	tuneCmd.Flags().BoolVar(&tuneJSON, "json", false, "Print the result as JSON")
	tuneCmd.Flags().IntVar(&tuneIters, "iters", 0, "Optimizer iterations (overrides tune.iterations)")
	tuneCmd.Flags().IntVar(&tunePop, "pop", 0, "Optimizer population (overrides tune.population)")
	tuneCmd.Flags().Int64Var(&tuneSeed, "seed", 0, "Random seed (overrides tune.seed)")
	tuneCmd.Flags().BoolVar(&tuneSave, "save", false, "Store the best local size as a profile")
	rootCmd.AddCommand(tuneCmd)
}

// bindWorkload returns a session with every argument bound and a global
// size set, ready to dispatch.
func bindWorkload(ctx *bind.Context, workload string, size int) (*bind.Session, error) {
	switch workload {
	case "mandelbrot":
		v := defaultView()
		if size > 0 {
			v.Width, v.Height = size, size*4/5
		}
		s, err := newSession(ctx, kernels.Mandelbrot, "")
		if err != nil {
			return nil, err
		}
		if _, err := bindMandelbrot(s, v); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil

	case "vecadd":
		if size <= 0 {
			size = 1 << 20
		}
		s, err := newSession(ctx, kernels.VectorAdd, "")
		if err != nil {
			return nil, err
		}
		a, b := make([]float32, size), make([]float32, size)
		for i := range a {
			a[i], b[i] = float32(i), 1
		}
		bindErr := func() error {
			if _, err := s.Bind(0, a, bind.Read); err != nil {
				return err
			}
			if _, err := s.Bind(1, b, bind.Read); err != nil {
				return err
			}
			if _, err := s.Bind(2, make([]float32, size), bind.Write); err != nil {
				return err
			}
			return s.SetGlobalWorkSize(size)
		}()
		if bindErr != nil {
			s.Close()
			return nil, bindErr
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown workload %q (want mandelbrot or vecadd)", workload)
}

func printTuneResult(w io.Writer, res tune.Result) error {
	fmt.Fprintf(w, "Global work size: %v\n", res.Global)
	fmt.Fprintf(w, "Baseline local:   %v  mean %v ± %v\n", res.Baseline.Local, res.Baseline.Timing.Mean, res.Baseline.Timing.StdDev)
	fmt.Fprintf(w, "Best local:       %v  mean %v ± %v\n", res.Best.Local, res.Best.Timing.Mean, res.Best.Timing.StdDev)
	fmt.Fprintf(w, "Speedup:          %.2fx over %d candidates\n", res.Speedup(), len(res.Measured))
	for i, c := range res.Measured {
		if i == 5 {
			break
		}
		fmt.Fprintf(w, "  %d. %v  mean %v  min %v\n", i+1, c.Local, c.Timing.Mean, c.Timing.Min)
	}
	return nil
}
