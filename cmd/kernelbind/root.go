package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cwbudde/kernelbind/internal/bind"
	"github.com/cwbudde/kernelbind/internal/config"
	"github.com/cwbudde/kernelbind/internal/gpu"
	"github.com/cwbudde/kernelbind/internal/kernels"
	"github.com/cwbudde/kernelbind/internal/logging"
	"github.com/cwbudde/kernelbind/internal/trace"
)

var (
	cfgFile   string
	logLevel  string
	backend   string
	tracePath string
	dataDir   string

	cfg = config.DefaultConfig()
)

var rootCmd = &cobra.Command{
	Use:   "kernelbind",
	Short: "Bind host arrays to compute kernels and run them",
	Long: `kernelbind manages the device memory behind kernel arguments: it
uploads host arrays on bind, reuses or grows existing allocations, runs
kernels and copies writable results back.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Logging.Level = logLevel
		}
		if cmd.Flags().Changed("backend") {
			loaded.Device.Backend = backend
		}
		if cmd.Flags().Changed("trace") {
			loaded.Trace.Path = tracePath
		}
		if cmd.Flags().Changed("data-dir") {
			loaded.Store.Dir = dataDir
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded
		return logging.Init(cfg.Logging.Level, cfg.Logging.File, cfg.Logging.Console)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ./kernelbind.yaml or ~/.kernelbind/kernelbind.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "host", "Device backend (host, opencl)")
	rootCmd.PersistentFlags().StringVar(&tracePath, "trace", "", "Append binding events to this JSONL file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "Directory for tuning profiles")
}

func hostConfig(d config.DeviceConfig) gpu.HostConfig {
	return gpu.HostConfig{
		GlobalMemSize:    d.HostMemoryMB << 20,
		MaxWorkGroupSize: d.MaxWorkGroupSize,
		Workers:          d.Workers,
	}
}

// openContext opens the configured device and wraps it in a binding
// context. The returned func closes the context and any trace file.
func openContext() (*bind.Context, func() error, error) {
	dev, err := gpu.Open(cfg.Device.Backend, kernels.NewRegistry(), hostConfig(cfg.Device))
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s device: %w", cfg.Device.Backend, err)
	}

	opts := []bind.Option{bind.WithLogger(logging.Component("bind"))}
	var tw *trace.Writer
	if cfg.Trace.Path != "" {
		tw, err = trace.NewWriter(cfg.Trace.Path, true)
		if err != nil {
			dev.Close()
			return nil, nil, err
		}
		opts = append(opts, bind.WithObserver(tw.Observe))
	}

	ctx, err := bind.NewContext(dev, opts...)
	if err != nil {
		dev.Close()
		if tw != nil {
			tw.Close()
		}
		return nil, nil, err
	}

	closeAll := func() error {
		err := ctx.Close()
		if tw != nil {
			err = errors.Join(err, tw.Close())
		}
		return err
	}
	return ctx, closeAll, nil
}

// newSession builds entry from the embedded kernels, or from path when
// one is given.
func newSession(ctx *bind.Context, entry, path string) (*bind.Session, error) {
	if path != "" {
		return ctx.NewSessionFromFile(path, entry, cfg.Kernel.IncludePath)
	}
	src, err := kernels.Source(entry)
	if err != nil {
		return nil, err
	}
	return ctx.NewSession(src)
}
