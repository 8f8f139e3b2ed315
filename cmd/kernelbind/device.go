package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cwbudde/kernelbind/internal/gpu"
)

var listPlatforms bool

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Print device statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, closeCtx, err := openContext()
		if err != nil {
			return err
		}
		defer closeCtx()

		out := cmd.OutOrStdout()
		if err := printDeviceStatistics(out, ctx.Device()); err != nil {
			return err
		}
		if !listPlatforms {
			return nil
		}
		return printPlatforms(out)
	},
}

func init() {
	deviceCmd.Flags().BoolVar(&listPlatforms, "platforms", false, "Also list OpenCL platforms and devices")
	rootCmd.AddCommand(deviceCmd)
}

func printDeviceStatistics(w io.Writer, dev gpu.Device) error {
	vendor, err := dev.QueryString(gpu.ParamVendor)
	if err != nil {
		return err
	}
	name, err := dev.QueryString(gpu.ParamName)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Device Name: %s %s\n", vendor, name)

	for _, p := range []gpu.Param{
		gpu.ParamMaxComputeUnits,
		gpu.ParamLocalMemSize,
		gpu.ParamGlobalMemSize,
		gpu.ParamMaxMemAllocSize,
		gpu.ParamMaxWorkGroupSize,
	} {
		v, err := dev.QueryInt(p)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s: %d\n", p, v)
	}

	sizes, err := dev.QueryInts(gpu.ParamMaxWorkItemSizes)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s: %v\n", gpu.ParamMaxWorkItemSizes, sizes)

	dims, err := dev.QueryInt(gpu.ParamMaxWorkItemDimensions)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s: %d\n", gpu.ParamMaxWorkItemDimensions, dims)
	return err
}

func printPlatforms(w io.Writer) error {
	if !gpu.Available {
		fmt.Fprintln(w, "OpenCL platforms: not available in this build")
		return nil
	}
	platforms, err := gpu.EnumeratePlatforms()
	if err != nil {
		return err
	}
	for i, p := range platforms {
		fmt.Fprintf(w, "Platform %d: %s (%s, %s)\n", i, p.Name, p.Vendor, p.Version)
		for j, d := range p.Devices {
			fmt.Fprintf(w, "  Device %d: %s [%s] %d CUs, %d MiB\n",
				j, d.Name, d.Type, d.MaxComputeUnits, d.GlobalMemSize>>20)
		}
	}
	return nil
}
