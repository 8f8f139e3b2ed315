package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwbudde/kernelbind/internal/trace"
)

var traceRun string

var traceCmd = &cobra.Command{
	Use:   "trace <file>",
	Short: "Summarize a binding event trace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := trace.Open(args[0])
		if err != nil {
			return err
		}
		defer r.Close()

		records, err := r.ReadAll()
		if err != nil {
			return err
		}
		runs := map[string]struct{}{}
		var kept []trace.Record
		for _, rec := range records {
			runs[rec.Run] = struct{}{}
			if traceRun == "" || rec.Run == traceRun {
				kept = append(kept, rec)
			}
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%d records from %d runs\n", len(records), len(runs))
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "KIND\tCOUNT\tBYTES\tTIME")
		for _, s := range trace.Summarize(kept) {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%v\n", s.Kind, s.Count, s.Bytes, s.Duration)
		}
		return tw.Flush()
	},
}

func init() {
	traceCmd.Flags().StringVar(&traceRun, "run", "", "Only summarize records of this run ID")
	rootCmd.AddCommand(traceCmd)
}
