package main

import (
	"errors"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/kernelbind/internal/bind"
	"github.com/cwbudde/kernelbind/internal/logging"
	"github.com/cwbudde/kernelbind/internal/store"
	"github.com/cwbudde/kernelbind/internal/tune"
)

var (
	keepLast      int
	olderThanDays int
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage tuned work-size profiles",
	Long: `Profiles are written by "tune --save" and applied by "mandelbrot --tuned".
Each one records the fastest local work size for a device, kernel and global size.`,
}

var listProfilesCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.NewFSStore(cfg.Store.Dir)
		if err != nil {
			return fmt.Errorf("failed to open profile store: %w", err)
		}
		profiles, err := st.ListProfiles()
		if err != nil {
			return fmt.Errorf("failed to list profiles: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(profiles) == 0 {
			fmt.Fprintln(out, "No profiles found.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tTIMESTAMP\tLOCAL\tBASELINE\tMEAN\tSPEEDUP")
		for _, p := range profiles {
			fmt.Fprintf(w, "%s\t%s\t%v\t%v\t%v\t%.2fx\n",
				p.Key(),
				p.Timestamp.Format("2006-01-02 15:04:05"),
				p.Local,
				p.Baseline,
				p.Mean,
				p.Speedup(),
			)
		}
		w.Flush()
		fmt.Fprintf(out, "\nTotal profiles: %d\n", len(profiles))
		return nil
	},
}

var deleteProfileCmd = &cobra.Command{
	Use:   "delete <key>...",
	Short: "Delete profiles by key",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.NewFSStore(cfg.Store.Dir)
		if err != nil {
			return fmt.Errorf("failed to open profile store: %w", err)
		}
		for _, key := range args {
			if err := st.DeleteProfile(key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", key)
		}
		return nil
	},
}

var cleanProfilesCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete old profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		if keepLast == 0 && olderThanDays == 0 {
			return fmt.Errorf("must specify either --keep-last or --older-than")
		}
		st, err := store.NewFSStore(cfg.Store.Dir)
		if err != nil {
			return fmt.Errorf("failed to open profile store: %w", err)
		}
		profiles, err := st.ListProfiles()
		if err != nil {
			return fmt.Errorf("failed to list profiles: %w", err)
		}

		log := logging.Component("cli")
		deleted, failed := 0, 0
		for _, p := range selectProfilesForDeletion(profiles, keepLast, olderThanDays, time.Now()) {
			if err := st.DeleteProfile(p.Key()); err != nil {
				log.WithError(err).WithField("key", p.Key()).Error("Failed to delete profile")
				failed++
				continue
			}
			log.WithField("key", p.Key()).Info("Deleted profile")
			deleted++
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d profile(s), %d failed.\n", deleted, failed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(profilesCmd)
	profilesCmd.AddCommand(listProfilesCmd, deleteProfileCmd, cleanProfilesCmd)

	cleanProfilesCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the N most recent profiles (0 = keep all)")
	cleanProfilesCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete profiles older than N days (0 = no age limit)")
}

// selectProfilesForDeletion applies the age limit and then keeps only the
// keepLast newest of the rest.
func selectProfilesForDeletion(profiles []*store.Profile, keepLast, olderThanDays int, now time.Time) []*store.Profile {
	var toDelete, kept []*store.Profile
	cutoff := now.AddDate(0, 0, -olderThanDays)
	for _, p := range profiles {
		if olderThanDays > 0 && p.Timestamp.Before(cutoff) {
			toDelete = append(toDelete, p)
		} else {
			kept = append(kept, p)
		}
	}

	if keepLast > 0 && len(kept) > keepLast {
		sort.SliceStable(kept, func(i, j int) bool { return kept[i].Timestamp.After(kept[j].Timestamp) })
		toDelete = append(toDelete, kept[keepLast:]...)
	}
	return toDelete
}

// newProfile records res for the session's kernel on its device.
func newProfile(s *bind.Session, res tune.Result) *store.Profile {
	return &store.Profile{
		Device:       s.Context().Device().Info().Name,
		Kernel:       s.Name(),
		Global:       res.Global,
		Local:        res.Best.Local,
		Baseline:     res.Baseline.Local,
		Mean:         res.Best.Timing.Mean,
		BaselineMean: res.Baseline.Timing.Mean,
		Candidates:   len(res.Measured),
		Timestamp:    time.Now(),
	}
}

// applyProfile sets the stored local work size on s if one was tuned for
// its device, kernel and global size. It reports whether one was applied.
func applyProfile(st store.Store, s *bind.Session) (bool, error) {
	device := s.Context().Device().Info().Name
	global := s.GlobalWorkSize()
	p, err := st.LoadProfile(store.ProfileKey(device, s.Name(), global))
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := p.Matches(device, s.Name(), global); err != nil {
		return false, err
	}
	if err := s.SetLocalWorkSize(p.Local...); err != nil {
		return false, err
	}
	return true, nil
}
