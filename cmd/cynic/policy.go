package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"cynic/internal/policy"
	"cynic/internal/storage"
)

func newPolicyCommand(flags *rootFlags) *cobra.Command {
	var snapshotPath string

	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect the learned Q-policy",
		Long:  "Reads the Q-table snapshot on disk and reports what the policy has learned.",
	}

	cmd.PersistentFlags().StringVar(&snapshotPath, "snapshot", "", "Snapshot file (defaults to the configured path)")

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Summary statistics of the policy table",
		RunE: func(cmd *cobra.Command, args []string) error {
			table, path, err := loadSnapshot(flags, snapshotPath)
			if err != nil {
				return err
			}
			stats := table.Stats()
			fmt.Printf("%s %s\n", bold("snapshot"), gray(path))
			fmt.Printf("  states        %d\n", stats.States)
			fmt.Printf("  entries       %d\n", stats.Entries)
			fmt.Printf("  total visits  %d\n", stats.TotalVisits)
			fmt.Printf("  consolidated  %d\n", stats.Consolidated)
			fmt.Printf("  avg alpha     %.4f\n", stats.EffectiveAlphaAvg)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "top [n]",
		Short: "Most-visited states and their best actions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := 10
			if len(args) > 0 {
				parsed, err := strconv.Atoi(args[0])
				if err != nil || parsed < 1 {
					return fmt.Errorf("invalid configuration: n must be a positive integer")
				}
				n = parsed
			}
			table, path, err := loadSnapshot(flags, snapshotPath)
			if err != nil {
				return err
			}
			states := table.TopStates(n)
			if len(states) == 0 {
				fmt.Printf("%s %s\n", gray("empty policy at"), gray(path))
				return nil
			}
			fmt.Printf("%-24s %8s  %-8s %8s %11s\n",
				bold("state"), bold("visits"), bold("best"), bold("value"), bold("confidence"))
			for _, s := range states {
				fmt.Printf("%-24s %8d  %-8s %8.3f %11.3f\n",
					s.StateKey, s.Visits, cyan(s.BestAction), s.BestValue, s.Confidence)
			}
			return nil
		},
	})

	return cmd
}

// loadSnapshot restores the on-disk snapshot into a fresh table for
// offline inspection.
func loadSnapshot(flags *rootFlags, override string) (*policy.QTable, string, error) {
	path := override
	if path == "" {
		cfg, err := loadConfig(flags)
		if err != nil {
			return nil, "", err
		}
		path = cfg.Policy.SnapshotPath
	}
	store := storage.NewSnapshotStore(path, nil)
	entries, err := store.Load()
	if err != nil {
		return nil, "", err
	}
	table := policy.NewQTable(nil)
	table.Restore(entries)
	return table, path, nil
}
