package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/buckos/pkgbuild/internal/lock"
	"github.com/buckos/pkgbuild/internal/log"
)

var (
	locksSettings settingsFlags
	locksCleanup  bool
	locksJSON     bool
)

var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "Show or clean up download slots",
	Long: `List the download slot lock files and the process holding each one.
With --cleanup, slots whose owner process has exited are released.`,
	Args: usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := locksSettings.loadSettings(cmd)
		if err != nil {
			return err
		}
		mgr, err := lock.NewSlotManager(settings.LockDir, settings.Slots, lock.WithLogger(log.Default()))
		if err != nil {
			return err
		}

		if locksCleanup {
			cleaned, err := mgr.TryCleanupStale()
			if err != nil {
				return err
			}
			printInfof("Released %d stale slot(s)\n", len(cleaned))
		}

		held, err := mgr.ListLocks()
		if err != nil {
			return err
		}
		if locksJSON {
			return printJSON(held)
		}
		fmt.Printf("%d slot(s) in %s, %d held\n", mgr.Slots(), mgr.Dir(), len(held))
		for _, m := range held {
			fmt.Printf("  slot %-3d pid %-8d %-32s since %s\n", m.Slot, m.PID, m.Purpose, m.AcquiredAt.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	locksSettings.register(locksCmd)
	locksCmd.Flags().BoolVar(&locksCleanup, "cleanup", false, "Release slots held by exited processes")
	locksCmd.Flags().BoolVar(&locksJSON, "json", false, "Print as JSON")
}
