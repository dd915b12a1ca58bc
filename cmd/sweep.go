package cmd

import (
	"fmt"
	"time"

	"articlehub/sweeper"

	"github.com/spf13/cobra"
)

var (
	sweepGrace  time.Duration
	sweepDryRun bool
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete stored files that no article references",
	Long: `Delete images and documents that no article row references.

Files younger than the grace period are kept so uploads still being ingested
are never collected. Use --dry-run to list orphans without deleting them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer store.Close()
		blobs, err := openBlobs(ctx, cfg.Blob, log)
		if err != nil {
			return err
		}

		res, err := sweeper.New(store, blobs, sweepGrace, log).Run(ctx, sweepDryRun)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, key := range res.Orphans {
			fmt.Fprintln(out, key)
		}
		fmt.Fprintf(out, "scanned %d, orphaned %d, deleted %d\n", res.Scanned, len(res.Orphans), res.Deleted)
		return nil
	},
}

func init() {
	sweepCmd.Flags().DurationVar(&sweepGrace, "grace", sweeper.DefaultGrace, "minimum age of a file before it can be collected")
	sweepCmd.Flags().BoolVar(&sweepDryRun, "dry-run", false, "report orphans without deleting them")
	rootCmd.AddCommand(sweepCmd)
}
