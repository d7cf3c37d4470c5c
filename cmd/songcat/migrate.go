package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/franz/suno-catalog/internal/migrate"
	"github.com/franz/suno-catalog/internal/store"
	"github.com/franz/suno-catalog/internal/util"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Rebuild the canonical table at the latest schema version",
	Long: `Apply pending schema versions to the canonical table.

Each version rebuilds the table: the old table is renamed aside, the new
shape is created, shared columns are copied, new columns are computed
(local media flags from the media root, prompt templates from the prompt
text), and the old table is dropped. All steps run in one transaction; a
failure leaves the table exactly as it was.

A version that would drop existing columns is refused unless --allow-drop
is given. Use --dry-run to print the plan without changing anything.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().Bool("dry-run", false, "print pending steps without applying them")
	migrateCmd.Flags().Bool("allow-drop", false, "permit steps that drop columns")
	migrateCmd.Flags().Bool("refresh-locality", false, "recompute local media flags in place (no rebuild)")
	migrateCmd.Flags().Int("batch-size", migrate.DefaultBatchSize, "rows computed per batch")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	allowDrop, _ := cmd.Flags().GetBool("allow-drop")
	refresh, _ := cmd.Flags().GetBool("refresh-locality")
	batchSize, _ := cmd.Flags().GetInt("batch-size")

	db, err := openStore(nil)
	if err != nil {
		return err
	}
	defer db.Close()

	logger := newEventLogger()
	defer logger.Close()

	prober := mediaProber()
	util.InfoLog("Media root: %s", prober.Root())

	m := migrate.New(&migrate.Config{
		Store:      db,
		Logger:     logger,
		Migrations: migrate.Migrations(prober),
	})

	out := cmd.OutOrStdout()

	if refresh {
		start := time.Now()
		n, err := m.RefreshLocality(ctx, migrate.LocalityColumns(prober), batchSize)
		if err != nil {
			return fmt.Errorf("locality refresh failed: %w", err)
		}
		util.SuccessLog("Refreshed local media flags of %s rows in %v", util.FormatCount(n), time.Since(start).Round(time.Millisecond))
		return nil
	}

	steps, err := m.Plan(ctx)
	if err != nil {
		return err
	}

	if dryRun {
		current, err := db.SongsVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Current version: v%d\n", current)
		if len(steps) == 0 {
			fmt.Fprintln(out, "No pending migrations")
			return nil
		}
		for _, s := range steps {
			fmt.Fprintf(out, "v%d %s\n", s.Migration.Version, s.Migration.Name)
			if len(s.Added) > 0 {
				fmt.Fprintf(out, "  + %s\n", strings.Join(s.Added, ", "))
			}
			if len(s.Dropped) > 0 {
				fmt.Fprintf(out, "  - %s (requires --allow-drop)\n", strings.Join(s.Dropped, ", "))
			}
		}
		return nil
	}

	result, err := m.Run(ctx, migrate.Options{
		AllowNarrowing: allowDrop,
		BatchSize:      batchSize,
	})
	if err != nil {
		return err
	}

	for _, sr := range result.Steps {
		util.SuccessLog("v%d %s: %s rows in %v", sr.Version, sr.Name, util.FormatCount(sr.Rows), sr.Elapsed.Round(time.Millisecond))
		if len(sr.Dropped) > 0 {
			util.WarnLog("  Dropped columns: %s", strings.Join(sr.Dropped, ", "))
		}
		if sr.SkippedNoID > 0 {
			util.WarnLog("  Rows without id not carried forward: %d", sr.SkippedNoID)
		}
	}

	fmt.Fprintf(out, "%s at v%d: %d rows\n", store.SongsTable, result.To, result.Rows)
	fmt.Fprintf(out, "Columns (%d):\n", len(result.Columns))
	for _, c := range result.Columns {
		fmt.Fprintf(out, "  %s\n", c)
	}

	return nil
}
