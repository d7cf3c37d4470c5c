package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/franz/suno-catalog/internal/ingest"
	"github.com/franz/suno-catalog/internal/store"
	"github.com/franz/suno-catalog/internal/util"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file-or-directory>",
	Short: "Load JSON song records into the catalog",
	Long: `Load one JSON song record, or every .json file of a directory, into the
canonical table.

Each file holds one record. Records are inserted with insert-or-ignore
semantics: a song id already present is left untouched, so repeated runs
over the same corpus are idempotent. Files that fail to decode are reported
and skipped; the run continues with the next file.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			cmd.Usage()
			return fmt.Errorf("expected exactly one path, got %d", len(args))
		}
		return nil
	},
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().BoolP("recursive", "r", false, "descend into subdirectories")
	ingestCmd.Flags().String("ext", ingest.DefaultExtension, "input file extension")
	ingestCmd.Flags().Bool("bulk", false, "relax durability pragmas for large imports")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	path := args[0]

	recursive, _ := cmd.Flags().GetBool("recursive")
	ext, _ := cmd.Flags().GetString("ext")
	bulk, _ := cmd.Flags().GetBool("bulk")

	// Nothing is created for a path that cannot be ingested
	if _, err := ingest.CheckPath(afero.NewOsFs(), path); err != nil {
		cmd.Usage()
		return fmt.Errorf("ingest failed: %w", err)
	}

	db, err := openStore(&store.OpenOptions{BulkLoad: bulk})
	if err != nil {
		return err
	}
	defer db.Close()

	logger := newEventLogger()
	defer logger.Close()

	walker := ingest.New(&ingest.Config{
		Store:     db,
		Logger:    logger,
		Recursive: recursive,
		Extension: ext,
	})

	result, err := walker.Run(ctx, path)
	if err != nil {
		if errors.Is(err, util.ErrInvalidPath) {
			cmd.Usage()
		}
		return fmt.Errorf("ingest failed: %w", err)
	}

	total, err := db.CountSongs(ctx)
	if err != nil {
		return err
	}

	util.SuccessLog("Ingest complete in %v", result.Elapsed.Round(time.Millisecond))
	util.InfoLog("  Files processed: %s", util.FormatCount(result.Files))
	util.InfoLog("  Records inserted: %s", util.FormatCount(result.Inserted))
	if result.Duplicates > 0 {
		util.InfoLog("  Already present: %s", util.FormatCount(result.Duplicates))
	}
	if result.Failed > 0 {
		util.WarnLog("  Skipped (errors): %s", util.FormatCount(result.Failed))
	}
	util.InfoLog("  Total rows in %s: %s", store.SongsTable, util.FormatCount(total))

	fmt.Fprintf(cmd.OutOrStdout(), "Inserted %d records in %v (%d rows total)\n",
		result.Inserted, result.Elapsed.Round(time.Millisecond), total)

	return nil
}
