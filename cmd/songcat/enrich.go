package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/franz/suno-catalog/internal/prompt"
	"github.com/franz/suno-catalog/internal/util"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Recompute prompt templates from the prompt text",
	Long: `Extract the bracketed section markers of every prompt ("[Verse]",
"[Chorus]", ...) into prompt_template and store their count in
template_length. Requires schema v3 (run migrate first).

With --show, the rows whose template has more than --min-length markers are
listed, longest first.`,
	RunE: runEnrich,
}

func init() {
	rootCmd.AddCommand(enrichCmd)

	enrichCmd.Flags().Bool("show", false, "list rows with long templates after enriching")
	enrichCmd.Flags().Int("min-length", 5, "minimum template length listed by --show (exclusive)")
	enrichCmd.Flags().Int("limit", 50, "maximum rows listed by --show (0 for all)")
	enrichCmd.Flags().Bool("skip-update", false, "only list, do not recompute")
	enrichCmd.Flags().Int("batch-size", prompt.DefaultBatchSize, "rows updated per transaction")
}

func runEnrich(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	show, _ := cmd.Flags().GetBool("show")
	minLen, _ := cmd.Flags().GetInt("min-length")
	limit, _ := cmd.Flags().GetInt("limit")
	skipUpdate, _ := cmd.Flags().GetBool("skip-update")
	batchSize, _ := cmd.Flags().GetInt("batch-size")

	db, err := openStore(nil)
	if err != nil {
		return err
	}
	defer db.Close()

	logger := newEventLogger()
	defer logger.Close()

	enricher := prompt.NewEnricher(&prompt.Config{
		Store:     db,
		Logger:    logger,
		BatchSize: batchSize,
	})

	if !skipUpdate {
		result, err := enricher.Run(ctx)
		if err != nil {
			return fmt.Errorf("enrich failed: %w", err)
		}
		util.SuccessLog("Enriched %s rows in %v", util.FormatCount(result.Rows), result.Elapsed.Round(time.Millisecond))
		util.InfoLog("  With template: %s", util.FormatCount(result.WithTemplate))
	}

	if !show {
		return nil
	}

	entries, err := enricher.Interesting(ctx, minLen, limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintf(out, "No templates longer than %d\n", minLen)
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s  %s (%d)\n", e.ID, e.Title, e.Length)
		fmt.Fprintf(out, "%s\n\n", e.Template)
	}

	return nil
}
