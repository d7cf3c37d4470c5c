package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/franz/suno-catalog/internal/aggregate"
	"github.com/franz/suno-catalog/internal/util"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Rebuild the languages and models summary tables",
	Long: `Drop and recompute the languages and models summary tables from the
canonical table.

Language codes are named from the reference file given by --languages
(CSV with alpha2 and English columns). Codes missing from the reference keep
an empty name. The rebuilt tables are printed for verification.`,
	RunE: runAggregate,
}

func init() {
	rootCmd.AddCommand(aggregateCmd)
}

func runAggregate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	refPath := util.LanguagesFile()
	ref, err := aggregate.LoadReference(refPath)
	if err != nil {
		return err
	}
	util.InfoLog("Loaded %d language names from %s", len(ref), refPath)

	db, err := openStore(nil)
	if err != nil {
		return err
	}
	defer db.Close()

	logger := newEventLogger()
	defer logger.Close()

	summary, err := aggregate.New(&aggregate.Config{
		Store:     db,
		Reference: ref,
		Logger:    logger,
	}).Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("aggregate failed: %w", err)
	}

	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "languages (%d rows)\n", len(summary.Languages))
	fmt.Fprintf(out, "  %-8s %-24s %s\n", "code", "name", "count")
	for _, l := range summary.Languages {
		fmt.Fprintf(out, "  %-8s %-24s %d\n", l.Code, l.Name, l.Count)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "models (%d rows)\n", len(summary.Models))
	fmt.Fprintf(out, "  %-24s %s\n", "model", "count")
	for _, m := range summary.Models {
		fmt.Fprintf(out, "  %-24s %d\n", m.Name, m.Count)
	}

	return nil
}
