package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/franz/suno-catalog/internal/report"
	"github.com/franz/suno-catalog/internal/util"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a summary report of the catalog",
	Long: `Generate a Markdown summary of the catalog.

The report includes:
- Row count and schema version
- Local media coverage and cache size
- Prompt template statistics
- Language and model summaries
- Most played songs
- Top errors from the latest event log

The report is saved to artifacts/reports/<timestamp>/summary.md`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().String("out", "", "output directory for report (default: artifacts/reports/<timestamp>)")
	reportCmd.Flags().String("event-log", "", "event log to mine for errors (default: latest in artifacts/)")
	reportCmd.Flags().Int("top", 10, "rows in the top songs and errors sections")
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	eventLogPath, _ := cmd.Flags().GetString("event-log")
	if eventLogPath == "" {
		eventLogPath = report.LatestEventLog(artifactsDir)
	}
	topN, _ := cmd.Flags().GetInt("top")

	db, err := openStore(nil)
	if err != nil {
		return err
	}
	defer db.Close()

	util.InfoLog("Analyzing %s...", db.Path())
	summary, err := report.GenerateSummaryReport(ctx, db, report.ReportOptions{
		MediaRoot:    util.MediaRoot(),
		EventLogPath: eventLogPath,
		TopN:         topN,
	})
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	outputDir, _ := cmd.Flags().GetString("out")
	if outputDir == "" {
		outputDir = filepath.Join(artifactsDir, "reports", time.Now().Format("20060102-150405"))
	}
	outputPath := filepath.Join(outputDir, "summary.md")

	if err := report.WriteMarkdownReport(summary, outputPath); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	util.SuccessLog("Report saved to: %s", outputPath)
	util.InfoLog("  Songs: %s (schema v%d)", util.FormatCount(summary.Songs), summary.SchemaVersion)
	util.InfoLog("  Local audio: %s, local images: %s", util.FormatCount(summary.LocalAudio), util.FormatCount(summary.LocalImages))
	if len(summary.TopErrors) > 0 {
		util.WarnLog("  Distinct errors in event log: %d", len(summary.TopErrors))
	}

	return nil
}
