package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/franz/suno-catalog/internal/media"
	"github.com/franz/suno-catalog/internal/store"
	"github.com/franz/suno-catalog/internal/util"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <query> <count>",
	Short: "Download audio and cover images into the media cache",
	Long: `Download <id>.mp3 and <id>.jpeg for the top <count> songs matching
<query> into the media root. Files already cached are skipped. Payloads that
are not audio (or not an image) are rejected.

The database is not modified; run "songcat migrate --refresh-locality"
afterwards to update the local media flags.`,
	Args: cobra.ExactArgs(2),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().IntP("concurrency", "c", media.DefaultWorkers, "parallel downloads")
	fetchCmd.Flags().Float64("rate", 0, "maximum requests per second (0 for unlimited)")
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	count, err := strconv.Atoi(args[1])
	if err != nil || count <= 0 {
		return fmt.Errorf("count must be a positive integer, got %q", args[1])
	}
	workers, _ := cmd.Flags().GetInt("concurrency")
	rps, _ := cmd.Flags().GetFloat64("rate")

	db, err := openStore(nil)
	if err != nil {
		return err
	}
	defer db.Close()

	logger := newEventLogger()
	defer logger.Close()

	found, err := db.SearchSongs(ctx, store.SongFilter{Search: args[0], Limit: count})
	if err != nil {
		return err
	}
	if len(found.Songs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no results")
		return nil
	}

	prober := mediaProber()
	util.InfoLog("Fetching media of %d songs into %s", len(found.Songs), prober.Root())

	fetcher := media.New(&media.Config{
		Prober:  prober,
		Logger:  logger,
		Workers: workers,
		Rate:    rps,
	})

	result, err := fetcher.Fetch(ctx, found.Songs)
	if err != nil {
		return fmt.Errorf("fetch interrupted: %w", err)
	}

	util.SuccessLog("Fetch complete in %v", result.Elapsed.Round(time.Millisecond))
	util.InfoLog("  Downloaded: %d (%s)", result.Downloaded, util.FormatBytes(result.Bytes))
	util.InfoLog("  Skipped: %d", result.Skipped)
	if result.Failed > 0 {
		util.WarnLog("  Failed: %d", result.Failed)
	}
	if result.Downloaded > 0 {
		util.InfoLog("")
		util.InfoLog("Next step: songcat migrate --refresh-locality")
	}

	return nil
}
