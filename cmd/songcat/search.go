package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/franz/suno-catalog/internal/store"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the catalog",
	Long: `Search songs by a case-insensitive substring of title or prompt,
optionally filtered by language code, model and local audio availability.
Results are ordered by play count, most played first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().String("language", "", "language code (e.g. en)")
	searchCmd.Flags().String("model", "", "model name")
	searchCmd.Flags().Bool("local", false, "only songs with locally cached audio")
	searchCmd.Flags().IntP("limit", "n", 20, "maximum results")
	searchCmd.Flags().Int("offset", 0, "results to skip")
	searchCmd.Flags().Bool("json", false, "print results as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	filter := store.SongFilter{}
	if len(args) == 1 {
		filter.Search = strings.TrimSpace(args[0])
	}
	filter.Language, _ = cmd.Flags().GetString("language")
	filter.Model, _ = cmd.Flags().GetString("model")
	filter.LocalOnly, _ = cmd.Flags().GetBool("local")
	filter.Limit, _ = cmd.Flags().GetInt("limit")
	filter.Offset, _ = cmd.Flags().GetInt("offset")
	asJSON, _ := cmd.Flags().GetBool("json")

	db, err := openStore(nil)
	if err != nil {
		return err
	}
	defer db.Close()

	result, err := db.SearchSongs(ctx, filter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if len(result.Songs) == 0 {
		fmt.Fprintln(out, "no results")
		return nil
	}

	fmt.Fprintf(out, "%d of %d matching songs\n\n", len(result.Songs), result.Total)
	for i, s := range result.Songs {
		local := ""
		if s.LocalAudio {
			local = " [local]"
		}
		fmt.Fprintf(out, "%3d. %s - %s%s\n", filter.Offset+i+1, s.Title, s.Handle, local)
		fmt.Fprintf(out, "     %s plays, %s, %s, id %s\n",
			humanize.Comma(s.PlayCount), orDash(s.Language), orDash(s.ModelName), s.ID)
	}

	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
