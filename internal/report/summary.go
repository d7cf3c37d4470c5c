package report

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"github.com/franz/suno-catalog/internal/store"
	"github.com/franz/suno-catalog/internal/util"
)

// SummaryReport describes the state of a catalog database
type SummaryReport struct {
	GeneratedAt time.Time

	// Canonical table
	SchemaVersion int
	Songs         int

	// Local media cache
	LocalImages int
	LocalAudio  int
	MediaFiles  int
	MediaBytes  int64

	// Prompt templates
	WithTemplate      int
	AvgTemplateLength float64

	// Details
	Languages []store.Language
	Models    []store.Model
	TopSongs  []*store.Song
	TopErrors []ErrorSummary

	// Metadata
	DatabasePath string
	MediaRoot    string
	EventLogPath string
}

// ErrorSummary represents an error with its count
type ErrorSummary struct {
	Error string
	Count int
}

// ReportOptions selects the inputs of a summary report
type ReportOptions struct {
	MediaRoot    string
	EventLogPath string // JSONL log mined for errors; empty to skip
	Fs           afero.Fs
	TopN         int
}

// GenerateSummaryReport builds a summary from the database, the media
// cache and an optional event log
func GenerateSummaryReport(ctx context.Context, db *store.Store, opts ReportOptions) (*SummaryReport, error) {
	if opts.TopN <= 0 {
		opts.TopN = 10
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}

	report := &SummaryReport{
		GeneratedAt:  time.Now(),
		DatabasePath: db.Path(),
		MediaRoot:    opts.MediaRoot,
		EventLogPath: opts.EventLogPath,
		TopErrors:    make([]ErrorSummary, 0),
	}

	var err error
	if report.SchemaVersion, err = db.SongsVersion(ctx); err != nil {
		return nil, err
	}
	if report.Songs, err = db.CountSongs(ctx); err != nil {
		return nil, err
	}
	if report.LocalImages, report.LocalAudio, err = db.LocalityCounts(ctx); err != nil {
		return nil, err
	}
	if report.WithTemplate, report.AvgTemplateLength, err = db.TemplateCounts(ctx); err != nil {
		return nil, err
	}
	if report.Languages, err = db.Languages(ctx); err != nil {
		return nil, err
	}
	if report.Models, err = db.Models(ctx); err != nil {
		return nil, err
	}

	top, err := db.SearchSongs(ctx, store.SongFilter{Limit: opts.TopN})
	if err != nil {
		return nil, err
	}
	report.TopSongs = top.Songs

	if opts.MediaRoot != "" {
		report.MediaFiles, report.MediaBytes = mediaUsage(opts.Fs, opts.MediaRoot)
	}

	if opts.EventLogPath != "" {
		report.TopErrors = gatherTopErrors(opts.EventLogPath, opts.TopN)
	}

	return report, nil
}

// mediaUsage counts the cached media files directly under root
func mediaUsage(fsys afero.Fs, root string) (files int, bytes int64) {
	entries, err := afero.ReadDir(fsys, root)
	if err != nil {
		return 0, 0
	}
	for _, e := range entries {
		if !e.Mode().IsRegular() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".mp3", ".jpeg":
			files++
			bytes += e.Size()
		}
	}
	return files, bytes
}

// gatherTopErrors counts error events in a JSONL event log
func gatherTopErrors(path string, limit int) []ErrorSummary {
	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			util.WarnLog("Cannot read event log %s: %v", path, err)
		}
		return []ErrorSummary{}
	}
	defer f.Close()

	errorCounts := make(map[string]int)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		if ev.Level == LevelError && ev.Error != "" {
			errorCounts[ev.Error]++
		}
	}

	errors := make([]ErrorSummary, 0, len(errorCounts))
	for e, count := range errorCounts {
		errors = append(errors, ErrorSummary{Error: e, Count: count})
	}

	sort.Slice(errors, func(i, j int) bool {
		if errors[i].Count != errors[j].Count {
			return errors[i].Count > errors[j].Count
		}
		return errors[i].Error < errors[j].Error
	})

	if len(errors) > limit {
		errors = errors[:limit]
	}

	return errors
}

// LatestEventLog returns the most recent events-*.jsonl file in dir
func LatestEventLog(dir string) string {
	var latest string
	var latestMod time.Time

	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !strings.HasPrefix(d.Name(), "events-") || filepath.Ext(path) != ".jsonl" {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(latestMod) {
			latest, latestMod = path, info.ModTime()
		}
		return nil
	})

	return latest
}

// WriteMarkdownReport writes the summary report as Markdown
func WriteMarkdownReport(report *SummaryReport, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var md strings.Builder

	md.WriteString("# Song Catalog - Summary Report\n\n")
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))

	if report.DatabasePath != "" {
		md.WriteString(fmt.Sprintf("**Database:** `%s`\n\n", report.DatabasePath))
	}
	if report.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", report.EventLogPath))
	}

	md.WriteString("---\n\n")

	// Overview
	md.WriteString("## 📊 Overview\n\n")
	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	md.WriteString(fmt.Sprintf("| Songs | %s |\n", humanize.Comma(int64(report.Songs))))
	md.WriteString(fmt.Sprintf("| Schema Version | v%d |\n", report.SchemaVersion))
	md.WriteString(fmt.Sprintf("| Languages | %d |\n", len(report.Languages)))
	md.WriteString(fmt.Sprintf("| Models | %d |\n", len(report.Models)))
	md.WriteString("\n")

	// Media
	if report.MediaRoot != "" || report.LocalImages > 0 || report.LocalAudio > 0 {
		md.WriteString("## 💾 Local Media\n\n")
		md.WriteString("| Metric | Value |\n")
		md.WriteString("|--------|-------|\n")
		md.WriteString(fmt.Sprintf("| Songs with Local Audio | %s (%s) |\n",
			humanize.Comma(int64(report.LocalAudio)), percent(report.LocalAudio, report.Songs)))
		md.WriteString(fmt.Sprintf("| Songs with Local Image | %s (%s) |\n",
			humanize.Comma(int64(report.LocalImages)), percent(report.LocalImages, report.Songs)))
		if report.MediaRoot != "" {
			md.WriteString(fmt.Sprintf("| Media Root | `%s` |\n", report.MediaRoot))
			md.WriteString(fmt.Sprintf("| Cached Files | %s |\n", humanize.Comma(int64(report.MediaFiles))))
			md.WriteString(fmt.Sprintf("| Cache Size | %s |\n", util.FormatBytes(report.MediaBytes)))
		}
		md.WriteString("\n")
	}

	// Templates
	if report.WithTemplate > 0 {
		md.WriteString("## 🧩 Prompt Templates\n\n")
		md.WriteString("| Metric | Value |\n")
		md.WriteString("|--------|-------|\n")
		md.WriteString(fmt.Sprintf("| Songs with Template | %s (%s) |\n",
			humanize.Comma(int64(report.WithTemplate)), percent(report.WithTemplate, report.Songs)))
		md.WriteString(fmt.Sprintf("| Average Length | %.1f |\n", report.AvgTemplateLength))
		md.WriteString("\n")
	}

	// Languages
	if len(report.Languages) > 0 {
		md.WriteString("## 🌍 Languages\n\n")
		md.WriteString("| Code | Language | Songs |\n")
		md.WriteString("|------|----------|-------|\n")
		for _, l := range report.Languages {
			name := l.Name
			if name == "" {
				name = "*unknown*"
			}
			md.WriteString(fmt.Sprintf("| %s | %s | %s |\n", l.Code, name, humanize.Comma(int64(l.Count))))
		}
		md.WriteString("\n")
	}

	// Models
	if len(report.Models) > 0 {
		md.WriteString("## 🤖 Models\n\n")
		md.WriteString("| Model | Songs |\n")
		md.WriteString("|-------|-------|\n")
		for _, m := range report.Models {
			md.WriteString(fmt.Sprintf("| %s | %s |\n", m.Name, humanize.Comma(int64(m.Count))))
		}
		md.WriteString("\n")
	}

	// Top songs
	if len(report.TopSongs) > 0 {
		md.WriteString(fmt.Sprintf("## 🔥 Most Played (Top %d)\n\n", len(report.TopSongs)))
		md.WriteString("| # | Title | Creator | Plays | Language |\n")
		md.WriteString("|---|-------|---------|-------|----------|\n")
		for i, s := range report.TopSongs {
			md.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s |\n",
				i+1, escapeCell(truncate(s.Title, 60)), escapeCell(s.Handle),
				humanize.Comma(s.PlayCount), s.Language))
		}
		md.WriteString("\n")
	}

	// Errors
	if len(report.TopErrors) > 0 {
		md.WriteString("## ⚠️ Top Errors\n\n")
		md.WriteString("| Count | Error |\n")
		md.WriteString("|-------|-------|\n")
		for _, err := range report.TopErrors {
			md.WriteString(fmt.Sprintf("| %d | %s |\n", err.Count, escapeCell(err.Error)))
		}
		md.WriteString("\n")
	}

	md.WriteString("---\n\n")
	md.WriteString("*Generated by songcat*\n")

	if err := os.WriteFile(outputPath, []byte(md.String()), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}

func percent(n, total int) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", float64(n)*100/float64(total))
}

func escapeCell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", `\|`), "\n", " ")
}

// truncate shortens s to maxLen runes, marking the cut
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
