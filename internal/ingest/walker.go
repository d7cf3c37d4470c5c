// Package ingest feeds JSON song records from disk into the canonical table.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/franz/suno-catalog/internal/record"
	"github.com/franz/suno-catalog/internal/report"
	"github.com/franz/suno-catalog/internal/store"
	"github.com/franz/suno-catalog/internal/util"
)

// DefaultExtension is the input file extension picked up in directories
const DefaultExtension = ".json"

// Walker discovers input files and writes one record per file
type Walker struct {
	store     *store.Store
	fs        afero.Fs
	logger    *report.EventLogger
	recursive bool
	extension string
}

// Config holds walker configuration
type Config struct {
	Store     *store.Store
	Fs        afero.Fs // defaults to the OS filesystem
	Logger    *report.EventLogger
	Recursive bool
	Extension string
}

// New creates a new Walker
func New(cfg *Config) *Walker {
	fsys := cfg.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	ext := strings.ToLower(cfg.Extension)
	if ext == "" {
		ext = DefaultExtension
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	return &Walker{
		store:     cfg.Store,
		fs:        fsys,
		logger:    cfg.Logger,
		recursive: cfg.Recursive,
		extension: ext,
	}
}

// Result summarizes one ingestion run
type Result struct {
	Files      int // input files attempted
	Inserted   int // new rows
	Duplicates int // records whose id was already present
	Failed     int // files skipped on decode, I/O or store errors
	Errors     []error
	Elapsed    time.Duration
}

// CheckPath stats path and fails with util.ErrInvalidPath unless it is a
// regular file or a directory
func CheckPath(fsys afero.Fs, path string) (fs.FileInfo, error) {
	info, err := fsys.Stat(path)
	if err != nil || !(info.Mode().IsRegular() || info.IsDir()) {
		return nil, fmt.Errorf("%s: %w", path, util.ErrInvalidPath)
	}
	return info, nil
}

// Run ingests a single file or every matching file of a directory.
// Per-file failures are logged and skipped; a path that is neither a file
// nor a directory fails before anything is processed.
func (w *Walker) Run(ctx context.Context, path string) (*Result, error) {
	start := time.Now()

	info, err := CheckPath(w.fs, path)
	if err != nil {
		return nil, err
	}

	files := []string{path}
	if info.IsDir() {
		files, err = w.discover(path)
		if err != nil {
			return nil, err
		}
	}

	util.InfoLog("Ingesting %s file(s) from %s", util.FormatCount(len(files)), path)

	writer, err := w.store.NewSongWriter(ctx, record.Columns())
	if err != nil {
		return nil, err
	}
	defer writer.Close()

	result := &Result{Errors: make([]error, 0)}
	bar := util.NewProgressBar(int64(len(files)), "Ingesting", "files")
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		result.Files++
		inserted, err := w.ingestFile(ctx, writer, file)
		switch {
		case err != nil:
			result.Failed++
			result.Errors = append(result.Errors, err)
			util.ErrorLog("Skipping %s: %v", file, err)
		case inserted:
			result.Inserted++
		default:
			result.Duplicates++
		}

		if bar != nil {
			bar.Add(1)
		} else {
			util.InfoLog("[%d/%d] %s", result.Files, len(files), file)
		}
	}

	if bar != nil {
		bar.Finish()
	}

	result.Elapsed = time.Since(start)

	// A lone input file has nothing to fall back on
	if info.Mode().IsRegular() && result.Failed > 0 {
		return result, result.Errors[0]
	}

	return result, nil
}

func (w *Walker) ingestFile(ctx context.Context, writer *store.SongWriter, path string) (bool, error) {
	data, err := afero.ReadFile(w.fs, path)
	if err != nil {
		w.logger.LogError(report.EventIngest, path, err)
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}

	rec, err := record.Parse(data)
	if err != nil {
		w.logger.LogError(report.EventIngest, path, err)
		return false, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	inserted, err := writer.Insert(ctx, rec.Values())
	if err != nil {
		w.logger.LogError(report.EventIngest, path, err)
		return false, fmt.Errorf("failed to store %s: %w", path, err)
	}

	w.logger.LogIngest(rec.ID(), path, inserted)
	return inserted, nil
}

// discover lists matching files under root, sorted so that the first
// writer of a shared id is deterministic
func (w *Walker) discover(root string) ([]string, error) {
	var files []string

	if !w.recursive {
		entries, err := afero.ReadDir(w.fs, root)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", root, err)
		}
		for _, e := range entries {
			if e.Mode().IsRegular() && w.matches(e.Name()) {
				files = append(files, filepath.Join(root, e.Name()))
			}
		}
		sort.Strings(files)
		return files, nil
	}

	err := afero.Walk(w.fs, root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			util.WarnLog("Cannot access %s: %v", path, err)
			return nil
		}
		if info.Mode().IsRegular() && w.matches(info.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	sort.Strings(files)
	return files, nil
}

func (w *Walker) matches(name string) bool {
	return strings.ToLower(filepath.Ext(name)) == w.extension
}
