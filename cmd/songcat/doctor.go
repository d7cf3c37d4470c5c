package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/franz/suno-catalog/internal/aggregate"
	"github.com/franz/suno-catalog/internal/store"
	"github.com/franz/suno-catalog/internal/util"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the environment and configuration",
	Long: `Run diagnostic checks to ensure songcat can operate correctly.

This command checks:
- SQLite driver version
- Database accessibility, integrity and schema version
- Media root existence and write permission
- Language reference file
- Disk space under the media root

Use this command to troubleshoot issues before running songcat operations.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	util.InfoLog("=== songcat doctor ===")
	util.InfoLog("")

	mediaRoot := util.MediaRoot()

	results := []checkResult{
		checkSQLite(),
		checkDatabase(util.DBPath()),
		checkMediaRoot(mediaRoot),
		checkLanguagesFile(util.LanguagesFile()),
		checkDiskSpace(mediaRoot, "media root"),
	}

	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}

		if r.error {
			util.ErrorLog("%s", line)
		} else if r.warning {
			util.WarnLog("%s", line)
		} else {
			util.SuccessLog("%s", line)
		}
	}

	util.InfoLog("")
	if hasErrors {
		util.ErrorLog("Some critical checks failed. Resolve them before running songcat.")
		return fmt.Errorf("system diagnostics failed")
	} else if hasWarnings {
		util.WarnLog("Some checks produced warnings. Review them before proceeding.")
	} else {
		util.SuccessLog("All checks passed.")
	}

	return nil
}

// checkSQLite reports the embedded SQLite version
func checkSQLite() checkResult {
	version := store.SQLiteVersion()
	if version == "" {
		return checkResult{
			name:    "SQLite",
			error:   true,
			message: "unable to determine version",
		}
	}

	return checkResult{
		name:    "SQLite",
		message: fmt.Sprintf("version %s (built-in)", version),
	}
}

// checkDatabase verifies the catalog database and its schema version
func checkDatabase(dbPath string) checkResult {
	if dbPath == "" {
		return checkResult{
			name:    "Database",
			warning: true,
			message: "no database path specified (use --db flag or config)",
		}
	}

	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{
				name:    "Database",
				message: fmt.Sprintf("%s (will be created on first ingest)", dbPath),
			}
		}
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", dbPath, err),
		}
	}

	if !info.Mode().IsRegular() {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("%s is not a regular file", dbPath),
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot open %s: %v", dbPath, err),
		}
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.CheckIntegrity(ctx); err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("integrity check failed: %v", err),
		}
	}

	version, err := db.SongsVersion(ctx)
	if err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot read schema version: %v", err),
		}
	}
	songs, _ := db.CountSongs(ctx)

	msg := fmt.Sprintf("%s (%s, %s songs, schema v%d)", dbPath, util.FormatBytes(info.Size()), util.FormatCount(songs), version)
	if version < store.CurrentSongsVersion {
		return checkResult{
			name:    "Database",
			warning: true,
			message: msg + fmt.Sprintf("; v%d available, run songcat migrate", store.CurrentSongsVersion),
		}
	}

	return checkResult{
		name:    "Database",
		message: msg,
	}
}

// checkMediaRoot verifies the media cache directory is writable
func checkMediaRoot(path string) checkResult {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(path, 0755); err != nil {
				return checkResult{
					name:    "Media root",
					error:   true,
					message: fmt.Sprintf("cannot create %s: %v", path, err),
				}
			}
			return checkResult{
				name:    "Media root",
				message: fmt.Sprintf("%s (created)", path),
			}
		}
		return checkResult{
			name:    "Media root",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}

	if !info.IsDir() {
		return checkResult{
			name:    "Media root",
			error:   true,
			message: fmt.Sprintf("%s is not a directory", path),
		}
	}

	testFile := filepath.Join(path, ".songcat_write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return checkResult{
			name:    "Media root",
			error:   true,
			message: fmt.Sprintf("cannot write to %s: %v", path, err),
		}
	}
	f.Close()
	os.Remove(testFile)

	return checkResult{
		name:    "Media root",
		message: fmt.Sprintf("%s (writable)", path),
	}
}

// checkLanguagesFile verifies the reference used by aggregate
func checkLanguagesFile(path string) checkResult {
	ref, err := aggregate.LoadReference(path)
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			return checkResult{
				name:    "Language reference",
				warning: true,
				message: fmt.Sprintf("%s not found (required by aggregate)", path),
			}
		}
		return checkResult{
			name:    "Language reference",
			error:   true,
			message: err.Error(),
		}
	}

	return checkResult{
		name:    "Language reference",
		message: fmt.Sprintf("%s (%d codes)", path, len(ref)),
	}
}

// checkDiskSpace verifies available disk space
func checkDiskSpace(path string, label string) checkResult {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return checkResult{
			name:    fmt.Sprintf("Disk space (%s)", label),
			warning: true,
			message: fmt.Sprintf("cannot determine disk space: %v", err),
		}
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	totalBytes := stat.Blocks * uint64(stat.Bsize)
	usedBytes := totalBytes - (stat.Bfree * uint64(stat.Bsize))

	usedPercent := 0.0
	if totalBytes > 0 {
		usedPercent = float64(usedBytes) / float64(totalBytes) * 100
	}

	// Media files are a few MB each; warn below 2 GB
	warning := false
	warningMsg := ""
	if availBytes < 2<<30 {
		warning = true
		warningMsg = " (low space!)"
	} else if usedPercent > 90 {
		warning = true
		warningMsg = " (>90% used)"
	}

	return checkResult{
		name:    fmt.Sprintf("Disk space (%s)", label),
		warning: warning,
		message: fmt.Sprintf("%s available%s", util.FormatBytes(int64(availBytes)), warningMsg),
	}
}
