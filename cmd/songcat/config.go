package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/franz/suno-catalog/internal/locality"
	"github.com/franz/suno-catalog/internal/report"
	"github.com/franz/suno-catalog/internal/store"
	"github.com/franz/suno-catalog/internal/util"
)

// artifactsDir holds event logs and reports
const artifactsDir = "artifacts"

// openStore opens the configured database; callers close it when the
// command ends
func openStore(opts *store.OpenOptions) (*store.Store, error) {
	dbPath := util.DBPath()
	util.DebugLog("Opening database: %s", dbPath)

	db, err := store.OpenWithOptions(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// newEventLogger creates the run's JSONL event log, falling back to a
// no-op logger when the artifacts directory is not writable
func newEventLogger() *report.EventLogger {
	level := report.LevelInfo
	if viper.GetBool("quiet") {
		level = report.LevelWarning
	} else if viper.GetBool("verbose") {
		level = report.LevelDebug
	}

	logger, err := report.NewEventLogger(artifactsDir, level)
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		return report.NullLogger()
	}

	util.DebugLog("Event log: %s", logger.Path())
	return logger
}

// mediaProber probes the configured media root on the OS filesystem
func mediaProber() *locality.Prober {
	return locality.New(afero.NewOsFs(), util.MediaRoot())
}
