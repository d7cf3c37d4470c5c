package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventIngest    EventType = "ingest"
	EventDuplicate EventType = "duplicate"
	EventMigrate   EventType = "migrate"
	EventAggregate EventType = "aggregate"
	EventEnrich    EventType = "enrich"
	EventFetch     EventType = "fetch"
	EventSkip      EventType = "skip"
	EventError     EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// levelPriority maps event levels to numeric priorities for comparison
var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// Event represents a single audit event of a run
type Event struct {
	Timestamp time.Time         `json:"ts"`
	RunID     string            `json:"run_id"`
	Level     EventLevel        `json:"level"`
	Event     EventType         `json:"event"`
	SongID    string            `json:"song_id,omitempty"`
	SrcPath   string            `json:"src_path,omitempty"`
	DestPath  string            `json:"dest_path,omitempty"`
	Table     string            `json:"table,omitempty"`
	Rows      int               `json:"rows,omitempty"`
	Bytes     int64             `json:"bytes,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Duration  int64             `json:"duration_ms,omitempty"` // in milliseconds
	Error     string            `json:"error,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to a JSONL file, one file per run
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	runID    string
	minLevel EventLevel
}

// NewEventLogger creates a new event logger with a minimum log level
// minLevel determines which events are written (e.g., LevelInfo skips LevelDebug)
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	runID := uuid.NewString()

	// Timestamp for ordering, run id prefix for uniqueness within a second
	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("events-%s-%s.jsonl", timestamp, runID[:8])
	path := filepath.Join(outputDir, filename)

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		runID:    runID,
		minLevel: minLevel,
	}, nil
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil // Silently ignore if logger not initialized
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.RunID = l.runID

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return nil
}

// LogIngest logs the outcome of one input file
func (l *EventLogger) LogIngest(songID, srcPath string, inserted bool) error {
	if !inserted {
		return l.Log(&Event{
			Level:   LevelDebug,
			Event:   EventDuplicate,
			SongID:  songID,
			SrcPath: srcPath,
			Reason:  "id already present",
		})
	}

	return l.Log(&Event{
		Level:   LevelInfo,
		Event:   EventIngest,
		SongID:  songID,
		SrcPath: srcPath,
	})
}

// LogMigrate logs one applied schema step
func (l *EventLogger) LogMigrate(version int, name string, rows int, dropped []string, duration time.Duration) error {
	extra := map[string]string{
		"version": fmt.Sprintf("%d", version),
		"name":    name,
	}
	level := LevelInfo
	if len(dropped) > 0 {
		level = LevelWarning
		extra["dropped"] = fmt.Sprintf("%v", dropped)
	}

	return l.Log(&Event{
		Level:    level,
		Event:    EventMigrate,
		Rows:     rows,
		Duration: duration.Milliseconds(),
		Extra:    extra,
	})
}

// LogAggregate logs a rebuilt summary table
func (l *EventLogger) LogAggregate(table string, rows int) error {
	return l.Log(&Event{
		Level: LevelInfo,
		Event: EventAggregate,
		Table: table,
		Rows:  rows,
	})
}

// LogEnrich logs an enrichment pass
func (l *EventLogger) LogEnrich(rows, withTemplate int, duration time.Duration) error {
	return l.Log(&Event{
		Level:    LevelInfo,
		Event:    EventEnrich,
		Rows:     rows,
		Duration: duration.Milliseconds(),
		Extra: map[string]string{
			"with_template": fmt.Sprintf("%d", withTemplate),
		},
	})
}

// LogFetch logs one downloaded media file
func (l *EventLogger) LogFetch(songID, url, destPath string, bytes int64, duration time.Duration, err error) error {
	level := LevelInfo
	errMsg := ""
	if err != nil {
		level = LevelError
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:    level,
		Event:    EventFetch,
		SongID:   songID,
		SrcPath:  url,
		DestPath: destPath,
		Bytes:    bytes,
		Duration: duration.Milliseconds(),
		Error:    errMsg,
	})
}

// LogSkip logs work that was not needed
func (l *EventLogger) LogSkip(event EventType, songID, path, reason string) error {
	return l.Log(&Event{
		Level:   LevelDebug,
		Event:   EventSkip,
		SongID:  songID,
		SrcPath: path,
		Reason:  reason,
		Extra:   map[string]string{"stage": string(event)},
	})
}

// LogError logs an error event
func (l *EventLogger) LogError(event EventType, srcPath string, err error) error {
	return l.Log(&Event{
		Level:   LevelError,
		Event:   event,
		SrcPath: srcPath,
		Error:   err.Error(),
	})
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// RunID returns the identifier stamped on every event of this run
func (l *EventLogger) RunID() string {
	if l == nil {
		return ""
	}
	return l.runID
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}
