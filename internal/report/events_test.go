package report

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func readEvents(t *testing.T, path string) []Event {
	t.Helper()

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var decoded Event
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("Failed to decode line %d: %v", len(events)+1, err)
		}
		events = append(events, decoded)
	}
	return events
}

func TestNewEventLogger(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewEventLogger(tmpDir, LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}
	defer logger.Close()

	if logger.Path() == "" {
		t.Error("EventLogger path is empty")
	}

	if _, err := os.Stat(logger.Path()); os.IsNotExist(err) {
		t.Errorf("Event log file was not created at %s", logger.Path())
	}

	filename := filepath.Base(logger.Path())
	if !strings.HasPrefix(filename, "events-") || !strings.HasSuffix(filename, ".jsonl") {
		t.Errorf("Event log filename format incorrect: %s", filename)
	}

	if len(logger.RunID()) != 36 {
		t.Errorf("Expected a UUID run id, got %q", logger.RunID())
	}
}

func TestEventLogger_SeparateFilesPerRun(t *testing.T) {
	tmpDir := t.TempDir()

	a, err := NewEventLogger(tmpDir, LevelDebug)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := NewEventLogger(tmpDir, LevelDebug)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if a.Path() == b.Path() {
		t.Errorf("two runs share log file %s", a.Path())
	}
	if a.RunID() == b.RunID() {
		t.Error("two runs share a run id")
	}
}

func TestEventLogger_MultipleEvents(t *testing.T) {
	tmpDir := t.TempDir()
	logger, err := NewEventLogger(tmpDir, LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	events := []*Event{
		{Level: LevelInfo, Event: EventIngest, SongID: "id1", SrcPath: "/in/1.json"},
		{Level: LevelInfo, Event: EventAggregate, Table: "languages", Rows: 12},
		{Level: LevelDebug, Event: EventDuplicate, SongID: "id1"},
		{Level: LevelError, Event: EventError, SrcPath: "/in/3.json", Error: "test error"},
	}

	for _, event := range events {
		if err := logger.Log(event); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	logger.Close()

	decoded := readEvents(t, logger.Path())
	if len(decoded) != len(events) {
		t.Fatalf("Expected %d events, got %d", len(events), len(decoded))
	}
	for i, e := range decoded {
		if e.Timestamp.IsZero() {
			t.Errorf("Line %d: timestamp not set", i+1)
		}
		if e.RunID != logger.RunID() {
			t.Errorf("Line %d: run id %q, want %q", i+1, e.RunID, logger.RunID())
		}
	}
}

func TestEventLogger_MinLevel(t *testing.T) {
	tmpDir := t.TempDir()
	logger, err := NewEventLogger(tmpDir, LevelInfo)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	logger.LogIngest("a", "/in/a.json", true)
	logger.LogIngest("a", "/in/b.json", false) // duplicate is debug
	logger.Close()

	decoded := readEvents(t, logger.Path())
	if len(decoded) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(decoded))
	}
	if decoded[0].Event != EventIngest {
		t.Errorf("Expected ingest event, got %s", decoded[0].Event)
	}
}

func TestEventLogger_ConcurrentWrites(t *testing.T) {
	tmpDir := t.TempDir()
	logger, err := NewEventLogger(tmpDir, LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	const numGoroutines = 10
	const eventsPerGoroutine = 20

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				if err := logger.LogFetch("concurrent-test", "http://x", "/m/x.mp3", int64(j), 0, nil); err != nil {
					t.Errorf("Concurrent log failed: %v", err)
				}
			}
		}(i)
	}

	wg.Wait()
	logger.Close()

	expected := numGoroutines * eventsPerGoroutine
	if got := len(readEvents(t, logger.Path())); got != expected {
		t.Errorf("Expected %d events, got %d", expected, got)
	}
}

func TestEventLogger_LogMigrate(t *testing.T) {
	tmpDir := t.TempDir()
	logger, err := NewEventLogger(tmpDir, LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	if err := logger.LogMigrate(2, "locality flags", 1000, nil, 250*time.Millisecond); err != nil {
		t.Fatalf("LogMigrate failed: %v", err)
	}
	if err := logger.LogMigrate(3, "narrow", 1000, []string{"reaction"}, 0); err != nil {
		t.Fatalf("LogMigrate failed: %v", err)
	}
	logger.Close()

	decoded := readEvents(t, logger.Path())
	if len(decoded) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(decoded))
	}

	if decoded[0].Level != LevelInfo || decoded[0].Rows != 1000 || decoded[0].Duration != 250 {
		t.Errorf("Unexpected migrate event: %+v", decoded[0])
	}
	if decoded[0].Extra["version"] != "2" {
		t.Errorf("Expected version '2', got '%s'", decoded[0].Extra["version"])
	}
	if decoded[1].Level != LevelWarning {
		t.Errorf("Expected narrowing to log a warning, got '%s'", decoded[1].Level)
	}
	if decoded[1].Extra["dropped"] != "[reaction]" {
		t.Errorf("Expected dropped '[reaction]', got '%s'", decoded[1].Extra["dropped"])
	}
}

func TestEventLogger_LogFetchError(t *testing.T) {
	tmpDir := t.TempDir()
	logger, err := NewEventLogger(tmpDir, LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	err = logger.LogFetch("song1", "https://cdn/song1.mp3", "/media/song1.mp3", 0, time.Second, errors.New("404"))
	if err != nil {
		t.Fatalf("LogFetch failed: %v", err)
	}
	logger.Close()

	decoded := readEvents(t, logger.Path())
	if len(decoded) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(decoded))
	}
	if decoded[0].Level != LevelError || decoded[0].Error != "404" {
		t.Errorf("Unexpected fetch event: %+v", decoded[0])
	}
}

func TestEventLogger_NullLogger(t *testing.T) {
	logger := NullLogger()

	err := logger.Log(&Event{Level: LevelInfo, Event: EventIngest})
	if err != nil {
		t.Errorf("NullLogger.Log should not return error, got: %v", err)
	}

	err = logger.LogIngest("key", "/path", true)
	if err != nil {
		t.Errorf("NullLogger.LogIngest should not return error, got: %v", err)
	}

	err = logger.Close()
	if err != nil {
		t.Errorf("NullLogger.Close should not return error, got: %v", err)
	}

	if path := logger.Path(); path != "" {
		t.Errorf("NullLogger.Path should return empty string, got: %s", path)
	}
	if id := logger.RunID(); id != "" {
		t.Errorf("NullLogger.RunID should return empty string, got: %s", id)
	}
}
