package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"inquest/pkg/logx"
	"inquest/pkg/proto"
)

// Writer appends events to daily-rotated JSONL files named
// events-YYYY-MM-DD.jsonl under its directory.
type Writer struct {
	logger *logx.Logger

	mu          sync.Mutex
	dir         string
	currentFile *os.File
	currentDate string
}

// NewWriter creates the log directory if needed and opens today's file.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create event log directory: %w", err)
	}
	w := &Writer{
		logger: logx.NewLogger("eventlog"),
		dir:    dir,
	}
	if err := w.rotateIfNeeded(); err != nil {
		return nil, fmt.Errorf("open event log file: %w", err)
	}
	return w, nil
}

// Emit implements Sink. Write failures are logged and dropped; the event
// stream is telemetry, not control flow.
func (w *Writer) Emit(evt proto.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.rotateIfNeeded(); err != nil {
		w.logger.Warn("rotate failed, dropping %s event: %v", evt.Type, err)
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		w.logger.Warn("marshal failed, dropping %s event: %v", evt.Type, err)
		return
	}
	data = append(data, '\n')
	if _, err := w.currentFile.Write(data); err != nil {
		w.logger.Warn("write failed, dropping %s event: %v", evt.Type, err)
		return
	}
	if err := w.currentFile.Sync(); err != nil {
		w.logger.Warn("sync failed after %s event: %v", evt.Type, err)
	}
}

func (w *Writer) rotateIfNeeded() error {
	today := time.Now().Format("2006-01-02")
	if w.currentFile != nil && w.currentDate == today {
		return nil
	}
	if w.currentFile != nil {
		if err := w.currentFile.Close(); err != nil {
			return fmt.Errorf("close previous event log: %w", err)
		}
	}
	path := filepath.Join(w.dir, fmt.Sprintf("events-%s.jsonl", today))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open event log %s: %w", path, err)
	}
	w.currentFile = file
	w.currentDate = today
	return nil
}

// CurrentLogFile returns the path of the active log file.
func (w *Writer) CurrentLogFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.currentFile == nil {
		return ""
	}
	return filepath.Join(w.dir, fmt.Sprintf("events-%s.jsonl", w.currentDate))
}

// Close closes the active log file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.currentFile == nil {
		return nil
	}
	err := w.currentFile.Close()
	w.currentFile = nil
	if err != nil {
		return fmt.Errorf("close event log: %w", err)
	}
	return nil
}

// Prune removes event log files older than maxAgeDays. Zero or negative
// keeps everything.
func (w *Writer) Prune(maxAgeDays int) error {
	if maxAgeDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)
	files, err := ListLogFiles(w.dir)
	if err != nil {
		return err
	}
	for _, path := range files {
		base := filepath.Base(path)
		dateStr := base[len("events-") : len(base)-len(".jsonl")]
		day, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("prune event log %s: %w", path, err)
			}
		}
	}
	return nil
}

// ReadEvents parses one JSONL event log file. Unknown event types pass
// through untouched; consumers decide what to do with them.
func ReadEvents(path string) ([]proto.Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer file.Close()

	var events []proto.Event
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var evt proto.Event
		if err := json.Unmarshal(line, &evt); err != nil {
			return nil, fmt.Errorf("parse event line: %w", err)
		}
		events = append(events, evt)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan event log: %w", err)
	}
	return events, nil
}

// ListLogFiles returns the event log files under dir, sorted by name and
// therefore by date.
func ListLogFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "events-*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("list event logs: %w", err)
	}
	return files, nil
}
