package logx

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func setupTestLogger() *bytes.Buffer {
	var buf bytes.Buffer
	logWriterLock.Lock()
	logWriter = &buf
	logWriterLock.Unlock()
	return &buf
}

func resetTestLogger() {
	logWriterLock.Lock()
	logWriter = nil
	logWriterLock.Unlock()
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger("controller")
	if logger.Component() != "controller" {
		t.Errorf("expected component 'controller', got %q", logger.Component())
	}
}

func TestLogFormat(t *testing.T) {
	buf := setupTestLogger()
	defer resetTestLogger()

	logger := NewLogger("runner")
	logger.Info("worker %s finished in %dms", "LogAgent", 412)

	output := buf.String()
	if !strings.Contains(output, "[runner]") {
		t.Errorf("expected component in output, got: %s", output)
	}
	if !strings.Contains(output, "INFO") {
		t.Errorf("expected level in output, got: %s", output)
	}
	if !strings.Contains(output, "worker LogAgent finished in 412ms") {
		t.Errorf("expected formatted message, got: %s", output)
	}
}

func TestLogLevels(t *testing.T) {
	logger := NewLogger("test")

	tests := []struct {
		level   Level
		logFunc func(string, ...any)
	}{
		{LevelDebug, logger.Debug},
		{LevelInfo, logger.Info},
		{LevelWarn, logger.Warn},
		{LevelError, logger.Error},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			buf := setupTestLogger()
			defer resetTestLogger()

			if tt.level == LevelDebug {
				SetDebugConfig(true, false, "")
				defer SetDebugConfig(false, false, "")
			}

			tt.logFunc("probe")

			if !strings.Contains(buf.String(), string(tt.level)) {
				t.Errorf("expected level %s in output, got: %s", tt.level, buf.String())
			}
		})
	}
}

func TestDebugSuppressedWhenDisabled(t *testing.T) {
	buf := setupTestLogger()
	defer resetTestLogger()

	SetDebugConfig(false, false, "")
	NewLogger("quiet").Debug("should not appear")

	if buf.Len() != 0 {
		t.Errorf("expected no output with debug disabled, got: %s", buf.String())
	}
}

func TestDomainFiltering(t *testing.T) {
	buf := setupTestLogger()
	defer resetTestLogger()

	SetDebugConfig(true, false, "")
	SetDebugDomains([]string{"routing"})
	defer func() {
		SetDebugDomains(nil)
		SetDebugConfig(false, false, "")
	}()

	ctx := WithSession(context.Background(), "sess-1")
	Debug(ctx, "routing", "rule fired")
	Debug(ctx, "runner", "attempt started")

	output := buf.String()
	if !strings.Contains(output, "rule fired") {
		t.Errorf("expected routing domain line, got: %s", output)
	}
	if strings.Contains(output, "attempt started") {
		t.Errorf("runner domain should be filtered out, got: %s", output)
	}
	if !strings.Contains(output, "[sess-1]") {
		t.Errorf("expected session attribution, got: %s", output)
	}
}

func TestWithComponent(t *testing.T) {
	buf := setupTestLogger()
	defer resetTestLogger()

	base := NewLogger("controller")
	child := base.WithComponent("phases")

	base.Info("one")
	child.Info("two")

	output := buf.String()
	if !strings.Contains(output, "[controller]") || !strings.Contains(output, "[phases]") {
		t.Errorf("expected both component prefixes, got: %s", output)
	}
}

func TestTimestampFormat(t *testing.T) {
	buf := setupTestLogger()
	defer resetTestLogger()

	NewLogger("test").Info("timestamp probe")

	output := buf.String()
	start := strings.Index(output, "[")
	end := strings.Index(output, "]")
	if start == -1 || end == -1 || end <= start {
		t.Fatalf("could not find timestamp in output: %s", output)
	}
	if _, err := time.Parse("2006-01-02T15:04:05.000Z", output[start+1:end]); err != nil {
		t.Errorf("invalid timestamp %q: %v", output[start+1:end], err)
	}
}

func TestRecentEntries(t *testing.T) {
	setupTestLogger()
	defer resetTestLogger()

	logger := NewLogger("history")
	logger.Info("first")
	logger.Warn("second")

	entries := RecentEntries(2)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Message != "first" || entries[1].Message != "second" {
		t.Errorf("unexpected entries order: %+v", entries)
	}
	if entries[1].Level != string(LevelWarn) {
		t.Errorf("expected WARN level, got %s", entries[1].Level)
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) must return nil")
	}
}
