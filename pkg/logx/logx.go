// Package logx provides component-prefixed logging with env-driven debug domains.
package logx

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger writes timestamped, component-prefixed lines to stderr.
type Logger struct {
	component string
	out       *log.Logger
}

// DebugConfig controls debug logging behavior.
type DebugConfig struct {
	Enabled     bool
	FileLogging bool
	LogDir      string
	Domains     map[string]bool // nil = all domains
}

// Entry is one captured log line, kept in the recent-entries ring for
// the snapshot surface.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Component string `json:"component"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Domain    string `json:"domain,omitempty"`
}

type ring struct {
	mu      sync.Mutex
	entries []Entry
	max     int
}

var (
	debugConfig = &DebugConfig{}
	debugMu     sync.RWMutex

	recent = &ring{max: 1000}

	// logWriter, when non-nil, overrides stderr; tests swap it for a buffer.
	logWriter     io.Writer
	logWriterLock sync.Mutex
)

type ctxKey int

const sessionKey ctxKey = 0

// WithSession tags a context with the debate session ID so package-level
// debug lines can attribute themselves.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey, sessionID)
}

func sessionFrom(ctx context.Context) string {
	if ctx == nil {
		return "-"
	}
	if id, ok := ctx.Value(sessionKey).(string); ok && id != "" {
		return id
	}
	return "-"
}

func init() { //nolint:gochecknoinits // env var initialization
	initDebugFromEnv()
}

// initDebugFromEnv reads INQUEST_DEBUG, INQUEST_DEBUG_DOMAINS,
// INQUEST_DEBUG_FILE and INQUEST_DEBUG_DIR.
//
//	INQUEST_DEBUG=1                              # debug for all domains
//	INQUEST_DEBUG=1 INQUEST_DEBUG_DOMAINS=routing,runner
//	INQUEST_DEBUG=1 INQUEST_DEBUG_FILE=1 INQUEST_DEBUG_DIR=/tmp/logs
func initDebugFromEnv() {
	debugMu.Lock()
	defer debugMu.Unlock()

	if v := os.Getenv("INQUEST_DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		debugConfig.Enabled = true
	}
	if v := os.Getenv("INQUEST_DEBUG_FILE"); v == "1" || strings.EqualFold(v, "true") {
		debugConfig.FileLogging = true
	}
	if dir := os.Getenv("INQUEST_DEBUG_DIR"); dir != "" {
		debugConfig.LogDir = dir
	} else {
		debugConfig.LogDir = "logs"
	}
	if domains := os.Getenv("INQUEST_DEBUG_DOMAINS"); domains != "" {
		debugConfig.Domains = make(map[string]bool)
		for _, d := range strings.Split(domains, ",") {
			debugConfig.Domains[strings.TrimSpace(d)] = true
		}
	}
}

// NewLogger returns a logger whose lines carry the given component name
// (e.g. "controller", "runner", "LogAgent").
func NewLogger(component string) *Logger {
	return &Logger{
		component: component,
		out:       log.New(os.Stderr, "", 0),
	}
}

// SetDebugConfig overrides the env-derived debug settings.
func SetDebugConfig(enabled, fileLogging bool, logDir string) {
	debugMu.Lock()
	defer debugMu.Unlock()

	debugConfig.Enabled = enabled
	debugConfig.FileLogging = fileLogging
	if logDir != "" {
		debugConfig.LogDir = logDir
	}
	if fileLogging && debugConfig.LogDir != "" {
		if err := os.MkdirAll(debugConfig.LogDir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "logx: cannot create log dir %s: %v\n", debugConfig.LogDir, err)
		}
	}
}

// SetDebugDomains restricts debug output to the named domains; empty enables all.
func SetDebugDomains(domains []string) {
	debugMu.Lock()
	defer debugMu.Unlock()

	if len(domains) == 0 {
		debugConfig.Domains = nil
		return
	}
	debugConfig.Domains = make(map[string]bool)
	for _, d := range domains {
		debugConfig.Domains[strings.TrimSpace(d)] = true
	}
}

// IsDebugEnabled reports whether debug logging is on at all.
func IsDebugEnabled() bool {
	debugMu.RLock()
	defer debugMu.RUnlock()
	return debugConfig.Enabled
}

// IsDebugEnabledForDomain reports whether debug logging is on for one domain.
func IsDebugEnabledForDomain(domain string) bool {
	debugMu.RLock()
	defer debugMu.RUnlock()

	if !debugConfig.Enabled {
		return false
	}
	if debugConfig.Domains == nil {
		return true
	}
	return debugConfig.Domains[domain]
}

func (r *ring) add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, e)
	if len(r.entries) > r.max {
		r.entries = r.entries[len(r.entries)-r.max:]
	}
}

func (r *ring) tail(n int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 || n > len(r.entries) {
		n = len(r.entries)
	}
	out := make([]Entry, n)
	copy(out, r.entries[len(r.entries)-n:])
	return out
}

// RecentEntries returns up to n of the most recent captured log lines.
func RecentEntries(n int) []Entry {
	return recent.tail(n)
}

func (l *Logger) log(level Level, domain, format string, args ...any) {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("[%s] [%s] %s: %s", ts, l.component, level, msg)

	logWriterLock.Lock()
	if logWriter != nil {
		fmt.Fprintln(logWriter, line)
	} else {
		l.out.Println(line)
	}
	logWriterLock.Unlock()

	recent.add(Entry{
		Timestamp: ts,
		Component: l.component,
		Level:     string(level),
		Message:   msg,
		Domain:    domain,
	})
}

func (l *Logger) Debug(format string, args ...any) {
	if !IsDebugEnabled() {
		return
	}
	l.log(LevelDebug, "", format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, "", format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, "", format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, "", format, args...)
}

// Component returns the component name this logger was created with.
func (l *Logger) Component() string {
	return l.component
}

// WithComponent returns a logger sharing the same output with a new prefix.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{component: component, out: l.out}
}

// Debug logs a domain-filtered debug line attributed to the session in ctx.
//
//	logx.Debug(ctx, "routing", "rule %s fired: %s", name, reason)
//	logx.Debug(ctx, "runner", "attempt %d timed out after %s", n, d)
func Debug(ctx context.Context, domain, format string, args ...any) {
	if !IsDebugEnabledForDomain(domain) {
		return
	}
	l := NewLogger(sessionFrom(ctx))
	l.log(LevelDebug, domain, "[%s] %s", domain, fmt.Sprintf(format, args...))
}

// DebugState logs a state transition through the domain-filtered path.
func DebugState(ctx context.Context, domain, action, state string) {
	Debug(ctx, domain, "state %s: %s", action, state)
}

// DebugToFile mirrors a debug line into a file under the configured log dir.
func DebugToFile(ctx context.Context, domain, filename, format string, args ...any) {
	if !IsDebugEnabledForDomain(domain) {
		return
	}
	Debug(ctx, domain, format, args...)

	debugMu.RLock()
	fileLogging := debugConfig.FileLogging
	logDir := debugConfig.LogDir
	debugMu.RUnlock()

	if !fileLogging || filename == "" {
		return
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return
	}
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	line := fmt.Sprintf("[%s] [%s] [%s] DEBUG: %s\n", ts, sessionFrom(ctx), domain, fmt.Sprintf(format, args...))
	path := filepath.Join(logDir, filename)
	if err := os.WriteFile(path, []byte(line), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "logx: cannot write debug log %s: %v\n", path, err)
	}
}

var defaultLogger = NewLogger("system")

func Debugf(format string, args ...any) {
	defaultLogger.Debug(format, args...)
}

func Infof(format string, args ...any) {
	defaultLogger.Info(format, args...)
}

func Warnf(format string, args ...any) {
	defaultLogger.Warn(format, args...)
}

// Errorf logs and returns the formatted error.
//
//	return logx.Errorf("session init failed: %w", err)
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs and returns fmt.Errorf("%s: %w", msg, err); nil stays nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrapped.Error())
	return wrapped
}
