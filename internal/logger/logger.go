package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fatih/color"
)

// LogLevel represents different log levels
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelSuccess
	LevelWarning
	LevelError
)

var levelNames = map[LogLevel]string{
	LevelDebug:   "DEBUG",
	LevelInfo:    "INFO",
	LevelSuccess: "SUCCESS",
	LevelWarning: "WARNING",
	LevelError:   "ERROR",
}

var levelColors = map[LogLevel]*color.Color{
	LevelDebug:   color.New(color.FgMagenta),
	LevelInfo:    color.New(color.FgCyan),
	LevelSuccess: color.New(color.FgGreen, color.Bold),
	LevelWarning: color.New(color.FgYellow, color.Bold),
	LevelError:   color.New(color.FgRed, color.Bold),
}

// Logger writes leveled entries to the console (colored) and mirrors every
// entry, uncolored, into an append-only log file for post-mortem review.
type Logger struct {
	mu       sync.Mutex
	minLevel LogLevel
	console  io.Writer
	file     io.Writer
	prefix   string
}

// New creates a Logger writing to console. file may be nil.
func New(console, file io.Writer, minLevel LogLevel) *Logger {
	return &Logger{
		minLevel: minLevel,
		console:  console,
		file:     file,
	}
}

// NewSession creates a logger backed by a fresh timestamped log file in dir,
// one file per invocation. The file handle stays open for the process
// lifetime, matching the append-only log artifact contract.
func NewSession(dir string, minLevel LogLevel) (*Logger, string, error) {
	name := fmt.Sprintf("autodeploy-%s.log", time.Now().Format("20060102-150405"))
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, "", fmt.Errorf("open log file: %w", err)
	}
	return New(os.Stdout, f, minLevel), path, nil
}

// SetLevel sets the minimum log level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
}

// WithPrefix returns a child logger tagging every entry with a component name.
func (l *Logger) WithPrefix(prefix string) *Logger {
	return &Logger{
		minLevel: l.minLevel,
		console:  l.console,
		file:     l.file,
		prefix:   prefix,
	}
}

// Log logs a message at a specific level
func (l *Logger) Log(level LogLevel, msg string, args ...interface{}) {
	if level < l.minLevel {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	stamp := time.Now().Format("2006-01-02 15:04:05")
	body := fmt.Sprintf(msg, args...)
	if l.prefix != "" {
		body = fmt.Sprintf("[%s] %s", l.prefix, body)
	}

	if l.console != nil {
		tag := levelColors[level].Sprintf("[%s]", levelNames[level])
		fmt.Fprintf(l.console, "%s %s %s\n", stamp, tag, body)
	}
	if l.file != nil {
		fmt.Fprintf(l.file, "%s [%s] %s\n", stamp, levelNames[level], body)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.Log(LevelDebug, msg, args...)
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...interface{}) {
	l.Log(LevelInfo, msg, args...)
}

// Success logs a success message
func (l *Logger) Success(msg string, args ...interface{}) {
	l.Log(LevelSuccess, msg, args...)
}

// Warning logs a warning message
func (l *Logger) Warning(msg string, args ...interface{}) {
	l.Log(LevelWarning, msg, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...interface{}) {
	l.Log(LevelError, msg, args...)
}
