package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cargohold/internal/constants"
)

const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

var levelOrder = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// Logger provides leveled logging with optional file output and daily rotation.
type Logger struct {
	level         string
	mu            sync.Mutex
	workDir       string // empty = stdout only
	file          *os.File
	currentDay    int // day tracker for rotation (year*1000 + yday)
	writeToStdout bool
}

// NewLogger creates a logger with stdout output only.
func NewLogger(level string) *Logger {
	if _, ok := levelOrder[normalizeLevel(level)]; !ok {
		level = LevelDebug
	}
	return &Logger{
		level:         normalizeLevel(level),
		writeToStdout: true,
	}
}

func normalizeLevel(level string) string {
	switch level {
	case "debug", LevelDebug:
		return LevelDebug
	case "info", LevelInfo:
		return LevelInfo
	case "warn", LevelWarn:
		return LevelWarn
	case "error", LevelError:
		return LevelError
	}
	return LevelDebug
}

// SetWorkDir enables or changes file logging to the given working directory.
// Pass empty string to disable file logging.
func (l *Logger) SetWorkDir(workDir string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closeFileUnsafe()
	l.workDir = workDir
	if workDir != "" {
		l.currentDay = dayKey(time.Now())
	}
	return nil
}

// Close closes the log file handle. Call during graceful shutdown.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeFileUnsafe()
}

func (l *Logger) closeFileUnsafe() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// SetLevel changes the minimum level logged.
func (l *Logger) SetLevel(level string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := levelOrder[normalizeLevel(level)]; ok {
		l.level = normalizeLevel(level)
	}
}

func (l *Logger) shouldLog(level string) bool {
	return levelOrder[level] >= levelOrder[l.level]
}

func dayKey(t time.Time) int {
	return t.Year()*1000 + t.YearDay()
}

// logFilename is the Unix timestamp of midnight UTC for the given day.
func logFilename(t time.Time) string {
	year, month, day := t.UTC().Date()
	start := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return fmt.Sprintf("%d%s", start.Unix(), constants.LogFileExtension)
}

// fileHandleUnsafe returns the current log file, opening or rotating as
// needed. Caller must hold the mutex.
func (l *Logger) fileHandleUnsafe() (*os.File, error) {
	now := time.Now()
	if l.file != nil && dayKey(now) == l.currentDay {
		return l.file, nil
	}
	l.closeFileUnsafe()
	l.currentDay = dayKey(now)

	logDir := filepath.Join(l.workDir, constants.InternalDir, constants.LogsDir)
	if err := os.MkdirAll(logDir, constants.DirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
	}

	path := filepath.Join(logDir, logFilename(now))
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, constants.FilePermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	l.file = file
	return file, nil
}

func (l *Logger) log(level, format string, args ...interface{}) {
	if !l.shouldLog(level) {
		return
	}

	timestamp := time.Now().Format(constants.LogTimestampFormat)
	message := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("[%s] %s | %s\n", level, timestamp, message)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writeToStdout {
		fmt.Print(line)
	}

	if l.workDir != "" {
		handle, err := l.fileHandleUnsafe()
		if err != nil {
			if l.writeToStdout {
				fmt.Printf("[LOGGER_ERROR] %v\n", err)
			}
			return
		}
		if _, err := handle.WriteString(line); err != nil && l.writeToStdout {
			fmt.Printf("[LOGGER_ERROR] Failed to write to log file: %v\n", err)
		}
	}
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.log(LevelError, format, args...)
}
