package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Logger provides leveled logging to a file and stdout.
type Logger struct {
	file   *os.File
	logger *log.Logger
	silent bool
}

// NewLogger creates a logger writing to the given file path.
func NewLogger(logPath string) (*Logger, error) {
	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &Logger{
		file:   file,
		logger: log.New(file, "", log.LstdFlags),
	}, nil
}

// NopLogger returns a logger that discards everything. Used in tests and as
// the default when no logger is injected.
func NopLogger() *Logger {
	return &Logger{
		logger: log.New(io.Discard, "", 0),
		silent: true,
	}
}

// Close closes the underlying log file.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	l.emit("[INFO] "+format, v...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, v ...interface{}) {
	l.emit("[WARN] "+format, v...)
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.emit("[ERROR] "+format, v...)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	l.emit("[DEBUG] "+format, v...)
}

func (l *Logger) emit(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	l.logger.Println(msg)
	if !l.silent {
		fmt.Println(msg)
	}
}

// DefaultLogPath returns the default log file location.
func DefaultLogPath() string {
	return filepath.Join(".", "logs", fmt.Sprintf("charchat-%s.log", time.Now().Format("2006-01-02")))
}
