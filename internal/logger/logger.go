package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level represents the logging level
type Level int

const (
	// DEBUG level for detailed debugging information
	DEBUG Level = iota
	// INFO level for informational messages
	INFO
	// WARN level for warning messages
	WARN
	// ERROR level for error messages
	ERROR
)

// String returns the string representation of the level
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a config string ("debug", "info", ...) to a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "debug", "DEBUG":
		return DEBUG, nil
	case "info", "INFO", "":
		return INFO, nil
	case "warn", "WARN", "warning":
		return WARN, nil
	case "error", "ERROR":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown log level: %s", s)
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Logger writes structured logs to a daily rotated file and, optionally, the console.
type Logger struct {
	mu            sync.RWMutex
	level         Level
	file          *os.File
	console       io.Writer
	zl            zerolog.Logger
	logDir        string
	currentDay    string
	retentionDays int
	now           func() time.Time
}

// Config holds logger configuration
type Config struct {
	LogDir        string
	Level         Level
	RetentionDays int
	Console       bool
}

// DefaultConfig returns the default logger configuration
func DefaultConfig() Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	logDir := filepath.Join(homeDir, "Library", "Application Support", "banana4u-voice", "logs")

	return Config{
		LogDir:        logDir,
		Level:         INFO,
		RetentionDays: 7,
	}
}

// New creates a new logger
func New(config Config) (*Logger, error) {
	l := &Logger{
		level:         config.Level,
		logDir:        config.LogDir,
		retentionDays: config.RetentionDays,
		now:           time.Now,
	}
	if config.Console {
		l.console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	if err := l.rotateLog(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Level filtering happens in WriteLevel so SetLevel reaches every derived logger.
	l.zl = zerolog.New(l).Level(zerolog.TraceLevel).With().Timestamp().Logger()

	return l, nil
}

// Nop returns a logger that discards everything. Useful in tests.
func Nop() *Logger {
	return &Logger{level: ERROR + 1, zl: zerolog.Nop(), now: time.Now}
}

// LogFileName returns the file name used for the given day.
func LogFileName(day time.Time) string {
	return fmt.Sprintf("banana4u-voice-%s.log", day.Format("20060102"))
}

// rotateLog rotates the log file if necessary
func (l *Logger) rotateLog() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	today := now.Format("20060102")

	if l.currentDay == today && l.file != nil {
		return nil
	}

	if l.file != nil {
		l.file.Close()
	}

	if err := os.MkdirAll(l.logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	filePath := filepath.Join(l.logDir, LogFileName(now))
	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	l.file = file
	l.currentDay = today

	if err := l.cleanOldLogs(now); err != nil {
		fmt.Fprintf(file, "failed to clean old logs: %v\n", err)
	}

	return nil
}

// cleanOldLogs deletes log files older than retentionDays
func (l *Logger) cleanOldLogs(now time.Time) error {
	if l.retentionDays <= 0 {
		return nil
	}
	cutoffDate := now.AddDate(0, 0, -l.retentionDays)

	entries, err := os.ReadDir(l.logDir)
	if err != nil {
		return fmt.Errorf("failed to read log directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".log" {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoffDate) {
			_ = os.Remove(filepath.Join(l.logDir, entry.Name()))
		}
	}

	return nil
}

// checkRotation checks if log rotation is needed and performs it
func (l *Logger) checkRotation() {
	l.mu.RLock()
	currentDay := l.currentDay
	hasFile := l.file != nil
	l.mu.RUnlock()

	if !hasFile {
		return
	}
	if currentDay != l.now().Format("20060102") {
		if err := l.rotateLog(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to rotate log: %v\n", err)
		}
	}
}

// Write implements io.Writer for zerolog. Records without a level are always written.
func (l *Logger) Write(p []byte) (int, error) {
	l.checkRotation()

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.file != nil {
		if _, err := l.file.Write(p); err != nil {
			return 0, err
		}
	}
	if l.console != nil {
		_, _ = l.console.Write(p)
	}
	return len(p), nil
}

// WriteLevel implements zerolog.LevelWriter.
func (l *Logger) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < l.GetLevel().zerolog() {
		return len(p), nil
	}
	return l.Write(p)
}

// Component returns a child logger tagged with the given component name.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.zl.With().Str("component", name).Logger()
}

// Zerolog returns the underlying structured logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	l.zl.Debug().Msgf(format, v...)
}

// Info logs an informational message
func (l *Logger) Info(format string, v ...interface{}) {
	l.zl.Info().Msgf(format, v...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, v ...interface{}) {
	l.zl.Warn().Msgf(format, v...)
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.zl.Error().Msgf(format, v...)
}

// Close closes the log file
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.level = level
}

// GetLevel returns the current logging level
func (l *Logger) GetLevel() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.level
}
