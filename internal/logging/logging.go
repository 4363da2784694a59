// Package logging provides the gateway's structured logger, a process-wide
// zerolog logger whose lines carry the service name.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ServiceName tags every log line and names the log files.
const ServiceName = "ragdocs-gateway"

// SessionField is the field session-scoped lines carry the session id in.
const SessionField = "sessionID"

// Logger is the global logger instance.
var Logger zerolog.Logger

// logFile is the currently open log file, if file logging is enabled.
var logFile *os.File

// Level represents log levels.
type Level = zerolog.Level

const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
	FatalLevel = zerolog.FatalLevel
)

// Config holds logger configuration.
type Config struct {
	Level Level
	// Output defaults to os.Stderr.
	Output io.Writer
	// Pretty switches to zerolog's console writer.
	Pretty     bool
	TimeFormat string
	// LogToFile tees JSON lines into a dated file under LogDir.
	LogToFile bool
	LogDir    string
	// Version, when set, is added to every line.
	Version string
}

// DefaultConfig returns the configuration used before Init is called.
func DefaultConfig() Config {
	return Config{
		Level:      InfoLevel,
		Output:     os.Stderr,
		TimeFormat: time.RFC3339,
		LogDir:     os.TempDir(),
	}
}

// Init replaces the global logger. It returns an error only when file
// logging was requested and the file could not be opened; console logging
// is configured regardless.
func Init(cfg Config) error {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}
	if cfg.LogDir == "" {
		cfg.LogDir = os.TempDir()
	}

	zerolog.TimeFieldFormat = cfg.TimeFormat

	output := cfg.Output
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: cfg.TimeFormat}
	}

	Close()

	var fileErr error
	if cfg.LogToFile {
		if f, err := openLogFile(cfg.LogDir, time.Now()); err != nil {
			fileErr = err
		} else {
			logFile = f
			output = zerolog.MultiLevelWriter(output, f)
		}
	}

	ctx := zerolog.New(output).Level(cfg.Level).With().
		Timestamp().
		Str("service", ServiceName)
	if cfg.Version != "" {
		ctx = ctx.Str("version", cfg.Version)
	}
	Logger = ctx.Logger()

	return fileErr
}

func logFileName(day time.Time) string {
	return fmt.Sprintf("%s-%s.log", ServiceName, day.Format(time.DateOnly))
}

func openLogFile(dir string, day time.Time) (*os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, logFileName(day)), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// GetLogFilePath returns the path of the active log file, or "" when file
// logging is disabled.
func GetLogFilePath() string {
	if logFile == nil {
		return ""
	}
	return logFile.Name()
}

// Close closes the active log file, if any.
func Close() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// ParseLevel maps a configured level name to a Level, ignoring case and
// surrounding space. "warning" is accepted for warn. Empty or unknown names
// give InfoLevel.
func ParseLevel(level string) Level {
	name := strings.ToLower(strings.TrimSpace(level))
	if name == "warning" {
		name = "warn"
	}
	l, err := zerolog.ParseLevel(name)
	if err != nil || l == zerolog.NoLevel {
		return InfoLevel
	}
	return l
}

// Session returns a child of the global logger tagged with a session id.
func Session(id string) *zerolog.Logger {
	l := Logger.With().Str(SessionField, id).Logger()
	return &l
}

func Debug() *zerolog.Event { return Logger.Debug() }

func Info() *zerolog.Event { return Logger.Info() }

func Warn() *zerolog.Event { return Logger.Warn() }

func Error() *zerolog.Event { return Logger.Error() }

// Fatal starts a fatal message; sending it exits the process.
func Fatal() *zerolog.Event { return Logger.Fatal() }

// With starts a child logger context.
func With() zerolog.Context { return Logger.With() }

func init() {
	_ = Init(DefaultConfig())
}
