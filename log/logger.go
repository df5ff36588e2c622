// Package log is the engine's leveled logger. Components receive named
// children of one root logger (storage, cache, registry, expand), writing
// to the terminal, a rotated file, or both.
package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger struct {
	writer io.Writer

	Name  string
	Level LogLevel

	TimeFormat string
	File       string
	NoColor    bool
	JSON       bool
	NoTerminal bool
	Rotation   *LoggerRotation
}

// LoggerRotation controls the rotation of the log file, when one is set.
type LoggerRotation struct {
	MaxSize    int // Megabytes before rotation
	MaxBackups int
	MaxAge     int // Days before a rotated file is deleted
	Compress   bool
}

type logEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Component string `json:"component,omitempty"`
	Message   string `json:"message"`
}

func NewLogger(name string, level LogLevel, file string, noTerminal bool) *Logger {
	l := &Logger{
		Name:       name,
		Level:      level,
		File:       file,
		NoTerminal: noTerminal,

		TimeFormat: "2006-01-02 15:04:05",
		Rotation: &LoggerRotation{
			MaxSize:    128,
			MaxBackups: 5,
			MaxAge:     16,
			Compress:   false,
		},
	}

	l.setupWriter()

	return l
}

// Discard returns a logger that drops everything. Useful as a default when
// callers do not wire logging.
func Discard() *Logger {
	return &Logger{
		writer:     io.Discard,
		Level:      Fatal,
		NoTerminal: true,
		TimeFormat: "2006-01-02 15:04:05",
	}
}

func (l *Logger) setupWriter() {
	var writers []io.Writer

	if !l.NoTerminal {
		writers = append(writers, os.Stdout)
	}

	if l.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   l.File,
			MaxSize:    l.Rotation.MaxSize,
			MaxBackups: l.Rotation.MaxBackups,
			MaxAge:     l.Rotation.MaxAge,
			Compress:   l.Rotation.Compress,
		})
	}

	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	l.writer = io.MultiWriter(writers...)
}

func (l *Logger) log(level LogLevel, msg string, args ...any) {
	if level < l.Level {
		return
	}

	timestamp := time.Now().Format(l.TimeFormat)
	formatted := fmt.Sprintf(msg, args...)

	if l.JSON {
		entry := logEntry{
			Timestamp: timestamp,
			Level:     level.String(),
			Component: l.Name,
			Message:   formatted,
		}

		raw, _ := json.Marshal(entry)
		fmt.Fprintf(l.writer, "%s\n", raw)
	} else {
		prefix := fmt.Sprintf("[%s] %-5s", timestamp, level)
		if l.Name != "" {
			prefix = fmt.Sprintf("%s [%s]", prefix, l.Name)
		}

		if !l.NoTerminal && !l.NoColor {
			fmt.Fprintf(l.writer, "%s%s %s\033[0m\n", Color(level), prefix, formatted)
		} else {
			fmt.Fprintf(l.writer, "%s %s\n", prefix, formatted)
		}
	}

	if level == Fatal {
		os.Exit(1)
	}
}

func (l *Logger) Debug(msg string, args ...any) {
	l.log(Debug, msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.log(Info, msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.log(Warn, msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.log(Error, msg, args...)
}

func (l *Logger) Fatal(msg string, args ...any) {
	l.log(Fatal, msg, args...)
}

// Named returns a child logger sharing the writer, with the component name
// appended.
func (l *Logger) Named(name string) *Logger {
	if l.Name != "" {
		name = l.Name + "/" + name
	}

	return &Logger{
		writer: l.writer,

		Name:  name,
		Level: l.Level,

		TimeFormat: l.TimeFormat,
		File:       l.File,
		NoColor:    l.NoColor,
		NoTerminal: l.NoTerminal,
		JSON:       l.JSON,
		Rotation:   l.Rotation,
	}
}
