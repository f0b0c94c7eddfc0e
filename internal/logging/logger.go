package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log level
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

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
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Fields are structured key/value pairs attached to an entry
type Fields map[string]interface{}

// sink is shared by a logger and every child created through WithField
type sink struct {
	mu      sync.Mutex
	output  io.Writer
	logFile *os.File
	echo    io.Writer
}

// Logger provides leveled, structured logging with optional file output
type Logger struct {
	level      Level
	jsonFormat bool
	fields     Fields
	component  string
	sink       *sink
}

// New creates a logger writing to w
func New(level Level, jsonFormat bool, w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{
		level:      level,
		jsonFormat: jsonFormat,
		fields:     Fields{},
		sink:       &sink{output: w},
	}
}

// Discard returns a logger that drops everything
func Discard() *Logger {
	return New(FATAL+1, false, io.Discard)
}

// NewFileLogger creates a logger that writes to ./logs/<component>/<component>.log and echoes
// to stderr.
func NewFileLogger(baseDir, component string, level Level, jsonFormat bool) (*Logger, error) {
	if baseDir == "" {
		baseDir = "logs"
	}
	logDir := filepath.Join(baseDir, component)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
	}

	logPath := filepath.Join(logDir, component+".log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}

	l := &Logger{
		level:      level,
		jsonFormat: jsonFormat,
		fields:     Fields{},
		component:  component,
		sink: &sink{
			output:  io.MultiWriter(logFile, os.Stderr),
			logFile: logFile,
			echo:    os.Stderr,
		},
	}
	l.Debug("logger initialized", Fields{"path": logPath})
	return l, nil
}

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Component string `json:"component,omitempty"`
	Message   string `json:"message"`
	Fields    Fields `json:"fields,omitempty"`
}

func (l *Logger) log(level Level, message string, fields Fields) {
	if level < l.level {
		return
	}

	merged := make(Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		merged[k] = v
	}

	var line string
	if l.jsonFormat {
		entry := LogEntry{
			Timestamp: time.Now().Format(time.RFC3339),
			Level:     level.String(),
			Component: l.component,
			Message:   message,
			Fields:    merged,
		}
		data, err := json.Marshal(entry)
		if err != nil {
			log.Printf("failed to marshal log entry: %v", err)
			return
		}
		line = string(data)
	} else {
		var b strings.Builder
		fmt.Fprintf(&b, "[%s] %s: %s", time.Now().Format("2006-01-02 15:04:05"), level, message)
		if len(merged) > 0 {
			keys := make([]string, 0, len(merged))
			for k := range merged {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, " %s=%v", k, merged[k])
			}
		}
		line = b.String()
	}

	l.sink.mu.Lock()
	fmt.Fprintln(l.sink.output, line)
	l.sink.mu.Unlock()

	if level == FATAL {
		os.Exit(1)
	}
}

func first(fields []Fields) Fields {
	if len(fields) > 0 {
		return fields[0]
	}
	return nil
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields ...Fields) { l.log(DEBUG, message, first(fields)) }

// Info logs an info message
func (l *Logger) Info(message string, fields ...Fields) { l.log(INFO, message, first(fields)) }

// Warn logs a warning message
func (l *Logger) Warn(message string, fields ...Fields) { l.log(WARN, message, first(fields)) }

// Error logs an error message
func (l *Logger) Error(message string, fields ...Fields) { l.log(ERROR, message, first(fields)) }

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(message string, fields ...Fields) { l.log(FATAL, message, first(fields)) }

// Enabled reports whether entries at level are written
func (l *Logger) Enabled(level Level) bool {
	return level >= l.level
}

// WithField adds a field to the logger context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(Fields{key: value})
}

// WithFields returns a child logger carrying fields; the parent is not modified
func (l *Logger) WithFields(fields Fields) *Logger {
	newFields := make(Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}
	return &Logger{
		level:      l.level,
		jsonFormat: l.jsonFormat,
		fields:     newFields,
		component:  l.component,
		sink:       l.sink,
	}
}

// Component returns a child logger tagged with a component name
func (l *Logger) Component(name string) *Logger {
	child := l.WithFields(nil)
	child.component = name
	return child
}

// ParseLevel parses a log level string
func ParseLevel(level string) Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "fatal":
		return FATAL
	default:
		return INFO
	}
}

// Close closes the log file if opened
func (l *Logger) Close() error {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	if l.sink.logFile != nil {
		err := l.sink.logFile.Close()
		l.sink.logFile = nil
		l.sink.output = l.sink.echo
		return err
	}
	return nil
}

// RotateIfNeeded rotates the log file once it exceeds maxSize bytes
func (l *Logger) RotateIfNeeded(maxSize int64) error {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if l.sink.logFile == nil {
		return nil
	}

	info, err := l.sink.logFile.Stat()
	if err != nil {
		return err
	}
	if info.Size() <= maxSize {
		return nil
	}

	oldPath := l.sink.logFile.Name()
	l.sink.logFile.Close()

	backupPath := oldPath + "." + time.Now().Format("20060102-150405")
	if err := os.Rename(oldPath, backupPath); err != nil {
		return err
	}

	newFile, err := os.OpenFile(oldPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		l.sink.logFile = nil
		l.sink.output = l.sink.echo
		return err
	}
	l.sink.logFile = newFile
	l.sink.output = io.MultiWriter(newFile, l.sink.echo)
	return nil
}
