package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func levelString(level Level) string {
	switch level {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func levelFromEnv() Level {
	switch os.Getenv("CYNIC_LOG_LEVEL") {
	case "debug", "DEBUG":
		return LevelDebug
	case "warn", "WARN":
		return LevelWarn
	case "error", "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

var (
	fileLoggerInstance *FileLogger
	fileLoggerOnce     sync.Once
)

// FileLogger writes structured lines to cynic-debug.log in the user's
// home directory (override with CYNIC_DEBUG_LOG) and mirrors them to
// stdout so process supervisors capture them.
type FileLogger struct {
	mu        sync.Mutex
	file      *os.File
	logger    *log.Logger
	level     Level
	component string
	stdout    bool
}

func sharedFileLogger() *FileLogger {
	fileLoggerOnce.Do(func() {
		l := &FileLogger{level: levelFromEnv(), stdout: true}

		path := os.Getenv("CYNIC_DEBUG_LOG")
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				log.Printf("logging: failed to resolve home directory: %v", err)
				fileLoggerInstance = l
				return
			}
			path = filepath.Join(home, "cynic-debug.log")
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Printf("logging: failed to open %s: %v", path, err)
			fileLoggerInstance = l
			return
		}
		l.file = file
		l.logger = log.New(file, "", 0)
		fileLoggerInstance = l
	})
	return fileLoggerInstance
}

// NewComponentLogger returns the default application logger scoped to a
// component name.
func NewComponentLogger(component string) Logger {
	shared := sharedFileLogger()
	return &FileLogger{
		file:      shared.file,
		logger:    shared.logger,
		level:     shared.level,
		component: component,
		stdout:    shared.stdout,
	}
}

// SetLevel sets the minimum level this logger emits.
func (l *FileLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Close closes the underlying log file.
func (l *FileLogger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *FileLogger) log(level Level, format string, args ...any) {
	if level < l.level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
	} else {
		file = "???"
		line = 0
	}

	component := l.component
	if component == "" {
		component = "CYNIC"
	}
	message := fmt.Sprintf(format, args...)
	logLine := fmt.Sprintf("%s [%s] [%s] %s:%d - %s\n",
		time.Now().Format("2006-01-02 15:04:05"),
		levelString(level), component, file, line, message)

	if l.logger != nil {
		l.logger.Print(logLine)
	}
	if l.stdout {
		fmt.Print(logLine)
	}
}

func (l *FileLogger) Debug(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *FileLogger) Info(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *FileLogger) Warn(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *FileLogger) Error(format string, args ...any) { l.log(LevelError, format, args...) }
