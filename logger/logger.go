package logger

import (
	"bufio"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// noopFunc is a reusable no-op function to avoid allocations
var noopFunc = func() {}

// Trace returns a function that logs operation duration when called.
// Returns a no-op function when TRACE level is disabled to avoid overhead.
// Usage: defer logger.Trace("operation")()
func Trace(name string) func() {
	l := current()
	if !l.shouldLog(LogLevelTrace) {
		return noopFunc
	}
	start := time.Now()
	return func() {
		l.logWithLevel(LogLevelTrace, "%s: %v", name, time.Since(start))
	}
}

// MaxLogLines defines the maximum number of lines to keep in the log file
const MaxLogLines = 5000

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelTrace LogLevel = iota
	LogLevelDebug
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// zapTraceLevel sits below zap's debug level.
const zapTraceLevel = zapcore.DebugLevel - 1

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LogLevelTrace:
		return "TRACE"
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LogLevelTrace:
		return zapTraceLevel
	case LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLogLevel parses a string into a LogLevel
func ParseLogLevel(s string) LogLevel {
	switch strings.ToUpper(s) {
	case "TRACE":
		return LogLevelTrace
	case "DEBUG":
		return LogLevelDebug
	case "INFO":
		return LogLevelInfo
	case "WARN", "WARNING":
		return LogLevelWarn
	case "ERROR":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// LimitedLogger is a leveled logger backed by zap. When it writes to a file,
// the file is trimmed to the last MaxLogLines lines.
type LimitedLogger struct {
	out   *lineLimitedFile
	level zap.AtomicLevel
	sugar *zap.SugaredLogger
}

var (
	globalMu     sync.RWMutex
	globalLogger *LimitedLogger
)

// defaultLogger is used before the global logger is initialized
var defaultLogger = newLogger(zapcore.Lock(os.Stderr), nil, LogLevelInfo)

// NewLimitedLogger creates a logger writing to file and installs it as the
// global logger.
func NewLimitedLogger(file *os.File, level LogLevel) *LimitedLogger {
	out := &lineLimitedFile{file: file}
	out.countExistingLines()
	ll := newLogger(out, out, level)
	globalMu.Lock()
	globalLogger = ll
	globalMu.Unlock()
	return ll
}

// NewWriterLogger creates a logger over an arbitrary writer without
// installing it globally. Useful for tests and one-shot commands.
func NewWriterLogger(w io.Writer, level LogLevel) *LimitedLogger {
	return newLogger(zapcore.AddSync(w), nil, level)
}

func newLogger(ws zapcore.WriteSyncer, out *lineLimitedFile, level LogLevel) *LimitedLogger {
	atom := zap.NewAtomicLevelAt(level.zapLevel())
	encCfg := zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "level",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05"),
		EncodeLevel:      encodeLevel,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), ws, atom)
	return &LimitedLogger{
		out:   out,
		level: atom,
		sugar: zap.New(core).Sugar(),
	}
}

func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l == zapTraceLevel {
		enc.AppendString("[TRACE]")
		return
	}
	enc.AppendString("[" + l.CapitalString() + "]")
}

// SetLevel sets the logging level
func (ll *LimitedLogger) SetLevel(level LogLevel) {
	ll.level.SetLevel(level.zapLevel())
}

// SetGlobalLevel sets the logging level on the global logger
func SetGlobalLevel(level LogLevel) {
	current().SetLevel(level)
}

// Sugar exposes the underlying zap logger.
func (ll *LimitedLogger) Sugar() *zap.SugaredLogger {
	return ll.sugar
}

// shouldLog returns true if the given level should be logged
func (ll *LimitedLogger) shouldLog(level LogLevel) bool {
	return ll.level.Enabled(level.zapLevel())
}

// logWithLevel logs a message at the specified level
func (ll *LimitedLogger) logWithLevel(level LogLevel, format string, v ...any) {
	if !ll.shouldLog(level) {
		return
	}
	ll.sugar.Logf(level.zapLevel(), format, v...)
}

// Debug logs a debug message
func (ll *LimitedLogger) Debug(format string, v ...any) {
	ll.logWithLevel(LogLevelDebug, format, v...)
}

// Info logs an info message
func (ll *LimitedLogger) Info(format string, v ...any) {
	ll.logWithLevel(LogLevelInfo, format, v...)
}

// Warn logs a warning message
func (ll *LimitedLogger) Warn(format string, v ...any) {
	ll.logWithLevel(LogLevelWarn, format, v...)
}

// Error logs an error message
func (ll *LimitedLogger) Error(format string, v ...any) {
	ll.logWithLevel(LogLevelError, format, v...)
}

// Fatal logs an error message and exits with code 1
func (ll *LimitedLogger) Fatal(format string, v ...any) {
	ll.logWithLevel(LogLevelError, format, v...)
	_ = ll.sugar.Sync()
	os.Exit(1)
}

// Write implements io.Writer so the standard log package can be redirected.
func (ll *LimitedLogger) Write(p []byte) (int, error) {
	ll.sugar.Info(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// Close flushes and closes the underlying file, if any
func (ll *LimitedLogger) Close() error {
	_ = ll.sugar.Sync()
	if ll.out == nil {
		return nil
	}
	return ll.out.file.Close()
}

func current() *LimitedLogger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger != nil {
		return globalLogger
	}
	return defaultLogger
}

// Package-level logging functions that use the global logger (or default if not initialized)
func Debug(format string, v ...any) { current().Debug(format, v...) }

func Info(format string, v ...any) { current().Info(format, v...) }

func Warn(format string, v ...any) { current().Warn(format, v...) }

func Error(format string, v ...any) { current().Error(format, v...) }

func Fatal(format string, v ...any) { current().Fatal(format, v...) }

// lineLimitedFile is a zap WriteSyncer that keeps the file under MaxLogLines.
type lineLimitedFile struct {
	file      *os.File
	lineCount int
	mutex     sync.Mutex
}

// countExistingLines counts the number of lines in the current log file
func (f *lineLimitedFile) countExistingLines() {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.file.Seek(0, 0)
	scanner := bufio.NewScanner(f.file)

	count := 0
	for scanner.Scan() {
		count++
	}

	f.lineCount = count
	f.file.Seek(0, 2)
}

// Write implements io.Writer interface
func (f *lineLimitedFile) Write(p []byte) (n int, err error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	n, err = f.file.Write(p)
	if err != nil {
		return n, err
	}

	f.lineCount += strings.Count(string(p), "\n")
	if f.lineCount > MaxLogLines {
		f.rotate()
	}

	return n, err
}

func (f *lineLimitedFile) Sync() error {
	return f.file.Sync()
}

// rotate trims the log file to keep only the last MaxLogLines lines
func (f *lineLimitedFile) rotate() {
	f.file.Seek(0, 0)
	scanner := bufio.NewScanner(f.file)
	var lines []string

	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	if len(lines) > MaxLogLines {
		lines = lines[len(lines)-MaxLogLines:]
	}

	f.file.Truncate(0)
	f.file.Seek(0, 0)

	for _, line := range lines {
		f.file.WriteString(line + "\n")
	}

	f.lineCount = len(lines)
}
