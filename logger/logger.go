package logger

import (
	"context"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// LogLevel controls how much the statement layer logs.
type LogLevel int

const (
	// Silent disables all output.
	Silent LogLevel = iota + 1
	// Error prints failed statements and errors.
	Error
	// Warn additionally prints slow statements.
	Warn
	// Info prints every statement.
	Info
)

// Config configures a logger adapter.
type Config struct {
	LogLevel      LogLevel
	SlowThreshold time.Duration
	// ParameterizedQueries, when set, keeps bound parameter values out of
	// the log.
	ParameterizedQueries bool
}

// Interface is what the client layer logs through. Trace is invoked once per
// executed statement with its latency and outcome.
type Interface interface {
	LogMode(LogLevel) Interface
	Info(ctx context.Context, msg string, data ...interface{})
	Warn(ctx context.Context, msg string, data ...interface{})
	Error(ctx context.Context, msg string, data ...interface{})
	Trace(ctx context.Context, begin time.Time, fc func() (sql string, rows int64), err error)
}

// Default is the logger used when a client is built without one.
var Default = NewZerologLoggerWithConfig(Config{LogLevel: Warn, SlowThreshold: 200 * time.Millisecond})

// Discard drops everything.
var Discard = discardLogger{}

type discardLogger struct{}

func (discardLogger) LogMode(LogLevel) Interface                                     { return Discard }
func (discardLogger) Info(context.Context, string, ...interface{})                   {}
func (discardLogger) Warn(context.Context, string, ...interface{})                   {}
func (discardLogger) Error(context.Context, string, ...interface{})                  {}
func (discardLogger) Trace(context.Context, time.Time, func() (string, int64), error) {}

var sourceDir string

func init() {
	_, file, _, _ := runtime.Caller(0)
	// logger/logger.go -> module root
	sourceDir = strings.TrimSuffix(file, "logger/logger.go")
}

// FileWithLineNum returns the first caller outside this module, for
// attributing a statement to the call site.
func FileWithLineNum() string {
	for i := 2; i < 15; i++ {
		_, file, line, ok := runtime.Caller(i)
		if ok && (!strings.HasPrefix(file, sourceDir) || strings.HasSuffix(file, "_test.go")) {
			return file + ":" + strconv.FormatInt(int64(line), 10)
		}
	}
	return ""
}
