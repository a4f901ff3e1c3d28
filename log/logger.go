package log

import (
	"context"
	"strings"
)

// Level is the minimum severity a Logger emits.
type Level int8

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
	PanicLevel
)

func (lvl Level) String() string {
	switch lvl {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	case PanicLevel:
		return "PANIC"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel 解析日志级别, 无法识别时返回 InfoLevel
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "fatal":
		return FatalLevel
	case "panic":
		return PanicLevel
	default:
		return InfoLevel
	}
}

// Fields is a set of structured key/value pairs attached to log entries.
type Fields map[string]interface{}

type Logger interface {
	Debug(v ...any)
	Debugf(format string, v ...any)

	Info(v ...any)
	Infof(format string, v ...any)

	Warn(v ...any)
	Warnf(format string, v ...any)

	Error(v ...any)
	Errorf(format string, v ...any)

	Fatal(v ...any)
	Fatalf(format string, v ...any)

	Panic(v ...any)
	Panicf(format string, v ...any)

	WithField(key string, value any) Logger
	WithFields(fields Fields) Logger
	WithError(err error) Logger
	WithContext(ctx context.Context) Logger

	SetLevel(lvl Level)
	IsLevelEnabled(lvl Level) bool
}

type fieldsKey struct{}

// NewContext returns a copy of ctx carrying fields. Loggers derived with
// WithContext pick them up.
func NewContext(ctx context.Context, fields Fields) context.Context {
	if old, ok := ctx.Value(fieldsKey{}).(Fields); ok {
		merged := make(Fields, len(old)+len(fields))
		for k, v := range old {
			merged[k] = v
		}
		for k, v := range fields {
			merged[k] = v
		}
		fields = merged
	}
	return context.WithValue(ctx, fieldsKey{}, fields)
}

func fieldsFromContext(ctx context.Context) Fields {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(fieldsKey{}).(Fields)
	return fields
}

var l Logger = newZapLogger(InfoLevel, nil, 2)

func SetLogger(logger Logger) {
	l = logger
}

func SetDummyLogger() {
	l = &dummyLogger{}
}

func SetLevel(lvl Level) {
	l.SetLevel(lvl)
}

func WithField(key string, value any) Logger {
	return l.WithField(key, value)
}

func WithFields(fields Fields) Logger {
	return l.WithFields(fields)
}

func WithError(err error) Logger {
	return l.WithError(err)
}

func WithContext(ctx context.Context) Logger {
	return l.WithContext(ctx)
}

func Debug(v ...any) {
	l.Debug(v...)
}
func Debugf(format string, v ...any) {
	l.Debugf(format, v...)
}

func Info(v ...any) {
	l.Info(v...)
}
func Infof(format string, v ...any) {
	l.Infof(format, v...)
}

func Warn(v ...any) {
	l.Warn(v...)
}
func Warnf(format string, v ...any) {
	l.Warnf(format, v...)
}

func Error(v ...any) {
	l.Error(v...)
}
func Errorf(format string, v ...any) {
	l.Errorf(format, v...)
}

func Fatal(v ...any) {
	l.Fatal(v...)
}
func Fatalf(format string, v ...any) {
	l.Fatalf(format, v...)
}

func Panic(v ...any) {
	l.Panic(v...)
}
func Panicf(format string, v ...any) {
	l.Panicf(format, v...)
}
